// Package policymgr administers pricing policies and data buckets in the
// policy registry.
package policymgr

import (
	"context"
	"crypto/rand"
	"math"
	mathbig "math/big"
	"time"

	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/querymgr"
)

var log = logging.Logger("policymgr")

// USDCUnit is the number of USDC micro-units in one dollar.
var USDCUnit = big.NewInt(1_000_000)

var maxID = new(mathbig.Int).Lsh(mathbig.NewInt(1), 256)

// PolicySpec describes a policy to register.
type PolicySpec struct {
	AllowedCategories []string
	AllowedAddresses  []ethtypes.EthAddress
	AllowedColumns    []string
	ValidDays         int
	USDPrice          float64
	// DisclosureOperations lists the aggregates whose per-bucket results
	// may be disclosed to the analyst.
	DisclosureOperations []string
}

type Policy struct {
	ID                   big.Int
	AllowedCategories    []string
	AllowedAddresses     []ethtypes.EthAddress
	AllowedColumns       []string
	ExpDate              time.Time
	Price                big.Int
	Owner                ethtypes.EthAddress
	Deactivated          bool
	DisclosureOperations []string
}

// BucketSpec describes a bucket to register. UseAllowlists is per policy
// and only honored by registries with the allowlist bucket API.
type BucketSpec struct {
	PolicyIDs     []big.Int
	UseAllowlists []bool
	DataFormat    string
	NodeAddress   ethtypes.EthAddress
}

type Bucket struct {
	ID          big.Int
	PolicyIDs   []big.Int
	DataFormat  string
	NodeAddress ethtypes.EthAddress
	Owner       ethtypes.EthAddress
	Deactivated bool
}

// Registry is the policy and bucket administration client. Its calls are
// shaped by the capabilities negotiated from the registry ABI.
type Registry struct {
	l     ledger.Ledger
	caps  contracts.PolicyCapabilities
	clock clock.Clock
}

func NewRegistry(l ledger.Ledger, clk clock.Clock) (*Registry, error) {
	caps, err := contracts.NegotiatePolicy(l.ABI(contracts.EoaBond))
	if err != nil {
		return nil, xerrors.Errorf("negotiating policy registry capabilities: %w", err)
	}
	if clk == nil {
		clk = clock.New()
	}
	log.Debugw("policy registry capabilities", "policy", caps.Policy, "bucket", caps.Bucket,
		"disclosureSetter", caps.HasDisclosureSetter, "disclosureGetter", caps.HasDisclosureGetter)
	return &Registry{l: l, caps: caps, clock: clk}, nil
}

func (r *Registry) Capabilities() contracts.PolicyCapabilities {
	return r.caps
}

// NewID returns a random 256-bit identifier.
func NewID() (big.Int, error) {
	i, err := rand.Int(rand.Reader, maxID)
	if err != nil {
		return big.Int{}, xerrors.Errorf("generating id: %w", err)
	}
	return big.NewFromGo(i), nil
}

// USDToMicro converts a dollar amount into USDC micro-units.
func USDToMicro(usd float64) (big.Int, error) {
	if usd < 0 {
		return big.Int{}, xerrors.Errorf("price must not be negative")
	}
	if math.IsNaN(usd) || math.IsInf(usd, 0) {
		return big.Int{}, xerrors.Errorf("price must be a finite number, got %v", usd)
	}
	f := new(mathbig.Float).SetPrec(128).SetFloat64(usd)
	f.Mul(f, new(mathbig.Float).SetInt(USDCUnit.Int))
	// round half up on the micro-unit
	f.Add(f, mathbig.NewFloat(0.5))
	i, _ := f.Int(nil)
	return big.NewFromGo(i), nil
}

func validateOps(ops []string) error {
	var merr *multierror.Error
	for _, op := range ops {
		if !querymgr.IsAggregateType(op) {
			merr = multierror.Append(merr, xerrors.Errorf("invalid disclosure operation %q, must be one of %v", op, querymgr.AggregateTypes))
		}
	}
	return merr.ErrorOrNil()
}

func (r *Registry) requireOwner(ctx context.Context) error {
	_, err := ledger.CheckRole(ctx, r.l, ledger.RoleOwner)
	return err
}

// AddPolicy registers a new policy and returns its id.
func (r *Registry) AddPolicy(ctx context.Context, spec PolicySpec) (big.Int, error) {
	var merr *multierror.Error
	if spec.ValidDays <= 0 {
		merr = multierror.Append(merr, xerrors.Errorf("valid days must be positive"))
	}
	price, err := USDToMicro(spec.USDPrice)
	if err != nil {
		merr = multierror.Append(merr, err)
	}
	merr = multierror.Append(merr, validateOps(spec.DisclosureOperations))
	if len(spec.DisclosureOperations) > 0 && !r.caps.CanSetDisclosure() {
		merr = multierror.Append(merr, xerrors.Errorf("policy registry supports neither inline nor separate identity disclosure operations"))
	}
	if err := api.NewValidationError(merr.ErrorOrNil()); err != nil {
		return big.Int{}, err
	}

	if err := r.requireOwner(ctx); err != nil {
		return big.Int{}, err
	}

	id, err := NewID()
	if err != nil {
		return big.Int{}, err
	}
	expDate := r.clock.Now().Add(time.Duration(spec.ValidDays) * 24 * time.Hour).Unix()
	ops := lo.Uniq(spec.DisclosureOperations)
	if ops == nil {
		ops = []string{}
	}

	log.Infow("adding new policy", "id", id, "price", price, "api", r.caps.Policy)
	args := []interface{}{
		id,
		nonNil(spec.AllowedCategories),
		nonNilAddrs(spec.AllowedAddresses),
		nonNil(spec.AllowedColumns),
		uint64(expDate),
		price,
	}
	if r.caps.Policy == contracts.ExtendedPolicyAPI {
		args = append(args, ops)
	}
	if _, err := r.l.Transact(ctx, contracts.EoaBond, "addPolicy", args...); err != nil {
		return big.Int{}, xerrors.Errorf("adding policy: %w", err)
	}

	if r.caps.Policy == contracts.LegacyPolicyAPI && len(ops) > 0 {
		if _, err := r.l.Transact(ctx, contracts.EoaBond, "setIdentityDisclosureOperations", id, ops); err != nil {
			return id, xerrors.Errorf("policy %s added, setting disclosure operations: %w", id, err)
		}
	}
	return id, nil
}

// ReadPolicy reads a policy. Disclosure operations are empty when the
// registry cannot report them.
func (r *Registry) ReadPolicy(ctx context.Context, id big.Int) (*Policy, error) {
	out, err := r.l.Call(ctx, contracts.EoaBond, "policies", id)
	if err != nil {
		return nil, xerrors.Errorf("reading policy %s: %w", id, err)
	}
	if len(out) < 4 {
		return nil, xerrors.Errorf("reading policy %s: short result", id)
	}
	p := &Policy{ID: id, DisclosureOperations: []string{}}

	exp, err := ethabi.AsUint64(out[0])
	if err != nil {
		return nil, xerrors.Errorf("policy %s expiry: %w", id, err)
	}
	p.ExpDate = time.Unix(int64(exp), 0)
	if p.Price, err = ethabi.AsBigInt(out[1]); err != nil {
		return nil, xerrors.Errorf("policy %s price: %w", id, err)
	}
	if p.Owner, err = ethabi.AsAddress(out[2]); err != nil {
		return nil, xerrors.Errorf("policy %s owner: %w", id, err)
	}
	if p.Deactivated, err = ethabi.AsBool(out[3]); err != nil {
		return nil, xerrors.Errorf("policy %s deactivated: %w", id, err)
	}

	if p.AllowedCategories, err = r.readStrings(ctx, "getAllowedCategories", id); err != nil {
		return nil, err
	}
	v, err := ledger.Call1(ctx, r.l, contracts.EoaBond, "getAllowedAddresses", id)
	if err != nil {
		return nil, xerrors.Errorf("reading allowed addresses of policy %s: %w", id, err)
	}
	if p.AllowedAddresses, err = ethabi.AsAddresses(v); err != nil {
		return nil, xerrors.Errorf("reading allowed addresses of policy %s: %w", id, err)
	}
	if p.AllowedColumns, err = r.readStrings(ctx, "getAllowedColumns", id); err != nil {
		return nil, err
	}
	if r.caps.HasDisclosureGetter {
		if p.DisclosureOperations, err = r.readStrings(ctx, "getIdentityDisclosureOperations", id); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *Registry) readStrings(ctx context.Context, method string, id big.Int) ([]string, error) {
	v, err := ledger.Call1(ctx, r.l, contracts.EoaBond, method, id)
	if err != nil {
		return nil, xerrors.Errorf("%s(%s): %w", method, id, err)
	}
	s, err := ethabi.AsStrings(v)
	if err != nil {
		return nil, xerrors.Errorf("%s(%s): %w", method, id, err)
	}
	return s, nil
}

func (r *Registry) DeactivatePolicy(ctx context.Context, id big.Int) error {
	if err := r.requireOwner(ctx); err != nil {
		return err
	}
	if _, err := r.l.Transact(ctx, contracts.EoaBond, "deactivatePolicy", id); err != nil {
		return xerrors.Errorf("deactivating policy %s: %w", id, err)
	}
	return nil
}

// SetDisclosureOperations replaces the disclosure operations of a policy.
func (r *Registry) SetDisclosureOperations(ctx context.Context, id big.Int, ops []string) error {
	if err := api.NewValidationError(validateOps(ops)); err != nil {
		return err
	}
	if !r.caps.HasDisclosureSetter {
		return xerrors.Errorf("policy registry has no %s", "setIdentityDisclosureOperations")
	}
	if err := r.requireOwner(ctx); err != nil {
		return err
	}
	if _, err := r.l.Transact(ctx, contracts.EoaBond, "setIdentityDisclosureOperations", id, nonNil(lo.Uniq(ops))); err != nil {
		return xerrors.Errorf("setting disclosure operations of policy %s: %w", id, err)
	}
	return nil
}

// AddBucket registers a new bucket and returns its id.
func (r *Registry) AddBucket(ctx context.Context, spec BucketSpec) (big.Int, error) {
	var merr *multierror.Error
	if len(spec.PolicyIDs) == 0 {
		merr = multierror.Append(merr, xerrors.Errorf("a bucket needs at least one policy"))
	}
	if spec.DataFormat == "" {
		merr = multierror.Append(merr, xerrors.Errorf("data format is required"))
	}
	allowlists := spec.UseAllowlists
	if allowlists == nil {
		allowlists = make([]bool, len(spec.PolicyIDs))
	}
	if len(allowlists) != len(spec.PolicyIDs) {
		merr = multierror.Append(merr, xerrors.Errorf("length of use allowlists (%d) and policy ids (%d) must match",
			len(allowlists), len(spec.PolicyIDs)))
	}
	if r.caps.Bucket == contracts.LegacyBucketAPI && lo.Contains(allowlists, true) {
		merr = multierror.Append(merr, xerrors.Errorf("policy registry does not support per-policy allowlists"))
	}
	if err := api.NewValidationError(merr.ErrorOrNil()); err != nil {
		return big.Int{}, err
	}

	if err := r.requireOwner(ctx); err != nil {
		return big.Int{}, err
	}

	id, err := NewID()
	if err != nil {
		return big.Int{}, err
	}

	log.Infow("adding new bucket", "id", id, "policies", len(spec.PolicyIDs), "api", r.caps.Bucket)
	args := []interface{}{id, spec.PolicyIDs}
	if r.caps.Bucket == contracts.AllowlistBucketAPI {
		args = append(args, allowlists)
	}
	args = append(args, spec.DataFormat, spec.NodeAddress)
	if _, err := r.l.Transact(ctx, contracts.EoaBond, "addBucket", args...); err != nil {
		return big.Int{}, xerrors.Errorf("adding bucket: %w", err)
	}
	return id, nil
}

func (r *Registry) ReadBucket(ctx context.Context, id big.Int) (*Bucket, error) {
	out, err := r.l.Call(ctx, contracts.EoaBond, "buckets", id)
	if err != nil {
		return nil, xerrors.Errorf("reading bucket %s: %w", id, err)
	}
	if len(out) < 4 {
		return nil, xerrors.Errorf("reading bucket %s: short result", id)
	}
	b := &Bucket{ID: id}
	if b.DataFormat, err = ethabi.AsString(out[0]); err != nil {
		return nil, xerrors.Errorf("bucket %s data format: %w", id, err)
	}
	if b.NodeAddress, err = ethabi.AsAddress(out[1]); err != nil {
		return nil, xerrors.Errorf("bucket %s node address: %w", id, err)
	}
	if b.Owner, err = ethabi.AsAddress(out[2]); err != nil {
		return nil, xerrors.Errorf("bucket %s owner: %w", id, err)
	}
	if b.Deactivated, err = ethabi.AsBool(out[3]); err != nil {
		return nil, xerrors.Errorf("bucket %s deactivated: %w", id, err)
	}

	v, err := ledger.Call1(ctx, r.l, contracts.EoaBond, "getPolicyIds", id)
	if err != nil {
		return nil, xerrors.Errorf("reading policies of bucket %s: %w", id, err)
	}
	if b.PolicyIDs, err = ethabi.AsBigInts(v); err != nil {
		return nil, xerrors.Errorf("reading policies of bucket %s: %w", id, err)
	}
	return b, nil
}

func (r *Registry) AddPolicyToBucket(ctx context.Context, bucketID, policyID big.Int) error {
	if err := r.requireOwner(ctx); err != nil {
		return err
	}
	if _, err := r.l.Transact(ctx, contracts.EoaBond, "addPolicyToBucket", bucketID, policyID); err != nil {
		return xerrors.Errorf("adding policy %s to bucket %s: %w", policyID, bucketID, err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilAddrs(s []ethtypes.EthAddress) []ethtypes.EthAddress {
	if s == nil {
		return []ethtypes.EthAddress{}
	}
	return s
}
