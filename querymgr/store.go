package querymgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	dsq "github.com/ipfs/go-datastore/query"
	"github.com/multiformats/go-multihash"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

var ErrQueryNotTracked = errors.New("query not tracked")

// QueryInfo is the journal record of one submission.
type QueryInfo struct {
	Account   ethtypes.EthAddress
	UserIndex uint64
	Kind      Kind

	TxHash        ethtypes.EthHash
	Price         big.Int
	BucketIDs     []big.Int
	PolicyIndexes []uint64

	RequestID  string
	RequestCID cid.Cid

	State  State
	Result []byte `json:",omitempty"`
	Error  string `json:",omitempty"`

	Submitted time.Time
	Completed time.Time
}

// Store is the local query journal.
type Store struct {
	lk sync.Mutex

	ds datastore.Batching
}

func NewStore(ds datastore.Batching) *Store {
	ds = namespace.Wrap(ds, datastore.NewKey("/queries/"))
	return &Store{
		ds: ds,
	}
}

// RequestCID identifies a sealed envelope: CIDv1, raw codec, sha2-256.
func RequestCID(envelope string) (cid.Cid, error) {
	mh, err := multihash.Sum([]byte(envelope), multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, err
	}
	return cid.NewCidV1(cid.Raw, mh), nil
}

func dskeyForQuery(account ethtypes.EthAddress, userIndex uint64) datastore.Key {
	return datastore.NewKey(fmt.Sprintf("%s/%d", account, userIndex))
}

func (s *Store) putQueryInfo(ctx context.Context, qi *QueryInfo) error {
	b, err := json.Marshal(qi)
	if err != nil {
		return err
	}
	return s.ds.Put(ctx, dskeyForQuery(qi.Account, qi.UserIndex), b)
}

func (s *Store) getQueryInfo(ctx context.Context, account ethtypes.EthAddress, userIndex uint64) (*QueryInfo, error) {
	b, err := s.ds.Get(ctx, dskeyForQuery(account, userIndex))
	if err == datastore.ErrNotFound {
		return nil, ErrQueryNotTracked
	}
	if err != nil {
		return nil, err
	}

	var qi QueryInfo
	if err := json.Unmarshal(b, &qi); err != nil {
		return nil, err
	}
	return &qi, nil
}

// Track records a new submission. A record for the same account and user
// index is replaced.
func (s *Store) Track(ctx context.Context, qi *QueryInfo) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	return s.putQueryInfo(ctx, qi)
}

func (s *Store) Get(ctx context.Context, account ethtypes.EthAddress, userIndex uint64) (*QueryInfo, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	return s.getQueryInfo(ctx, account, userIndex)
}

// Complete records the terminal state of a query.
func (s *Store) Complete(ctx context.Context, account ethtypes.EthAddress, userIndex uint64, state State, result []byte, qerr error) error {
	s.lk.Lock()
	defer s.lk.Unlock()

	qi, err := s.getQueryInfo(ctx, account, userIndex)
	if err != nil {
		return err
	}
	qi.State = state
	qi.Result = result
	if qerr != nil {
		qi.Error = qerr.Error()
	}
	qi.Completed = time.Now()
	return s.putQueryInfo(ctx, qi)
}

// List returns the records of an account ordered by user index.
func (s *Store) List(ctx context.Context, account ethtypes.EthAddress) ([]*QueryInfo, error) {
	return s.find(ctx, account, func(*QueryInfo) bool { return true })
}

// ListPending returns the records still waiting for a result.
func (s *Store) ListPending(ctx context.Context, account ethtypes.EthAddress) ([]*QueryInfo, error) {
	return s.find(ctx, account, func(qi *QueryInfo) bool { return qi.State == StatePending })
}

func (s *Store) find(ctx context.Context, account ethtypes.EthAddress, filter func(*QueryInfo) bool) ([]*QueryInfo, error) {
	s.lk.Lock()
	defer s.lk.Unlock()

	res, err := s.ds.Query(ctx, dsq.Query{Prefix: "/" + account.String()})
	if err != nil {
		return nil, err
	}
	defer res.Close() //nolint:errcheck

	var out []*QueryInfo
	for {
		res, ok := res.NextSync()
		if !ok {
			break
		}
		if res.Error != nil {
			return nil, res.Error
		}

		var qi QueryInfo
		if err := json.Unmarshal(res.Value, &qi); err != nil {
			return nil, xerrors.Errorf("failed reading query record (%q) from datastore: %w", res.Key, err)
		}
		if qi.Account != account || !filter(&qi) {
			continue
		}
		out = append(out, &qi)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UserIndex < out[j].UserIndex })
	return out, nil
}
