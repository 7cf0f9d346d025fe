// Package node assembles a marketplace client from its configuration.
package node

import (
	"context"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/namespace"
	dssync "github.com/ipfs/go-datastore/sync"
	leveldb "github.com/ipfs/go-ds-leveldb"
	logging "github.com/ipfs/go-log/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/raulk/clock"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/api/client"
	"github.com/nectarprotocol/nectar-go/build"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/wallet"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/lib/nectarlog"
	"github.com/nectarprotocol/nectar-go/metrics"
	"github.com/nectarprotocol/nectar-go/node/config"
	"github.com/nectarprotocol/nectar-go/policymgr"
	"github.com/nectarprotocol/nectar-go/querymgr"
)

var log = logging.Logger("node")

// Client bundles the query and registry clients of one account.
type Client struct {
	Ledger   ledger.Ledger
	Queries  *querymgr.Manager
	Registry *policymgr.Registry

	// Role is the role of the account, read once at construction.
	Role string

	closers []func() error
}

// Params carries the pieces New derives from config. Supplying them
// directly lets a client run against any Ledger.
type Params struct {
	Ledger    ledger.Ledger
	WorkerKey [32]byte
	ReplyPriv [32]byte
	ReplyPub  [32]byte

	// Datastore holds the query journal. When nil, the journal configured
	// in Journal.Path is opened.
	Datastore datastore.Batching
	Clock     clock.Clock
}

// New connects to the configured network and builds a client for the
// account in cfg.APISecret.
func New(ctx context.Context, cfg *config.Client) (*Client, error) {
	if err := nectarlog.ApplyLevels(cfg.Logging.SubsystemLevels); err != nil {
		return nil, err
	}
	network, err := config.ResolveNetwork(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.APISecret == "" {
		return nil, xerrors.Errorf("no api secret, set NECTAR_API_SECRET")
	}
	key, err := wallet.ParseKey(cfg.APISecret)
	if err != nil {
		return nil, xerrors.Errorf("parsing api secret: %w", err)
	}
	replyPriv, replyPub, err := key.ReplyKey()
	if err != nil {
		return nil, err
	}

	eth, closer, err := client.NewEthRPC(ctx, network.RPCURL, nil)
	if err != nil {
		return nil, xerrors.Errorf("connecting to %s: %w", network.RPCURL, err)
	}

	gw, err := ledger.NewGateway(ctx, ledger.GatewayParams{
		API:            eth,
		Wallet:         wallet.KeyWallet(key),
		From:           key.Address,
		ChainID:        network.ChainID,
		Addresses:      network.Addresses,
		ABIs:           contracts.DefaultABIs(cfg.Addresses.LegacyPolicyABI),
		ReceiptTimeout: cfg.Tx.ReceiptTimeout.Std(),
		ReceiptPoll:    cfg.Tx.ReceiptPoll.Std(),
		GasLimit:       cfg.Tx.GasLimit,
	})
	if err != nil {
		closer()
		return nil, err
	}

	c, err := NewWithParams(ctx, cfg, Params{
		Ledger:    gw,
		WorkerKey: network.WorkerKey,
		ReplyPriv: replyPriv,
		ReplyPub:  replyPub,
	})
	if err != nil {
		closer()
		return nil, err
	}
	c.closers = append(c.closers, func() error {
		closer()
		return nil
	})
	return c, nil
}

// NewWithParams builds a client over an existing Ledger.
func NewWithParams(ctx context.Context, cfg *config.Client, p Params) (*Client, error) {
	c := &Client{Ledger: p.Ledger}

	role, err := ledger.CheckRole(ctx, p.Ledger, ledger.RoleAnalyst, ledger.RoleOwner)
	if err != nil {
		return nil, xerrors.Errorf("checking account role: %w", err)
	}
	c.Role = role

	ds := p.Datastore
	if ds == nil {
		if ds, err = openJournal(cfg.Journal.Path); err != nil {
			return nil, err
		}
		c.closers = append(c.closers, ds.Close)
	}
	ds = namespace.Wrap(ds, datastore.NewKey(cfg.Network))

	c.Queries, err = querymgr.NewManager(ctx, querymgr.ManagerParams{
		Ledger:         p.Ledger,
		Store:          querymgr.NewStore(ds),
		WorkerKey:      p.WorkerKey,
		ReplyPriv:      p.ReplyPriv,
		ReplyPub:       p.ReplyPub,
		LenientFees:    cfg.Fees.LenientMissingBuckets,
		AllowCodeSteps: cfg.Query.AllowCodeSteps,
		PollInterval:   cfg.Results.PollInterval.Std(),
		ResultDeadline: cfg.Results.Deadline.Std(),
		Clock:          p.Clock,
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if err := c.Queries.Start(); err != nil {
		_ = c.Close()
		return nil, xerrors.Errorf("starting query manager: %w", err)
	}
	c.closers = append([]func() error{c.Queries.Stop}, c.closers...)

	c.Registry, err = policymgr.NewRegistry(p.Ledger, p.Clock)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	ctx, _ = tag.New(ctx,
		tag.Upsert(metrics.Version, build.BuildVersion),
		tag.Upsert(metrics.Commit, build.CurrentCommit),
		tag.Upsert(metrics.Network, cfg.Network),
	)
	stats.Record(ctx, metrics.NectarInfo.M(1))
	log.Infow("client ready", "account", p.Ledger.Address(), "role", role, "network", cfg.Network, "version", build.UserVersion())
	return c, nil
}

func openJournal(path string) (datastore.Batching, error) {
	if path == "" {
		return dssync.MutexWrap(datastore.NewMapDatastore()), nil
	}
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, xerrors.Errorf("expanding journal path: %w", err)
	}
	ds, err := leveldb.NewDatastore(path, nil)
	if err != nil {
		return nil, xerrors.Errorf("opening query journal %s: %w", path, err)
	}
	return ds, nil
}

// Close stops polling and releases the journal and connection.
func (c *Client) Close() error {
	var firstErr error
	for _, cl := range c.closers {
		if err := cl(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
