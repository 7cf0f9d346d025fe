package config

import (
	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/build"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/lib/envelope"
)

// Network is a network bundle with config overrides applied and every
// value parsed.
type Network struct {
	Mode      string
	RPCURL    string
	ChainID   uint64
	Addresses map[contracts.Contract]ethtypes.EthAddress
	WorkerKey [32]byte
}

// ResolveNetwork merges the configured overrides into the selected bundle.
// A bundle left with a missing or malformed value is an error.
func ResolveNetwork(cfg *Client) (*Network, error) {
	b, err := build.Network(cfg.Network)
	if err != nil {
		return nil, err
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&b.RPCURL, cfg.RPCURL)
	override(&b.WorkerKey, cfg.WorkerKey)
	override(&b.USDC, cfg.Addresses.USDC)
	override(&b.QueryManager, cfg.Addresses.QueryManager)
	override(&b.EoaBond, cfg.Addresses.EoaBond)
	override(&b.UserRole, cfg.Addresses.UserRole)

	n := &Network{
		Mode:      cfg.Network,
		RPCURL:    b.RPCURL,
		ChainID:   b.ChainID,
		Addresses: map[contracts.Contract]ethtypes.EthAddress{},
	}

	var merr *multierror.Error
	if n.RPCURL == "" {
		merr = multierror.Append(merr, xerrors.Errorf("no rpc url"))
	}
	for c, s := range map[contracts.Contract]string{
		contracts.USDC:         b.USDC,
		contracts.QueryManager: b.QueryManager,
		contracts.EoaBond:      b.EoaBond,
		contracts.UserRole:     b.UserRole,
	} {
		if s == "" {
			merr = multierror.Append(merr, xerrors.Errorf("no %s address", c))
			continue
		}
		addr, err := ethtypes.ParseEthAddress(s)
		if err != nil {
			merr = multierror.Append(merr, xerrors.Errorf("%s address: %w", c, err))
			continue
		}
		n.Addresses[c] = addr
	}
	if b.WorkerKey == "" {
		merr = multierror.Append(merr, xerrors.Errorf("no worker key"))
	} else if n.WorkerKey, err = envelope.ParseKey(b.WorkerKey); err != nil {
		merr = multierror.Append(merr, xerrors.Errorf("worker key: %w", err))
	}

	if err := merr.ErrorOrNil(); err != nil {
		return nil, xerrors.Errorf("network %s is not fully configured: %w", cfg.Network, err)
	}
	return n, nil
}
