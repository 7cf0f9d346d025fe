package ledger

import (
	"context"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

// Roles recorded in the UserRole contract.
const (
	RoleAnalyst = "DA"
	RoleOwner   = "DO"
)

// GetRole reads the role of addr.
func GetRole(ctx context.Context, l Ledger, addr ethtypes.EthAddress) (string, error) {
	v, err := Call1(ctx, l, contracts.UserRole, "getUserRole", addr)
	if err != nil {
		return "", xerrors.Errorf("reading user role: %w", err)
	}
	role, err := ethabi.AsString(v)
	if err != nil {
		return "", xerrors.Errorf("reading user role: %w", err)
	}
	return role, nil
}

// CheckRole fails with *api.ErrUnauthorized unless the ledger account holds
// one of the required roles.
func CheckRole(ctx context.Context, l Ledger, required ...string) (string, error) {
	role, err := GetRole(ctx, l, l.Address())
	if err != nil {
		return "", err
	}
	if !lo.Contains(required, role) {
		return role, &api.ErrUnauthorized{Role: role, Required: required}
	}
	log.Debugw("role checked", "account", l.Address(), "role", role)
	return role, nil
}

// AssignRole grants target one of the known roles. The role value is read
// from the contract's own constant.
func AssignRole(ctx context.Context, l Ledger, target ethtypes.EthAddress, role string) (*ethtypes.EthTxReceipt, error) {
	if role != RoleAnalyst && role != RoleOwner {
		return nil, &api.ErrValidation{Problems: []string{"role must be " + RoleAnalyst + " or " + RoleOwner}}
	}
	v, err := Call1(ctx, l, contracts.UserRole, role)
	if err != nil {
		return nil, xerrors.Errorf("reading role constant %s: %w", role, err)
	}
	value, err := ethabi.AsString(v)
	if err != nil {
		return nil, xerrors.Errorf("reading role constant %s: %w", role, err)
	}
	return l.Transact(ctx, contracts.UserRole, "assignUserRole", target, value)
}
