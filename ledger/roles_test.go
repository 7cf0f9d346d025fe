package ledger_test

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/ledger/mocks"
)

func TestCheckRole(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	l := mocks.NewMockLedger(ctrl)

	var addr ethtypes.EthAddress
	addr[0] = 0xaa
	l.EXPECT().Address().Return(addr).AnyTimes()

	l.EXPECT().Call(gomock.Any(), contracts.UserRole, "getUserRole", addr).Return([]interface{}{"DA"}, nil)
	role, err := ledger.CheckRole(ctx, l, ledger.RoleAnalyst)
	require.NoError(t, err)
	require.Equal(t, "DA", role)

	l.EXPECT().Call(gomock.Any(), contracts.UserRole, "getUserRole", addr).Return([]interface{}{"DO"}, nil)
	role, err = ledger.CheckRole(ctx, l, ledger.RoleAnalyst)
	require.Equal(t, "DO", role)
	var unauth *api.ErrUnauthorized
	require.ErrorAs(t, err, &unauth)
	require.Equal(t, []string{"DA"}, unauth.Required)
}

func TestAssignRole(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	l := mocks.NewMockLedger(ctrl)

	var target ethtypes.EthAddress
	target[19] = 1

	l.EXPECT().Call(gomock.Any(), contracts.UserRole, "DO").Return([]interface{}{"DO"}, nil)
	l.EXPECT().Transact(gomock.Any(), contracts.UserRole, "assignUserRole", target, "DO").
		Return(&ethtypes.EthTxReceipt{Status: 1}, nil)

	r, err := ledger.AssignRole(ctx, l, target, ledger.RoleOwner)
	require.NoError(t, err)
	require.EqualValues(t, 1, r.Status)

	// unknown roles never reach the ledger
	_, err = ledger.AssignRole(ctx, l, target, "ADMIN")
	var verr *api.ErrValidation
	require.ErrorAs(t, err, &verr)
}
