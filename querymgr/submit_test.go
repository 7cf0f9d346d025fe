package querymgr_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/ledger/mocks"
	"github.com/nectarprotocol/nectar-go/lib/envelope"
	"github.com/nectarprotocol/nectar-go/querymgr"
)

func TestSubmitRejectsMismatchedTargetsWithoutLedgerCalls(t *testing.T) {
	ctrl := gomock.NewController(t)
	// no expectations: any ledger call fails the test
	l := mocks.NewMockLedger(ctrl)

	_, workerPub, err := envelope.GenerateKey()
	require.NoError(t, err)
	_, replyPub, err := envelope.GenerateKey()
	require.NoError(t, err)
	s := querymgr.NewSubmitter(l, workerPub, replyPub)

	tcases := []struct {
		name    string
		buckets []big.Int
		indexes []uint64
		opts    querymgr.SubmitOpts
	}{
		{name: "more indexes", buckets: []big.Int{big.NewInt(1)}, indexes: []uint64{0, 1}},
		{name: "more buckets", buckets: []big.Int{big.NewInt(1), big.NewInt(2)}, indexes: []uint64{0}},
		{name: "empty", buckets: nil, indexes: nil},
		{name: "categorize without aggregate", buckets: []big.Int{big.NewInt(1)}, indexes: []uint64{0},
			opts: querymgr.SubmitOpts{CategorizeByDO: true}},
		{name: "categorize with unknown aggregate", buckets: []big.Int{big.NewInt(1)}, indexes: []uint64{0},
			opts: querymgr.SubmitOpts{CategorizeByDO: true, AggregateType: "median"}},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Submit(context.Background(), []byte("{}"), big.NewInt(10), tc.buckets, tc.indexes, tc.opts)
			var verr *api.ErrValidation
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestSubmitRoutingOutsideCiphertext(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	l := mocks.NewMockLedger(ctrl)

	workerPriv, workerPub, err := envelope.GenerateKey()
	require.NoError(t, err)
	_, replyPub, err := envelope.GenerateKey()
	require.NoError(t, err)
	s := querymgr.NewSubmitter(l, workerPub, replyPub)

	var account ethtypes.EthAddress
	account[0] = 0xda
	l.EXPECT().Address().Return(account).AnyTimes()
	l.EXPECT().Call(gomock.Any(), contracts.QueryManager, "getUserIndex", account).Return([]interface{}{big.NewInt(3)}, nil)

	var sent string
	l.EXPECT().Transact(gomock.Any(), contracts.QueryManager, "payQuery", uint64(3), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ contracts.Contract, _ string, args ...interface{}) (*ethtypes.EthTxReceipt, error) {
			sent = args[1].(string)
			return &ethtypes.EthTxReceipt{Status: 1}, nil
		})

	payload, err := querymgr.EncodeRequest(&querymgr.ComputationRequest{
		Main:           querymgr.ExpressionStep("count", "", nil),
		CategorizeByDO: true,
	})
	require.NoError(t, err)

	sub, err := s.Submit(ctx, payload, big.NewInt(10), []big.Int{big.NewInt(1)}, []uint64{0},
		querymgr.SubmitOpts{CategorizeByDO: true, AggregateType: "count"})
	require.NoError(t, err)
	require.EqualValues(t, 3, sub.UserIndex)
	require.True(t, sub.RequestCID.Defined())

	var outer map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(sent), &outer))
	require.JSONEq(t, `true`, string(outer["categorizeByDO"]))
	require.JSONEq(t, `{"type":"count"}`, string(outer["aggregate"]))

	_, pt, err := envelope.OpenRequest(workerPriv, sent)
	require.NoError(t, err)
	require.Equal(t, payload, pt)

	rcid, err := querymgr.RequestCID(sent)
	require.NoError(t, err)
	require.Equal(t, rcid, sub.RequestCID)
}
