package querymgr

import (
	"context"
	"strings"
	"testing"
	"time"

	ds "github.com/ipfs/go-datastore"
	ds_sync "github.com/ipfs/go-datastore/sync"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

func TestStore(t *testing.T) {
	ctx := context.Background()
	store := NewStore(ds_sync.MutexWrap(ds.NewMapDatastore()))

	var alice, bob ethtypes.EthAddress
	alice[0], bob[0] = 1, 2

	rcid, err := RequestCID(`{"version":1}`)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rcid.String(), "bafkrei"))

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, store.Track(ctx, &QueryInfo{
			Account:       alice,
			UserIndex:     2 - i,
			Kind:          KindAggregate,
			Price:         big.NewInt(10),
			BucketIDs:     []big.Int{big.NewInt(5)},
			PolicyIndexes: []uint64{0},
			RequestCID:    rcid,
			State:         StatePending,
			Submitted:     time.Now(),
		}))
	}
	require.NoError(t, store.Track(ctx, &QueryInfo{Account: bob, UserIndex: 0, State: StatePending}))

	_, err = store.Get(ctx, alice, 9)
	require.ErrorIs(t, err, ErrQueryNotTracked)

	qi, err := store.Get(ctx, alice, 1)
	require.NoError(t, err)
	require.Equal(t, rcid, qi.RequestCID)
	require.EqualValues(t, 10, qi.Price.Int64())

	require.NoError(t, store.Complete(ctx, alice, 1, StateSuccess, []byte("42"), nil))
	require.NoError(t, store.Complete(ctx, alice, 2, StateFailed, nil, xerrors.New("query failed: Something went wrong")))

	all, err := store.List(ctx, alice)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for i, qi := range all {
		require.EqualValues(t, i, qi.UserIndex)
	}
	require.Equal(t, []byte("42"), all[1].Result)
	require.Contains(t, all[2].Error, "Something went wrong")

	pending, err := store.ListPending(ctx, alice)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.EqualValues(t, 0, pending[0].UserIndex)

	pending, err = store.ListPending(ctx, bob)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}
