package querymgr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
)

func TestResolvePrice(t *testing.T) {
	ctx := context.Background()
	l := newFakeLedger()
	l.addPolicy(1, 100, 10)
	l.addPolicy(1, 101, 25)
	l.addPolicy(2, 200, 7)

	total, err := ResolvePrice(ctx, l, []big.Int{big.NewInt(1), big.NewInt(2)}, []uint64{1, 0}, false)
	require.NoError(t, err)
	require.EqualValues(t, 32, total.Int64())

	// no caching: a price change shows up on the next call
	l.lk.Lock()
	l.prices[big.NewInt(200).String()] = big.NewInt(70)
	l.lk.Unlock()

	total, err = ResolvePrice(ctx, l, []big.Int{big.NewInt(1), big.NewInt(2)}, []uint64{1, 0}, false)
	require.NoError(t, err)
	require.EqualValues(t, 95, total.Int64())
}

func TestResolvePriceMissingBucket(t *testing.T) {
	ctx := context.Background()
	l := newFakeLedger()
	l.addPolicy(1, 100, 10)
	l.lk.Lock()
	l.buckets[big.NewInt(3).String()] = nil
	l.lk.Unlock()

	_, err := ResolvePrice(ctx, l, []big.Int{big.NewInt(1), big.NewInt(9)}, []uint64{0, 0}, false)
	require.True(t, api.IsBucketNotFound(err))
	require.ErrorContains(t, err, "bucket 9")

	_, err = ResolvePrice(ctx, l, []big.Int{big.NewInt(3)}, []uint64{0}, false)
	require.True(t, api.IsNoPolicyIdsInBucket(err))

	total, err := ResolvePrice(ctx, l, []big.Int{big.NewInt(1), big.NewInt(9)}, []uint64{0, 0}, true)
	require.NoError(t, err)
	require.True(t, total.IsZero())

	total, err = ResolvePrice(ctx, l, []big.Int{big.NewInt(3)}, []uint64{0}, true)
	require.NoError(t, err)
	require.True(t, total.IsZero())
}

func TestResolvePriceIndexOutOfRange(t *testing.T) {
	ctx := context.Background()
	l := newFakeLedger()
	l.addPolicy(1, 100, 10)

	for _, lenient := range []bool{false, true} {
		_, err := ResolvePrice(ctx, l, []big.Int{big.NewInt(1)}, []uint64{1}, lenient)
		var verr *api.ErrValidation
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Error(), "out of range")
	}

	reads := l.called("getPolicyIds")
	_, err := ResolvePrice(ctx, l, []big.Int{big.NewInt(1)}, []uint64{0, 0}, false)
	var verr *api.ErrValidation
	require.ErrorAs(t, err, &verr)
	require.Equal(t, reads, l.called("getPolicyIds"), "mismatched lengths never reach the ledger")
}
