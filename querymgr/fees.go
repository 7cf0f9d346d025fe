package querymgr

import (
	"context"

	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/ledger"
)

// ResolvePrice sums the price of the policy selected for each bucket. Every
// call reads the registry again.
//
// A bucket that does not exist or holds no policies aborts the resolution
// unless lenient is set, in which case the diagnostic is logged and the
// total is zero.
func ResolvePrice(ctx context.Context, l ledger.Ledger, bucketIDs []big.Int, policyIndexes []uint64, lenient bool) (big.Int, error) {
	if len(bucketIDs) != len(policyIndexes) {
		return big.Zero(), &api.ErrValidation{Problems: []string{
			xerrors.Errorf("length of bucket ids (%d) and policy indexes (%d) must match", len(bucketIDs), len(policyIndexes)).Error(),
		}}
	}

	total := big.Zero()
	for i, bucketID := range bucketIDs {
		policyID, err := selectPolicy(ctx, l, bucketID, policyIndexes[i])
		if err != nil {
			if lenient && (api.IsBucketNotFound(err) || api.IsNoPolicyIdsInBucket(err)) {
				log.Warnw("could not resolve bucket price, using zero total", "bucket", bucketID, "error", err)
				return big.Zero(), nil
			}
			return big.Zero(), err
		}

		price, err := PolicyPrice(ctx, l, policyID)
		if err != nil {
			return big.Zero(), xerrors.Errorf("bucket %s: %w", bucketID, err)
		}
		total = big.Add(total, price)
	}
	return total, nil
}

func selectPolicy(ctx context.Context, l ledger.Ledger, bucketID big.Int, index uint64) (big.Int, error) {
	out, err := ledger.Call1(ctx, l, contracts.EoaBond, "getPolicyIds", bucketID)
	if err != nil {
		return big.Int{}, xerrors.Errorf("reading policies of bucket %s: %w", bucketID, err)
	}
	ids, err := ethabi.AsBigInts(out)
	if err != nil {
		return big.Int{}, xerrors.Errorf("reading policies of bucket %s: %w", bucketID, err)
	}
	if len(ids) == 0 {
		return big.Int{}, &api.ErrContractLogic{
			Method: "getPolicyIds",
			Reason: api.ReasonNoPolicyIdsInBucket + "(" + bucketID.String() + ")",
		}
	}
	if index >= uint64(len(ids)) {
		return big.Int{}, &api.ErrValidation{Problems: []string{
			xerrors.Errorf("policy index %d out of range for bucket %s with %d policies", index, bucketID, len(ids)).Error(),
		}}
	}
	return ids[index], nil
}

// PolicyPrice reads the price of one policy.
func PolicyPrice(ctx context.Context, l ledger.Ledger, policyID big.Int) (big.Int, error) {
	out, err := l.Call(ctx, contracts.EoaBond, "policies", policyID)
	if err != nil {
		return big.Int{}, xerrors.Errorf("reading policy %s: %w", policyID, err)
	}
	if len(out) < 2 {
		return big.Int{}, xerrors.Errorf("reading policy %s: short result", policyID)
	}
	price, err := ethabi.AsBigInt(out[1])
	if err != nil {
		return big.Int{}, xerrors.Errorf("reading price of policy %s: %w", policyID, err)
	}
	return price, nil
}
