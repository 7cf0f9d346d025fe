package querymgr

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"
	"go.opencensus.io/stats"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/lib/envelope"
	"github.com/nectarprotocol/nectar-go/metrics"
)

// SubmitOpts carries the routing metadata added to the envelope outside the
// ciphertext.
type SubmitOpts struct {
	CategorizeByDO bool
	AggregateType  string
}

type Submission struct {
	UserIndex  uint64
	Receipt    *ethtypes.EthTxReceipt
	RequestID  string
	RequestCID cid.Cid
}

// Submitter seals requests for the worker and pays for them on chain.
type Submitter struct {
	l         ledger.Ledger
	workerKey [32]byte
	replyKey  [32]byte
}

func NewSubmitter(l ledger.Ledger, workerKey, replyKey [32]byte) *Submitter {
	return &Submitter{l: l, workerKey: workerKey, replyKey: replyKey}
}

// Submit seals payload, reads the account's next user index and transacts
// payQuery. The allowance for price must already be in place.
func (s *Submitter) Submit(ctx context.Context, payload []byte, price big.Int, bucketIDs []big.Int, policyIndexes []uint64, opts SubmitOpts) (*Submission, error) {
	t := Target{
		BucketIDs:      bucketIDs,
		PolicyIndexes:  policyIndexes,
		CategorizeByDO: opts.CategorizeByDO,
		AggregateType:  opts.AggregateType,
	}
	var merr *multierror.Error
	merr = multierror.Append(merr, t.validate())
	if price.Int == nil || price.Sign() < 0 {
		merr = multierror.Append(merr, xerrors.Errorf("price must be a non-negative integer"))
	}
	if err := api.NewValidationError(merr.ErrorOrNil()); err != nil {
		return nil, err
	}

	env, err := envelope.SealRequest(s.workerKey, s.replyKey, payload, policyIndexes)
	if err != nil {
		return nil, xerrors.Errorf("sealing request: %w", err)
	}
	raw, err := env.Marshal()
	if err != nil {
		return nil, xerrors.Errorf("encoding envelope: %w", err)
	}
	raw, err = envelope.WithRouting(raw, envelope.Routing{
		CategorizeByDO: opts.CategorizeByDO,
		AggregateType:  opts.AggregateType,
	})
	if err != nil {
		return nil, xerrors.Errorf("adding routing metadata: %w", err)
	}
	rcid, err := RequestCID(raw)
	if err != nil {
		return nil, xerrors.Errorf("computing request cid: %w", err)
	}

	v, err := ledger.Call1(ctx, s.l, contracts.QueryManager, "getUserIndex", s.l.Address())
	if err != nil {
		return nil, xerrors.Errorf("reading user index: %w", err)
	}
	userIndex, err := ethabi.AsUint64(v)
	if err != nil {
		return nil, xerrors.Errorf("reading user index: %w", err)
	}

	log.Infow("sending query with payment", "userIndex", userIndex, "price", price, "buckets", len(bucketIDs), "request", rcid)
	r, err := s.l.Transact(ctx, contracts.QueryManager, "payQuery", userIndex, raw, price, bucketIDs, policyIndexes)
	if err != nil {
		return nil, xerrors.Errorf("submitting query: %w", err)
	}
	stats.Record(ctx, metrics.QueriesSubmitted.M(1))

	return &Submission{
		UserIndex:  userIndex,
		Receipt:    r,
		RequestID:  env.RequestID,
		RequestCID: rcid,
	}, nil
}
