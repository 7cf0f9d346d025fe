// Package querymgr runs the query lifecycle: price resolution, payment
// approval, encrypted submission, result polling and decoding.
package querymgr

import (
	"context"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/raulk/clock"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/metrics"
)

var log = logging.Logger("querymgr")

type ManagerParams struct {
	Ledger ledger.Ledger
	Store  *Store

	// WorkerKey is the X25519 key requests are sealed to.
	WorkerKey [32]byte
	// ReplyPriv and ReplyPub form the key pair results are sealed to.
	ReplyPriv [32]byte
	ReplyPub  [32]byte

	LenientFees    bool
	AllowCodeSteps bool

	PollInterval   time.Duration
	ResultDeadline time.Duration
	Clock          clock.Clock
}

type Manager struct {
	// The Manager context is used to terminate polls on shutdown
	ctx      context.Context
	shutdown context.CancelFunc

	l         ledger.Ledger
	store     *Store
	submitter *Submitter
	poller    *Poller
	decoder   *Decoder

	lenientFees bool
	allowCode   bool

	// lk serializes approve and payQuery so nothing spends the allowance
	// in between.
	lk sync.Mutex
}

func NewManager(ctx context.Context, p ManagerParams) (*Manager, error) {
	if p.Ledger == nil {
		return nil, xerrors.Errorf("no ledger")
	}
	if p.Store == nil {
		return nil, xerrors.Errorf("no query store")
	}
	if p.WorkerKey == ([32]byte{}) {
		return nil, xerrors.Errorf("no worker key")
	}

	m := &Manager{
		l:           p.Ledger,
		store:       p.Store,
		submitter:   NewSubmitter(p.Ledger, p.WorkerKey, p.ReplyPub),
		decoder:     NewDecoder(p.ReplyPriv),
		lenientFees: p.LenientFees,
		allowCode:   p.AllowCodeSteps,
	}
	m.ctx, m.shutdown = context.WithCancel(ctx)
	m.poller = NewPoller(m.ctx, PollerParams{
		Ledger:     p.Ledger,
		Clock:      p.Clock,
		Interval:   p.PollInterval,
		Deadline:   p.ResultDeadline,
		OnComplete: m.recordResult,
	})
	return m, nil
}

// Start resumes polling for queries recorded as pending.
func (m *Manager) Start() error {
	return m.restartPending(m.ctx)
}

// Stop shuts down all polls. Pending queries stay pending in the journal.
func (m *Manager) Stop() error {
	m.shutdown()
	return nil
}

func (m *Manager) restartPending(ctx context.Context) error {
	pending, err := m.store.ListPending(ctx, m.l.Address())
	if err != nil {
		return xerrors.Errorf("listing pending queries: %w", err)
	}
	for _, qi := range pending {
		log.Infow("resuming poll for pending query", "userIndex", qi.UserIndex, "request", qi.RequestCID)
		m.track(qi.UserIndex)
	}
	return nil
}

// track keeps a poll running for userIndex until it ends, independent of
// any caller handle, so the journal learns the outcome.
func (m *Manager) track(userIndex uint64) {
	h := m.poller.watch(userIndex, 0)
	go func() {
		_, _ = h.Wait(m.ctx)
	}()
}

func (m *Manager) recordResult(userIndex uint64, state State, result []byte, qerr error) {
	err := m.store.Complete(m.ctx, m.l.Address(), userIndex, state, result, qerr)
	if err != nil && err != ErrQueryNotTracked {
		log.Errorw("recording query result", "userIndex", userIndex, "error", err)
	}
}

// ResolvePrice sums the prices of the selected policies.
func (m *Manager) ResolvePrice(ctx context.Context, bucketIDs []big.Int, policyIndexes []uint64) (big.Int, error) {
	return ResolvePrice(ctx, m.l, bucketIDs, policyIndexes, m.lenientFees)
}

// Authorize sets the query manager's allowance to amount.
func (m *Manager) Authorize(ctx context.Context, amount big.Int) (*ethtypes.EthTxReceipt, error) {
	m.lk.Lock()
	defer m.lk.Unlock()

	return Authorize(ctx, m.l, amount)
}

func (m *Manager) Allowance(ctx context.Context) (big.Int, error) {
	return Allowance(ctx, m.l)
}

// Submit sends an already encoded payload. The caller is responsible for
// the allowance.
func (m *Manager) Submit(ctx context.Context, payload []byte, price big.Int, bucketIDs []big.Int, policyIndexes []uint64, opts SubmitOpts) (*Submission, error) {
	m.lk.Lock()
	defer m.lk.Unlock()

	sub, err := m.submitter.Submit(ctx, payload, price, bucketIDs, policyIndexes, opts)
	if err != nil {
		return nil, err
	}
	m.journal(ctx, "", sub, price, bucketIDs, policyIndexes)
	m.track(sub.UserIndex)
	return sub, nil
}

// SubmitAsync validates, prices, pays for and submits r, then returns a
// handle for its result.
func (m *Manager) SubmitAsync(ctx context.Context, r Request, t Target) (*Handle, error) {
	if c, ok := r.(*ComputationRequest); ok {
		cp := *c
		cp.CategorizeByDO = t.CategorizeByDO
		r = &cp
	}
	if err := Validate(r, t, m.allowCode); err != nil {
		return nil, err
	}
	payload, err := EncodeRequest(r)
	if err != nil {
		return nil, err
	}

	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Kind, string(r.Kind())))

	m.lk.Lock()
	sub, price, err := m.payAndSubmit(ctx, payload, t)
	m.lk.Unlock()
	if err != nil {
		return nil, err
	}
	m.journal(ctx, r.Kind(), sub, price, t.BucketIDs, t.PolicyIndexes)

	m.track(sub.UserIndex)
	return m.poller.Watch(sub.UserIndex), nil
}

func (m *Manager) payAndSubmit(ctx context.Context, payload []byte, t Target) (*Submission, big.Int, error) {
	price, err := ResolvePrice(ctx, m.l, t.BucketIDs, t.PolicyIndexes, m.lenientFees)
	if err != nil {
		return nil, big.Zero(), xerrors.Errorf("resolving price: %w", err)
	}
	if _, err := Authorize(ctx, m.l, price); err != nil {
		return nil, price, err
	}
	sub, err := m.submitter.Submit(ctx, payload, price, t.BucketIDs, t.PolicyIndexes, SubmitOpts{
		CategorizeByDO: t.CategorizeByDO,
		AggregateType:  t.AggregateType,
	})
	return sub, price, err
}

func (m *Manager) journal(ctx context.Context, kind Kind, sub *Submission, price big.Int, bucketIDs []big.Int, policyIndexes []uint64) {
	qi := &QueryInfo{
		Account:       m.l.Address(),
		UserIndex:     sub.UserIndex,
		Kind:          kind,
		Price:         price,
		BucketIDs:     bucketIDs,
		PolicyIndexes: policyIndexes,
		RequestID:     sub.RequestID,
		RequestCID:    sub.RequestCID,
		State:         StatePending,
		Submitted:     time.Now(),
	}
	if sub.Receipt != nil {
		qi.TxHash = sub.Receipt.TransactionHash
	}
	if err := m.store.Track(ctx, qi); err != nil {
		log.Errorw("journaling query", "userIndex", sub.UserIndex, "error", err)
	}
}

// Watch returns a handle for the raw result of an earlier submission.
func (m *Manager) Watch(userIndex uint64) *Handle {
	return m.poller.Watch(userIndex)
}

// Result waits for and decodes the result of an earlier submission.
func (m *Manager) Result(ctx context.Context, userIndex uint64) (interface{}, error) {
	h := m.poller.Watch(userIndex)
	defer h.Cancel()
	return m.await(ctx, h)
}

// Await waits for a handle and decodes its result.
func (m *Manager) Await(ctx context.Context, h *Handle) (interface{}, error) {
	return m.await(ctx, h)
}

func (m *Manager) await(ctx context.Context, h *Handle) (interface{}, error) {
	raw, err := h.Wait(ctx)
	if err != nil {
		return nil, err
	}
	return m.decoder.DecodeResult(raw)
}

func (m *Manager) DecodeResult(raw []byte) (interface{}, error) {
	return m.decoder.DecodeResult(raw)
}

// Query runs an aggregate query and returns its numeric result. A
// categorized result yields its aggregated total.
func (m *Manager) Query(ctx context.Context, q AggregateQuery, t Target) (float64, error) {
	h, err := m.SubmitAsync(ctx, &q, t)
	if err != nil {
		return 0, err
	}
	defer h.Cancel()
	v, err := m.await(ctx, h)
	if err != nil {
		return 0, err
	}
	if c, ok, err := ParseCategorized(v); err != nil {
		return 0, err
	} else if ok {
		return c.Total()
	}
	return asFloat(v)
}

// TrainModel runs a training request and returns the model description the
// worker produced.
func (m *Manager) TrainModel(ctx context.Context, r TrainingRequest, t Target) (map[string]interface{}, error) {
	h, err := m.SubmitAsync(ctx, &r, t)
	if err != nil {
		return nil, err
	}
	defer h.Cancel()
	v, err := m.await(ctx, h)
	if err != nil {
		return nil, err
	}
	out, ok := v.(map[string]interface{})
	if !ok {
		return nil, xerrors.Errorf("training result of type %T is not an object", v)
	}
	return out, nil
}

// Compute runs a custom computation and returns its decoded result.
func (m *Manager) Compute(ctx context.Context, r ComputationRequest, t Target) (interface{}, error) {
	h, err := m.SubmitAsync(ctx, &r, t)
	if err != nil {
		return nil, err
	}
	defer h.Cancel()
	return m.await(ctx, h)
}

// List returns the journal of the account.
func (m *Manager) List(ctx context.Context) ([]*QueryInfo, error) {
	return m.store.List(ctx, m.l.Address())
}
