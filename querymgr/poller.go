package querymgr

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/hannahhoward/go-pubsub"
	"github.com/raulk/clock"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"
	"golang.org/x/xerrors"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/ethabi"
	"github.com/nectarprotocol/nectar-go/ledger"
	"github.com/nectarprotocol/nectar-go/metrics"
)

const DefaultPollInterval = 5 * time.Second

var (
	// ErrCanceled is returned by Wait after Cancel. The query itself is
	// unaffected.
	ErrCanceled = xerrors.New("stopped waiting for query result")
	// ErrDeadline is returned by Wait when the result deadline passed.
	ErrDeadline = xerrors.Errorf("query result deadline exceeded: %w", context.DeadlineExceeded)

	errPollerStopped = xerrors.New("result poller stopped")
)

type State int

const (
	StatePending State = iota
	StateSuccess
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateSuccess:
		return "SUCCESS"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFailed
}

// Handle tracks the result of one submitted query.
type Handle struct {
	userIndex uint64
	done      chan struct{}
	once      sync.Once

	lk     sync.Mutex
	state  State
	result []byte
	err    error

	release func()
	timer   *clock.Timer
}

func newHandle(userIndex uint64) *Handle {
	return &Handle{
		userIndex: userIndex,
		done:      make(chan struct{}),
	}
}

func (h *Handle) UserIndex() uint64 {
	return h.userIndex
}

// Done is closed once the handle has an outcome or was abandoned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) State() State {
	h.lk.Lock()
	defer h.lk.Unlock()
	return h.state
}

// Wait blocks until the query completes, the handle is canceled or ctx is
// done. A failed query yields *api.ErrQueryFailed. A caller that stops
// waiting on ctx should Cancel the handle to release its poll.
func (h *Handle) Wait(ctx context.Context) ([]byte, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	h.lk.Lock()
	defer h.lk.Unlock()
	return h.result, h.err
}

// Cancel abandons waiting. The submitted query is not touched.
func (h *Handle) Cancel() {
	h.abandon(ErrCanceled)
}

func (h *Handle) abandon(err error) {
	if h.finish(StatePending, nil, err) && h.release != nil {
		h.release()
	}
}

func (h *Handle) finish(state State, result []byte, err error) bool {
	finished := false
	h.once.Do(func() {
		h.lk.Lock()
		h.state, h.result, h.err = state, result, err
		if h.timer != nil {
			h.timer.Stop()
		}
		h.lk.Unlock()
		close(h.done)
		finished = true
	})
	return finished
}

type PollerParams struct {
	Ledger   ledger.Ledger
	Clock    clock.Clock
	Interval time.Duration
	// Deadline bounds every handle returned by Watch. Zero waits forever.
	Deadline time.Duration

	// OnComplete is called once per user index when polling reaches a
	// terminal state.
	OnComplete func(userIndex uint64, state State, result []byte, err error)
}

// Poller reads the result slot of submitted queries until the worker writes
// it. Handles watching the same user index share one poll loop.
type Poller struct {
	ctx context.Context
	l   ledger.Ledger

	clock      clock.Clock
	interval   time.Duration
	deadline   time.Duration
	slot       int
	onComplete func(uint64, State, []byte, error)

	listeners resultListeners

	lk    sync.Mutex
	loops map[uint64]*pollLoop
}

type pollLoop struct {
	cancel  context.CancelFunc
	handles map[*Handle]pubsub.Unsubscribe
}

func NewPoller(ctx context.Context, p PollerParams) *Poller {
	pl := &Poller{
		ctx:        ctx,
		l:          p.Ledger,
		clock:      p.Clock,
		interval:   p.Interval,
		deadline:   p.Deadline,
		slot:       contracts.ResultSlot(p.Ledger.ABI(contracts.QueryManager)),
		onComplete: p.OnComplete,
		listeners:  newResultListeners(),
		loops:      map[uint64]*pollLoop{},
	}
	if pl.clock == nil {
		pl.clock = clock.New()
	}
	if pl.interval <= 0 {
		pl.interval = DefaultPollInterval
	}
	return pl
}

// Watch returns a handle for the result of userIndex.
func (p *Poller) Watch(userIndex uint64) *Handle {
	return p.watch(userIndex, p.deadline)
}

func (p *Poller) watch(userIndex uint64, deadline time.Duration) *Handle {
	h := newHandle(userIndex)

	p.lk.Lock()
	defer p.lk.Unlock()

	loop, ok := p.loops[userIndex]
	if !ok {
		ctx, cancel := context.WithCancel(p.ctx)
		loop = &pollLoop{cancel: cancel, handles: map[*Handle]pubsub.Unsubscribe{}}
		p.loops[userIndex] = loop
		go p.run(ctx, userIndex, loop)
	}
	loop.handles[h] = p.listeners.onResult(userIndex, func(evt resultEvt) {
		h.finish(evt.state, evt.result, evt.err)
	})
	h.release = func() { p.release(userIndex, loop, h) }

	if deadline > 0 {
		h.lk.Lock()
		h.timer = p.clock.AfterFunc(deadline, func() { h.abandon(ErrDeadline) })
		h.lk.Unlock()
	}
	return h
}

// release drops an abandoned handle and stops the loop once nobody waits.
func (p *Poller) release(userIndex uint64, loop *pollLoop, h *Handle) {
	p.lk.Lock()
	defer p.lk.Unlock()

	unsub, ok := loop.handles[h]
	if !ok {
		return
	}
	unsub()
	delete(loop.handles, h)
	if len(loop.handles) == 0 && p.loops[userIndex] == loop {
		delete(p.loops, userIndex)
		loop.cancel()
	}
}

func (p *Poller) run(ctx context.Context, userIndex uint64, loop *pollLoop) {
	ctx, _ = tag.New(ctx, tag.Upsert(metrics.Contract, string(contracts.QueryManager)))
	stats.Record(ctx, metrics.ActivePolls.M(1))
	defer stats.Record(ctx, metrics.ActivePolls.M(-1))

	start := p.clock.Now()
	ticker := p.clock.Ticker(p.interval)
	defer ticker.Stop()

	log.Debugw("polling for query result", "userIndex", userIndex, "interval", p.interval)

	for {
		state, result, err := p.read(ctx, userIndex)
		if state.Terminal() {
			p.finishLoop(ctx, userIndex, loop, state, result, err, start)
			return
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			p.lk.Lock()
			if p.loops[userIndex] == loop {
				delete(p.loops, userIndex)
			}
			unsubs := loop.handles
			loop.handles = map[*Handle]pubsub.Unsubscribe{}
			p.lk.Unlock()

			if len(unsubs) > 0 {
				p.listeners.fireResult(resultEvt{userIndex: userIndex, state: StatePending, err: errPollerStopped})
			}
			for _, unsub := range unsubs {
				unsub()
			}
			return
		}
	}
}

func (p *Poller) finishLoop(ctx context.Context, userIndex uint64, loop *pollLoop, state State, result []byte, err error, start time.Time) {
	p.lk.Lock()
	if p.loops[userIndex] == loop {
		delete(p.loops, userIndex)
	}
	unsubs := loop.handles
	loop.handles = map[*Handle]pubsub.Unsubscribe{}
	p.lk.Unlock()
	loop.cancel()

	outcome := metrics.OutcomeSuccess
	if state == StateFailed {
		outcome = metrics.OutcomeFailed
	}
	metrics.Record(ctx, []tag.Mutator{tag.Upsert(metrics.Outcome, outcome)},
		metrics.QueryResults.M(1),
		metrics.QueryWaitTimeMs.M(float64(p.clock.Since(start).Milliseconds())))

	log.Infow("query completed", "userIndex", userIndex, "state", state)

	if p.onComplete != nil {
		p.onComplete(userIndex, state, result, err)
	}
	p.listeners.fireResult(resultEvt{userIndex: userIndex, state: state, result: result, err: err})
	for _, unsub := range unsubs {
		unsub()
	}
}

// read performs one poll. Read errors leave the query pending; the next
// tick retries.
func (p *Poller) read(ctx context.Context, userIndex uint64) (State, []byte, error) {
	stats.Record(ctx, metrics.PollTicks.M(1))

	slot, err := ReadResultSlot(ctx, p.l, p.slot, userIndex)
	if err != nil {
		log.Warnw("reading query result failed, retrying", "userIndex", userIndex, "error", err)
		return StatePending, nil, nil
	}
	return Classify(slot)
}

// ReadResultSlot reads the raw result slot of a query.
func ReadResultSlot(ctx context.Context, l ledger.Ledger, slot int, userIndex uint64) (string, error) {
	out, err := l.Call(ctx, contracts.QueryManager, "getQueryByUserIndex", l.Address(), userIndex)
	if err != nil {
		return "", err
	}
	row, err := ethabi.AsTuple(out)
	if err != nil {
		return "", xerrors.Errorf("decoding query row: %w", err)
	}
	if slot >= len(row) {
		return "", xerrors.Errorf("query row has %d fields, result slot is %d", len(row), slot)
	}
	return ethabi.AsString(row[slot])
}

// Classify maps a result slot onto a poll state. Slots wrapped in a JSON
// string are unwrapped first.
func Classify(slot string) (State, []byte, error) {
	if slot == "" {
		return StatePending, nil, nil
	}
	text := unwrapJSONString(slot)
	if strings.HasPrefix(strings.TrimSpace(text), api.FailureMarker) {
		return StateFailed, nil, &api.ErrQueryFailed{Marker: text}
	}
	return StateSuccess, []byte(text), nil
}

func unwrapJSONString(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, `"`) {
		return s
	}
	var inner string
	if err := json.Unmarshal([]byte(t), &inner); err != nil {
		return s
	}
	return inner
}
