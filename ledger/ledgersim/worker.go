package ledgersim

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
	"github.com/nectarprotocol/nectar-go/chain/contracts"
	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
	"github.com/nectarprotocol/nectar-go/chain/wallet"
	"github.com/nectarprotocol/nectar-go/lib/envelope"
	"github.com/nectarprotocol/nectar-go/querymgr"
)

// Worker plays the off-chain enclave: it opens paid requests, checks them
// against the bucket policies, evaluates them over loaded datasets and
// writes the sealed result back.
type Worker struct {
	node *Node

	priv, pub [32]byte
	addr      ethtypes.EthAddress

	lk       sync.Mutex
	data     map[string][]Row
	pickle   bool
	hold     bool
	held     []*Query
	finished chan struct{}
}

func newWorker(n *Node) (*Worker, error) {
	priv, pub, err := envelope.GenerateKey()
	if err != nil {
		return nil, err
	}
	k, err := wallet.GenerateKey()
	if err != nil {
		return nil, xerrors.Errorf("generating worker account: %w", err)
	}
	return &Worker{
		node:     n,
		priv:     priv,
		pub:      pub,
		addr:     k.Address,
		data:     map[string][]Row{},
		finished: make(chan struct{}, 64),
	}, nil
}

func (w *Worker) Address() ethtypes.EthAddress {
	return w.addr
}

// Load appends rows to the dataset of a bucket.
func (w *Worker) Load(bucketID big.Int, rows ...Row) {
	w.lk.Lock()
	defer w.lk.Unlock()
	w.data[bucketID.String()] = append(w.data[bucketID.String()], rows...)
}

// SetPickle makes the worker encode numeric results as pickled floats.
func (w *Worker) SetPickle(on bool) {
	w.lk.Lock()
	defer w.lk.Unlock()
	w.pickle = on
}

// Hold stops the worker from answering until Release is called.
func (w *Worker) Hold() {
	w.lk.Lock()
	defer w.lk.Unlock()
	w.hold = true
}

func (w *Worker) Release() {
	w.lk.Lock()
	held := w.held
	w.hold, w.held = false, nil
	w.lk.Unlock()

	for _, q := range held {
		go w.process(q)
	}
}

// Processed is signaled once per query the worker has answered.
func (w *Worker) Processed() <-chan struct{} {
	return w.finished
}

func (w *Worker) process(q *Query) {
	w.lk.Lock()
	if w.hold {
		w.held = append(w.held, q)
		w.lk.Unlock()
		return
	}
	w.lk.Unlock()

	slot, err := w.answer(q)
	if err != nil {
		log.Infow("query failed", "user", q.User, "index", q.UserIndex, "error", err)
		slot = api.FailureMarker + ": " + err.Error()
	}
	wrapped, _ := json.Marshal(slot)
	if err := w.node.submitResult(w.addr, q, string(wrapped)); err != nil {
		log.Errorw("writing query result", "user", q.User, "index", q.UserIndex, "error", err)
	}

	select {
	case w.finished <- struct{}{}:
	default:
	}
}

type target struct {
	bucket *Bucket
	policy *Policy
	rows   []Row
}

func (w *Worker) answer(q *Query) (string, error) {
	env, pt, err := envelope.OpenRequest(w.priv, q.Envelope)
	if err != nil {
		return "", xerrors.Errorf("could not open request: %w", err)
	}
	req, err := querymgr.DecodeRequest(pt)
	if err != nil {
		return "", err
	}
	targets, err := w.authorize(q, req)
	if err != nil {
		return "", err
	}

	var out interface{}
	if env.CategorizeByDO && env.Aggregate != nil {
		out, err = categorize(req, env.Aggregate.Type, targets)
	} else {
		out, err = evaluate(req, targets)
	}
	if err != nil {
		return "", err
	}

	payload, err := w.encode(out)
	if err != nil {
		return "", err
	}
	var replyKey [32]byte
	if len(env.ReplyKey) != len(replyKey) {
		return "", xerrors.Errorf("invalid reply key")
	}
	copy(replyKey[:], env.ReplyKey)
	sealed, err := envelope.SealResult(replyKey, payload)
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

func (w *Worker) encode(v interface{}) ([]byte, error) {
	w.lk.Lock()
	pickled := w.pickle
	w.lk.Unlock()

	if f, ok := v.(float64); ok && pickled {
		return pickleFloat(f), nil
	}
	return json.Marshal(v)
}

// pickleFloat encodes f as a protocol 2 pickle.
func pickleFloat(f float64) []byte {
	out := []byte{0x80, 0x02, 'G'}
	out = binary.BigEndian.AppendUint64(out, math.Float64bits(f))
	return append(out, '.')
}

// authorize resolves the policy of every targeted bucket and checks the
// request against it.
func (w *Worker) authorize(q *Query, req querymgr.Request) ([]target, error) {
	cols := requestColumns(req)
	now := uint64(w.node.clock.Now().Unix())

	w.node.lk.Lock()
	defer w.node.lk.Unlock()
	w.lk.Lock()
	defer w.lk.Unlock()

	out := make([]target, 0, len(q.BucketIDs))
	for i, id := range q.BucketIDs {
		b, ok := w.node.state.buckets[id.String()]
		if !ok {
			return nil, xerrors.Errorf("bucket %s not found", id)
		}
		if b.Deactivated {
			return nil, xerrors.Errorf("bucket %s is deactivated", id)
		}
		idx := int(q.PolicyIndexes[i].Uint64())
		p := w.node.state.policies[b.PolicyIDs[idx].String()]
		if p == nil {
			return nil, xerrors.Errorf("policy %s not found", b.PolicyIDs[idx])
		}
		if p.Deactivated {
			return nil, xerrors.Errorf("policy %s is deactivated", p.ID)
		}
		if p.ExpDate < now {
			return nil, xerrors.Errorf("policy %s expired at %s", p.ID, time.Unix(int64(p.ExpDate), 0).UTC().Format(time.RFC3339))
		}
		if b.useAllowlist(idx) && !lo.Contains(p.AllowedAddresses, q.User) {
			return nil, xerrors.Errorf("Unauthorized access to bucket %s", id)
		}
		if !lo.Contains(p.AllowedColumns, "*") {
			if bad, found := lo.Find(cols, func(c string) bool { return !lo.Contains(p.AllowedColumns, c) }); found {
				return nil, xerrors.Errorf("column %s is not allowed by policy %s", bad, p.ID)
			}
		}
		out = append(out, target{bucket: b, policy: p, rows: w.data[id.String()]})
	}
	return out, nil
}

func requestColumns(req querymgr.Request) []string {
	var cols []string
	switch r := req.(type) {
	case *querymgr.AggregateQuery:
		if r.Column != "" {
			cols = append(cols, r.Column)
		}
		cols = append(cols, r.Filters.Columns()...)
	case *querymgr.TrainingRequest:
		for _, k := range []string{"x", "y"} {
			if s, ok := r.Parameters[k].(string); ok {
				cols = append(cols, s)
			}
		}
		cols = append(cols, r.Filters.Columns()...)
	case *querymgr.ComputationRequest:
		cols = append(cols, r.PreCompute.Columns()...)
		cols = append(cols, r.Main.Columns()...)
	}
	return lo.Uniq(cols)
}

func allRows(targets []target) []Row {
	var rows []Row
	for _, t := range targets {
		rows = append(rows, t.rows...)
	}
	return rows
}

func evaluate(req querymgr.Request, targets []target) (interface{}, error) {
	switch r := req.(type) {
	case *querymgr.AggregateQuery:
		return aggregate(r.Type, r.Column, filterRows(allRows(targets), r.Filters))
	case *querymgr.TrainingRequest:
		return train(r.Operation, r.Parameters, filterRows(allRows(targets), r.Filters))
	case *querymgr.ComputationRequest:
		return compute(r, targets)
	}
	return nil, xerrors.Errorf("unsupported request %T", req)
}

func train(op string, params map[string]interface{}, rows []Row) (interface{}, error) {
	switch op {
	case "linear-regression":
		x, _ := params["x"].(string)
		y, _ := params["y"].(string)
		if x == "" || y == "" {
			return nil, xerrors.Errorf("linear-regression needs x and y parameters")
		}
		coef, err := linearRegression(rows, x, y)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"coefficients": coef}, nil
	}
	return nil, xerrors.Errorf("unknown operation %q", op)
}

func runStep(s *querymgr.Step, rows []Row) (interface{}, error) {
	switch {
	case s.Expression != nil:
		e := s.Expression
		return aggregate(e.Aggregate, e.Column, filterRows(rows, e.Filter))
	case s.Named != nil:
		return train(s.Named.Operation, s.Named.Params, rows)
	case s.Code != nil:
		return nil, xerrors.Errorf("code steps are not supported")
	}
	return nil, xerrors.Errorf("empty step")
}

func compute(r *querymgr.ComputationRequest, targets []target) (interface{}, error) {
	if r.Main == nil {
		return nil, xerrors.Errorf("computation has no main step")
	}
	if len(targets) == 1 || r.PreCompute == nil {
		return runStep(r.Main, allRows(targets))
	}

	pre := make([]float64, 0, len(targets))
	for _, t := range targets {
		v, err := runStep(r.PreCompute, t.rows)
		if err != nil {
			return nil, xerrors.Errorf("pre-compute on bucket %s: %w", t.bucket.ID, err)
		}
		f, ok := v.(float64)
		if !ok {
			return nil, xerrors.Errorf("pre-compute on bucket %s is not a number", t.bucket.ID)
		}
		pre = append(pre, f)
	}
	if r.Main.Expression == nil {
		return nil, xerrors.Errorf("main step over pre-computed values must be an expression")
	}
	return reduce(r.Main.Expression.Aggregate, pre)
}

func aggregateSource(req querymgr.Request) (string, *querymgr.Filter) {
	switch r := req.(type) {
	case *querymgr.AggregateQuery:
		return r.Column, r.Filters
	case *querymgr.ComputationRequest:
		if r.Main != nil && r.Main.Expression != nil {
			return r.Main.Expression.Column, r.Main.Expression.Filter
		}
	}
	return "", nil
}

// categorize reports the aggregate per bucket whose policy consents to
// disclosing it, and the aggregate over all buckets.
func categorize(req querymgr.Request, typ string, targets []target) (interface{}, error) {
	col, filter := aggregateSource(req)

	results := map[string]interface{}{}
	var nonConsenting []string
	for _, t := range targets {
		key := querymgr.BucketKey(t.bucket.ID)
		if !lo.Contains(t.policy.DisclosureOperations, typ) {
			nonConsenting = append(nonConsenting, key)
			continue
		}
		v, err := aggregate(typ, col, filterRows(t.rows, filter))
		if err != nil {
			return nil, xerrors.Errorf("bucket %s: %w", t.bucket.ID, err)
		}
		results[key] = map[string]interface{}{typ: v}
	}
	total, err := aggregate(typ, col, filterRows(allRows(targets), filter))
	if err != nil {
		return nil, err
	}

	out := map[string]interface{}{
		"categorizedByDO": true,
		"results":         results,
		"aggregatedTotal": total,
	}
	if len(nonConsenting) > 0 {
		out["categorizedByDO"] = "partial"
		out["nonConsenting"] = nonConsenting
	}
	return out, nil
}

// submitResult writes a result slot through the query manager contract.
func (n *Node) submitResult(from ethtypes.EthAddress, q *Query, result string) error {
	m, ok := n.abis[contracts.QueryManager].Method("setQueryResult")
	if !ok {
		return xerrors.Errorf("query manager has no setQueryResult")
	}
	data, err := m.Pack(q.User, q.UserIndex, result)
	if err != nil {
		return err
	}
	qm := n.addrs[contracts.QueryManager]

	n.lk.Lock()
	defer n.lk.Unlock()
	if _, err := n.exec(from, &qm, data, true); err != nil {
		return xerrors.Errorf("setQueryResult: %w", err)
	}
	n.block++
	return nil
}
