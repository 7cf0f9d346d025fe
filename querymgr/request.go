package querymgr

import (
	"encoding/json"
	"strconv"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-state-types/big"

	"github.com/nectarprotocol/nectar-go/api"
)

// RequestVersion is the version of the request payload carried inside the
// envelope ciphertext.
const RequestVersion = 1

type Kind string

const (
	KindAggregate   Kind = "aggregate"
	KindTraining    Kind = "training"
	KindComputation Kind = "computation"
)

// AggregateTypes are the aggregate operations the worker understands. They
// double as the identity disclosure operations of a policy.
var AggregateTypes = []string{"count", "sum", "mean", "min", "max"}

func IsAggregateType(s string) bool {
	return lo.Contains(AggregateTypes, s)
}

type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNe  FilterOp = "ne"
	OpGt  FilterOp = "gt"
	OpGte FilterOp = "gte"
	OpLt  FilterOp = "lt"
	OpLte FilterOp = "lte"
	OpIn  FilterOp = "in"
)

var filterOps = []FilterOp{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn}

// Filter is a node of a filter tree. A leaf sets Column, Op and Value; a
// group sets exactly one of And or Or.
type Filter struct {
	Column string      `json:"column,omitempty"`
	Op     FilterOp    `json:"op,omitempty"`
	Value  interface{} `json:"value,omitempty"`

	And []*Filter `json:"and,omitempty"`
	Or  []*Filter `json:"or,omitempty"`
}

func Where(column string, op FilterOp, value interface{}) *Filter {
	return &Filter{Column: column, Op: op, Value: value}
}

func And(fs ...*Filter) *Filter {
	return &Filter{And: fs}
}

func Or(fs ...*Filter) *Filter {
	return &Filter{Or: fs}
}

// Columns lists the columns the filter tree references.
func (f *Filter) Columns() []string {
	if f == nil {
		return nil
	}
	var out []string
	if f.Column != "" {
		out = append(out, f.Column)
	}
	for _, sub := range append(append([]*Filter{}, f.And...), f.Or...) {
		out = append(out, sub.Columns()...)
	}
	return lo.Uniq(out)
}

func (f *Filter) validate(path string) error {
	if f == nil {
		return nil
	}
	var merr *multierror.Error

	leaf := f.Column != "" || f.Op != "" || f.Value != nil
	groups := 0
	if len(f.And) > 0 {
		groups++
	}
	if len(f.Or) > 0 {
		groups++
	}

	switch {
	case leaf && groups > 0:
		merr = multierror.Append(merr, xerrors.Errorf("%s: filter is both a condition and a group", path))
	case groups > 1:
		merr = multierror.Append(merr, xerrors.Errorf("%s: filter group must be either and or or", path))
	case leaf:
		if f.Column == "" {
			merr = multierror.Append(merr, xerrors.Errorf("%s: filter column is required", path))
		}
		if !lo.Contains(filterOps, f.Op) {
			merr = multierror.Append(merr, xerrors.Errorf("%s: unknown filter op %q", path, f.Op))
		}
		if f.Op == OpIn {
			if _, ok := f.Value.([]interface{}); !ok {
				if _, ok := f.Value.([]string); !ok {
					merr = multierror.Append(merr, xerrors.Errorf("%s: op in requires a list value", path))
				}
			}
		}
	case groups == 0:
		merr = multierror.Append(merr, xerrors.Errorf("%s: empty filter", path))
	}

	for i, sub := range f.And {
		merr = multierror.Append(merr, sub.validate(path+".and["+strconv.Itoa(i)+"]"))
	}
	for i, sub := range f.Or {
		merr = multierror.Append(merr, sub.validate(path+".or["+strconv.Itoa(i)+"]"))
	}
	return merr.ErrorOrNil()
}

// Request is one of AggregateQuery, TrainingRequest or ComputationRequest.
type Request interface {
	Kind() Kind
	validate(allowCode bool) error
}

// AggregateQuery computes one aggregate over a column.
type AggregateQuery struct {
	Type    string  `json:"type"`
	Column  string  `json:"column"`
	Filters *Filter `json:"filters,omitempty"`
}

func (q *AggregateQuery) Kind() Kind { return KindAggregate }

func (q *AggregateQuery) validate(bool) error {
	var merr *multierror.Error
	if !IsAggregateType(q.Type) {
		merr = multierror.Append(merr, xerrors.Errorf("aggregate type %q must be one of %v", q.Type, AggregateTypes))
	}
	if q.Column == "" && q.Type != "count" {
		merr = multierror.Append(merr, xerrors.Errorf("aggregate %s requires a column", q.Type))
	}
	merr = multierror.Append(merr, q.Filters.validate("filters"))
	return merr.ErrorOrNil()
}

// TrainingRequest trains a model with a worker-known operation.
type TrainingRequest struct {
	Operation  string                 `json:"operation"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
	Filters    *Filter                `json:"filters,omitempty"`
}

func (r *TrainingRequest) Kind() Kind { return KindTraining }

func (r *TrainingRequest) validate(bool) error {
	var merr *multierror.Error
	if r.Operation == "" {
		merr = multierror.Append(merr, xerrors.Errorf("training operation is required"))
	}
	merr = multierror.Append(merr, r.Filters.validate("filters"))
	return merr.ErrorOrNil()
}

// ComputationRequest is a custom computation. Over a single bucket only Main
// runs; over several, PreCompute runs per bucket and Main reduces.
type ComputationRequest struct {
	PreCompute     *Step `json:"preCompute,omitempty"`
	Main           *Step `json:"main,omitempty"`
	IsSeparateData bool  `json:"isSeparateData"`
	CategorizeByDO bool  `json:"categorizeByDO"`
}

func (r *ComputationRequest) Kind() Kind { return KindComputation }

func (r *ComputationRequest) validate(allowCode bool) error {
	var merr *multierror.Error
	if r.PreCompute != nil {
		merr = multierror.Append(merr, r.PreCompute.validate("preCompute", allowCode))
	}
	if r.Main != nil {
		merr = multierror.Append(merr, r.Main.validate("main", allowCode))
	}
	return merr.ErrorOrNil()
}

// Step is exactly one of Expression, Named or Code.
type Step struct {
	Expression *Expression     `json:"expression,omitempty"`
	Named      *NamedOperation `json:"named,omitempty"`
	Code       *CodeStep       `json:"code,omitempty"`
}

// Expression is a declarative aggregate over a column.
type Expression struct {
	Aggregate string  `json:"aggregate"`
	Column    string  `json:"column,omitempty"`
	Filter    *Filter `json:"filter,omitempty"`
}

// NamedOperation refers to an operation implemented by the worker.
type NamedOperation struct {
	Operation string                 `json:"operation"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// CodeStep carries source code for the worker to run. It is only accepted
// when code steps are explicitly enabled.
type CodeStep struct {
	Language string `json:"language"`
	Source   string `json:"source"`
}

func ExpressionStep(aggregate, column string, filter *Filter) *Step {
	return &Step{Expression: &Expression{Aggregate: aggregate, Column: column, Filter: filter}}
}

func NamedStep(operation string, params map[string]interface{}) *Step {
	return &Step{Named: &NamedOperation{Operation: operation, Params: params}}
}

// Columns lists the columns an expression step reads.
func (s *Step) Columns() []string {
	if s == nil || s.Expression == nil {
		return nil
	}
	out := s.Expression.Filter.Columns()
	if s.Expression.Column != "" {
		out = append([]string{s.Expression.Column}, out...)
	}
	return lo.Uniq(out)
}

func (s *Step) validate(name string, allowCode bool) error {
	set := 0
	for _, b := range []bool{s.Expression != nil, s.Named != nil, s.Code != nil} {
		if b {
			set++
		}
	}
	if set != 1 {
		return xerrors.Errorf("%s: step must set exactly one of expression, named or code", name)
	}

	var merr *multierror.Error
	switch {
	case s.Expression != nil:
		if !IsAggregateType(s.Expression.Aggregate) {
			merr = multierror.Append(merr, xerrors.Errorf("%s: aggregate %q must be one of %v", name, s.Expression.Aggregate, AggregateTypes))
		}
		if s.Expression.Column == "" && s.Expression.Aggregate != "count" {
			merr = multierror.Append(merr, xerrors.Errorf("%s: aggregate %s requires a column", name, s.Expression.Aggregate))
		}
		merr = multierror.Append(merr, s.Expression.Filter.validate(name+".filter"))
	case s.Named != nil:
		if s.Named.Operation == "" {
			merr = multierror.Append(merr, xerrors.Errorf("%s: operation is required", name))
		}
	case s.Code != nil:
		if !allowCode {
			merr = multierror.Append(merr, xerrors.Errorf("%s: code steps are disabled", name))
		}
		if s.Code.Language == "" || s.Code.Source == "" {
			merr = multierror.Append(merr, xerrors.Errorf("%s: code step needs a language and source", name))
		}
	}
	return merr.ErrorOrNil()
}

// Target selects the buckets a request runs against and the policy
// authorizing each of them.
type Target struct {
	BucketIDs     []big.Int
	PolicyIndexes []uint64

	CategorizeByDO bool
	AggregateType  string
}

func (t Target) validate() error {
	var merr *multierror.Error
	if len(t.BucketIDs) == 0 {
		merr = multierror.Append(merr, xerrors.Errorf("bucket ids must be a non-empty list"))
	}
	if len(t.PolicyIndexes) == 0 {
		merr = multierror.Append(merr, xerrors.Errorf("policy indexes must be a non-empty list"))
	}
	if len(t.BucketIDs) != len(t.PolicyIndexes) {
		merr = multierror.Append(merr, xerrors.Errorf("length of bucket ids (%d) and policy indexes (%d) must match",
			len(t.BucketIDs), len(t.PolicyIndexes)))
	}
	if t.CategorizeByDO {
		if t.AggregateType == "" {
			merr = multierror.Append(merr, xerrors.Errorf("categorize by data owner requires an aggregate type (one of %v)", AggregateTypes))
		} else if !IsAggregateType(t.AggregateType) {
			merr = multierror.Append(merr, xerrors.Errorf("invalid aggregate type for categorize by data owner: %q, must be one of %v",
				t.AggregateType, AggregateTypes))
		}
	}
	return merr.ErrorOrNil()
}

// Validate checks a request against its target. Problems are collected into
// a single *api.ErrValidation.
func Validate(r Request, t Target, allowCode bool) error {
	var merr *multierror.Error
	merr = multierror.Append(merr, t.validate())
	if r == nil {
		merr = multierror.Append(merr, xerrors.Errorf("no request"))
		return api.NewValidationError(merr.ErrorOrNil())
	}
	merr = multierror.Append(merr, r.validate(allowCode))

	if c, ok := r.(*ComputationRequest); ok {
		switch n := len(t.BucketIDs); {
		case n == 1 && c.Main == nil:
			merr = multierror.Append(merr, xerrors.Errorf("single bucket computation requires a main step"))
		case n > 1 && (c.PreCompute == nil || c.Main == nil):
			merr = multierror.Append(merr, xerrors.Errorf("multi bucket computation requires pre-compute and main steps"))
		}
	}
	return api.NewValidationError(merr.ErrorOrNil())
}

type wireRequest struct {
	Version int  `json:"version"`
	Kind    Kind `json:"kind"`

	Aggregate   *AggregateQuery     `json:"aggregate,omitempty"`
	Training    *TrainingRequest    `json:"training,omitempty"`
	Computation *ComputationRequest `json:"computation,omitempty"`
}

// EncodeRequest serializes a request into the versioned payload sealed
// into the envelope.
func EncodeRequest(r Request) ([]byte, error) {
	w := wireRequest{Version: RequestVersion}
	switch x := r.(type) {
	case *AggregateQuery:
		w.Kind, w.Aggregate = KindAggregate, x
	case *TrainingRequest:
		w.Kind, w.Training = KindTraining, x
	case *ComputationRequest:
		w.Kind, w.Computation = KindComputation, x
	default:
		return nil, xerrors.Errorf("unknown request type %T", r)
	}
	return json.Marshal(w)
}

// DecodeRequest parses a payload produced by EncodeRequest.
func DecodeRequest(b []byte) (Request, error) {
	var w wireRequest
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, xerrors.Errorf("parsing request: %w", err)
	}
	if w.Version != RequestVersion {
		return nil, xerrors.Errorf("unsupported request version %d", w.Version)
	}
	var r Request
	switch w.Kind {
	case KindAggregate:
		if w.Aggregate != nil {
			r = w.Aggregate
		}
	case KindTraining:
		if w.Training != nil {
			r = w.Training
		}
	case KindComputation:
		if w.Computation != nil {
			r = w.Computation
		}
	default:
		return nil, xerrors.Errorf("unknown request kind %q", w.Kind)
	}
	if r == nil {
		return nil, xerrors.Errorf("request of kind %s has no body", w.Kind)
	}
	return r, nil
}

