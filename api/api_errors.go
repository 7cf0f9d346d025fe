package api

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/go-jsonrpc"

	"github.com/nectarprotocol/nectar-go/chain/types/ethtypes"
)

// EExecutionReverted is the error code EVM nodes use for reverted calls.
const EExecutionReverted jsonrpc.ErrorCode = 3

// Revert reasons raised by the policy registry.
const (
	ReasonBucketNotFound      = "BucketNotFound"
	ReasonNoPolicyIdsInBucket = "NoPolicyIdsInBucket"
	ReasonPolicyNotFound      = "PolicyNotFound"
)

// FailureMarker prefixes results the worker writes when a query failed.
const FailureMarker = "Something went wrong"

var (
	RPCErrors = jsonrpc.NewErrors()

	_ error = (*ErrExecutionReverted)(nil)
	_ error = (*ErrUnauthorized)(nil)
	_ error = (*ErrValidation)(nil)
	_ error = (*ErrContractLogic)(nil)
	_ error = (*ErrTxReverted)(nil)
	_ error = (*ErrMiningTimeout)(nil)
	_ error = (*ErrQueryFailed)(nil)
)

func init() {
	RPCErrors.Register(EExecutionReverted, new(*ErrExecutionReverted))
}

func ErrorIsIn(err error, errorTypes []error) bool {
	for _, etype := range errorTypes {
		tmp := reflect.New(reflect.PointerTo(reflect.ValueOf(etype).Elem().Type())).Interface()
		if errors.As(err, tmp) {
			return true
		}
	}
	return false
}

// ErrExecutionReverted is returned by the node when eth_call or
// eth_estimateGas hits a revert. Data holds the hex encoded revert data.
type ErrExecutionReverted struct {
	Message string
	Data    string
}

func (e *ErrExecutionReverted) Error() string {
	if e.Message == "" {
		return "execution reverted"
	}
	return e.Message
}

// RevertData returns the decoded revert payload, if the node supplied one.
func (e *ErrExecutionReverted) RevertData() []byte {
	if e.Data == "" {
		return nil
	}
	b, err := ethtypes.DecodeHexString(e.Data)
	if err != nil {
		return nil
	}
	return b
}

func (e *ErrExecutionReverted) FromJSONRPCError(jerr jsonrpc.JSONRPCError) error {
	if jerr.Code != EExecutionReverted {
		return xerrors.Errorf("unexpected error code %d for execution reverted", jerr.Code)
	}
	e.Message = jerr.Message
	if s, ok := jerr.Data.(string); ok {
		e.Data = s
	}
	return nil
}

func (e *ErrExecutionReverted) ToJSONRPCError() (jsonrpc.JSONRPCError, error) {
	return jsonrpc.JSONRPCError{
		Code:    EExecutionReverted,
		Message: e.Error(),
		Data:    e.Data,
	}, nil
}

// ErrUnauthorized signals that the account's role does not permit the
// operation. It is raised before any transaction is built.
type ErrUnauthorized struct {
	Role     string
	Required []string
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("unauthorized action: role %q does not have permission to perform this operation (requires %s)",
		e.Role, strings.Join(e.Required, " or "))
}

// ErrValidation signals malformed arguments. Nothing was sent to the ledger.
type ErrValidation struct {
	Problems []string
}

func (e *ErrValidation) Error() string {
	if len(e.Problems) == 1 {
		return "invalid request: " + e.Problems[0]
	}
	return fmt.Sprintf("invalid request: %d problems: %s", len(e.Problems), strings.Join(e.Problems, "; "))
}

// NewValidationError collects the problems of a multierror. A nil or empty
// error yields nil.
func NewValidationError(err error) error {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if errors.As(err, &merr) {
		if len(merr.Errors) == 0 {
			return nil
		}
		out := &ErrValidation{}
		for _, e := range merr.Errors {
			out.Problems = append(out.Problems, e.Error())
		}
		return out
	}
	return &ErrValidation{Problems: []string{err.Error()}}
}

// ErrContractLogic signals that a read-only contract call reverted.
type ErrContractLogic struct {
	Method string
	Reason string
}

func (e *ErrContractLogic) Error() string {
	return fmt.Sprintf("contract call %s reverted: %s", e.Method, e.Reason)
}

// ErrTxReverted signals that a transaction was mined with a failure status.
type ErrTxReverted struct {
	Action string
	TxHash ethtypes.EthHash
}

func (e *ErrTxReverted) Error() string {
	return fmt.Sprintf("%s transaction reverted: %s", e.Action, e.TxHash)
}

// ErrMiningTimeout signals that no receipt appeared in time. The transaction
// may still be mined later, so its outcome is unknown.
type ErrMiningTimeout struct {
	Action  string
	TxHash  ethtypes.EthHash
	Elapsed time.Duration
}

func (e *ErrMiningTimeout) Error() string {
	return fmt.Sprintf("%s transaction not mined within %s: %s (outcome unknown)", e.Action, e.Elapsed, e.TxHash)
}

// ErrQueryFailed carries the failure text the worker wrote for a query.
type ErrQueryFailed struct {
	Marker string
}

func (e *ErrQueryFailed) Error() string {
	return "query failed: " + e.Marker
}

func IsBucketNotFound(err error) bool {
	return hasRevertReason(err, ReasonBucketNotFound)
}

func IsNoPolicyIdsInBucket(err error) bool {
	return hasRevertReason(err, ReasonNoPolicyIdsInBucket)
}

func hasRevertReason(err error, reason string) bool {
	var cle *ErrContractLogic
	if !errors.As(err, &cle) {
		return false
	}
	return strings.Contains(cle.Reason, reason)
}
