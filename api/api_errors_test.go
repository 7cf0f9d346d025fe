package api

import (
	"errors"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestErrorIsIn(t *testing.T) {
	err := xerrors.Errorf("resolving price: %w", &ErrContractLogic{Method: "getPolicyIds", Reason: "BucketNotFound(3)"})

	require.True(t, ErrorIsIn(err, []error{&ErrValidation{}, &ErrContractLogic{}}))
	require.False(t, ErrorIsIn(err, []error{&ErrTxReverted{}, &ErrMiningTimeout{}}))
	require.True(t, IsBucketNotFound(err))
	require.False(t, IsNoPolicyIdsInBucket(err))
	require.False(t, IsBucketNotFound(errors.New("BucketNotFound")))
}

func TestNewValidationError(t *testing.T) {
	require.NoError(t, NewValidationError(nil))

	var merr *multierror.Error
	require.NoError(t, NewValidationError(merr.ErrorOrNil()))

	merr = multierror.Append(merr, errors.New("bucket ids must not be empty"), errors.New("lengths differ"))
	err := NewValidationError(merr)

	var verr *ErrValidation
	require.ErrorAs(t, err, &verr)
	require.Equal(t, []string{"bucket ids must not be empty", "lengths differ"}, verr.Problems)
	require.Contains(t, err.Error(), "2 problems")

	err = NewValidationError(errors.New("single"))
	require.EqualError(t, err, "invalid request: single")
}

func TestExecutionRevertedData(t *testing.T) {
	e := &ErrExecutionReverted{Message: "execution reverted", Data: "0x08c379a0"}
	require.Equal(t, []byte{0x08, 0xc3, 0x79, 0xa0}, e.RevertData())

	jerr, err := e.ToJSONRPCError()
	require.NoError(t, err)
	require.Equal(t, EExecutionReverted, jerr.Code)

	var back ErrExecutionReverted
	require.NoError(t, back.FromJSONRPCError(jerr))
	require.Equal(t, *e, back)

	require.Nil(t, (&ErrExecutionReverted{}).RevertData())
	require.Equal(t, "execution reverted", (&ErrExecutionReverted{}).Error())
}

func TestErrorMessages(t *testing.T) {
	require.Contains(t, (&ErrUnauthorized{Role: "DO", Required: []string{"DA"}}).Error(), "unauthorized action")
	require.Equal(t, "query failed: Something went wrong: boom", (&ErrQueryFailed{Marker: "Something went wrong: boom"}).Error())
	require.Contains(t, (&ErrMiningTimeout{Action: "approve"}).Error(), "outcome unknown")
}
