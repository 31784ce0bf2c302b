package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelMatchingSurvivesBuilders(t *testing.T) {
	err := fmt.Errorf("verb failed: %w", InvalidArgument(MsgTrackEvent).WithDetail("field", "event"))

	assert.True(t, stderrors.Is(err, ErrInvalidArgument))
	assert.True(t, IsInvalidArgument(err))
	assert.False(t, IsIllegalState(err))

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, MsgTrackEvent, appErr.Reason())
	assert.Equal(t, "INVALID_ARGUMENT: "+MsgTrackEvent, appErr.Error())
}

func TestRetryability(t *testing.T) {
	tests := []struct {
		name      string
		err       *Error
		retryable bool
	}{
		{"transient", ErrTransientDelivery.WithMessage("503"), true},
		{"permanent", ErrPermanentDelivery.WithMessage("400"), false},
		{"invalid argument", ErrInvalidArgument, false},
		{"internal", ErrInternal, true},
		{"cause decides", ErrIntegrationFailure.WithCause(ErrTransientDelivery), true},
		{"explicit fatal wins", ErrInternal.AsFatal(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.err.IsRetryable())
			assert.Equal(t, !tt.retryable, tt.err.IsFatal())
		})
	}
}

func TestDuplicateInstance(t *testing.T) {
	err := DuplicateInstance("main")
	assert.True(t, IsDuplicateInstance(err))
	assert.Contains(t, err.Reason(), "Duplicate analytics client created with tag: main.")
	assert.Equal(t, "main", err.Details["tag"])
}

func TestWithDetailDoesNotAlias(t *testing.T) {
	a := ErrNotFound.WithDetail("key", "a")
	b := a.WithDetail("key", "b")
	assert.Equal(t, "a", a.Details["key"])
	assert.Equal(t, "b", b.Details["key"])
	assert.Empty(t, ErrNotFound.Details)
}

func TestToErrorResponse(t *testing.T) {
	resp := ToErrorResponse(IllegalState(MsgShutdown).WithDetail("tag", "t").WithDetail("stack_trace", "..."))
	assert.Equal(t, MsgShutdown, resp["error"])
	assert.Equal(t, "ILLEGAL_STATE", resp["error_code"])
	assert.Equal(t, map[string]interface{}{"tag": "t"}, resp["details"])

	resp = ToErrorResponse(stderrors.New("plain"))
	assert.Equal(t, "INTERNAL_ERROR", resp["error_code"])
}

func TestGuard(t *testing.T) {
	err := Guard(ErrIntegrationFailure, func() error { panic("boom") })
	require.Error(t, err)

	var appErr *Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, ErrIntegrationFailure.Code, appErr.Code)
	assert.Equal(t, true, appErr.Details["panic"])
	assert.True(t, appErr.IsFatal())

	plain := stderrors.New("plain")
	assert.Equal(t, plain, Guard(ErrIntegrationFailure, func() error { return plain }))
	assert.NoError(t, Guard(ErrIntegrationFailure, func() error { return nil }))
	assert.Nil(t, RecoverPanic(nil))
}

func TestToHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{InvalidArgument(MsgTrackEvent), http.StatusBadRequest},
		{IllegalState(MsgShutdown), http.StatusServiceUnavailable},
		{ErrUnsupportedOperation.WithMessage(MsgSingletonShutdown), http.StatusServiceUnavailable},
		{DuplicateInstance("t"), http.StatusConflict},
		{ErrNotFound, http.StatusNotFound},
		{stderrors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToHTTPStatus(tt.err), tt.err.Error())
	}
}
