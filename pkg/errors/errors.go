package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidArgument      = NewError("INVALID_ARGUMENT", "invalid argument")
	ErrIllegalState         = NewError("ILLEGAL_STATE", "illegal state")
	ErrDuplicateInstance    = NewError("DUPLICATE_INSTANCE", "duplicate instance")
	ErrUnsupportedOperation = NewError("UNSUPPORTED_OPERATION", "unsupported operation")
	ErrTransientDelivery    = NewError("TRANSIENT_DELIVERY_FAILURE", "transient delivery failure").AsRetryable()
	ErrPermanentDelivery    = NewError("PERMANENT_DELIVERY_FAILURE", "permanent delivery failure").AsFatal()
	ErrIntegrationFailure   = NewError("INTEGRATION_FAILURE", "integration call failed")
	ErrNotFound             = NewError("NOT_FOUND", "resource not found")
	ErrInternal             = NewError("INTERNAL_ERROR", "internal error")
)

// Messages surfaced to callers for the synchronous failure kinds.
const (
	MsgIdentifyArgs      = "Either userId or some traits must be provided."
	MsgTrackEvent        = "event must not be null or empty."
	MsgScreenArgs        = "either category or name must be provided."
	MsgGroupID           = "groupId must not be null or empty."
	MsgAliasID           = "not allowed to pass null or empty alias"
	MsgIntegrationKey    = "key cannot be null or empty."
	MsgShutdown          = "Cannot enqueue messages after client is shutdown."
	MsgSingletonExists   = "Singleton instance already exists."
	MsgSingletonShutdown = "Default instance may not be shutdown."
	MsgDefaultNotLive    = "Default instance must be a live client."
)

type RetryableError interface {
	error
	IsRetryable() bool
}

type FatalError interface {
	error
	IsFatal() bool
}

type Error struct {
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	retryable *bool
}

func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

func (e *Error) Error() string {
	msg := e.Message

	if len(e.Details) > 0 {
		if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
			msg = detailMsg
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Reason returns the human readable message without the code prefix.
func (e *Error) Reason() string {
	if detailMsg, ok := e.Details["message"].(string); ok && detailMsg != "" {
		return detailMsg
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on Code so sentinel comparisons work for copies made by the With* builders.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

func (e *Error) IsRetryable() bool {
	if e.retryable != nil {
		return *e.retryable
	}
	if e.Cause != nil {
		var retryableErr RetryableError
		if errors.As(e.Cause, &retryableErr) {
			return retryableErr.IsRetryable()
		}
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return !fatalErr.IsFatal()
		}
	}
	return e.Code == ErrTransientDelivery.Code || e.Code == ErrInternal.Code
}

func (e *Error) IsFatal() bool {
	if e.retryable != nil {
		return !*e.retryable
	}

	if e.Cause != nil {
		var fatalErr FatalError
		if errors.As(e.Cause, &fatalErr) {
			return fatalErr.IsFatal()
		}
	}

	return !e.IsRetryable()
}

func (e *Error) WithCause(cause error) *Error {
	err := *e
	err.Cause = cause
	return &err
}

func (e *Error) WithMessage(message string) *Error {
	return e.WithDetail("message", message)
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	err := *e
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	err.Details = details
	return &err
}

func (e *Error) AsRetryable() *Error {
	err := *e
	retryable := true
	err.retryable = &retryable
	return &err
}

func (e *Error) AsFatal() *Error {
	err := *e
	retryable := false
	err.retryable = &retryable
	return &err
}

func InvalidArgument(message string) *Error {
	return ErrInvalidArgument.WithMessage(message)
}

func IllegalState(message string) *Error {
	return ErrIllegalState.WithMessage(message)
}

func DuplicateInstance(tag string) *Error {
	return ErrDuplicateInstance.
		WithMessage(fmt.Sprintf("Duplicate analytics client created with tag: %s. If you want to use multiple Analytics clients, use a different writeKey or set a tag via the builder during construction.", tag)).
		WithDetail("tag", tag)
}

func hasCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsInvalidArgument(err error) bool {
	return hasCode(err, ErrInvalidArgument.Code)
}

func IsIllegalState(err error) bool {
	return hasCode(err, ErrIllegalState.Code)
}

func IsDuplicateInstance(err error) bool {
	return hasCode(err, ErrDuplicateInstance.Code)
}

func IsUnsupportedOperation(err error) bool {
	return hasCode(err, ErrUnsupportedOperation.Code)
}

func IsTransientDelivery(err error) bool {
	return hasCode(err, ErrTransientDelivery.Code)
}

func IsPermanentDelivery(err error) bool {
	return hasCode(err, ErrPermanentDelivery.Code)
}

func IsNotFound(err error) bool {
	return hasCode(err, ErrNotFound.Code)
}

// ToHTTPStatus maps err to the relay response status.
func ToHTTPStatus(err error) int {
	switch {
	case IsInvalidArgument(err):
		return http.StatusBadRequest
	case IsNotFound(err):
		return http.StatusNotFound
	case IsDuplicateInstance(err):
		return http.StatusConflict
	case IsIllegalState(err), IsUnsupportedOperation(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToErrorResponse renders err for the relay HTTP API.
func ToErrorResponse(err error) map[string]interface{} {
	var appErr *Error
	if !errors.As(err, &appErr) {
		appErr = ErrInternal.WithCause(err)
	}

	response := map[string]interface{}{
		"error":      appErr.Reason(),
		"error_code": appErr.Code,
	}

	if len(appErr.Details) > 0 {
		details := make(map[string]interface{}, len(appErr.Details))
		for k, v := range appErr.Details {
			if k == "message" || k == "stack_trace" {
				continue
			}
			details[k] = v
		}
		if len(details) > 0 {
			response["details"] = details
		}
	}

	return response
}
