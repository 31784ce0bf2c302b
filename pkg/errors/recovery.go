package errors

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic converts a recovered panic value into a fatal internal error that
// carries the stack trace.
func RecoverPanic(r interface{}) error {
	return recoverAs(r, ErrInternal)
}

func recoverAs(r interface{}, base *Error) error {
	if r == nil {
		return nil
	}

	var err error
	switch v := r.(type) {
	case error:
		err = v
	case string:
		err = fmt.Errorf("panic: %s", v)
	default:
		err = fmt.Errorf("panic: %v", v)
	}

	return base.
		WithCause(err).
		WithDetail("panic", true).
		WithDetail("stack_trace", string(debug.Stack())).
		AsFatal()
}

// Guard runs fn and reports a panic inside it as an error of kind base.
func Guard(base *Error, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoverAs(r, base)
		}
	}()
	return fn()
}
