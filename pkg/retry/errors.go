package retry

import (
	"context"
	"errors"
)

// retryable is implemented by errors that know whether they are transient.
type retryable interface {
	IsRetryable() bool
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Retryable reports whether err should trigger another attempt.
// Permanent errors and errors whose IsRetryable reports false are final.
// Bare context errors are final too; a per-call timeout is reported by the
// client as a retryable network error instead.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var perm *permanentError
	if errors.As(err, &perm) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return true
}
