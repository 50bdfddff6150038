package pipeline

import (
	"errors"
	"fmt"
)

// RetryableError marks an export failure as transient: the pipeline retries
// the batch with backoff up to its attempt budget.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable export error: %v", e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// FatalError marks an export failure as permanent for the batch: it is
// dropped without retry.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal export error: %v", e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as permanent.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// IsRetryable reports whether err is marked transient. Unclassified errors
// are treated as retryable so flaky backends default to getting the retry
// budget, not silent loss.
func IsRetryable(err error) bool {
	var fatal *FatalError
	return !errors.As(err, &fatal)
}
