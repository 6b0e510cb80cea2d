package retry

import (
	"fmt"

	"github.com/rohmanhakim/site-archiver/pkg/failure"
)

type RetryErrorCause string

const (
	ErrZeroAttempt       RetryErrorCause = "max attempt cannot be zero"
	ErrExhaustedAttempts RetryErrorCause = "exhausted all attempts"
)

type RetryError struct {
	Message   string
	Retryable bool
	Cause     RetryErrorCause
	// Last holds the final task error observed before attempts ran out.
	Last failure.ClassifiedError
}

// Unwrap exposes the last underlying task error so callers can classify
// exhaustion by its original cause.
func (e *RetryError) Unwrap() error {
	if e.Last == nil {
		return nil
	}
	return e.Last
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("retry error: %s", e.Message)
}

func (e *RetryError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

func (e *RetryError) IsRetryable() bool {
	return e.Retryable
}

// Is reports whether target is a RetryError. This lets callers use
// errors.Is with a zero-value RetryError as the target.
func (e *RetryError) Is(target error) bool {
	_, ok := target.(*RetryError)
	return ok
}
