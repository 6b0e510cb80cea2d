package normalize

import (
	"fmt"

	"github.com/rohmanhakim/site-archiver/pkg/failure"
)

type NormalizeErrorCause string

const (
	ErrCauseUnparsable    NormalizeErrorCause = "unparsable URL"
	ErrCauseNoHost        NormalizeErrorCause = "URL has no host"
	ErrCauseUnsupportable NormalizeErrorCause = "unsupported scheme"
)

type NormalizeError struct {
	Message string
	Cause   NormalizeErrorCause
}

func (e *NormalizeError) Error() string {
	return fmt.Sprintf("normalize error: %s", e.Cause)
}

// Normalization failures are always per-URL; they never abort the crawl.
func (e *NormalizeError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *NormalizeError) IsRetryable() bool {
	return false
}
