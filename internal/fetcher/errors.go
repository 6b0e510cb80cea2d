package fetcher

import (
	"fmt"

	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/pkg/failure"
)

// FetchErrorCause is the terminal failure taxonomy recorded into the
// archive alongside failed captures.
type FetchErrorCause string

const (
	ErrCauseTimeout    FetchErrorCause = "timeout"
	ErrCauseConnection FetchErrorCause = "connection"
	ErrCauseTLS        FetchErrorCause = "tls-error"
	ErrCauseHTTP4xx    FetchErrorCause = "http-4xx"
	ErrCauseHTTP5xx    FetchErrorCause = "http-5xx"
	ErrCauseReadBody   FetchErrorCause = "read-body"
	ErrCauseCancelled  FetchErrorCause = "cancelled"
)

type FetchError struct {
	Message   string
	Retryable bool
	Cause     FetchErrorCause
	// Attempts is how many fetch attempts were made before the error
	// became terminal. Zero until the retry layer finishes.
	Attempts int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetcher error: %s: %s", e.Cause, e.Message)
}

// Fetch failures are contained at the URL granularity: the scheduler
// records them and moves on, so they are never fatal to the crawl.
func (e *FetchError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

// IsRetryable returns whether this error is retryable
func (e *FetchError) IsRetryable() bool {
	return e.Retryable
}

// mapFetchErrorToMetadataCause maps fetcher-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapFetchErrorToMetadataCause(err *FetchError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseTimeout, ErrCauseConnection, ErrCauseTLS:
		return metadata.CauseNetworkFailure
	case ErrCauseHTTP4xx:
		return metadata.CausePolicyDisallow
	case ErrCauseHTTP5xx:
		return metadata.CauseNetworkFailure
	case ErrCauseReadBody:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
