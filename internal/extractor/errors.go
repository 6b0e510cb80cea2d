package extractor

import (
	"fmt"

	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/pkg/failure"
)

type ExtractionErrorCause string

const (
	ErrCauseNotHTML   ExtractionErrorCause = "input is not parseable HTML"
	ErrCauseEmptyBody ExtractionErrorCause = "empty document body"
)

type ExtractionError struct {
	Message string
	Cause   ExtractionErrorCause
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extractor error: %s", e.Cause)
}

// Parse failures are per-page: the page's remaining links are skipped,
// the crawl continues.
func (e *ExtractionError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *ExtractionError) IsRetryable() bool {
	return false
}

// mapExtractionErrorToMetadataCause maps extractor-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapExtractionErrorToMetadataCause(err *ExtractionError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseNotHTML, ErrCauseEmptyBody:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
