package warc

import (
	"fmt"

	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/pkg/failure"
)

type ArchiveErrorCause string

const (
	ErrCauseOpenFailure  ArchiveErrorCause = "failed to open archive"
	ErrCauseWriteFailure ArchiveErrorCause = "record write failed"
	ErrCauseDigest       ArchiveErrorCause = "digest computation failed"
	ErrCauseMalformed    ArchiveErrorCause = "malformed record"
)

type ArchiveError struct {
	Message string
	// Fatal marks errors that make the whole archive unusable (open
	// failures). Record-level write failures are recoverable: that record
	// is lost, the crawl continues.
	Fatal bool
	Cause ArchiveErrorCause
	Path  string
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive error: %s: %s", e.Cause, e.Message)
}

func (e *ArchiveError) Severity() failure.Severity {
	if e.Fatal {
		return failure.SeverityFatal
	}
	return failure.SeverityRecoverable
}

func (e *ArchiveError) IsRetryable() bool {
	return false
}

// mapArchiveErrorToMetadataCause maps archive-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapArchiveErrorToMetadataCause(err *ArchiveError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseOpenFailure, ErrCauseWriteFailure:
		return metadata.CauseStorageFailure
	case ErrCauseMalformed:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
