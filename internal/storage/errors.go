package storage

import (
	"fmt"

	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/pkg/failure"
)

type StorageErrorCause string

const (
	ErrCauseWriteFailure          StorageErrorCause = "write failed"
	ErrCausePathError             StorageErrorCause = "path error"
	ErrCauseHashComputationFailed StorageErrorCause = "hash computation failed"
	ErrCauseRewriteFailed         StorageErrorCause = "link rewrite failed"
)

type StorageError struct {
	Message string
	Cause   StorageErrorCause
	Path    string
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s", e.Cause)
}

// Mirror writes are best-effort: a failed write loses that file only,
// never the crawl.
func (e *StorageError) Severity() failure.Severity {
	return failure.SeverityRecoverable
}

func (e *StorageError) IsRetryable() bool {
	return false
}

// mapStorageErrorToMetadataCause maps storage-local error semantics
// to the canonical metadata.ErrorCause table.
//
// This mapping is observational only and MUST NOT be used
// to derive control-flow decisions.
func mapStorageErrorToMetadataCause(err *StorageError) metadata.ErrorCause {
	switch err.Cause {
	case ErrCauseWriteFailure, ErrCausePathError:
		return metadata.CauseStorageFailure
	case ErrCauseRewriteFailed:
		return metadata.CauseContentInvalid
	default:
		return metadata.CauseUnknown
	}
}
