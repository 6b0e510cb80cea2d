package metadata

import (
	"time"
)

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, metrics, reporting).

	Rules:
	 - ErrorCause is for observability only.
	 - It must never be used to derive retry, continuation, or abort decisions.
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause values MUST have stable, package-agnostic semantics.
	 - Pipeline packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

const (
	// CauseUnknown: the failure does not map cleanly to any known category.
	CauseUnknown ErrorCause = iota
	// CauseNetworkFailure: transport or remote availability failure
	// (timeouts, DNS, connection resets, TLS handshakes).
	CauseNetworkFailure
	// CausePolicyDisallow: crawling disallowed by explicit policy
	// (filter rejection, 403/401, rate-limit enforcement).
	CausePolicyDisallow
	// CauseContentInvalid: content fetched but not processable
	// (broken DOM, empty bodies, malformed config input).
	CauseContentInvalid
	// CauseStorageFailure: failure while persisting crawl artifacts
	// (disk full, permissions, filesystem I/O).
	CauseStorageFailure
	// CauseRetryFailure: a bounded retry loop exhausted its attempts.
	CauseRetryFailure
	// CauseInvariantViolation: a system-level invariant was violated
	// (impossible crawl depth, internal consistency checks failing).
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseRetryFailure:
		return "retry_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

type ArtifactKind string

const (
	ArtifactWARCRecord ArtifactKind = "warc_record"
	ArtifactMirrorFile ArtifactKind = "mirror_file"
	ArtifactIndexRow   ArtifactKind = "index_row"
)

/*
crawlStats
  - Represents a terminal, derived summary of a completed crawl
  - Contains only aggregate counts and durations
  - Is computed by the scheduler after crawl termination
  - Is recorded exactly once
  - Must not influence scheduling, retries, or crawl termination
*/
type crawlStats struct {
	pagesArchived int
	pagesFailed   int
	pagesFiltered int
	durationMs    int64
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrTime       AttributeKey = "time"
	AttrURL        AttributeKey = "url"
	AttrHost       AttributeKey = "host"
	AttrPath       AttributeKey = "path"
	AttrDepth      AttributeKey = "depth"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrErrorKind  AttributeKey = "error_kind"
	AttrWritePath  AttributeKey = "write_path"
	AttrMessage    AttributeKey = "message"
)

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)

	RecordFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		retryCount int,
		crawlDepth int,
	)

	RecordFilterReject(rawUrl string, reason string)

	RecordArtifact(kind ArtifactKind, path string, attrs []Attribute)
}

type CrawlFinalizer interface {
	RecordFinalCrawlStats(
		pagesArchived int,
		pagesFailed int,
		pagesFiltered int,
		duration time.Duration,
	)
}

// NoopSink implements MetadataSink but does nothing.
// Scheduler (or Test) can decide whether to inject Recorder or NoopSink.
// Purpose is to make metadata orthogonal.
type NoopSink struct{}

func (n *NoopSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
}

func (n *NoopSink) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
}

func (n *NoopSink) RecordFilterReject(rawUrl string, reason string) {}

func (n *NoopSink) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {}

func (n *NoopSink) RecordFinalCrawlStats(
	pagesArchived int,
	pagesFailed int,
	pagesFiltered int,
	duration time.Duration,
) {
}
