package metadata

import (
	"context"
	"io"
	"log/slog"
	"time"
)

/*
Metadata Collected
- Fetch timestamps
- HTTP status codes
- Content hashes
- Crawl depth

Logging Goals
- Debuggable crawl behavior
- Post-run auditability
- Failure diagnostics

Determinism guarantees:
 - Metadata does not affect control flow
 - Errors do not reorder the frontier
 - Jitter is seed-controlled

Metadata is write-only.
No component may read metadata to influence crawl decisions.
*/

/*
Recorder captures structured crawl events and emits them through slog.
It must not:
- perform I/O decisions
- affect control flow
- impose a logging backend beyond the injected handler
Ordering guarantees:
- Events are recorded synchronously in the order they are received by a single worker.
- No global ordering across workers is guaranteed.
- Ordering is provided for debuggability, not causality.
*/
type Recorder struct {
	workerId string
	logger   *slog.Logger
}

// NewRecorder creates a Recorder that writes structured events to the
// default slog logger.
func NewRecorder(workerId string) Recorder {
	return Recorder{
		workerId: workerId,
		logger:   slog.Default(),
	}
}

// NewRecorderWithWriter creates a Recorder writing text-formatted events to w.
// Tests use this to capture emitted events.
func NewRecorderWithWriter(workerId string, w io.Writer, level slog.Level) Recorder {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return Recorder{
		workerId: workerId,
		logger:   slog.New(handler),
	}
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	errorString string,
	attrs []Attribute,
) {
	args := []any{
		slog.String("worker", r.workerId),
		slog.String("package", packageName),
		slog.String("action", action),
		slog.String("cause", cause.String()),
		slog.String("error", errorString),
		slog.Time("observed_at", observedAt),
	}
	for _, attr := range attrs {
		args = append(args, slog.String(string(attr.Key), attr.Value))
	}
	r.logger.LogAttrs(context.Background(), slog.LevelError, "crawl error", toSlogAttrs(args)...)
}

func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	crawlDepth int,
) {
	r.logger.Info("fetch",
		slog.String("worker", r.workerId),
		slog.String("url", fetchUrl),
		slog.Int("status", httpStatus),
		slog.Duration("duration", duration),
		slog.String("content_type", contentType),
		slog.Int("retries", retryCount),
		slog.Int("depth", crawlDepth),
	)
}

func (r *Recorder) RecordFilterReject(rawUrl string, reason string) {
	r.logger.Debug("filtered",
		slog.String("worker", r.workerId),
		slog.String("url", rawUrl),
		slog.String("reason", reason),
	)
}

func (r *Recorder) RecordArtifact(kind ArtifactKind, path string, attrs []Attribute) {
	args := []any{
		slog.String("worker", r.workerId),
		slog.String("kind", string(kind)),
		slog.String("path", path),
	}
	for _, attr := range attrs {
		args = append(args, slog.String(string(attr.Key), attr.Value))
	}
	r.logger.LogAttrs(context.Background(), slog.LevelInfo, "artifact", toSlogAttrs(args)...)
}

/*
RecordFinalCrawlStats records a terminal, derived summary of a completed crawl.

Contract:
  - MUST be called exactly once per crawl execution.
  - MUST be called only after crawl termination
    (frontier exhausted, limits reached, or scheduler abort).
  - The provided stats MUST be derived from scheduler state,
    not accumulated incrementally via the recorder.
  - Recorded stats MUST NOT influence control flow or scheduling.
*/
func (r *Recorder) RecordFinalCrawlStats(
	pagesArchived int,
	pagesFailed int,
	pagesFiltered int,
	duration time.Duration,
) {
	stats := crawlStats{
		pagesArchived: pagesArchived,
		pagesFailed:   pagesFailed,
		pagesFiltered: pagesFiltered,
		durationMs:    duration.Milliseconds(),
	}

	r.logger.Info("crawl complete",
		slog.String("worker", r.workerId),
		slog.Int("pages_archived", stats.pagesArchived),
		slog.Int("pages_failed", stats.pagesFailed),
		slog.Int("pages_filtered", stats.pagesFiltered),
		slog.Int64("duration_ms", stats.durationMs),
	)
}

func toSlogAttrs(args []any) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(args))
	for _, a := range args {
		if attr, ok := a.(slog.Attr); ok {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}
