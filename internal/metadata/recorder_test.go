package metadata_test

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rohmanhakim/site-archiver/internal/metadata"
)

func TestRecordError_EmitsStructuredEvent(t *testing.T) {
	var buf bytes.Buffer
	recorder := metadata.NewRecorderWithWriter("worker-1", &buf, slog.LevelDebug)

	recorder.RecordError(
		time.Now(),
		"fetcher",
		"HTTPFetcher.Fetch",
		metadata.CauseNetworkFailure,
		"connection refused",
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, "https://example.com/page"),
		},
	)

	out := buf.String()
	assert.Contains(t, out, "crawl error")
	assert.Contains(t, out, "worker=worker-1")
	assert.Contains(t, out, "package=fetcher")
	assert.Contains(t, out, "action=HTTPFetcher.Fetch")
	assert.Contains(t, out, "connection refused")
	assert.Contains(t, out, "https://example.com/page")
}

func TestRecordFetch_EmitsFetchFields(t *testing.T) {
	var buf bytes.Buffer
	recorder := metadata.NewRecorderWithWriter("worker-2", &buf, slog.LevelDebug)

	recorder.RecordFetch("https://example.com/doc", 200, 150*time.Millisecond, "text/html", 1, 3)

	out := buf.String()
	assert.Contains(t, out, "url=https://example.com/doc")
	assert.Contains(t, out, "status=200")
	assert.Contains(t, out, "retries=1")
	assert.Contains(t, out, "depth=3")
}

func TestRecordFilterReject_DebugLevel(t *testing.T) {
	var infoBuf bytes.Buffer
	infoRecorder := metadata.NewRecorderWithWriter("w", &infoBuf, slog.LevelInfo)
	infoRecorder.RecordFilterReject("https://example.com/x.png", "rejected extension")
	assert.Empty(t, infoBuf.String(), "filter rejections are debug-level events")

	var debugBuf bytes.Buffer
	debugRecorder := metadata.NewRecorderWithWriter("w", &debugBuf, slog.LevelDebug)
	debugRecorder.RecordFilterReject("https://example.com/x.png", "rejected extension")
	assert.Contains(t, debugBuf.String(), "rejected extension")
}

func TestRecordArtifact(t *testing.T) {
	var buf bytes.Buffer
	recorder := metadata.NewRecorderWithWriter("w", &buf, slog.LevelDebug)

	recorder.RecordArtifact(metadata.ArtifactWARCRecord, "crawl.warc", []metadata.Attribute{
		metadata.NewAttr(metadata.AttrURL, "https://example.com/"),
	})

	out := buf.String()
	assert.Contains(t, out, "artifact")
	assert.Contains(t, out, "kind=warc_record")
	assert.Contains(t, out, "path=crawl.warc")
}

func TestRecordFinalCrawlStats(t *testing.T) {
	var buf bytes.Buffer
	recorder := metadata.NewRecorderWithWriter("main", &buf, slog.LevelInfo)

	recorder.RecordFinalCrawlStats(10, 2, 5, 1500*time.Millisecond)

	out := buf.String()
	assert.Contains(t, out, "crawl complete")
	assert.Contains(t, out, "pages_archived=10")
	assert.Contains(t, out, "pages_failed=2")
	assert.Contains(t, out, "pages_filtered=5")
	assert.Contains(t, out, "duration_ms=1500")
}

func TestErrorCauseString(t *testing.T) {
	tests := []struct {
		cause    metadata.ErrorCause
		expected string
	}{
		{metadata.CauseUnknown, "unknown"},
		{metadata.CauseNetworkFailure, "network_failure"},
		{metadata.CausePolicyDisallow, "policy_disallow"},
		{metadata.CauseContentInvalid, "content_invalid"},
		{metadata.CauseStorageFailure, "storage_failure"},
		{metadata.CauseRetryFailure, "retry_failure"},
		{metadata.CauseInvariantViolation, "invariant_violation"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.cause.String())
	}
}
