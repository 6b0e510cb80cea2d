package scheduler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/site-archiver/internal/config"
	"github.com/rohmanhakim/site-archiver/internal/database"
	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/internal/scheduler"
	"github.com/rohmanhakim/site-archiver/internal/warc"
)

// testSite serves a small fixed site and counts requests per path.
type testSite struct {
	mu     sync.Mutex
	hits   map[string]int
	server *httptest.Server
}

func newTestSite(t *testing.T, pages map[string]string) *testSite {
	t.Helper()
	site := &testSite{hits: make(map[string]int)}
	site.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.hits[r.URL.Path]++
		site.mu.Unlock()

		body, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(site.server.Close)
	return site
}

func (s *testSite) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func (s *testSite) seedURL(t *testing.T) url.URL {
	t.Helper()
	u, err := url.Parse(s.server.URL + "/")
	require.NoError(t, err)
	return *u
}

func fastConfig(t *testing.T, seed url.URL, outDir string, mutate func(*config.Config) *config.Config) config.Config {
	t.Helper()
	builder := config.WithDefault([]url.URL{seed}).
		WithBaseDelay(time.Millisecond).
		WithJitter(time.Millisecond).
		WithRandomSeed(42).
		WithTimeout(5 * time.Second).
		WithMaxAttempt(2).
		WithBackoffInitialDuration(time.Millisecond).
		WithBackoffMaxDuration(10 * time.Millisecond).
		WithArchivePath(filepath.Join(outDir, "crawl.warc")).
		WithIndexPath(filepath.Join(outDir, "crawl.warc.db"))
	if mutate != nil {
		builder = mutate(builder)
	}
	cfg, err := builder.Build()
	require.NoError(t, err)
	return cfg
}

func runCrawl(t *testing.T, cfg config.Config) scheduler.CrawlingExecution {
	t.Helper()
	s, err := scheduler.NewScheduler(cfg, &metadata.NoopSink{}, &metadata.NoopSink{})
	require.NoError(t, err)

	execution, runErr := s.ExecuteCrawling(context.Background())
	require.NoError(t, runErr)
	require.NoError(t, s.Close())
	return execution
}

func TestExecuteCrawling_ArchivesReachableSite(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<a href="/a">a</a>
			<a href="/b">b</a>
		</body></html>`,
		"/a": `<html><body><a href="/c">c</a><a href="/">home</a></body></html>`,
		"/b": `<html><body>leaf</body></html>`,
		"/c": `<html><body>leaf</body></html>`,
	})
	outDir := t.TempDir()
	cfg := fastConfig(t, site.seedURL(t), outDir, nil)

	execution := runCrawl(t, cfg)

	assert.Equal(t, 4, execution.Stats.PagesArchived)
	assert.Equal(t, 0, execution.Stats.PagesFailed)
	assert.Equal(t, 0, execution.Stats.PagesFiltered)

	// No URL is fetched more than once, even with the /a -> / back link.
	for _, path := range []string{"/", "/a", "/b", "/c"} {
		assert.Equal(t, 1, site.hitCount(path), "path %s", path)
	}

	reader, err := warc.NewReader(cfg.ArchivePath())
	require.NoError(t, err)
	defer reader.Close()

	records, readErr := reader.ReadAll()
	require.NoError(t, readErr)
	require.Len(t, records, 5, "warcinfo plus one response per page")
	assert.Equal(t, warc.TypeWarcinfo, records[0].Type())
	for _, record := range records[1:] {
		assert.Equal(t, warc.TypeResponse, record.Type())
	}
}

func TestExecuteCrawling_RecordsFailuresAndFilters(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<a href="/ok">ok</a>
			<a href="/logo.png">image</a>
			<a href="/missing">broken</a>
		</body></html>`,
		"/ok": `<html><body>fine</body></html>`,
	})
	outDir := t.TempDir()
	cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
		return b.WithRejectExtensions([]string{"png"})
	})

	execution := runCrawl(t, cfg)

	assert.Equal(t, 2, execution.Stats.PagesArchived)
	assert.Equal(t, 1, execution.Stats.PagesFailed)
	assert.Equal(t, 1, execution.Stats.PagesFiltered)

	assert.Equal(t, 0, site.hitCount("/logo.png"), "filtered URLs are never fetched")
	assert.Equal(t, 1, site.hitCount("/missing"), "terminal 404 is not retried")

	reader, err := warc.NewReader(cfg.ArchivePath())
	require.NoError(t, err)
	defer reader.Close()

	records, readErr := reader.ReadAll()
	require.NoError(t, readErr)

	var failureRecord *warc.Record
	for _, record := range records {
		if record.Type() == warc.TypeMetadata {
			failureRecord = record
		}
	}
	require.NotNil(t, failureRecord, "terminal failures are archived too")
	fields := warc.FieldsBlock(failureRecord)
	assert.Equal(t, "failed", fields["outcome"])
	assert.Equal(t, "http-4xx", fields["error-kind"])

	// The capture index agrees with the crawl summary.
	idb, dbErr := database.Open(cfg.IndexPath())
	require.NoError(t, dbErr)
	defer idb.Close()

	ctx := context.Background()
	archived, countErr := idb.CountByOutcome(ctx, database.OutcomeArchived)
	require.NoError(t, countErr)
	assert.Equal(t, 2, archived)
	failed, countErr := idb.CountByOutcome(ctx, database.OutcomeFailed)
	require.NoError(t, countErr)
	assert.Equal(t, 1, failed)
	filtered, countErr := idb.CountByOutcome(ctx, database.OutcomeFiltered)
	require.NoError(t, countErr)
	assert.Equal(t, 1, filtered)
}

func TestExecuteCrawling_FilteredURLCountedOncePerURL(t *testing.T) {
	// The same rejected target linked from two different pages must
	// produce one filtered count and one audit row, same as archived and
	// failed pages are deduplicated per URL.
	site := newTestSite(t, map[string]string{
		"/": `<html><body>
			<a href="/a">a</a>
			<a href="/skip.png">image</a>
		</body></html>`,
		"/a": `<html><body><a href="/skip.png">same image</a></body></html>`,
	})
	outDir := t.TempDir()
	cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
		return b.WithRejectExtensions([]string{"png"})
	})

	execution := runCrawl(t, cfg)

	assert.Equal(t, 2, execution.Stats.PagesArchived)
	assert.Equal(t, 1, execution.Stats.PagesFiltered)

	idb, err := database.Open(cfg.IndexPath())
	require.NoError(t, err)
	defer idb.Close()

	filtered, countErr := idb.CountByOutcome(context.Background(), database.OutcomeFiltered)
	require.NoError(t, countErr)
	assert.Equal(t, 1, filtered, "one audit row per unique filtered URL")
}

func TestExecuteCrawling_HonorsMaxDepth(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":   `<html><body><a href="/d1">next</a></body></html>`,
		"/d1": `<html><body><a href="/d2">next</a></body></html>`,
		"/d2": `<html><body><a href="/d3">next</a></body></html>`,
		"/d3": `<html><body>end</body></html>`,
	})
	outDir := t.TempDir()
	cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
		return b.WithMaxDepth(1)
	})

	execution := runCrawl(t, cfg)

	assert.Equal(t, 2, execution.Stats.PagesArchived, "seed at depth 0 plus one hop")
	assert.Equal(t, 0, site.hitCount("/d2"))
	assert.Equal(t, 0, site.hitCount("/d3"))
}

func TestExecuteCrawling_HonorsPageBudget(t *testing.T) {
	pages := map[string]string{}
	var links string
	for i := 0; i < 20; i++ {
		links += fmt.Sprintf(`<a href="/p%d">p</a>`, i)
		pages[fmt.Sprintf("/p%d", i)] = "<html><body>page</body></html>"
	}
	pages["/"] = "<html><body>" + links + "</body></html>"

	site := newTestSite(t, pages)
	outDir := t.TempDir()
	cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
		return b.WithMaxPages(5)
	})

	execution := runCrawl(t, cfg)

	assert.Equal(t, 5, execution.Stats.PagesArchived)
}

func TestExecuteCrawling_ConcurrentWorkersNoDuplicates(t *testing.T) {
	pages := map[string]string{}
	var links string
	for i := 0; i < 12; i++ {
		links += fmt.Sprintf(`<a href="/p%d">p</a>`, i)
		// Every child links to every other child: heavy duplicate discovery.
		pages[fmt.Sprintf("/p%d", i)] = "<html><body>{{links}}</body></html>"
	}
	for path := range pages {
		pages[path] = "<html><body>" + links + "</body></html>"
	}
	pages["/"] = "<html><body>" + links + "</body></html>"

	site := newTestSite(t, pages)
	outDir := t.TempDir()
	cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
		return b.WithConcurrency(4)
	})

	execution := runCrawl(t, cfg)

	assert.Equal(t, 13, execution.Stats.PagesArchived)
	for i := 0; i < 12; i++ {
		assert.Equal(t, 1, site.hitCount(fmt.Sprintf("/p%d", i)))
	}
}

func TestExecuteCrawling_CancellationLeavesReadableArchive(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/": `<html><body><a href="/a">a</a></body></html>`,
		"/a": `<html><body>leaf</body></html>`,
	})
	outDir := t.TempDir()
	cfg := fastConfig(t, site.seedURL(t), outDir, nil)

	s, err := scheduler.NewScheduler(cfg, &metadata.NoopSink{}, &metadata.NoopSink{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	execution, runErr := s.ExecuteCrawling(ctx)
	require.NoError(t, runErr, "cancellation is a normal termination, not an error")
	require.NoError(t, s.Close())

	assert.Equal(t, 0, execution.Stats.PagesArchived)

	reader, readErr := warc.NewReader(cfg.ArchivePath())
	require.NoError(t, readErr)
	defer reader.Close()

	records, readAllErr := reader.ReadAll()
	require.NoError(t, readAllErr, "interrupted archive must stay valid")
	require.Len(t, records, 1)
	assert.Equal(t, warc.TypeWarcinfo, records[0].Type())
}

func TestExecuteCrawling_CancelledFetchIsNotAFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	t.Cleanup(server.Close)
	// unblock the handler before the server's own cleanup waits on it
	t.Cleanup(func() { close(release) })

	seed, err := url.Parse(server.URL + "/")
	require.NoError(t, err)

	outDir := t.TempDir()
	cfg := fastConfig(t, *seed, outDir, nil)

	s, err := scheduler.NewScheduler(cfg, &metadata.NoopSink{}, &metadata.NoopSink{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	execution, runErr := s.ExecuteCrawling(ctx)
	require.NoError(t, runErr)
	require.NoError(t, s.Close())

	assert.Equal(t, 0, execution.Stats.PagesFailed, "an operator stop is not a fetch failure")

	reader, readErr := warc.NewReader(cfg.ArchivePath())
	require.NoError(t, readErr)
	defer reader.Close()

	records, readAllErr := reader.ReadAll()
	require.NoError(t, readAllErr)
	for _, record := range records {
		assert.NotEqual(t, warc.TypeMetadata, record.Type(), "no failure record for a cancelled fetch")
	}
}

func TestExecuteCrawling_DryRunWritesNothing(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":  `<html><body><a href="/a">a</a></body></html>`,
		"/a": `<html><body>leaf</body></html>`,
	})
	outDir := t.TempDir()
	cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
		return b.WithDryRun(true)
	})

	execution := runCrawl(t, cfg)

	assert.Equal(t, 2, execution.Stats.PagesArchived, "dry run still crawls")
	_, statErr := os.Stat(cfg.ArchivePath())
	assert.True(t, os.IsNotExist(statErr), "dry run must not create the archive")
}

func TestExecuteCrawling_MirrorRewritesCrawledLinks(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":  `<html><body><a href="/a">a</a><a href="https://external.invalid/x">ext</a></body></html>`,
		"/a": `<html><body>leaf</body></html>`,
	})
	outDir := t.TempDir()
	mirrorDir := filepath.Join(outDir, "mirror")
	cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
		return b.WithMirrorDir(mirrorDir).
			WithAllowedHosts(map[string]struct{}{site.seedURL(t).Host: {}})
	})

	execution := runCrawl(t, cfg)
	assert.Equal(t, 2, execution.Stats.PagesArchived)

	entries, err := os.ReadDir(mirrorDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one mirror file per archived page")
}

func TestExecuteCrawling_PartialMirrorKeepsUnfetchedLinksAbsolute(t *testing.T) {
	// With a page budget of 1 only the seed is archived; its links to /a
	// and /b were admitted but never fetched, so the mirror must leave
	// them untouched instead of pointing at files that were never written.
	site := newTestSite(t, map[string]string{
		"/":  `<html><body><a href="/a">a</a><a href="/b">b</a></body></html>`,
		"/a": `<html><body>leaf</body></html>`,
		"/b": `<html><body>leaf</body></html>`,
	})
	outDir := t.TempDir()
	mirrorDir := filepath.Join(outDir, "mirror")
	cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
		return b.WithMaxPages(1).WithMirrorDir(mirrorDir)
	})

	execution := runCrawl(t, cfg)
	require.Equal(t, 1, execution.Stats.PagesArchived)

	entries, err := os.ReadDir(mirrorDir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "only the archived page is mirrored")

	content, readErr := os.ReadFile(filepath.Join(mirrorDir, entries[0].Name()))
	require.NoError(t, readErr)
	assert.Contains(t, string(content), `href="/a"`, "unarchived link must stay as-is")
	assert.Contains(t, string(content), `href="/b"`, "unarchived link must stay as-is")
}

func TestExecuteCrawling_SameSiteYieldsSameArchivedSet(t *testing.T) {
	site := newTestSite(t, map[string]string{
		"/":  `<html><body><a href="/a">a</a><a href="/b">b</a><a href="/skip.png">img</a></body></html>`,
		"/a": `<html><body><a href="/c">c</a></body></html>`,
		"/b": `<html><body>leaf</body></html>`,
		"/c": `<html><body>leaf</body></html>`,
	})

	archivedURLs := func(outDir string) []string {
		cfg := fastConfig(t, site.seedURL(t), outDir, func(b *config.Config) *config.Config {
			return b.WithRejectExtensions([]string{"png"})
		})
		runCrawl(t, cfg)

		idb, err := database.Open(cfg.IndexPath())
		require.NoError(t, err)
		defer idb.Close()

		rows, listErr := idb.ListCaptures(context.Background(), database.OutcomeArchived)
		require.NoError(t, listErr)
		urls := make([]string, 0, len(rows))
		for _, row := range rows {
			urls = append(urls, row.URL)
		}
		sort.Strings(urls)
		return urls
	}

	first := archivedURLs(t.TempDir())
	second := archivedURLs(t.TempDir())
	assert.Equal(t, first, second, "unchanged site must archive the same URL set")
}

func TestExecuteCrawling_RetriesTransientFailures(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		flaky := attempts == 1
		mu.Unlock()
		if flaky {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>recovered</body></html>"))
	}))
	defer server.Close()

	seed, err := url.Parse(server.URL + "/")
	require.NoError(t, err)

	outDir := t.TempDir()
	cfg := fastConfig(t, *seed, outDir, nil)

	execution := runCrawl(t, cfg)

	assert.Equal(t, 1, execution.Stats.PagesArchived, "transient 500 then success is archived")
	assert.Equal(t, 0, execution.Stats.PagesFailed)
}
