package scheduler

import (
	"context"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rohmanhakim/site-archiver/internal/config"
	"github.com/rohmanhakim/site-archiver/internal/database"
	"github.com/rohmanhakim/site-archiver/internal/extractor"
	"github.com/rohmanhakim/site-archiver/internal/fetcher"
	"github.com/rohmanhakim/site-archiver/internal/frontier"
	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/internal/normalize"
	"github.com/rohmanhakim/site-archiver/internal/storage"
	"github.com/rohmanhakim/site-archiver/internal/warc"
	"github.com/rohmanhakim/site-archiver/pkg/failure"
	"github.com/rohmanhakim/site-archiver/pkg/hashutil"
	"github.com/rohmanhakim/site-archiver/pkg/limiter"
	"github.com/rohmanhakim/site-archiver/pkg/retry"
	"github.com/rohmanhakim/site-archiver/pkg/timeutil"
)

/*
 Scheduler is the sole control-plane authority of the crawl.

 Determinism and admission guarantees:
 - Scheduler is the ONLY component allowed to decide whether a URL
   may enter the crawl frontier.
 - All semantic admission checks (normalization, scope, filter patterns)
   MUST be completed before submitting a URL to the frontier.
 - No other component may enqueue, reject, or reorder URLs.
 - The frontier only applies its own mechanical duties: dedup, depth
   cap, page budget.
 - Pipeline stages may detect and classify failure, but must never decide
   retry, continuation, or abortion.

 Entry lifecycle: queued -> fetching -> {archived, failed}.
 Terminal entries are never retried.

 Metadata emission is observational only and MUST NOT influence
 scheduling, retries, or crawl termination.
*/

type Scheduler struct {
	metadataSink   metadata.MetadataSink
	crawlFinalizer metadata.CrawlFinalizer
	frontier       *frontier.Frontier
	htmlFetcher    fetcher.Fetcher
	domExtractor   extractor.DomExtractor
	policy         normalize.Policy
	rateLimiter    *limiter.ConcurrentRateLimiter
	archive        *warc.Writer
	mirrorSink     storage.MirrorSink
	indexDB        *database.IndexDB
	cfg            config.Config
	retryParam     retry.RetryParam

	statsMu       sync.Mutex
	pagesArchived int
	pagesFailed   int
	pagesFiltered int

	// crawl bookkeeping beyond the frontier's seen set: which URLs were
	// actually archived (and whether as HTML), which rejected URLs were
	// already counted, and the captures awaiting the mirror pass.
	stateMu       sync.Mutex
	archivedPages map[string]bool
	filteredURLs  map[string]struct{}
	mirrorPending []storage.PageCapture
}

// NewScheduler wires the crawl pipeline from configuration. It opens the
// archive and the capture index, both of which are startup-fatal when
// they cannot be created (an unwritable archive makes the crawl pointless).
// In dry-run mode no output is opened and no bytes are persisted.
func NewScheduler(
	cfg config.Config,
	metadataSink metadata.MetadataSink,
	crawlFinalizer metadata.CrawlFinalizer,
) (*Scheduler, error) {
	httpFetcher := fetcher.NewHTTPFetcher(metadataSink, cfg.Timeout(), cfg.InsecureTLS())
	domExtractor := extractor.NewDomExtractor(metadataSink, cfg.LinkAttributes())

	rateLimiter := limiter.NewConcurrentRateLimiter()
	rateLimiter.SetBaseDelay(cfg.BaseDelay())
	rateLimiter.SetJitter(cfg.Jitter())
	rateLimiter.SetRandomSeed(cfg.RandomSeed())

	s := &Scheduler{
		metadataSink:   metadataSink,
		crawlFinalizer: crawlFinalizer,
		frontier:       frontier.NewFrontier(cfg.MaxDepth(), cfg.MaxPages()),
		htmlFetcher:    &httpFetcher,
		domExtractor:   domExtractor,
		policy:         normalize.NewPolicy(cfg),
		rateLimiter:    rateLimiter,
		mirrorSink:     storage.NewMirrorSink(metadataSink),
		cfg:            cfg,
		archivedPages:  make(map[string]bool),
		filteredURLs:   make(map[string]struct{}),
		retryParam: retry.NewRetryParam(
			cfg.Jitter(),
			cfg.RandomSeed(),
			cfg.MaxAttempt(),
			timeutil.NewBackoffParam(
				cfg.BackoffInitialDuration(),
				cfg.BackoffMultiplier(),
				cfg.BackoffMaxDuration(),
			),
		),
	}

	if cfg.DryRun() {
		return s, nil
	}

	archive, archiveErr := warc.NewWriter(cfg.ArchivePath(), warc.WriterOptions{
		Compress: cfg.CompressArchive(),
		Software: cfg.UserAgent(),
	})
	if archiveErr != nil {
		return nil, archiveErr
	}
	s.archive = archive

	indexPath := cfg.IndexPath()
	if indexPath == "" {
		indexPath = cfg.ArchivePath() + ".db"
	}
	indexDB, err := database.Open(indexPath)
	if err != nil {
		_ = archive.Close()
		return nil, err
	}
	s.indexDB = indexDB

	return s, nil
}

// Close flushes and releases the crawl outputs. The archive is valid at
// every record boundary, so closing mid-crawl leaves a readable file.
func (s *Scheduler) Close() error {
	var firstErr error
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			firstErr = err
		}
	}
	if s.indexDB != nil {
		if err := s.indexDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// SubmitURLForAdmission performs all semantic checks required for a URL
// to enter the crawl frontier.
//
// This function is the single admission choke point for the system.
// - Only the scheduler constructs CrawlAdmissionCandidate
// - Pipeline stages never see frontier types
//
// A policy rejection is a normal, terminal outcome: counted as filtered,
// never an error.
func (s *Scheduler) SubmitURLForAdmission(
	raw string,
	base url.URL,
	source frontier.SourceContext,
	depth int,
	discoveredOn string,
) failure.ClassifiedError {
	normalized, err := normalize.Normalize(raw, base)
	if err != nil {
		return err
	}

	accepted, reason := s.policy.Accept(normalized)
	if !accepted {
		s.metadataSink.RecordFilterReject(normalized.String(), reason)
		// Rejected URLs never enter the frontier, so remember them here:
		// the filtered count and the index row are per unique URL, no
		// matter how many pages link to the same rejected target.
		if s.markFiltered(normalized.String()) {
			s.countFiltered()
			s.recordIndex(database.CaptureRow{
				URL:        normalized.String(),
				Depth:      depth,
				Outcome:    database.OutcomeFiltered,
				ErrorKind:  reason,
				RecordedAt: time.Now(),
			})
		}
		return nil
	}

	candidate := frontier.NewCrawlAdmissionCandidate(normalized, source, depth, discoveredOn)
	s.frontier.Submit(candidate)
	return nil
}

// ExecuteCrawling drives the crawl to completion: frontier exhausted, page
// budget reached, or context cancelled. Per-URL failures never unwind this
// loop; the only error returns are startup-shaped (no admissible seeds).
func (s *Scheduler) ExecuteCrawling(ctx context.Context) (CrawlingExecution, error) {
	crawlStartTime := time.Now()

	// Ensure final stats are recorded even if the crawl aborts.
	defer func() {
		s.statsMu.Lock()
		archived, failed, filtered := s.pagesArchived, s.pagesFailed, s.pagesFiltered
		s.statsMu.Unlock()
		s.crawlFinalizer.RecordFinalCrawlStats(
			archived,
			failed,
			filtered,
			time.Since(crawlStartTime),
		)
	}()

	for _, seed := range s.cfg.SeedURLs() {
		if err := s.SubmitURLForAdmission(seed.String(), seed, frontier.SourceSeed, 0, ""); err != nil {
			return CrawlingExecution{}, err
		}
	}

	if s.cfg.Concurrency() <= 1 {
		s.executeSequential(ctx)
	} else {
		s.executeConcurrent(ctx)
	}

	// Mirror output is written after the crawl so link rewriting can
	// consult the set of pages that were actually archived. A crawl cut
	// short by the page budget or a cancellation then leaves absolute
	// links instead of links to files that were never written.
	s.flushMirror()

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return CrawlingExecution{
		Stats: CrawlStats{
			PagesArchived: s.pagesArchived,
			PagesFailed:   s.pagesFailed,
			PagesFiltered: s.pagesFiltered,
			Duration:      time.Since(crawlStartTime),
		},
	}, nil
}

func (s *Scheduler) executeSequential(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		token, ok := s.frontier.Dequeue()
		if !ok {
			return
		}
		s.processToken(ctx, token)
	}
}

// executeConcurrent processes the frontier in waves: every token queued at
// the start of a wave is fetched by a bounded worker group, then the links
// those fetches admitted form the next wave. Waves preserve breadth-first
// order; the frontier's atomic admission and the archive's writer lock do
// the rest.
func (s *Scheduler) executeConcurrent(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		var wave []frontier.CrawlToken
		for {
			token, ok := s.frontier.Dequeue()
			if !ok {
				break
			}
			wave = append(wave, token)
		}
		if len(wave) == 0 {
			return
		}

		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(s.cfg.Concurrency())
		for _, token := range wave {
			token := token
			group.Go(func() error {
				if groupCtx.Err() != nil {
					return nil
				}
				s.processToken(groupCtx, token)
				return nil
			})
		}
		// Workers never return errors; per-URL failures are contained.
		_ = group.Wait()
	}
}

// processToken runs one frontier entry through fetch, archive, extract,
// admit, and mirror. Every path out of this function leaves the entry in a
// terminal state: archived or failed.
func (s *Scheduler) processToken(ctx context.Context, token frontier.CrawlToken) {
	pageURL := token.URL()
	host := pageURL.Host

	if err := s.rateLimiter.Wait(ctx, host); err != nil {
		// Cancelled while waiting: the entry was never fetched, nothing to record.
		return
	}
	s.rateLimiter.MarkLastFetchAsNow(host)

	fetchParam := fetcher.NewFetchParam(pageURL, s.cfg.UserAgent())
	result, fetchErr := s.htmlFetcher.Fetch(ctx, token.Depth(), fetchParam, s.retryParam)
	if fetchErr != nil {
		if ctx.Err() != nil {
			// Crawl cancelled mid-fetch: the URL did not fail, the
			// operator stopped the crawl. No failure record, no backoff.
			return
		}
		s.rateLimiter.Backoff(host)
		s.recordFailure(pageURL, token.Depth(), fetchErr)
		return
	}
	s.rateLimiter.ResetBackoff(host)

	s.recordSuccess(pageURL, token.Depth(), &result)

	if result.IsHTML() {
		candidates, extractErr := s.domExtractor.Extract(pageURL, result.Body())
		if extractErr != nil {
			// Per-page parse failure: the capture is already archived,
			// only this page's links are lost.
			candidates = nil
		}
		for _, candidate := range candidates {
			submissionErr := s.SubmitURLForAdmission(
				candidate.Raw,
				pageURL,
				frontier.SourceCrawl,
				token.Depth()+1,
				pageURL.String(),
			)
			if submissionErr != nil {
				// Unparsable discovered reference: skip it, keep the rest.
				continue
			}
		}
	}

	if s.cfg.MirrorDir() != "" && !s.cfg.DryRun() {
		capture := storage.PageCapture{
			URL:    pageURL,
			Body:   result.Body(),
			IsHTML: result.IsHTML(),
		}
		// Captures are held until the crawl ends; flushMirror writes the
		// mirror once the archived set is final.
		s.stateMu.Lock()
		s.mirrorPending = append(s.mirrorPending, capture)
		s.stateMu.Unlock()
	}
}

// markFiltered records a policy-rejected URL, returning true the first
// time that URL is seen.
func (s *Scheduler) markFiltered(rawURL string) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if _, counted := s.filteredURLs[rawURL]; counted {
		return false
	}
	s.filteredURLs[rawURL] = struct{}{}
	return true
}

func (s *Scheduler) markArchived(rawURL string, isHTML bool) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	s.archivedPages[rawURL] = isHTML
}

// flushMirror writes the pending captures, rewriting links against the
// URLs this crawl actually archived.
func (s *Scheduler) flushMirror() {
	if s.cfg.MirrorDir() == "" || s.cfg.DryRun() {
		return
	}

	s.stateMu.Lock()
	pending := s.mirrorPending
	s.mirrorPending = nil
	s.stateMu.Unlock()

	resolve := func(target url.URL) (bool, bool) {
		s.stateMu.Lock()
		defer s.stateMu.Unlock()
		isHTML, archived := s.archivedPages[target.String()]
		return archived, isHTML
	}
	for _, capture := range pending {
		// Mirror write failures are recorded by the sink; the archive is
		// the authoritative output and is already complete here.
		_, _ = s.mirrorSink.Write(s.cfg.MirrorDir(), capture, resolve)
	}
}

func (s *Scheduler) recordSuccess(pageURL url.URL, depth int, result *fetcher.FetchResult) {
	s.countArchived()
	s.markArchived(pageURL.String(), result.IsHTML())

	if s.cfg.DryRun() {
		return
	}

	capture := warc.Capture{
		TargetURI:  pageURL,
		Proto:      result.Proto(),
		StatusCode: result.Code(),
		Headers:    result.Headers(),
		Body:       result.Body(),
	}
	info, err := s.archive.WriteResponse(capture, time.Now())
	if err != nil {
		// Fatal to that record only: recorded, crawl continues.
		s.recordArchiveError(pageURL, err)
	} else {
		s.metadataSink.RecordArtifact(
			metadata.ArtifactWARCRecord,
			s.archive.Path(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, pageURL.String()),
				metadata.NewAttr(metadata.AttrField, info.RecordID()),
			},
		)
	}

	digest, digestErr := hashutil.HashBytes(result.Body(), hashutil.HashAlgoSHA256)
	if digestErr != nil {
		digest = ""
	}
	s.recordIndex(database.CaptureRow{
		URL:        pageURL.String(),
		Depth:      depth,
		StatusCode: result.Code(),
		Outcome:    database.OutcomeArchived,
		BodyDigest: digest,
		RecordedAt: time.Now(),
	})
}

func (s *Scheduler) recordFailure(pageURL url.URL, depth int, fetchErr failure.ClassifiedError) {
	s.countFailed()

	errorKind := "unknown"
	attempts := s.cfg.MaxAttempt()
	if classified, ok := fetchErr.(*fetcher.FetchError); ok {
		errorKind = string(classified.Cause)
		if classified.Attempts > 0 {
			attempts = classified.Attempts
		}
	}

	if !s.cfg.DryRun() {
		if _, err := s.archive.WriteFailure(pageURL, errorKind, attempts, time.Now()); err != nil {
			s.recordArchiveError(pageURL, err)
		}
	}

	s.recordIndex(database.CaptureRow{
		URL:        pageURL.String(),
		Depth:      depth,
		Outcome:    database.OutcomeFailed,
		ErrorKind:  errorKind,
		RecordedAt: time.Now(),
	})
}

func (s *Scheduler) recordArchiveError(pageURL url.URL, err failure.ClassifiedError) {
	s.metadataSink.RecordError(
		time.Now(),
		"warc",
		"Writer.Write",
		metadata.CauseStorageFailure,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, pageURL.String()),
		},
	)
}

func (s *Scheduler) recordIndex(row database.CaptureRow) {
	if s.indexDB == nil {
		return
	}
	if err := s.indexDB.RecordCapture(context.Background(), row); err != nil {
		s.metadataSink.RecordError(
			time.Now(),
			"database",
			"IndexDB.RecordCapture",
			metadata.CauseStorageFailure,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, row.URL),
			},
		)
	}
}

func (s *Scheduler) countArchived() {
	s.statsMu.Lock()
	s.pagesArchived++
	s.statsMu.Unlock()
}

func (s *Scheduler) countFailed() {
	s.statsMu.Lock()
	s.pagesFailed++
	s.statsMu.Unlock()
}

func (s *Scheduler) countFiltered() {
	s.statsMu.Lock()
	s.pagesFiltered++
	s.statsMu.Unlock()
}

// FrontierVisitedCount returns the number of URLs ever admitted.
// Exposed for tests and the CLI summary.
func (s *Scheduler) FrontierVisitedCount() int {
	return s.frontier.VisitedCount()
}
