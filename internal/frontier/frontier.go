package frontier

import (
	"sync"
)

/*
Frontier Responsibilities
- Maintain BFS ordering
- Deduplicate URLs
- Track crawl depth
- Prevent infinite traversal
- Knows nothing about:
	- fetching
	- extraction
	- archiving

It is a data structure + policy module, not a pipeline executor.

The seen-check and enqueue happen inside one mutex region, so two
concurrent workers can never both admit the same URL.
*/

type Frontier struct {
	mu       sync.Mutex
	queue    *FIFOQueue[CrawlToken]
	seen     Set[string]
	maxDepth int
	maxPages int
	admitted int
}

// NewFrontier creates a frontier bounded by maxDepth hops and, when
// maxPages > 0, a total admission budget.
func NewFrontier(maxDepth int, maxPages int) *Frontier {
	return &Frontier{
		queue:    NewFIFOQueue[CrawlToken](),
		seen:     NewSet[string](),
		maxDepth: maxDepth,
		maxPages: maxPages,
	}
}

// Submit admits a candidate into the queue. It is a no-op when the URL
// has been seen before, its depth exceeds the configured maximum, or the
// page budget is exhausted. Returns whether the candidate was admitted.
func (f *Frontier) Submit(candidate CrawlAdmissionCandidate) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if candidate.depth > f.maxDepth {
		return false
	}
	if f.maxPages > 0 && f.admitted >= f.maxPages {
		return false
	}

	key := candidate.targetURL.String()
	if f.seen.Contains(key) {
		return false
	}

	f.seen.Add(key)
	f.admitted++
	f.queue.Enqueue(CrawlToken{
		url:          candidate.targetURL,
		depth:        candidate.depth,
		source:       candidate.sourceContext,
		discoveredOn: candidate.discoveredOn,
	})
	return true
}

// Dequeue pops the next token in BFS order. The second return value is
// false when the frontier is exhausted.
func (f *Frontier) Dequeue() (CrawlToken, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.queue.Dequeue()
}

// Seen reports whether the URL has ever been admitted.
func (f *Frontier) Seen(rawUrl string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.seen.Contains(rawUrl)
}

// VisitedCount returns the number of URLs ever admitted.
func (f *Frontier) VisitedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.seen.Size()
}

// PendingCount returns the number of tokens waiting in the queue.
func (f *Frontier) PendingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.queue.Size()
}
