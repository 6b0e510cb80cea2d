package frontier

import (
	"net/url"
)

// Crawl state & ordering

type SourceContext string

const (
	SourceSeed  SourceContext = "Seed"
	SourceCrawl SourceContext = "Crawl"
)

// CrawlAdmissionCandidate represents a URL that has already been
// admitted by the scheduler.
//
// Invariants:
// - Normalization and scope filtering have passed
// - Frontier MUST treat this as an admitted URL
// - Frontier MUST NOT re-evaluate admission semantics beyond its own
//   mechanical duties (dedup, depth cap, page budget)
type CrawlAdmissionCandidate struct {
	targetURL     url.URL // Frontier MUST assume this URL is already admitted.
	sourceContext SourceContext
	depth         int
	discoveredOn  string // URL of the page the candidate was found on; empty for seeds
}

func NewCrawlAdmissionCandidate(
	targetUrl url.URL,
	sourceContext SourceContext,
	depth int,
	discoveredOn string,
) CrawlAdmissionCandidate {
	return CrawlAdmissionCandidate{
		targetURL:     targetUrl,
		sourceContext: sourceContext,
		depth:         depth,
		discoveredOn:  discoveredOn,
	}
}

// CrawlToken is a dequeued unit of work. A token is handed out at most
// once per URL for the lifetime of the crawl.
type CrawlToken struct {
	url          url.URL
	depth        int
	source       SourceContext
	discoveredOn string
}

func (t *CrawlToken) URL() url.URL {
	return t.url
}

func (t *CrawlToken) Depth() int {
	return t.depth
}

func (t *CrawlToken) Source() SourceContext {
	return t.source
}

func (t *CrawlToken) DiscoveredOn() string {
	return t.discoveredOn
}
