package scheduler

import "time"

// CrawlStats is the terminal, derived summary of a completed crawl.
// Archived counts every capture committed to the archive (successes and
// recorded terminal failures both leave one record; Failed counts the
// latter separately). Filtered counts discovered links rejected by scope
// or pattern policy before fetching.
type CrawlStats struct {
	PagesArchived int
	PagesFailed   int
	PagesFiltered int
	Duration      time.Duration
}

// CrawlingExecution is the result of one full crawl run.
type CrawlingExecution struct {
	Stats CrawlStats
}
