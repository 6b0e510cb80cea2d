package storage

import "net/url"

// Persistence

// PageCapture is the slice of a fetch result the mirror needs.
type PageCapture struct {
	URL    url.URL
	Body   []byte
	IsHTML bool
}

type WriteResult struct {
	urlHash  string // identity (filename without extension)
	path     string
	rewrites int // number of links rewritten to local paths
}

func NewWriteResult(
	urlHash string,
	path string,
	rewrites int,
) WriteResult {
	return WriteResult{
		urlHash:  urlHash,
		path:     path,
		rewrites: rewrites,
	}
}

func (w *WriteResult) URLHash() string {
	return w.urlHash
}

func (w *WriteResult) Path() string {
	return w.path
}

func (w *WriteResult) Rewrites() int {
	return w.rewrites
}
