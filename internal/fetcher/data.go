package fetcher

import (
	"net/url"
	"strings"
)

// HTTP boundary

type FetchParam struct {
	fetchUrl  url.URL
	userAgent string
}

func NewFetchParam(fetchUrl url.URL, userAgent string) FetchParam {
	return FetchParam{
		fetchUrl:  fetchUrl,
		userAgent: userAgent,
	}
}

type FetchResult struct {
	url      url.URL
	body     []byte
	meta     ResponseMeta
	attempts int
}

func (f *FetchResult) URL() url.URL {
	return f.url
}

func (f *FetchResult) Body() []byte {
	return f.body
}

func (f *FetchResult) Code() int {
	return f.meta.statusCode
}

func (f *FetchResult) Proto() string {
	return f.meta.proto
}

func (f *FetchResult) SizeByte() uint64 {
	return f.meta.transferredSizeByte
}

func (f *FetchResult) Headers() map[string]string {
	return f.meta.responseHeaders
}

// Attempts reports how many fetch attempts the successful result took.
func (f *FetchResult) Attempts() int {
	return f.attempts
}

func (f *FetchResult) ContentType() string {
	if ct, ok := f.meta.responseHeaders["Content-Type"]; ok {
		return ct
	}
	return ""
}

// IsHTML reports whether the response carries an HTML body worth scanning
// for links. Non-HTML captures are archived but never parsed.
func (f *FetchResult) IsHTML() bool {
	contentType := strings.ToLower(f.ContentType())
	return strings.Contains(contentType, "text/html") ||
		strings.Contains(contentType, "application/xhtml")
}

type ResponseMeta struct {
	statusCode          int
	proto               string
	transferredSizeByte uint64
	responseHeaders     map[string]string
}

// NewFetchResultForTest creates a FetchResult for testing purposes.
// This allows test packages to construct FetchResult values without
// accessing unexported fields directly.
func NewFetchResultForTest(
	url url.URL,
	body []byte,
	statusCode int,
	transferredSizeByte uint64,
	responseHeaders map[string]string,
) FetchResult {
	return FetchResult{
		url:  url,
		body: body,
		meta: ResponseMeta{
			statusCode:          statusCode,
			proto:               "HTTP/1.1",
			transferredSizeByte: transferredSizeByte,
			responseHeaders:     responseHeaders,
		},
		attempts: 1,
	}
}
