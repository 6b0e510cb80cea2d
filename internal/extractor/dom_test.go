package extractor_test

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohmanhakim/site-archiver/internal/extractor"
	"github.com/rohmanhakim/site-archiver/internal/metadata"
)

func pageURL(t *testing.T) url.URL {
	t.Helper()
	u, err := url.Parse("https://example.com/docs/")
	require.NoError(t, err)
	return *u
}

func newExtractor(attributes []string) extractor.DomExtractor {
	return extractor.NewDomExtractor(&metadata.NoopSink{}, attributes)
}

func rawValues(candidates []extractor.Candidate) []string {
	values := make([]string, 0, len(candidates))
	for _, c := range candidates {
		values = append(values, c.Raw)
	}
	return values
}

func TestExtract_FindsAnchorsInDocumentOrder(t *testing.T) {
	htmlDoc := []byte(`<html><body>
		<a href="/first">one</a>
		<p><a href="second">two</a></p>
		<div><a href="https://other.com/third">three</a></div>
	</body></html>`)

	d := newExtractor(nil)
	candidates, err := d.Extract(pageURL(t), htmlDoc)

	require.Nil(t, err)
	assert.Equal(t, []string{"/first", "second", "https://other.com/third"}, rawValues(candidates))
	for _, c := range candidates {
		assert.Equal(t, "href", c.Attribute)
	}
}

func TestExtract_SkipsEmptyAndWhitespaceHrefs(t *testing.T) {
	htmlDoc := []byte(`<html><body>
		<a href="">empty</a>
		<a href="   ">blank</a>
		<a href="/real">real</a>
		<a>no attribute</a>
	</body></html>`)

	d := newExtractor(nil)
	candidates, err := d.Extract(pageURL(t), htmlDoc)

	require.Nil(t, err)
	assert.Equal(t, []string{"/real"}, rawValues(candidates))
}

func TestExtract_ToleratesMalformedHTML(t *testing.T) {
	// Unclosed tags, stray brackets, nested anchors: html.Parse repairs all
	// of it into a best-effort tree.
	htmlDoc := []byte(`<html><body>
		<a href="/ok">unclosed
		<div><a href="/also-ok">nested</div>
		<<<garbage>>>
	`)

	d := newExtractor(nil)
	candidates, err := d.Extract(pageURL(t), htmlDoc)

	require.Nil(t, err)
	assert.Contains(t, rawValues(candidates), "/ok")
	assert.Contains(t, rawValues(candidates), "/also-ok")
}

func TestExtract_EmptyBodyIsAnError(t *testing.T) {
	d := newExtractor(nil)

	for _, body := range [][]byte{nil, {}, []byte("   \n\t  ")} {
		_, err := d.Extract(pageURL(t), body)
		require.NotNil(t, err)

		var extractionErr *extractor.ExtractionError
		require.ErrorAs(t, err, &extractionErr)
		assert.Equal(t, extractor.ErrCauseEmptyBody, extractionErr.Cause)
	}
}

func TestExtract_WidenedAttributesCoverEmbeddedResources(t *testing.T) {
	htmlDoc := []byte(`<html><body>
		<a href="/page">link</a>
		<img src="/logo.png">
		<script src="/app.js"></script>
	</body></html>`)

	d := newExtractor([]string{"href", "src"})
	candidates, err := d.Extract(pageURL(t), htmlDoc)

	require.Nil(t, err)
	values := rawValues(candidates)
	assert.Contains(t, values, "/page")
	assert.Contains(t, values, "/logo.png")
	assert.Contains(t, values, "/app.js")
}

func TestExtract_HrefOnlyScansAnchors(t *testing.T) {
	// link[href] and area[href] exist in the document, but the default
	// href attribute scan is anchor-only.
	htmlDoc := []byte(`<html><head>
		<link href="/style.css" rel="stylesheet">
	</head><body>
		<a href="/page">link</a>
	</body></html>`)

	d := newExtractor([]string{"href"})
	candidates, err := d.Extract(pageURL(t), htmlDoc)

	require.Nil(t, err)
	assert.Equal(t, []string{"/page"}, rawValues(candidates))
}

func TestExtract_DuplicateReferencesAreKept(t *testing.T) {
	// Deduplication belongs to the frontier, not the extractor.
	htmlDoc := []byte(`<html><body>
		<a href="/same">one</a>
		<a href="/same">two</a>
	</body></html>`)

	d := newExtractor(nil)
	candidates, err := d.Extract(pageURL(t), htmlDoc)

	require.Nil(t, err)
	assert.Equal(t, []string{"/same", "/same"}, rawValues(candidates))
}
