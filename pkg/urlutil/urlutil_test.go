package urlutil_test

import (
	"net/url"
	"testing"

	"github.com/rohmanhakim/site-archiver/pkg/urlutil"
)

func mustParse(t *testing.T, raw string) url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse %s: %v", raw, err)
	}
	return *u
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercases scheme and host",
			input:    "HTTPS://Example.COM/Docs",
			expected: "https://example.com/Docs",
		},
		{
			name:     "strips default http port",
			input:    "http://example.com:80/page",
			expected: "http://example.com/page",
		},
		{
			name:     "strips default https port",
			input:    "https://example.com:443/page",
			expected: "https://example.com/page",
		},
		{
			name:     "keeps non-default port",
			input:    "http://example.com:8080/page",
			expected: "http://example.com:8080/page",
		},
		{
			name:     "strips trailing slash",
			input:    "https://example.com/docs/",
			expected: "https://example.com/docs",
		},
		{
			name:     "keeps root slash",
			input:    "https://example.com/",
			expected: "https://example.com/",
		},
		{
			name:     "removes fragment",
			input:    "https://example.com/page#section-2",
			expected: "https://example.com/page",
		},
		{
			name:     "preserves query string",
			input:    "https://example.com/search?q=warc&page=2",
			expected: "https://example.com/search?q=warc&page=2",
		},
		{
			name:     "path case is preserved",
			input:    "https://example.com/Docs/API",
			expected: "https://example.com/Docs/API",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := mustParse(t, tt.input)
			got := urlutil.Canonicalize(input)
			if got.String() != tt.expected {
				t.Errorf("Canonicalize(%s) = %s, want %s", tt.input, got.String(), tt.expected)
			}
		})
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	inputs := []string{
		"HTTPS://Example.COM:443/Docs/#frag",
		"http://example.com/a/b/?x=1",
		"https://example.com",
	}
	for _, raw := range inputs {
		input := mustParse(t, raw)
		once := urlutil.Canonicalize(input)
		twice := urlutil.Canonicalize(once)
		if once.String() != twice.String() {
			t.Errorf("not idempotent for %s: first %s, second %s", raw, once.String(), twice.String())
		}
	}
}

func TestCanonicalize_DoesNotMutateInput(t *testing.T) {
	input := mustParse(t, "HTTPS://Example.COM/docs/")
	before := input.String()
	urlutil.Canonicalize(input)
	if input.String() != before {
		t.Errorf("input mutated: was %s, now %s", before, input.String())
	}
}

func TestCanonicalize_QueryDistinguishesCaptures(t *testing.T) {
	a := urlutil.Canonicalize(mustParse(t, "https://example.com/page?id=1"))
	b := urlutil.Canonicalize(mustParse(t, "https://example.com/page?id=2"))
	if a.String() == b.String() {
		t.Errorf("URLs differing only in query must stay distinct, both canonicalized to %s", a.String())
	}
}
