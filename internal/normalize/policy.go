package normalize

import (
	"net/url"
	"strings"

	"github.com/rohmanhakim/site-archiver/internal/config"
)

// Reject reasons surfaced to the metadata layer and crawl summary.
const (
	RejectReasonScheme       = "non-http(s) scheme"
	RejectReasonExtension    = "rejected extension"
	RejectReasonQueryPattern = "rejected query pattern"
	RejectReasonHostScope    = "host out of scope"
	RejectReasonPathScope    = "path out of scope"
)

// Policy decides whether a normalized URL is inside the crawl scope.
// It holds only immutable configuration; Accept is pure.
type Policy struct {
	allowedHosts        map[string]struct{}
	allowedPathPrefix   []string
	rejectExtensions    []string
	rejectQueryPatterns []string
}

func NewPolicy(cfg config.Config) Policy {
	exts := make([]string, 0, len(cfg.RejectExtensions()))
	for _, ext := range cfg.RejectExtensions() {
		normalized := strings.ToLower(strings.TrimPrefix(ext, "."))
		if normalized != "" {
			exts = append(exts, "."+normalized)
		}
	}
	return Policy{
		allowedHosts:        cfg.AllowedHosts(),
		allowedPathPrefix:   cfg.AllowedPathPrefix(),
		rejectExtensions:    exts,
		rejectQueryPatterns: cfg.RejectQueryPatterns(),
	}
}

// Accept reports whether the URL is in crawl scope. When it is not, the
// second return value names the reject reason.
func (p *Policy) Accept(u url.URL) (bool, string) {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false, RejectReasonScheme
	}

	lowerPath := strings.ToLower(u.Path)
	for _, ext := range p.rejectExtensions {
		if strings.HasSuffix(lowerPath, ext) {
			return false, RejectReasonExtension
		}
	}

	if u.RawQuery != "" {
		for _, pattern := range p.rejectQueryPatterns {
			if pattern != "" && strings.Contains(u.RawQuery, pattern) {
				return false, RejectReasonQueryPattern
			}
		}
	}

	// Empty allowedHosts means unrestricted cross-host crawling.
	if len(p.allowedHosts) > 0 {
		if _, ok := p.allowedHosts[u.Host]; !ok {
			return false, RejectReasonHostScope
		}
	}

	if len(p.allowedPathPrefix) > 0 {
		matched := false
		for _, prefix := range p.allowedPathPrefix {
			if strings.HasPrefix(u.Path, prefix) {
				matched = true
				break
			}
		}
		if !matched {
			return false, RejectReasonPathScope
		}
	}

	return true, ""
}
