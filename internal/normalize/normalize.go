package normalize

import (
	"fmt"
	"net/url"

	"github.com/rohmanhakim/site-archiver/pkg/failure"
	"github.com/rohmanhakim/site-archiver/pkg/urlutil"
)

/*
Responsibilities
- Resolve discovered references against the page base URL
- Canonicalize equivalent URL spellings to one representation
- Decide whether a URL is in crawl scope

Both operations are pure functions of input + config.
Admission itself stays with the scheduler; this package only answers
"what is the canonical form" and "is it acceptable".
*/

// Normalize resolves a raw reference against the base URL of the page it
// was discovered on, then canonicalizes the result. Standard resolution
// rules apply: scheme-relative and path-relative references resolve
// against base, fragments are stripped.
func Normalize(raw string, base url.URL) (url.URL, failure.ClassifiedError) {
	ref, err := url.Parse(raw)
	if err != nil {
		return url.URL{}, &NormalizeError{
			Message: fmt.Sprintf("failed to parse %q: %v", raw, err),
			Cause:   ErrCauseUnparsable,
		}
	}

	resolved := base.ResolveReference(ref)
	canonical := urlutil.Canonicalize(*resolved)

	if canonical.Host == "" {
		return url.URL{}, &NormalizeError{
			Message: fmt.Sprintf("resolved URL %q has no host", raw),
			Cause:   ErrCauseNoHost,
		}
	}

	return canonical, nil
}
