package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/pkg/failure"
)

/*
Responsibilities
- Parse HTML into a DOM tree
- Harvest candidate link references from configured attributes

Extraction Strategy
- Anchor href attributes are scanned by default
- The attribute set may be widened by configuration (src, link href, ...)
- Malformed HTML never aborts extraction: the parser is permissive and
  unparsable fragments are simply skipped

The extractor emits raw candidates only. Resolution and scope decisions
belong to the normalizer and the scheduler.
*/

type DomExtractor struct {
	metadataSink metadata.MetadataSink
	attributes   []string
}

func NewDomExtractor(
	metadataSink metadata.MetadataSink,
	attributes []string,
) DomExtractor {
	if len(attributes) == 0 {
		attributes = []string{"href"}
	}
	return DomExtractor{
		metadataSink: metadataSink,
		attributes:   attributes,
	}
}

// Extract parses the HTML body and returns the candidate references found
// in the configured attribute set, in document order. The slice is finite
// and consumed once per page.
func (d *DomExtractor) Extract(
	sourceUrl url.URL,
	htmlByte []byte,
) ([]Candidate, failure.ClassifiedError) {
	candidates, err := d.extract(htmlByte)
	if err != nil {
		var extractionError *ExtractionError
		errors.As(err, &extractionError)
		d.metadataSink.RecordError(
			time.Now(),
			"extractor",
			"DomExtractor.Extract",
			mapExtractionErrorToMetadataCause(extractionError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, fmt.Sprintf("%v", sourceUrl.String())),
			},
		)
		return nil, extractionError
	}
	return candidates, nil
}

func (d *DomExtractor) extract(htmlByte []byte) ([]Candidate, error) {
	if len(bytes.TrimSpace(htmlByte)) == 0 {
		return nil, &ExtractionError{
			Message: "document body is empty",
			Cause:   ErrCauseEmptyBody,
		}
	}

	// html.Parse is permissive: broken markup yields a best-effort tree
	// rather than an error, which is exactly the tolerance we want.
	doc, err := html.Parse(bytes.NewReader(htmlByte))
	if err != nil {
		return nil, &ExtractionError{
			Message: fmt.Sprintf("failed to parse HTML: %v", err),
			Cause:   ErrCauseNotHTML,
		}
	}

	gqDoc := goquery.NewDocumentFromNode(doc)

	var candidates []Candidate
	for _, attribute := range d.attributes {
		selector := selectorForAttribute(attribute)
		gqDoc.Find(selector).Each(func(_ int, selection *goquery.Selection) {
			raw, exists := selection.Attr(attribute)
			if !exists {
				return
			}
			raw = strings.TrimSpace(raw)
			if raw == "" {
				return
			}
			candidates = append(candidates, Candidate{
				Raw:       raw,
				Attribute: attribute,
			})
		})
	}

	return candidates, nil
}

// selectorForAttribute maps an attribute name to the elements scanned for
// it. href stays anchor-only by default; widening to src covers embedded
// resources like images and scripts.
func selectorForAttribute(attribute string) string {
	switch attribute {
	case "href":
		return "a[href]"
	case "src":
		return "[src]"
	default:
		return fmt.Sprintf("[%s]", attribute)
	}
}
