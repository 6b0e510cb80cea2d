package storage

import (
	"bytes"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/rohmanhakim/site-archiver/internal/metadata"
	"github.com/rohmanhakim/site-archiver/pkg/failure"
	"github.com/rohmanhakim/site-archiver/pkg/fileutil"
	"github.com/rohmanhakim/site-archiver/pkg/hashutil"
	"github.com/rohmanhakim/site-archiver/pkg/urlutil"
)

/*
Responsibilities
- Persist a browsable mirror of archived pages
- Rewrite same-crawl links to relative local paths
- Ensure deterministic filenames

Output Characteristics
- Stable directory layout (flat, hash-named files)
- Idempotent writes
- Overwrite-safe reruns

External and unarchived URLs stay absolute; only links whose target was
actually archived by this crawl point at local files, so a mirror cut
short by a page budget or a cancellation never links to missing files.
*/

// CaptureResolver reports whether a canonical URL was archived by this
// crawl and, when it was, whether the capture is HTML. HTML-ness decides
// the rewritten link's filename extension.
type CaptureResolver func(target url.URL) (archived bool, isHTML bool)

type Sink interface {
	Write(
		outputDir string,
		capture PageCapture,
		resolve CaptureResolver,
	) (WriteResult, failure.ClassifiedError)
}

type MirrorSink struct {
	metadataSink metadata.MetadataSink
}

func NewMirrorSink(
	metadataSink metadata.MetadataSink,
) MirrorSink {
	return MirrorSink{
		metadataSink: metadataSink,
	}
}

// LocalFilename returns the deterministic mirror filename for a URL:
// the first 12 hex characters of the blake3 hash of the canonical URL,
// with an extension preserved from the path (HTML pages always get .html).
func LocalFilename(target url.URL, isHTML bool) (string, error) {
	canonical := urlutil.Canonicalize(target)
	urlHash, err := hashutil.HashBytes([]byte(canonical.String()), hashutil.HashAlgoBLAKE3)
	if err != nil {
		return "", err
	}

	ext := "html"
	if !isHTML {
		if pathExt := fileutil.GetFileExtension(canonical.Path); pathExt != "" {
			ext = pathExt
		} else {
			ext = "bin"
		}
	}
	return urlHash[:12] + "." + ext, nil
}

func (s *MirrorSink) Write(
	outputDir string,
	capture PageCapture,
	resolve CaptureResolver,
) (WriteResult, failure.ClassifiedError) {
	writeResult, err := write(outputDir, capture, resolve)
	if err != nil {
		var storageError *StorageError
		errors.As(err, &storageError)
		s.metadataSink.RecordError(
			time.Now(),
			"storage",
			"MirrorSink.Write",
			mapStorageErrorToMetadataCause(storageError),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, capture.URL.String()),
				metadata.NewAttr(metadata.AttrWritePath, storageError.Path),
			},
		)
		return WriteResult{}, storageError
	}
	s.metadataSink.RecordArtifact(
		metadata.ArtifactMirrorFile,
		writeResult.Path(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, capture.URL.String()),
			metadata.NewAttr(metadata.AttrField, writeResult.URLHash()),
		},
	)
	return writeResult, nil
}

func write(
	outputDir string,
	capture PageCapture,
	resolve CaptureResolver,
) (WriteResult, failure.ClassifiedError) {
	filename, err := LocalFilename(capture.URL, capture.IsHTML)
	if err != nil {
		return WriteResult{}, &StorageError{
			Message: err.Error(),
			Cause:   ErrCauseHashComputationFailed,
			Path:    "",
		}
	}

	if err := fileutil.EnsureDir(outputDir); err != nil {
		return WriteResult{}, &StorageError{
			Message: err.Error(),
			Cause:   ErrCausePathError,
			Path:    outputDir,
		}
	}

	content := capture.Body
	rewrites := 0
	if capture.IsHTML {
		rewritten, count, rewriteErr := rewriteLinks(capture.Body, capture.URL, resolve)
		if rewriteErr != nil {
			// A page that cannot be rewritten is still worth mirroring as-is.
			rewrites = 0
		} else {
			content = rewritten
			rewrites = count
		}
	}

	fullPath := filepath.Join(outputDir, filename)
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return WriteResult{}, &StorageError{
			Message: err.Error(),
			Cause:   ErrCauseWriteFailure,
			Path:    fullPath,
		}
	}

	return NewWriteResult(strings.TrimSuffix(filename, filepath.Ext(filename)), fullPath, rewrites), nil
}

// rewriteLinks replaces anchor targets whose canonical URL was archived by
// this crawl with the relative filename of the mirrored copy. Everything
// else is left untouched.
func rewriteLinks(
	body []byte,
	base url.URL,
	resolve CaptureResolver,
) ([]byte, int, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	gqDoc := goquery.NewDocumentFromNode(doc)

	rewrites := 0
	gqDoc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		raw, exists := selection.Attr("href")
		if !exists {
			return
		}
		ref, parseErr := url.Parse(strings.TrimSpace(raw))
		if parseErr != nil {
			return
		}
		resolved := urlutil.Canonicalize(*base.ResolveReference(ref))
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		archived, targetIsHTML := resolve(resolved)
		if !archived {
			return
		}
		local, nameErr := LocalFilename(resolved, targetIsHTML)
		if nameErr != nil {
			return
		}
		selection.SetAttr("href", local)
		rewrites++
	})

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), rewrites, nil
}
