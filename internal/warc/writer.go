package warc

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rohmanhakim/site-archiver/pkg/failure"
	"github.com/rohmanhakim/site-archiver/pkg/hashutil"
)

/*
Responsibilities
- Persist one record per completed fetch attempt, success or terminal failure
- Keep the container valid at every record boundary

Output Characteristics
- Append-only: records are never rewritten after commit
- Self-describing: each record = WARC header block + raw block bytes
- Optionally gzip-compressed, one gzip member per record (the standard
  WARC compression layout, readable by any multistream gzip reader)

All writes are serialized behind a mutex so records are never interleaved
mid-write, including under the concurrent worker pool.
*/

type WriterOptions struct {
	// Compress writes each record as its own gzip member.
	Compress bool
	// Software names the producing tool inside the warcinfo record.
	Software string
}

type Writer struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	compress bool
	closed   bool
}

// NewWriter creates the archive file and writes the leading warcinfo
// record. Creation failure is fatal: without an archive there is nothing
// to crawl for.
func NewWriter(path string, opts WriterOptions) (*Writer, failure.ClassifiedError) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, &ArchiveError{
			Message: err.Error(),
			Fatal:   true,
			Cause:   ErrCauseOpenFailure,
			Path:    path,
		}
	}

	w := &Writer{
		file:     file,
		path:     path,
		compress: opts.Compress,
	}

	software := opts.Software
	if software == "" {
		software = "site-archiver"
	}
	fields := fmt.Sprintf("software: %s\r\nformat: WARC File Format 1.1\r\n", software)
	headers := map[string]string{
		FieldType:        TypeWarcinfo,
		FieldContentType: contentTypeWarcFields,
	}
	if _, err := w.writeRecord(headers, []byte(fields), time.Now().UTC()); err != nil {
		_ = file.Close()
		return nil, &ArchiveError{
			Message: err.Error(),
			Fatal:   true,
			Cause:   ErrCauseOpenFailure,
			Path:    path,
		}
	}

	return w, nil
}

// WriteResponse appends a response record for a successful capture. The
// block is the raw HTTP response: status line, headers, blank line, body —
// so reading the record back reconstructs the exchange byte for byte.
func (w *Writer) WriteResponse(capture Capture, timestamp time.Time) (WriteInfo, failure.ClassifiedError) {
	block := buildResponseBlock(capture)

	digest, err := hashutil.HashBytes(block, hashutil.HashAlgoSHA256)
	if err != nil {
		return WriteInfo{}, &ArchiveError{
			Message: err.Error(),
			Fatal:   false,
			Cause:   ErrCauseDigest,
			Path:    w.path,
		}
	}

	headers := map[string]string{
		FieldType:        TypeResponse,
		FieldTargetURI:   capture.TargetURI.String(),
		FieldContentType: contentTypeHTTPResponse,
		FieldBlockDigest: "sha256:" + digest,
	}
	return w.commit(headers, block, timestamp)
}

// WriteFailure appends a metadata record documenting a terminal fetch
// failure, so the archive remains a complete audit of the crawl.
func (w *Writer) WriteFailure(
	target url.URL,
	errorKind string,
	attempts int,
	timestamp time.Time,
) (WriteInfo, failure.ClassifiedError) {
	fields := fmt.Sprintf("outcome: failed\r\nerror-kind: %s\r\nattempts: %d\r\n", errorKind, attempts)
	headers := map[string]string{
		FieldType:        TypeMetadata,
		FieldTargetURI:   target.String(),
		FieldContentType: contentTypeWarcFields,
	}
	return w.commit(headers, []byte(fields), timestamp)
}

func (w *Writer) commit(headers map[string]string, block []byte, timestamp time.Time) (WriteInfo, failure.ClassifiedError) {
	info, err := w.writeRecord(headers, block, timestamp.UTC())
	if err != nil {
		// Fatal to this record only: the caller logs and the crawl continues.
		return WriteInfo{}, &ArchiveError{
			Message: err.Error(),
			Fatal:   false,
			Cause:   ErrCauseWriteFailure,
			Path:    w.path,
		}
	}
	return info, nil
}

// writeRecord serializes one complete record and flushes it to the file
// before returning, so an interrupt between records never truncates a
// committed record.
func (w *Writer) writeRecord(headers map[string]string, block []byte, timestamp time.Time) (WriteInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return WriteInfo{}, fmt.Errorf("archive %s already closed", w.path)
	}

	recordID := fmt.Sprintf("<urn:uuid:%s>", uuid.NewString())

	var buf bytes.Buffer
	buf.WriteString("WARC/1.1\r\n")
	fmt.Fprintf(&buf, "%s: %s\r\n", FieldRecordID, recordID)
	fmt.Fprintf(&buf, "%s: %s\r\n", FieldDate, timestamp.Format(time.RFC3339))

	// Deterministic header order keeps archives diffable across reruns.
	keys := make([]string, 0, len(headers))
	for key := range headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&buf, "%s: %s\r\n", key, headers[key])
	}

	fmt.Fprintf(&buf, "%s: %d\r\n", FieldContentLength, len(block))
	buf.WriteString("\r\n")
	buf.Write(block)
	buf.WriteString("\r\n\r\n")

	if w.compress {
		gz := gzip.NewWriter(w.file)
		if _, err := gz.Write(buf.Bytes()); err != nil {
			return WriteInfo{}, err
		}
		if err := gz.Close(); err != nil {
			return WriteInfo{}, err
		}
	} else {
		if _, err := w.file.Write(buf.Bytes()); err != nil {
			return WriteInfo{}, err
		}
	}

	if err := w.file.Sync(); err != nil {
		return WriteInfo{}, err
	}

	return WriteInfo{
		recordID:  recordID,
		warcType:  headers[FieldType],
		targetURI: headers[FieldTargetURI],
		writtenAt: timestamp,
	}, nil
}

// Close flushes and closes the archive. The file is valid at every record
// boundary, so closing mid-crawl leaves a readable partial archive.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

func (w *Writer) Path() string {
	return w.path
}

// buildResponseBlock reconstructs the raw HTTP response bytes from a
// capture: status line, headers in deterministic order, blank line, body.
func buildResponseBlock(capture Capture) []byte {
	var buf bytes.Buffer

	proto := capture.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	fmt.Fprintf(&buf, "%s %d %s\r\n", proto, capture.StatusCode, http.StatusText(capture.StatusCode))

	keys := make([]string, 0, len(capture.Headers))
	for key := range capture.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	hasLength := false
	for _, key := range keys {
		if http.CanonicalHeaderKey(key) == "Content-Length" {
			hasLength = true
			fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(capture.Body))
			continue
		}
		fmt.Fprintf(&buf, "%s: %s\r\n", key, capture.Headers[key])
	}
	if !hasLength {
		fmt.Fprintf(&buf, "Content-Length: %d\r\n", len(capture.Body))
	}

	buf.WriteString("\r\n")
	buf.Write(capture.Body)
	return buf.Bytes()
}
