package warc

import (
	"net/url"
	"time"
)

// WARC/1.1 header field names used by this writer.
const (
	FieldRecordID      = "WARC-Record-ID"
	FieldType          = "WARC-Type"
	FieldDate          = "WARC-Date"
	FieldTargetURI     = "WARC-Target-URI"
	FieldBlockDigest   = "WARC-Block-Digest"
	FieldContentType   = "Content-Type"
	FieldContentLength = "Content-Length"
)

// Record types written by this archiver.
const (
	TypeWarcinfo = "warcinfo"
	TypeResponse = "response"
	TypeMetadata = "metadata"
)

const (
	contentTypeHTTPResponse = "application/http;msgtype=response"
	contentTypeWarcFields   = "application/warc-fields"
)

// Capture is one completed fetch exchange handed to the writer. It is
// written once, append-only, and never mutated after write.
type Capture struct {
	TargetURI  url.URL
	Proto      string
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// WriteInfo describes a record after it has been committed to the archive.
type WriteInfo struct {
	recordID  string
	warcType  string
	targetURI string
	writtenAt time.Time
}

func (w *WriteInfo) RecordID() string {
	return w.recordID
}

func (w *WriteInfo) Type() string {
	return w.warcType
}

func (w *WriteInfo) TargetURI() string {
	return w.targetURI
}

func (w *WriteInfo) WrittenAt() time.Time {
	return w.writtenAt
}

// Record is one parsed archive record, as returned by the Reader.
type Record struct {
	// Headers holds the WARC header fields, keyed by canonical field name.
	Headers map[string]string
	// Block holds the raw record block bytes.
	Block []byte
}

func (r *Record) Type() string {
	return r.Headers[FieldType]
}

func (r *Record) TargetURI() string {
	return r.Headers[FieldTargetURI]
}
