package warc

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
)

// Reader iterates the records of an archive sequentially. It transparently
// handles both plain and gzip-member archives (Go's gzip reader consumes
// concatenated members as one stream).
type Reader struct {
	file   *os.File
	reader *bufio.Reader
	closer io.Closer
}

func NewReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	buffered := bufio.NewReader(file)
	magic, err := buffered.Peek(2)
	if err != nil && err != io.EOF {
		_ = file.Close()
		return nil, fmt.Errorf("read archive: %w", err)
	}

	r := &Reader{file: file}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("open gzip archive: %w", err)
		}
		r.reader = bufio.NewReader(gz)
		r.closer = gz
	} else {
		r.reader = buffered
	}

	return r, nil
}

// Next returns the next record, or io.EOF when the archive is exhausted.
func (r *Reader) Next() (*Record, error) {
	// Skip record separators and any leading blank lines.
	var version string
	for {
		line, err := r.reader.ReadString('\n')
		if err == io.EOF && strings.TrimSpace(line) == "" {
			return nil, io.EOF
		}
		if err != nil && err != io.EOF {
			return nil, err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		version = trimmed
		break
	}

	if !strings.HasPrefix(version, "WARC/") {
		return nil, &ArchiveError{
			Message: fmt.Sprintf("expected WARC version line, got %q", version),
			Fatal:   true,
			Cause:   ErrCauseMalformed,
		}
	}

	headers := make(map[string]string)
	for {
		line, err := r.reader.ReadString('\n')
		if err != nil {
			return nil, &ArchiveError{
				Message: fmt.Sprintf("truncated record header: %v", err),
				Fatal:   true,
				Cause:   ErrCauseMalformed,
			}
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		name, value, found := strings.Cut(trimmed, ":")
		if !found {
			return nil, &ArchiveError{
				Message: fmt.Sprintf("malformed header line %q", trimmed),
				Fatal:   true,
				Cause:   ErrCauseMalformed,
			}
		}
		headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	length, err := strconv.Atoi(headers[FieldContentLength])
	if err != nil {
		return nil, &ArchiveError{
			Message: fmt.Sprintf("bad Content-Length %q", headers[FieldContentLength]),
			Fatal:   true,
			Cause:   ErrCauseMalformed,
		}
	}

	block := make([]byte, length)
	if _, err := io.ReadFull(r.reader, block); err != nil {
		return nil, &ArchiveError{
			Message: fmt.Sprintf("truncated record block: %v", err),
			Fatal:   true,
			Cause:   ErrCauseMalformed,
		}
	}

	return &Record{
		Headers: headers,
		Block:   block,
	}, nil
}

// ReadAll collects every record in the archive.
func (r *Reader) ReadAll() ([]*Record, error) {
	var records []*Record
	for {
		record, err := r.Next()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}
}

func (r *Reader) Close() error {
	if r.closer != nil {
		_ = r.closer.Close()
	}
	return r.file.Close()
}

// ResponseBody parses a response record's block as a raw HTTP response and
// returns the body bytes. The result is byte-identical to the capture that
// produced the record.
func ResponseBody(record *Record) ([]byte, error) {
	if record.Type() != TypeResponse {
		return nil, fmt.Errorf("record is %q, not a response", record.Type())
	}
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(record.Block)), nil)
	if err != nil {
		return nil, fmt.Errorf("parse response block: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// FieldsBlock parses an application/warc-fields block into a key/value map.
func FieldsBlock(record *Record) map[string]string {
	fields := make(map[string]string)
	for _, line := range strings.Split(string(record.Block), "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		fields[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}
	return fields
}
