package warc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// ErrPayloadConsumed is returned when a record payload is requested twice.
var ErrPayloadConsumed = errors.New("record payload already consumed")

// HTTPHeader is the HTTP view of a response record.
type HTTPHeader struct {
	StatusCode    int
	Status        string
	Header        http.Header
	ContentLength int64
}

// ContentType returns the raw Content-Type header, or nil when absent.
func (h *HTTPHeader) ContentType() *string {
	if h == nil {
		return nil
	}
	values, ok := h.Header["Content-Type"]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[0]
	return &v
}

// Record is one WARC record. Its block can be read once, either through
// Payload or implicitly when the record is finished.
type Record struct {
	Version   string
	Type      string
	TargetURI string
	ID        string
	Date      time.Time
	Header    textproto.MIMEHeader
	Offset    int64
	BlockSize int64
	HTTP      *HTTPHeader

	length   int64
	src      *bufio.Reader
	block    *io.LimitedReader
	body     io.Reader
	consumed bool
	reader   *Reader
}

// IsResponse reports whether the record is a "response" record.
func (rec *Record) IsResponse() bool {
	return strings.EqualFold(rec.Type, "response")
}

// Length returns the byte length of the record in the container, or -1
// until the record is finished.
func (rec *Record) Length() int64 { return rec.length }

// Finish drains the rest of the record and returns its container length.
// It is called by Reader.Next for the previous record, so callers only need
// it when they want the length before moving on.
func (rec *Record) Finish() (int64, error) {
	if rec.length >= 0 {
		return rec.length, nil
	}
	n, err := rec.reader.finish(rec)
	if err != nil {
		return 0, err
	}
	rec.length = n
	rec.consumed = true
	return n, nil
}

// parseHTTP decodes the HTTP response head of response records. Records
// whose block is not an HTTP message keep a nil HTTP view.
func (rec *Record) parseHTTP() {
	if !rec.IsResponse() {
		return
	}
	ct := strings.ToLower(rec.Header.Get("Content-Type"))
	if ct != "" && !strings.HasPrefix(ct, "application/http") {
		return
	}
	resp, err := http.ReadResponse(bufio.NewReader(rec.block), nil)
	if err != nil {
		return
	}
	rec.HTTP = &HTTPHeader{
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
	}
	rec.body = resp.Body
}

// RawPayload returns the record body without HTTP content decoding. For HTTP
// responses this is the de-chunked entity body, otherwise the whole block.
func (rec *Record) RawPayload() (io.Reader, error) {
	if rec.consumed {
		return nil, ErrPayloadConsumed
	}
	rec.consumed = true
	if rec.body != nil {
		return rec.body, nil
	}
	return rec.block, nil
}

// Payload returns the record body with HTTP Content-Encoding removed.
// Unknown encodings are passed through untouched.
func (rec *Record) Payload() (io.ReadCloser, error) {
	raw, err := rec.RawPayload()
	if err != nil {
		return nil, err
	}
	if rec.HTTP == nil {
		return io.NopCloser(raw), nil
	}
	switch strings.ToLower(strings.TrimSpace(rec.HTTP.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode gzip payload: %w", err)
		}
		return gz, nil
	case "deflate":
		zr, err := zlib.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode deflate payload: %w", err)
		}
		return zr, nil
	case "zstd":
		zr, err := zstd.NewReader(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode zstd payload: %w", err)
		}
		return zr.IOReadCloser(), nil
	}
	return io.NopCloser(raw), nil
}
