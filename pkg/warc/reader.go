// Package warc reads WARC container files record by record, tracking the byte
// offset and length of every record so that a single record can later be
// re-read by seeking straight to it.
package warc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// FramingPolicy decides what happens when a record boundary cannot be parsed.
type FramingPolicy int

const (
	// FramingSkip drops the damaged unit and resumes at the next record start.
	FramingSkip FramingPolicy = iota
	// FramingStrict stops the scan with a *FramingError.
	FramingStrict
)

// ParseFramingPolicy maps "skip" and "strict" to a policy.
func ParseFramingPolicy(s string) (FramingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return FramingSkip, nil
	case "strict":
		return FramingStrict, nil
	}
	return FramingSkip, fmt.Errorf("invalid framing policy: %q", s)
}

// FramingError reports a malformed record boundary.
type FramingError struct {
	Offset int64
	Err    error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("malformed record at offset %d: %v", e.Offset, e.Err)
}

func (e *FramingError) Unwrap() error { return e.Err }

var (
	gzipMagic  = []byte{0x1f, 0x8b, 0x08}
	warcPrefix = "WARC/"
)

// Option configures a Reader.
type Option func(*Reader)

// WithFramingPolicy sets the malformed-record policy. Default is FramingSkip.
func WithFramingPolicy(p FramingPolicy) Option {
	return func(r *Reader) { r.policy = p }
}

// WithSkipHandler registers a callback invoked for every skipped unit.
func WithSkipHandler(fn func(offset int64, err error)) Option {
	return func(r *Reader) { r.onSkip = fn }
}

// Reader yields records from a WARC or per-record gzipped WARC stream.
type Reader struct {
	cr         *countingReader
	br         *bufio.Reader
	base       int64
	compressed bool
	gz         *gzip.Reader
	policy     FramingPolicy
	onSkip     func(offset int64, err error)
	skipped    int
	cur        *Record
	err        error
}

// NewReader starts reading at the current position of r, which is taken to be
// offset zero of the container.
func NewReader(r io.Reader, opts ...Option) (*Reader, error) {
	return newReader(r, 0, opts...)
}

// NewReaderAt seeks rs to offset and resumes reading there. Offsets reported
// by the returned Reader stay absolute.
func NewReaderAt(rs io.ReadSeeker, offset int64, opts ...Option) (*Reader, error) {
	if _, err := rs.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to offset %d: %w", offset, err)
	}
	return newReader(rs, offset, opts...)
}

func newReader(r io.Reader, base int64, opts ...Option) (*Reader, error) {
	cr := &countingReader{r: r}
	rd := &Reader{
		cr:   cr,
		br:   bufio.NewReaderSize(cr, 64*1024),
		base: base,
	}
	for _, opt := range opts {
		opt(rd)
	}
	head, err := rd.br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read container header: %w", err)
	}
	rd.compressed = len(head) == 2 && bytes.Equal(head, gzipMagic[:2])
	return rd, nil
}

// Compressed reports whether the container uses per-record gzip members.
func (r *Reader) Compressed() bool { return r.compressed }

// Skipped returns the number of damaged units dropped so far.
func (r *Reader) Skipped() int { return r.skipped }

// pos is the absolute container offset of the next unread byte.
func (r *Reader) pos() int64 {
	return r.base + r.cr.n - int64(r.br.Buffered())
}

// Next returns the next record. The previous record is finished first, so its
// payload must not be used after calling Next. At the end of the container
// Next returns io.EOF.
func (r *Reader) Next() (*Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.cur != nil {
		if _, err := r.cur.Finish(); err != nil {
			if ferr := r.framing(r.cur.Offset, err); ferr != nil {
				return nil, ferr
			}
		}
		r.cur = nil
	}
	for {
		rec, err := r.readRecord()
		if err == nil {
			r.cur = rec
			return rec, nil
		}
		if errors.Is(err, io.EOF) {
			r.err = io.EOF
			return nil, io.EOF
		}
		var fe *FramingError
		if !errors.As(err, &fe) {
			r.err = err
			return nil, err
		}
		if ferr := r.framing(fe.Offset, fe.Err); ferr != nil {
			return nil, ferr
		}
	}
}

// framing applies the policy to a damaged unit. A nil return means skip.
func (r *Reader) framing(offset int64, err error) error {
	if r.policy == FramingStrict {
		var fe *FramingError
		if !errors.As(err, &fe) {
			fe = &FramingError{Offset: offset, Err: err}
		}
		r.err = fe
		return fe
	}
	r.skipped++
	if r.onSkip != nil {
		r.onSkip(offset, err)
	}
	resync := r.resyncPlain
	if r.compressed {
		resync = func() error { return r.resyncGzip(offset) }
	}
	if err := resync(); err != nil {
		r.err = err
		return err
	}
	return nil
}

func (r *Reader) readRecord() (*Record, error) {
	if r.compressed {
		return r.readGzipRecord()
	}
	return r.readPlainRecord()
}

func (r *Reader) readPlainRecord() (*Record, error) {
	for {
		offset := r.pos()
		line, err := r.br.ReadString('\n')
		if err != nil && line == "" {
			return nil, io.EOF
		}
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			if err != nil {
				return nil, io.EOF
			}
			continue
		}
		if !strings.HasPrefix(trimmed, warcPrefix) {
			return nil, &FramingError{Offset: offset, Err: fmt.Errorf("expected WARC version line, got %q", truncate(trimmed, 40))}
		}
		rec, herr := r.readHeaderAndBlock(r.br, offset, trimmed)
		if herr != nil {
			return nil, &FramingError{Offset: offset, Err: herr}
		}
		return rec, nil
	}
}

func (r *Reader) readGzipRecord() (*Record, error) {
	offset := r.pos()
	head, err := r.br.Peek(len(gzipMagic))
	if len(head) == 0 {
		return nil, io.EOF
	}
	if err != nil || !bytes.Equal(head, gzipMagic) {
		// Nothing is consumed, so resync starts right after offset.
		return nil, &FramingError{Offset: offset, Err: errors.New("missing gzip member signature")}
	}
	if r.gz == nil {
		gz, err := gzip.NewReader(r.br)
		if err != nil {
			return nil, &FramingError{Offset: offset, Err: fmt.Errorf("bad gzip member: %w", err)}
		}
		r.gz = gz
	} else if err := r.gz.Reset(r.br); err != nil {
		return nil, &FramingError{Offset: offset, Err: fmt.Errorf("bad gzip member: %w", err)}
	}
	r.gz.Multistream(false)

	inner := bufio.NewReader(r.gz)
	var version string
	for {
		line, err := inner.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed != "" {
			version = trimmed
			break
		}
		if err != nil {
			return nil, &FramingError{Offset: offset, Err: fmt.Errorf("empty gzip member: %w", err)}
		}
	}
	if !strings.HasPrefix(version, warcPrefix) {
		return nil, &FramingError{Offset: offset, Err: fmt.Errorf("expected WARC version line, got %q", truncate(version, 40))}
	}
	rec, err := r.readHeaderAndBlock(inner, offset, version)
	if err != nil {
		return nil, &FramingError{Offset: offset, Err: err}
	}
	return rec, nil
}

// resyncPlain discards lines up to the next one starting with the WARC
// version prefix, so a damaged region counts as a single skipped unit.
func (r *Reader) resyncPlain() error {
	for {
		head, err := r.br.Peek(len(warcPrefix))
		if bytes.HasPrefix(head, []byte(warcPrefix)) {
			return nil
		}
		if len(head) == 0 && err != nil {
			return io.EOF
		}
		for {
			_, err := r.br.ReadSlice('\n')
			if err == nil {
				break
			}
			if !errors.Is(err, bufio.ErrBufferFull) {
				return io.EOF
			}
		}
	}
}

// resyncGzip advances to the next gzip member signature after the damaged
// member starting at offset.
func (r *Reader) resyncGzip(offset int64) error {
	if r.pos() <= offset {
		if _, err := r.br.Discard(1); err != nil {
			return io.EOF
		}
	}
	for {
		buf, _ := r.br.Peek(len(gzipMagic))
		if len(buf) < len(gzipMagic) {
			r.br.Discard(len(buf))
			return io.EOF
		}
		if bytes.Equal(buf, gzipMagic) {
			return nil
		}
		if i := bytes.IndexByte(buf[1:], gzipMagic[0]); i >= 0 {
			r.br.Discard(i + 1)
		} else {
			r.br.Discard(len(buf))
		}
	}
}

func (r *Reader) readHeaderAndBlock(src *bufio.Reader, offset int64, version string) (*Record, error) {
	header, err := textproto.NewReader(src).ReadMIMEHeader()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read record header: %w", err)
	}
	cl := header.Get("Content-Length")
	size, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("invalid Content-Length %q", cl)
	}
	rec := &Record{
		Version:   version,
		Type:      header.Get("WARC-Type"),
		TargetURI: strings.Trim(header.Get("WARC-Target-URI"), "<>"),
		ID:        header.Get("WARC-Record-ID"),
		Header:    header,
		Offset:    offset,
		BlockSize: size,
		length:    -1,
		src:       src,
		block:     &io.LimitedReader{R: src, N: size},
		reader:    r,
	}
	if d := header.Get("WARC-Date"); d != "" {
		if t, perr := time.Parse(time.RFC3339Nano, d); perr == nil {
			rec.Date = t
		}
	}
	rec.parseHTTP()
	return rec, nil
}

// finish drains rec and consumes its trailer, returning the record length.
func (r *Reader) finish(rec *Record) (int64, error) {
	if _, err := io.Copy(io.Discard, rec.block); err != nil {
		return 0, fmt.Errorf("failed to drain record block: %w", err)
	}
	if rec.block.N > 0 {
		return 0, fmt.Errorf("record block truncated: %w", io.ErrUnexpectedEOF)
	}
	if r.compressed {
		// The rest of the member is the CRLF trailer; draining it makes the
		// gzip reader stop at the member end.
		if _, err := io.Copy(io.Discard, rec.src); err != nil {
			return 0, fmt.Errorf("failed to finish gzip member: %w", err)
		}
		return r.pos() - rec.Offset, nil
	}
	for i := 0; i < 2; i++ {
		b, err := r.br.Peek(1)
		if err != nil || len(b) == 0 {
			break
		}
		if b[0] == '\r' {
			r.br.Discard(1)
			b, err = r.br.Peek(1)
			if err != nil || len(b) == 0 {
				break
			}
		}
		if b[0] != '\n' {
			break
		}
		r.br.Discard(1)
	}
	return r.pos() - rec.Offset, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// countingReader counts bytes read from the underlying reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// ReadAt re-reads the single record starting at offset. Framing is strict
// because a registered offset must land exactly on a record.
func ReadAt(rs io.ReadSeeker, offset int64) (*Record, error) {
	r, err := NewReaderAt(rs, offset, WithFramingPolicy(FramingStrict))
	if err != nil {
		return nil, err
	}
	rec, err := r.Next()
	if err != nil {
		return nil, err
	}
	if rec.Offset != offset {
		return nil, fmt.Errorf("record found at %d, expected %d", rec.Offset, offset)
	}
	return rec, nil
}
