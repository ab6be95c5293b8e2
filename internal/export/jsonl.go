// Package export writes per-record JSON Lines exports straight from a
// container file, without a catalog.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/net/html/charset"

	"github.com/dtnitsch/metawarc/pkg/classify"
	"github.com/dtnitsch/metawarc/pkg/indexer"
	"github.com/dtnitsch/metawarc/pkg/parser"
	"github.com/dtnitsch/metawarc/pkg/warc"
)

// DefaultContentTypes are exported by Content when none are given.
var DefaultContentTypes = []string{"text/html"}

// HeaderLine is one line of a headers export.
type HeaderLine struct {
	ContentType *string             `json:"content-type"`
	Offset      int64               `json:"offset"`
	Length      int64               `json:"length"`
	URL         string              `json:"url"`
	Status      int                 `json:"status"`
	HTTPHeaders map[string][]string `json:"http_headers"`
}

// ContentLine is one line of a content export.
type ContentLine struct {
	ID     int    `json:"id"`
	WarcID string `json:"warc_id"`
	*parser.Content
}

// Exporter scans one container file at a time.
type Exporter struct {
	logger *slog.Logger
	opts   []warc.Option
}

// New creates an exporter. opts are passed to every reader it opens.
func New(logger *slog.Logger, opts ...warc.Option) *Exporter {
	return &Exporter{logger: logger, opts: opts}
}

// Headers writes one HeaderLine per response record of path to w and
// returns the number of lines written.
func (e *Exporter) Headers(ctx context.Context, path string, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	n := 0
	err := e.each(ctx, path, func(rec *warc.Record) (func(length int64) error, error) {
		line := HeaderLine{
			ContentType: rec.HTTP.ContentType(),
			Offset:      rec.Offset,
			URL:         rec.TargetURI,
			Status:      rec.HTTP.StatusCode,
			HTTPHeaders: rec.HTTP.Header,
		}
		// The length is only known once the record is drained.
		return func(length int64) error {
			line.Length = length
			n++
			return enc.Encode(line)
		}, nil
	})
	return n, err
}

// Content writes the readable text of every response record whose content
// type is in contentTypes. Pages readability cannot handle are logged and
// left out.
func (e *Exporter) Content(ctx context.Context, path string, w io.Writer, p *parser.Parser, contentTypes []string) (int, error) {
	if len(contentTypes) == 0 {
		contentTypes = DefaultContentTypes
	}
	wanted := make(map[string]bool, len(contentTypes))
	for _, ct := range contentTypes {
		wanted[ct] = true
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	n := 0
	err := e.each(ctx, path, func(rec *warc.Record) (func(int64) error, error) {
		raw := rec.HTTP.ContentType()
		ct, _ := classify.ContentType(raw)
		if ct == nil || !wanted[*ct] {
			return nil, nil
		}
		payload, err := rec.Payload()
		if err != nil {
			return nil, err
		}
		defer payload.Close()

		contentType := ""
		if raw != nil {
			contentType = *raw
		}
		body, err := charset.NewReader(payload, contentType)
		if err != nil {
			e.logger.Warn("failed to decode charset", "url", rec.TargetURI, "error", err)
			return nil, nil
		}
		content, err := p.Parse(rec.TargetURI, body)
		if err != nil {
			e.logger.Warn("failed to extract content", "url", rec.TargetURI, "error", err)
			return nil, nil
		}
		n++
		line := ContentLine{ID: n, WarcID: indexer.WarcID(rec.ID), Content: content}
		if err := enc.Encode(line); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return n, err
}

// each calls fn for every response record with an HTTP view. When fn
// returns a callback it is invoked with the record length after the record
// is drained.
func (e *Exporter) each(ctx context.Context, path string, fn func(rec *warc.Record) (func(length int64) error, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open: %w", err)
	}
	defer f.Close()

	opts := append([]warc.Option{warc.WithSkipHandler(func(offset int64, err error) {
		e.logger.Warn("skipped damaged data", "file", path, "offset", offset, "error", err)
	})}, e.opts...)
	r, err := warc.NewReader(f, opts...)
	if err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if !rec.IsResponse() || rec.HTTP == nil {
			continue
		}
		after, err := fn(rec)
		if err != nil {
			return fmt.Errorf("record at offset %d: %w", rec.Offset, err)
		}
		if after == nil {
			continue
		}
		length, err := rec.Finish()
		if err != nil {
			return fmt.Errorf("record at offset %d: %w", rec.Offset, err)
		}
		if err := after(length); err != nil {
			return err
		}
	}
}
