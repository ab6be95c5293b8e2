package extractors

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// PDFProbe reads the document information dictionary referenced by the
// trailer's /Info entry.
type PDFProbe struct{}

func (PDFProbe) Extract(ctx context.Context, doc Document) (*Result, error) {
	f, r, err := pdf.Open(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	info := r.Trailer().Key("Info")
	if info.Kind() != pdf.Dict {
		return &Result{}, nil
	}
	meta := map[string]any{}
	for _, key := range info.Keys() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta[key] = pdfValue(info.Key(key))
	}
	if len(meta) == 0 {
		return &Result{}, nil
	}
	return &Result{Metadata: meta}, nil
}

// pdfValue keeps strings as written when they are valid UTF-8 and decodes
// them as PDF text (UTF-16 or PDFDocEncoding) otherwise.
func pdfValue(v pdf.Value) any {
	switch v.Kind() {
	case pdf.Null:
		return nil
	case pdf.Bool:
		return v.Bool()
	case pdf.Integer:
		return v.Int64()
	case pdf.Real:
		return v.Float64()
	case pdf.Name:
		return v.Name()
	case pdf.String:
		if raw := v.RawString(); utf8.ValidString(raw) {
			return raw
		}
		return v.Text()
	}
	return v.String()
}
