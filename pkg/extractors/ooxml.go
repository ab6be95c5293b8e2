package extractors

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

var ooxmlParts = []string{"docProps/core.xml", "docProps/app.xml"}

// OfficeXMLProbe reads the core and extended property parts of an OOXML
// package (docx, xlsx, pptx). Every top-level element becomes one key named
// by its local name; nested elements contribute no text.
type OfficeXMLProbe struct{}

func (OfficeXMLProbe) Extract(ctx context.Context, doc Document) (*Result, error) {
	zr, err := zip.OpenReader(doc.Path)
	if err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return &Result{}, nil
		}
		return nil, fmt.Errorf("failed to open package: %w", err)
	}
	defer zr.Close()

	meta := map[string]any{}
	for _, name := range ooxmlParts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := findZipFile(zr.File, name)
		if f == nil {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", name, err)
		}
		err = flattenProperties(rc, meta)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
	}
	if len(meta) == 0 {
		return &Result{}, nil
	}
	return &Result{Metadata: meta}, nil
}

func findZipFile(files []*zip.File, name string) *zip.File {
	for _, f := range files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func flattenProperties(r io.Reader, meta map[string]any) error {
	dec := xml.NewDecoder(r)
	var (
		depth int
		key   string
		text  strings.Builder
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 2 {
				key = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 2 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 2 {
				if v := strings.TrimSpace(text.String()); v != "" {
					meta[key] = v
				} else {
					meta[key] = nil
				}
			}
			depth--
		}
	}
}
