package extractors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/richardlehane/mscfb"
	"github.com/richardlehane/msoleps"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var oleMagic = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}

// GenericProbe sniffs the leading bytes of a binary document. OLE2 compound
// files yield their summary property sets, images their format and
// dimensions. Anything else yields no metadata.
type GenericProbe struct{}

func (GenericProbe) Extract(ctx context.Context, doc Document) (*Result, error) {
	f, err := os.Open(doc.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document: %w", err)
	}
	defer f.Close()

	head := make([]byte, len(oleMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind document: %w", err)
	}

	var meta map[string]any
	if n == len(oleMagic) && bytes.Equal(head, oleMagic) {
		meta, err = oleProperties(ctx, f)
	} else {
		meta = imageProperties(f)
	}
	if err != nil {
		return nil, err
	}
	return &Result{Metadata: meta}, nil
}

func oleProperties(ctx context.Context, f *os.File) (map[string]any, error) {
	doc, err := mscfb.New(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read compound file: %w", err)
	}
	props := msoleps.New()
	meta := map[string]any{}
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !msoleps.IsMSOLEPS(entry.Initial) {
			continue
		}
		if err := props.Reset(doc); err != nil {
			continue
		}
		for _, prop := range props.Property {
			if prop.Name == "" {
				continue
			}
			meta[prop.Name] = prop.String()
		}
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}

func imageProperties(r io.Reader) map[string]any {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		return nil
	}
	return map[string]any{
		"format": format,
		"width":  cfg.Width,
		"height": cfg.Height,
	}
}
