package query

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/classify"
	"github.com/dtnitsch/metawarc/pkg/export"
	"github.com/dtnitsch/metawarc/pkg/indexer"
	"github.com/dtnitsch/metawarc/pkg/warc"
)

// ManifestName is the file Dump writes beside the payloads.
const ManifestName = "records.csv"

// maxOpenContainers bounds the container handles held during one call.
const maxOpenContainers = 16

// ManifestColumns are the columns of the dump manifest.
var ManifestColumns = []string{"offset", "filename", "url", "length", "content-type", "ext", "status", "warc_id"}

// DumpResult describes one Dump call.
type DumpResult struct {
	Written  int
	Failed   int
	Manifest string
	Skipped  []string
}

// containers caches open container files by source path. Evicted handles
// are closed.
type containers struct {
	cache *lru.Cache[string, *os.File]
}

func newContainers() (*containers, error) {
	cache, err := lru.NewWithEvict(maxOpenContainers, func(_ string, f *os.File) {
		f.Close()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create handle cache: %w", err)
	}
	return &containers{cache: cache}, nil
}

func (c *containers) open(source string) (*os.File, error) {
	if f, ok := c.cache.Get(source); ok {
		return f, nil
	}
	f, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("failed to open container: %w", err)
	}
	c.cache.Add(source, f)
	return f, nil
}

// closeAll releases every cached handle.
func (c *containers) closeAll() {
	c.cache.Purge()
}

// copyPayload re-reads the record at row.Offset and copies its decoded
// payload to w.
func (c *containers) copyPayload(row models.Record, w io.Writer) (int64, error) {
	f, err := c.open(row.Source)
	if err != nil {
		return 0, err
	}
	rec, err := warc.ReadAt(f, row.Offset)
	if err != nil {
		return 0, err
	}
	payload, err := rec.Payload()
	if err != nil {
		return 0, err
	}
	defer payload.Close()
	return io.Copy(w, payload)
}

// DumpFilename is the name a record's payload is written under. The warc id
// comes from the archive, so it is reduced to a single path component.
func DumpFilename(row models.Record) string {
	return safeName(row.WarcID) + "." + classify.DumpExt(row.ContentTypeRaw)
}

// safeName keeps letters, digits, '-', '_' and '.', replaces anything else
// with '_' and drops leading dots.
func safeName(id string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, id)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "record"
	}
	return name
}

// within joins name onto dir and fails when the result leaves dir.
func within(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("refusing to write %q outside %s", name, dir)
	}
	return path, nil
}

// Dump writes the payload of every selected record into outDir as
// <warc id>.<ext> and a records.csv manifest listing them. A record that
// cannot be re-read is logged and left out of the manifest.
func (s *Service) Dump(ctx context.Context, files []string, sel Selection, outDir string) (*DumpResult, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	handles, err := newContainers()
	if err != nil {
		return nil, err
	}
	defer handles.closeAll()

	res := &DumpResult{Manifest: filepath.Join(outDir, ManifestName)}
	var manifest [][]any
	res.Skipped, err = scan(ctx, s, files, models.TableRecords, sel, func(_ string, row models.Record) error {
		name := DumpFilename(row)
		path, err := within(outDir, name)
		if err == nil {
			err = writePayload(handles, row, path)
		}
		if err != nil {
			s.logger.Warn("failed to dump record", "warc_id", row.WarcID, "url", row.URL, "error", err)
			res.Failed++
			return nil
		}
		s.logger.Debug("wrote payload", "file", name, "url", row.URL)
		manifest = append(manifest, []any{
			row.Offset, name, row.URL, row.Length, row.ContentTypeRaw, row.Ext, row.StatusCode, row.WarcID,
		})
		res.Written++
		return nil
	})
	if err != nil {
		return nil, err
	}

	f, err := os.Create(res.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}
	if err := export.WriteCSV(f, ManifestColumns, manifest); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close manifest: %w", err)
	}
	return res, nil
}

func writePayload(handles *containers, row models.Record, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := handles.copyPayload(row, out); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}

// CopyPayload re-reads row from its container and copies the decoded
// payload to w.
func (s *Service) CopyPayload(row models.Record, w io.Writer) (int64, error) {
	handles, err := newContainers()
	if err != nil {
		return 0, err
	}
	defer handles.closeAll()

	n, err := handles.copyPayload(row, w)
	if err != nil {
		return n, fmt.Errorf("failed to read payload of %s: %w", row.WarcID, err)
	}
	return n, nil
}

// Fetch writes the payload of the record matching idOrURL to outPath.
func (s *Service) Fetch(ctx context.Context, idOrURL, outPath string) (*models.Record, error) {
	row, err := s.Find(ctx, idOrURL)
	if err != nil {
		return nil, err
	}
	handles, err := newContainers()
	if err != nil {
		return nil, err
	}
	defer handles.closeAll()

	if err := writePayload(handles, *row, outPath); err != nil {
		return nil, err
	}
	return row, nil
}

// Find returns the first record whose warc id or URL equals idOrURL.
// Registered files are searched in registry order.
func (s *Service) Find(ctx context.Context, idOrURL string) (*models.Record, error) {
	id := indexer.WarcID(idOrURL)
	var found *models.Record
	_, err := scan(ctx, s, nil, models.TableRecords, Selection{}, func(_ string, row models.Record) error {
		if row.WarcID == id || row.URL == idOrURL {
			found = &row
			return errStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrURL)
	}
	return found, nil
}
