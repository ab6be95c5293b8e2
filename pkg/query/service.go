// Package query answers list, dump, fetch and stats questions over the
// catalog. Each file's artifact is resolved through the registry, loaded,
// and narrowed by the selection in a scratch SQLite database.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/catalog"
)

// ResultSet is the outcome of List.
type ResultSet struct {
	Table   models.TableType
	Columns []string
	Rows    [][]any
	// Skipped lists files that had no usable artifact for Table.
	Skipped []string
}

// Service runs queries against one catalog.
type Service struct {
	store  *catalog.Store
	logger *slog.Logger
}

// New creates a query service.
func New(store *catalog.Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// List returns the rows of table t matching sel across files. With no files
// every registered file is queried, in registry order.
func (s *Service) List(ctx context.Context, files []string, t models.TableType, sel Selection) (*ResultSet, error) {
	rs := &ResultSet{Table: t, Columns: models.ColumnNames(t)}
	collect := func(_ string, row models.Row) error {
		rs.Rows = append(rs.Rows, row.Values())
		return nil
	}

	var err error
	switch {
	case t == models.TableRecords:
		rs.Skipped, err = scan(ctx, s, files, t, sel, func(src string, r models.Record) error { return collect(src, r) })
	case t == models.TableHeaders:
		rs.Skipped, err = scan(ctx, s, files, t, sel, func(src string, r models.HeaderProperty) error { return collect(src, r) })
	case t == models.TableLinks:
		rs.Skipped, err = scan(ctx, s, files, t, sel, func(src string, r models.Link) error { return collect(src, r) })
	case t.IsDocumentTable():
		rs.Skipped, err = scan(ctx, s, files, t, sel, func(src string, r models.DocumentMetadata) error { return collect(src, r) })
	default:
		return nil, fmt.Errorf("unknown table type: %q", t)
	}
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// Records returns the records rows matching sel.
func (s *Service) Records(ctx context.Context, files []string, sel Selection) ([]models.Record, error) {
	var out []models.Record
	_, err := scan(ctx, s, files, models.TableRecords, sel, func(_ string, r models.Record) error {
		out = append(out, r)
		return nil
	})
	return out, err
}

// errStop ends a scan early without reporting an error.
var errStop = errors.New("stop")

// scan visits the rows of t selected by sel, file by file. Offset and Limit
// count across files. Unfiltered scans skip whole files by their registered
// item count without loading them.
func scan[T models.Row](ctx context.Context, s *Service, files []string, t models.TableType, sel Selection, visit func(source string, row T) error) ([]string, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	var where *FilterResult
	if sel.Filtered() {
		w, err := sel.where(t)
		if err != nil {
			return nil, err
		}
		where = w
	}

	sources, err := s.resolve(ctx, files)
	if err != nil {
		return nil, err
	}

	var eng *engine
	defer func() {
		if eng != nil {
			eng.Close()
		}
	}()

	var skipped []string
	remaining, taken := sel.Offset, 0
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return skipped, err
		}

		if where == nil {
			e, err := s.store.Entry(ctx, src, t)
			if errors.Is(err, catalog.ErrArtifactMissing) {
				s.logger.Warn("skipping file without artifact", "file", src, "table", t)
				skipped = append(skipped, src)
				continue
			}
			if err != nil {
				return skipped, err
			}
			if int64(remaining) >= e.ItemCount {
				remaining -= int(e.ItemCount)
				continue
			}
		}

		rows, _, err := catalog.Load[T](ctx, s.store, src, t)
		if errors.Is(err, catalog.ErrArtifactMissing) {
			s.logger.Warn("skipping file without artifact", "file", src, "table", t, "error", err)
			skipped = append(skipped, src)
			continue
		}
		if err != nil {
			return skipped, fmt.Errorf("failed to load %s for %s: %w", t, src, err)
		}

		var idx []int
		if where == nil {
			idx = make([]int, len(rows))
			for i := range idx {
				idx[i] = i
			}
		} else {
			if eng == nil {
				if eng, err = newEngine(); err != nil {
					return skipped, err
				}
			}
			if idx, err = eng.match(ctx, t, asRows(rows), where); err != nil {
				return skipped, err
			}
		}

		for _, i := range idx {
			if remaining > 0 {
				remaining--
				continue
			}
			if err := visit(src, rows[i]); err != nil {
				if errors.Is(err, errStop) {
					return skipped, nil
				}
				return skipped, err
			}
			taken++
			if sel.Limit > 0 && taken >= sel.Limit {
				return skipped, nil
			}
		}
	}
	return skipped, nil
}

// resolve turns the requested files into registry keys.
func (s *Service) resolve(ctx context.Context, files []string) ([]string, error) {
	if len(files) == 0 {
		registered, err := s.store.Files(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(registered))
		for i, f := range registered {
			out[i] = f.Path
		}
		return out, nil
	}
	out := make([]string, len(files))
	for i, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", f, err)
		}
		out[i] = abs
	}
	return out, nil
}
