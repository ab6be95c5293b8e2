// Package indexer drives the archive reader, classifier and extractors over
// container files and persists the resulting rows in the catalog.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/catalog"
	"github.com/dtnitsch/metawarc/pkg/classify"
	"github.com/dtnitsch/metawarc/pkg/db"
	"github.com/dtnitsch/metawarc/pkg/extractors"
	"github.com/dtnitsch/metawarc/pkg/metrics"
	"github.com/dtnitsch/metawarc/pkg/warc"
)

// ErrNotIndexed is returned for files without a records table.
var ErrNotIndexed = catalog.ErrNotIndexed

// FileError is a failure scoped to one source file.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e FileError) Unwrap() error { return e.Err }

// Summary reports the outcome of an Index or Extract call.
type Summary struct {
	RunID   int64
	Files   int
	Records int64
	Skipped int
	Failed  []FileError
}

// Options configures an Indexer.
type Options struct {
	Framing       warc.FramingPolicy
	ProgressEvery int
}

// Indexer runs index and extraction passes. It is not safe for concurrent
// use; files and records are processed strictly one after another.
type Indexer struct {
	store   *catalog.Store
	router  *extractors.Router
	logger  *slog.Logger
	metrics *metrics.Metrics
	opts    Options
}

// New creates an Indexer. m may be nil.
func New(store *catalog.Store, router *extractors.Router, logger *slog.Logger, m *metrics.Metrics, opts Options) *Indexer {
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = models.DefaultProgressEvery
	}
	return &Indexer{store: store, router: router, logger: logger, metrics: m, opts: opts}
}

// Index scans every path and replaces its records table plus the requested
// extra tables (headers and document families). A failing file is recorded
// in the summary and the batch continues; only context cancellation stops
// it early.
func (ix *Indexer) Index(ctx context.Context, paths []string, tables []models.TableType) (*Summary, error) {
	wanted := map[models.TableType]bool{models.TableRecords: true}
	for _, t := range tables {
		wanted[t] = true
	}
	return ix.runBatch(ctx, "index", paths, func(ctx context.Context, path string) (int64, int, error) {
		return ix.indexFile(ctx, path, wanted)
	})
}

// Extract runs a secondary pass for one document family table over files
// that already have a records table. With no paths every registered file is
// processed.
func (ix *Indexer) Extract(ctx context.Context, paths []string, table models.TableType) (*Summary, error) {
	family, ok := classify.FamilyForTable(table)
	if !ok {
		return nil, fmt.Errorf("%s is not an extraction table", table)
	}
	if len(paths) == 0 {
		files, err := ix.store.Files(ctx)
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			paths = append(paths, f.Path)
		}
	}
	return ix.runBatch(ctx, "extract "+string(table), paths, func(ctx context.Context, path string) (int64, int, error) {
		n, err := ix.extractFile(ctx, path, family)
		return n, 0, err
	})
}

type fileFunc func(ctx context.Context, path string) (records int64, skipped int, err error)

func (ix *Indexer) runBatch(ctx context.Context, command string, paths []string, fn fileFunc) (*Summary, error) {
	database := ix.store.DB()
	runID, err := database.StartRun(ctx, command)
	if err != nil {
		return nil, err
	}
	sum := &Summary{RunID: runID}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			ix.finishRun(database, sum)
			return sum, err
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}

		start := time.Now()
		n, skipped, err := fn(ctx, abs)
		sum.Skipped += skipped
		rf := db.RunFile{Filename: abs, Status: db.RunFileOK, Records: n}
		if err != nil {
			ix.logger.Error("file failed", "file", abs, "error", err)
			sum.Failed = append(sum.Failed, FileError{Path: abs, Err: err})
			rf.Status = db.RunFileFailed
			rf.ErrorMessage = err.Error()
			ix.countFile("failed")
		} else {
			sum.Files++
			sum.Records += n
			ix.logger.Info("file done", "file", abs, "records", n, "skipped", skipped, "elapsed", time.Since(start).Round(time.Millisecond))
			ix.countFile("ok")
		}
		if err := database.InsertRunFile(context.WithoutCancel(ctx), runID, rf); err != nil {
			ix.logger.Warn("failed to record run file", "file", abs, "error", err)
		}
		if errors.Is(err, context.Canceled) {
			ix.finishRun(database, sum)
			return sum, err
		}
	}

	ix.finishRun(database, sum)
	return sum, nil
}

func (ix *Indexer) finishRun(database *db.DB, sum *Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.FinishRun(ctx, sum.RunID, sum.Files, sum.Records, len(sum.Failed)); err != nil {
		ix.logger.Warn("failed to finish run", "run", sum.RunID, "error", err)
	}
}

func (ix *Indexer) countFile(result string) {
	if ix.metrics != nil {
		ix.metrics.FilesIndexed.WithLabelValues(result).Inc()
	}
}

func (ix *Indexer) indexFile(ctx context.Context, path string, wanted map[models.TableType]bool) (int64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to stat: %w", err)
	}

	r, err := warc.NewReader(f,
		warc.WithFramingPolicy(ix.opts.Framing),
		warc.WithSkipHandler(func(offset int64, err error) {
			ix.logger.Warn("skipping damaged record", "file", path, "offset", offset, "error", err)
			if ix.metrics != nil {
				ix.metrics.FramingSkips.Inc()
			}
		}),
	)
	if err != nil {
		return 0, 0, err
	}

	estimate := estimateRecords(path)
	ix.logger.Info("indexing", "file", path, "size", info.Size(), "estimated_records", estimate, "compressed", r.Compressed())

	buf := newBuffers()
	var scanned int64
	for {
		if err := ctx.Err(); err != nil {
			return 0, r.Skipped(), err
		}
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, r.Skipped(), err
		}
		scanned++
		if ix.metrics != nil {
			ix.metrics.RecordsScanned.Inc()
		}
		if scanned%int64(ix.opts.ProgressEvery) == 0 {
			ix.logger.Info("progress", "file", path, "records", scanned, "estimated_records", estimate)
		}

		if !rec.IsResponse() || rec.HTTP == nil {
			continue
		}
		class := classify.Classify(rec.TargetURI, rec.HTTP.ContentType())
		routed := ix.router.Route(ctx, rec, class, wanted)
		if _, err := rec.Finish(); err != nil {
			// Next applies the framing policy to this record.
			continue
		}

		row := recordRow(path, rec, class)
		buf.records = append(buf.records, row)
		if wanted[models.TableHeaders] {
			buf.headers = append(buf.headers, headerRows(path, row.WarcID, rec.HTTP)...)
		}
		if err := buf.addRouted(path, row, routed); err != nil {
			ix.logger.Warn("failed to encode metadata", "file", path, "offset", row.Offset, "error", err)
		}
	}

	if err := ix.flush(ctx, path, buf, wanted); err != nil {
		return 0, r.Skipped(), err
	}
	if err := ix.store.UpsertFile(ctx, models.SourceFile{
		Path:    path,
		Size:    info.Size(),
		Records: int64(len(buf.records)),
	}); err != nil {
		return 0, r.Skipped(), err
	}
	return int64(len(buf.records)), r.Skipped(), nil
}

// flush replaces every wanted table of path, including empty ones, so the
// registry reflects that the table was built.
func (ix *Indexer) flush(ctx context.Context, path string, buf *buffers, wanted map[models.TableType]bool) error {
	for _, t := range models.AllTableTypes {
		if !wanted[t] {
			continue
		}
		var (
			err error
			n   int
		)
		switch t {
		case models.TableRecords:
			n = len(buf.records)
			err = catalog.Replace(ctx, ix.store, path, t, buf.records)
		case models.TableHeaders:
			n = len(buf.headers)
			err = catalog.Replace(ctx, ix.store, path, t, buf.headers)
		case models.TableLinks:
			n = len(buf.links)
			err = catalog.Replace(ctx, ix.store, path, t, buf.links)
		default:
			n = len(buf.documents[t])
			err = catalog.Replace(ctx, ix.store, path, t, buf.documents[t])
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", t, err)
		}
		if ix.metrics != nil {
			ix.metrics.AddRows(string(t), n)
		}
	}
	return nil
}

func (ix *Indexer) extractFile(ctx context.Context, path string, family classify.Family) (int64, error) {
	records, _, err := catalog.Load[models.Record](ctx, ix.store, path, models.TableRecords)
	if errors.Is(err, catalog.ErrArtifactMissing) {
		return 0, fmt.Errorf("%w: %s", ErrNotIndexed, path)
	}
	if err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open: %w", err)
	}
	defer f.Close()

	table := family.Table()
	wanted := map[models.TableType]bool{table: true}
	buf := newBuffers()
	var processed int64
	for _, row := range records {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if classify.FamilyOf(row.ContentType, row.Ext) != family {
			continue
		}
		rec, err := warc.ReadAt(f, row.Offset)
		if err != nil {
			ix.logger.Warn("failed to re-read record", "file", path, "offset", row.Offset, "error", err)
			continue
		}
		class := classify.Result{
			ContentTypeRaw: row.ContentTypeRaw,
			ContentType:    row.ContentType,
			Charset:        row.Charset,
			Filename:       row.Filename,
			Ext:            row.Ext,
			Family:         family,
		}
		if err := buf.addRouted(path, row, ix.router.Route(ctx, rec, class, wanted)); err != nil {
			ix.logger.Warn("failed to encode metadata", "file", path, "offset", row.Offset, "error", err)
		}
		processed++
	}

	n := len(buf.links)
	if table == models.TableLinks {
		err = catalog.Replace(ctx, ix.store, path, table, buf.links)
	} else {
		n = len(buf.documents[table])
		err = catalog.Replace(ctx, ix.store, path, table, buf.documents[table])
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", table, err)
	}
	if ix.metrics != nil {
		ix.metrics.AddRows(string(table), n)
	}
	return processed, nil
}
