// Package catalog ties the registry database to the Parquet artifacts it
// points at. All writes go through Replace so a source file's rows for a
// table type are either absent or complete and match the registry count.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dtnitsch/metawarc/models"
	"github.com/dtnitsch/metawarc/pkg/artifact_manager"
	"github.com/dtnitsch/metawarc/pkg/db"
)

var (
	// ErrCatalogNotFound is returned when a read command finds no catalog.
	ErrCatalogNotFound = db.ErrNotFound
	// ErrArtifactMissing is returned when the registry has no usable
	// artifact for a (source, table type) pair.
	ErrArtifactMissing = errors.New("artifact missing")
	// ErrNotIndexed is returned when a file has no records table yet.
	ErrNotIndexed = errors.New("file not indexed")
)

// Store is the catalog: registries plus artifacts.
type Store struct {
	db        *db.DB
	artifacts *artifact_manager.Manager
	logger    *slog.Logger
}

// New wraps an open registry database and artifact manager.
func New(database *db.DB, artifacts *artifact_manager.Manager, logger *slog.Logger) *Store {
	return &Store{db: database, artifacts: artifacts, logger: logger}
}

// Open opens or creates the catalog described by cfg.
func Open(cfg *models.Config, logger *slog.Logger) (*Store, error) {
	return open(cfg, logger, db.Open)
}

// OpenExisting opens a catalog that must already exist.
func OpenExisting(cfg *models.Config, logger *slog.Logger) (*Store, error) {
	return open(cfg, logger, db.OpenExisting)
}

func open(cfg *models.Config, logger *slog.Logger, openDB func(string) (*db.DB, error)) (*Store, error) {
	database, err := openDB(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	artifacts, err := artifact_manager.NewManager(cfg.DataDir)
	if err != nil {
		database.Close()
		return nil, err
	}
	return New(database, artifacts, logger), nil
}

// Close closes the registry database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the registry database for run bookkeeping.
func (s *Store) DB() *db.DB {
	return s.db
}

// Artifacts returns the artifact layout.
func (s *Store) Artifacts() *artifact_manager.Manager {
	return s.artifacts
}

// UpsertFile records an indexed container file.
func (s *Store) UpsertFile(ctx context.Context, f models.SourceFile) error {
	return s.db.UpsertFile(ctx, f)
}

// Files lists indexed container files.
func (s *Store) Files(ctx context.Context) ([]models.SourceFile, error) {
	return s.db.ListFiles(ctx)
}

// Tables lists registered artifacts, optionally of one table type.
func (s *Store) Tables(ctx context.Context, t models.TableType) ([]models.TableEntry, error) {
	return s.db.ListTables(ctx, t)
}

// Entry returns the registry entry of (source, t), or ErrArtifactMissing.
func (s *Store) Entry(ctx context.Context, source string, t models.TableType) (*models.TableEntry, error) {
	e, err := s.db.GetTable(ctx, source, t)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("%w: no %s table for %s", ErrArtifactMissing, t, source)
	}
	return e, nil
}

// Replace swaps the rows of (source, t) for rows. The new artifact is
// staged beside the old one and only moved into place inside the registry
// transaction; if the commit fails the old artifact is put back, so the
// registry count always describes the file on disk.
func Replace[T any](ctx context.Context, s *Store, source string, t models.TableType, rows []T) error {
	path := s.artifacts.ArtifactPath(source, t)
	staged, err := artifact_manager.Stage(path, rows)
	if err != nil {
		return err
	}
	defer os.Remove(staged) // no-op once renamed into place

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	entry := models.TableEntry{
		Source:    source,
		TableType: t,
		Path:      path,
		ItemCount: int64(len(rows)),
	}
	if err := db.UpsertTableTx(ctx, tx, entry); err != nil {
		_ = tx.Rollback() // Rollback error less important than upsert error
		return err
	}

	restore, err := swapIn(staged, path)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if rerr := restore(); rerr != nil {
			s.logger.Error("failed to restore artifact", "path", path, "error", rerr)
		}
		return fmt.Errorf("failed to commit table entry: %w", err)
	}
	os.Remove(path + ".bak")

	s.logger.Debug("artifact replaced", "source", source, "table", t, "rows", len(rows), "path", path)
	return nil
}

// swapIn renames staged over path, keeping any previous artifact as
// path.bak. The returned func undoes the swap.
func swapIn(staged, path string) (func() error, error) {
	backup := path + ".bak"
	hadOld := true
	if err := os.Rename(path, backup); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to back up artifact: %w", err)
		}
		hadOld = false
	}
	if err := os.Rename(staged, path); err != nil {
		if hadOld {
			_ = os.Rename(backup, path)
		}
		return nil, fmt.Errorf("failed to replace artifact: %w", err)
	}
	return func() error {
		if !hadOld {
			return os.Remove(path)
		}
		return os.Rename(backup, path)
	}, nil
}

// Load reads every row of (source, t).
func Load[T any](ctx context.Context, s *Store, source string, t models.TableType) ([]T, *models.TableEntry, error) {
	e, err := s.Entry(ctx, source, t)
	if err != nil {
		return nil, nil, err
	}
	rows, err := artifact_manager.Read[T](e.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrArtifactMissing, e.Path)
		}
		return nil, nil, err
	}
	return rows, e, nil
}
