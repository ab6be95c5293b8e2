package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtnitsch/metawarc/models"
)

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertFile records an indexed container file.
func (db *DB) UpsertFile(ctx context.Context, f models.SourceFile) error {
	return upsertFile(ctx, db, f)
}

// UpsertFileTx is UpsertFile inside tx.
func UpsertFileTx(ctx context.Context, tx *sql.Tx, f models.SourceFile) error {
	return upsertFile(ctx, tx, f)
}

func upsertFile(ctx context.Context, ex execer, f models.SourceFile) error {
	if f.IndexedAt.IsZero() {
		f.IndexedAt = time.Now().UTC()
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO files (filename, size, records, indexed_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(filename) DO UPDATE SET
			size = excluded.size,
			records = excluded.records,
			indexed_at = excluded.indexed_at
	`, f.Path, f.Size, f.Records, f.IndexedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert file: %w", err)
	}
	return nil
}

// GetFile returns the registry entry for path, or nil if it is not indexed.
func (db *DB) GetFile(ctx context.Context, path string) (*models.SourceFile, error) {
	var f models.SourceFile
	err := db.QueryRowContext(ctx, `
		SELECT filename, size, records, indexed_at FROM files WHERE filename = ?
	`, path).Scan(&f.Path, &f.Size, &f.Records, &f.IndexedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return &f, nil
}

// ListFiles returns all indexed files ordered by path.
func (db *DB) ListFiles(ctx context.Context) ([]models.SourceFile, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT filename, size, records, indexed_at FROM files ORDER BY filename
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	var files []models.SourceFile
	for rows.Next() {
		var f models.SourceFile
		if err := rows.Scan(&f.Path, &f.Size, &f.Records, &f.IndexedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// UpsertTableTx registers the artifact of one (source, table type) pair
// inside tx, replacing any earlier entry for the pair.
func UpsertTableTx(ctx context.Context, tx *sql.Tx, e models.TableEntry) error {
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		DELETE FROM tables WHERE source = ? AND table_type = ? AND path != ?
	`, e.Source, string(e.TableType), e.Path)
	if err != nil {
		return fmt.Errorf("failed to clear table entry: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO tables (path, source, table_type, item_count, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			source = excluded.source,
			table_type = excluded.table_type,
			item_count = excluded.item_count,
			updated_at = excluded.updated_at
	`, e.Path, e.Source, string(e.TableType), e.ItemCount, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert table entry: %w", err)
	}
	return nil
}

// GetTable returns the entry for (source, t), or nil when there is none.
func (db *DB) GetTable(ctx context.Context, source string, t models.TableType) (*models.TableEntry, error) {
	var (
		e  models.TableEntry
		tt string
	)
	err := db.QueryRowContext(ctx, `
		SELECT source, table_type, path, item_count, updated_at
		FROM tables WHERE source = ? AND table_type = ?
	`, source, string(t)).Scan(&e.Source, &tt, &e.Path, &e.ItemCount, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get table entry: %w", err)
	}
	e.TableType = models.TableType(tt)
	return &e, nil
}

// ListTables returns registered artifacts, optionally limited to one table
// type, ordered by source then type.
func (db *DB) ListTables(ctx context.Context, t models.TableType) ([]models.TableEntry, error) {
	query := `SELECT source, table_type, path, item_count, updated_at FROM tables`
	var args []any
	if t != "" {
		query += ` WHERE table_type = ?`
		args = append(args, string(t))
	}
	query += ` ORDER BY source, table_type`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var entries []models.TableEntry
	for rows.Next() {
		var (
			e  models.TableEntry
			tt string
		)
		if err := rows.Scan(&e.Source, &tt, &e.Path, &e.ItemCount, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan table entry: %w", err)
		}
		e.TableType = models.TableType(tt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
