package query

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dtnitsch/metawarc/models"
)

// scratchTable holds one file's rows while a predicate runs over them.
const scratchTable = "scratch"

// engine evaluates predicates against rows loaded into an in-memory SQLite
// database. Rows are tagged with their position so matches map back to the
// loaded slice.
type engine struct {
	db *sql.DB
}

func newEngine() (*engine, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open scratch database: %w", err)
	}
	// Each connection to :memory: is its own database.
	sqlDB.SetMaxOpenConns(1)
	return &engine{db: sqlDB}, nil
}

func (e *engine) Close() error {
	return e.db.Close()
}

// match returns the positions of rows satisfying where, in row order.
func (e *engine) match(ctx context.Context, t models.TableType, rows []models.Row, where *FilterResult) ([]int, error) {
	if err := e.load(ctx, t, rows); err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT _idx FROM %s WHERE %s ORDER BY _idx", scratchTable, where.WhereClause)
	res, err := e.db.QueryContext(ctx, query, where.Args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}
	defer res.Close()

	var out []int
	for res.Next() {
		var idx int
		if err := res.Scan(&idx); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		out = append(out, idx)
	}
	return out, res.Err()
}

func (e *engine) load(ctx context.Context, t models.TableType, rows []models.Row) error {
	cols := models.Columns(t)
	defs := make([]string, 0, len(cols)+1)
	names := make([]string, 0, len(cols)+1)
	marks := make([]string, 0, len(cols)+1)
	defs = append(defs, "_idx INTEGER PRIMARY KEY")
	names = append(names, "_idx")
	marks = append(marks, "?")
	for _, c := range cols {
		defs = append(defs, quoteIdent(c.Name)+" "+c.Type)
		names = append(names, quoteIdent(c.Name))
		marks = append(marks, "?")
	}

	if _, err := e.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+scratchTable); err != nil {
		return fmt.Errorf("failed to reset scratch table: %w", err)
	}
	if _, err := e.db.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", scratchTable, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create scratch table: %w", err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // No-op after commit

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		scratchTable, strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols)+1)
	for i, row := range rows {
		args[0] = i
		copy(args[1:], row.Values())
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("failed to load row %d: %w", i, err)
		}
	}
	return tx.Commit()
}

func asRows[T models.Row](in []T) []models.Row {
	out := make([]models.Row, len(in))
	for i, r := range in {
		out[i] = r
	}
	return out
}
