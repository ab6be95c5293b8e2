package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dtnitsch/metawarc/models"
)

// Run file statuses.
const (
	RunFileOK     = "ok"
	RunFileFailed = "failed"
)

// RunFile is the outcome of one file within a run.
type RunFile struct {
	Filename     string
	Status       string
	Records      int64
	ErrorMessage string
}

// StartRun records the start of an index or extract invocation.
func (db *DB) StartRun(ctx context.Context, command string) (int64, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO runs (command, started_at) VALUES (?, ?)
	`, command, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}
	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get run ID: %w", err)
	}
	return runID, nil
}

// InsertRunFile records the outcome of one file in a run.
func (db *DB) InsertRunFile(ctx context.Context, runID int64, f RunFile) error {
	var msg any
	if f.ErrorMessage != "" {
		msg = f.ErrorMessage
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO run_files (run_id, filename, status, records, error_message)
		VALUES (?, ?, ?, ?, ?)
	`, runID, f.Filename, f.Status, f.Records, msg)
	if err != nil {
		return fmt.Errorf("failed to insert run file: %w", err)
	}
	return nil
}

// FinishRun stores the totals of a run.
func (db *DB) FinishRun(ctx context.Context, runID int64, files int, records int64, failures int) error {
	_, err := db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, file_count = ?, record_count = ?, failure_count = ?
		WHERE run_id = ?
	`, time.Now().UTC(), files, records, failures, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// GetRun retrieves a run by its ID
func (db *DB) GetRun(ctx context.Context, runID int64) (*models.Run, error) {
	run, err := scanRun(db.QueryRowContext(ctx, `
		SELECT run_id, command, started_at, finished_at, file_count, record_count, failure_count
		FROM runs WHERE run_id = ?
	`, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %d not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT run_id, command, started_at, finished_at, file_count, record_count, failure_count
		FROM runs ORDER BY run_id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// GetRunFiles returns the per-file outcomes of a run in insertion order.
func (db *DB) GetRunFiles(ctx context.Context, runID int64) ([]RunFile, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT filename, status, records, error_message
		FROM run_files WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run files: %w", err)
	}
	defer rows.Close()

	var files []RunFile
	for rows.Next() {
		var (
			f   RunFile
			msg sql.NullString
		)
		if err := rows.Scan(&f.Filename, &f.Status, &f.Records, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan run file: %w", err)
		}
		f.ErrorMessage = msg.String
		files = append(files, f)
	}
	return files, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Run, error) {
	var (
		run      models.Run
		finished sql.NullTime
	)
	if err := s.Scan(&run.RunID, &run.Command, &run.StartedAt, &finished, &run.Files, &run.Records, &run.Failures); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
