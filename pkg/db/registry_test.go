package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/dtnitsch/metawarc/models"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	// Use in-memory database for tests
	database := &DB{path: ":memory:"}
	var err error
	database.DB, err = openDB(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := database.InitSchema(); err != nil {
		t.Fatalf("failed to initialize schema: %v", err)
	}

	return database
}

func TestOpenExisting_Missing(t *testing.T) {
	_, err := OpenExisting(filepath.Join(t.TempDir(), "nope.db"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("OpenExisting() error = %v, want ErrNotFound", err)
	}
}

func TestOpen_CreatesSchemaOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	ctx := context.Background()
	if err := db.UpsertFile(ctx, models.SourceFile{Path: "/data/a.warc.gz", Size: 10, Records: 2}); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	db.Close()

	db, err = OpenExisting(path)
	if err != nil {
		t.Fatalf("OpenExisting() error = %v", err)
	}
	defer db.Close()

	files, err := db.ListFiles(ctx)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("ListFiles() = %d files, want 1", len(files))
	}
}

func TestUpsertFile(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	if err := db.UpsertFile(ctx, models.SourceFile{Path: "/data/a.warc", Size: 100, Records: 3}); err != nil {
		t.Fatalf("UpsertFile() error = %v", err)
	}
	if err := db.UpsertFile(ctx, models.SourceFile{Path: "/data/a.warc", Size: 120, Records: 4}); err != nil {
		t.Fatalf("UpsertFile() second call error = %v", err)
	}

	f, err := db.GetFile(ctx, "/data/a.warc")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if f == nil {
		t.Fatal("GetFile() = nil, want entry")
	}
	if f.Size != 120 || f.Records != 4 {
		t.Errorf("GetFile() = size %d records %d, want 120 and 4", f.Size, f.Records)
	}
	if f.IndexedAt.IsZero() {
		t.Error("GetFile() IndexedAt is zero")
	}

	missing, err := db.GetFile(ctx, "/data/b.warc")
	if err != nil {
		t.Fatalf("GetFile() error = %v", err)
	}
	if missing != nil {
		t.Errorf("GetFile() = %+v, want nil", missing)
	}
}

func TestUpsertTable_ReplacesPerSourceAndType(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	upsert := func(e models.TableEntry) {
		t.Helper()
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if err := UpsertTableTx(ctx, tx, e); err != nil {
			tx.Rollback()
			t.Fatalf("UpsertTableTx() error = %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("Commit() error = %v", err)
		}
	}

	upsert(models.TableEntry{Source: "/a.warc", TableType: models.TableRecords, Path: "/d/a/records.parquet", ItemCount: 3})
	upsert(models.TableEntry{Source: "/a.warc", TableType: models.TableRecords, Path: "/d/a/records.parquet", ItemCount: 5})
	upsert(models.TableEntry{Source: "/a.warc", TableType: models.TableLinks, Path: "/d/a/links.parquet", ItemCount: 2})
	upsert(models.TableEntry{Source: "/b.warc", TableType: models.TableRecords, Path: "/d/b/records.parquet", ItemCount: 1})
	// A moved artifact replaces the old entry for the pair.
	upsert(models.TableEntry{Source: "/b.warc", TableType: models.TableRecords, Path: "/d/b2/records.parquet", ItemCount: 1})

	e, err := db.GetTable(ctx, "/a.warc", models.TableRecords)
	if err != nil {
		t.Fatalf("GetTable() error = %v", err)
	}
	if e == nil || e.ItemCount != 5 {
		t.Fatalf("GetTable() = %+v, want item count 5", e)
	}

	all, err := db.ListTables(ctx, "")
	if err != nil {
		t.Fatalf("ListTables() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListTables() = %d entries, want 3", len(all))
	}

	records, err := db.ListTables(ctx, models.TableRecords)
	if err != nil {
		t.Fatalf("ListTables(records) error = %v", err)
	}
	if len(records) != 2 || records[1].Path != "/d/b2/records.parquet" {
		t.Errorf("ListTables(records) = %+v", records)
	}

	none, err := db.GetTable(ctx, "/a.warc", models.TablePDFs)
	if err != nil {
		t.Fatalf("GetTable() error = %v", err)
	}
	if none != nil {
		t.Errorf("GetTable(pdfs) = %+v, want nil", none)
	}
}

func TestRuns(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	runID, err := db.StartRun(ctx, "index")
	if err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	if runID == 0 {
		t.Fatal("StartRun() returned 0 run ID")
	}

	run, err := db.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.FinishedAt != nil {
		t.Error("unfinished run has FinishedAt")
	}

	if err := db.InsertRunFile(ctx, runID, RunFile{Filename: "/a.warc", Status: RunFileOK, Records: 3}); err != nil {
		t.Fatalf("InsertRunFile() error = %v", err)
	}
	if err := db.InsertRunFile(ctx, runID, RunFile{Filename: "/b.warc", Status: RunFileFailed, ErrorMessage: "truncated"}); err != nil {
		t.Fatalf("InsertRunFile() error = %v", err)
	}
	if err := db.FinishRun(ctx, runID, 2, 3, 1); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	run, err = db.GetRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.Command != "index" || run.Files != 2 || run.Records != 3 || run.Failures != 1 {
		t.Errorf("GetRun() = %+v", run)
	}
	if run.FinishedAt == nil || run.FinishedAt.Before(run.StartedAt.Add(-time.Second)) {
		t.Errorf("GetRun() FinishedAt = %v", run.FinishedAt)
	}

	files, err := db.GetRunFiles(ctx, runID)
	if err != nil {
		t.Fatalf("GetRunFiles() error = %v", err)
	}
	if len(files) != 2 || files[1].ErrorMessage != "truncated" || files[0].ErrorMessage != "" {
		t.Errorf("GetRunFiles() = %+v", files)
	}

	if _, err := db.StartRun(ctx, "extract"); err != nil {
		t.Fatalf("StartRun() error = %v", err)
	}
	runs, err := db.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].Command != "extract" {
		t.Errorf("ListRuns() = %+v", runs)
	}

	if _, err := db.GetRun(ctx, 999); err == nil {
		t.Error("GetRun(999) error = nil, want not found")
	}
}
