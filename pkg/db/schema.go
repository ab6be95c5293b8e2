package db

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA foreign_keys = ON;
PRAGMA temp_store = MEMORY;

-- Indexed container files, keyed by absolute path
CREATE TABLE IF NOT EXISTS files (
    filename TEXT PRIMARY KEY,
    size INTEGER NOT NULL,
    records INTEGER NOT NULL DEFAULT 0,
    indexed_at TIMESTAMP NOT NULL
);

-- One artifact per (source file, table type)
CREATE TABLE IF NOT EXISTS tables (
    path TEXT PRIMARY KEY,
    source TEXT NOT NULL,
    table_type TEXT NOT NULL,
    item_count INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE(source, table_type)
);

CREATE INDEX IF NOT EXISTS idx_tables_type ON tables(table_type);

-- Index and extract invocations
CREATE TABLE IF NOT EXISTS runs (
    run_id INTEGER PRIMARY KEY AUTOINCREMENT,
    command TEXT NOT NULL,
    started_at TIMESTAMP NOT NULL,
    finished_at TIMESTAMP,
    file_count INTEGER NOT NULL DEFAULT 0,
    record_count INTEGER NOT NULL DEFAULT 0,
    failure_count INTEGER NOT NULL DEFAULT 0
);

-- Per-file outcome of a run
CREATE TABLE IF NOT EXISTS run_files (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id INTEGER NOT NULL,
    filename TEXT NOT NULL,
    status TEXT NOT NULL,
    records INTEGER NOT NULL DEFAULT 0,
    error_message TEXT,
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_run_files_run ON run_files(run_id);
`
