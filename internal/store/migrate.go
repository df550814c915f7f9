package store

import "database/sql"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS collections (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    source TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    record_count INTEGER NOT NULL DEFAULT 0,
    inserted_count INTEGER NOT NULL DEFAULT 0,
    skipped_count INTEGER NOT NULL DEFAULT 0,
    error_msg TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now'))
);
CREATE INDEX IF NOT EXISTS idx_collections_kind_started ON collections(kind, started_at);

CREATE TABLE IF NOT EXISTS history_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    collection_id TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    level_code INTEGER NOT NULL,
    event_id INTEGER NOT NULL,
    task_name TEXT NOT NULL,
    UNIQUE (timestamp, event_id, task_name, level_code)
);
CREATE INDEX IF NOT EXISTS idx_history_task_name ON history_entries(task_name);
CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history_entries(timestamp);

CREATE TABLE IF NOT EXISTS task_snapshots (
    collection_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    name TEXT NOT NULL,
    path TEXT NOT NULL,
    author TEXT NOT NULL,
    state INTEGER NOT NULL,
    missed_runs INTEGER NOT NULL,
    enabled INTEGER NOT NULL,
    last_task_result INTEGER NOT NULL,
    last_run_time TEXT,
    next_run_time TEXT,
    PRIMARY KEY (collection_id, seq)
);
`

// RunMigrations applies the database schema migrations.
func RunMigrations(db *sql.DB) error {
	_, err := db.Exec(migrationSQL)
	return err
}
