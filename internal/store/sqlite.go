package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/patrickspencer/taskhist/internal/eventlog"
	"github.com/patrickspencer/taskhist/internal/history"
	"github.com/patrickspencer/taskhist/internal/tasks"
)

// NewCollectionID generates a new ULID-based collection identifier.
func NewCollectionID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// SQLiteStore implements Archive backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the SQLite database at dbPath and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const timeFormat = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeFormat), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

func parseTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// RecordCollection inserts or updates a collection record.
func (s *SQLiteStore) RecordCollection(ctx context.Context, c *Collection) error {
	if c.ID == "" {
		c.ID = NewCollectionID()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (
			id, kind, source, started_at, finished_at,
			record_count, inserted_count, skipped_count, error_msg, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			record_count = excluded.record_count,
			inserted_count = excluded.inserted_count,
			skipped_count = excluded.skipped_count,
			error_msg = excluded.error_msg`,
		c.ID,
		c.Kind,
		c.Source,
		formatTime(c.StartedAt),
		formatTimePtr(c.FinishedAt),
		c.Records,
		c.Inserted,
		c.Skipped,
		nullString(c.ErrorMsg),
		formatTime(c.CreatedAt),
	)
	return err
}

func (s *SQLiteStore) scanCollection(row interface{ Scan(...any) error }) (*Collection, error) {
	var c Collection
	var startedAt, createdAt string
	var finishedAt, errorMsg sql.NullString

	err := row.Scan(
		&c.ID,
		&c.Kind,
		&c.Source,
		&startedAt,
		&finishedAt,
		&c.Records,
		&c.Inserted,
		&c.Skipped,
		&errorMsg,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	c.StartedAt, err = parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	c.FinishedAt, err = parseTimePtr(finishedAt)
	if err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	if errorMsg.Valid {
		c.ErrorMsg = errorMsg.String
	}
	return &c, nil
}

const selectCollectionCols = `id, kind, source, started_at, finished_at,
	record_count, inserted_count, skipped_count, error_msg, created_at`

// GetCollection retrieves a single collection by ID. It returns nil when no
// collection has that ID.
func (s *SQLiteStore) GetCollection(ctx context.Context, id string) (*Collection, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+selectCollectionCols+" FROM collections WHERE id = ?", id)
	c, err := s.scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ListCollections returns the most recent collections first.
func (s *SQLiteStore) ListCollections(ctx context.Context, limit int) ([]*Collection, error) {
	query := "SELECT " + selectCollectionCols + " FROM collections ORDER BY started_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Collection
	for rows.Next() {
		c, err := s.scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveHistory archives records under collectionID. Entries already archived by
// an earlier collection are ignored. It returns how many rows were added.
func (s *SQLiteStore) SaveHistory(ctx context.Context, collectionID string, records []eventlog.EventRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO history_entries (
			collection_id, timestamp, level_code, event_id, task_name
		) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	inserted := 0
	for _, rec := range records {
		res, err := stmt.ExecContext(ctx, collectionID, rec.Timestamp, rec.LevelCode, rec.EventID, rec.TaskName)
		if err != nil {
			return 0, fmt.Errorf("insert history entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// ListHistory returns archived entries, newest first.
func (s *SQLiteStore) ListHistory(ctx context.Context, opts ListOpts) ([]eventlog.EventRecord, error) {
	query := "SELECT timestamp, level_code, event_id, task_name FROM history_entries"
	var args []any

	if opts.TaskContains != "" {
		// instr is case-sensitive, unlike LIKE.
		query += " WHERE instr(task_name, ?) > 0"
		args = append(args, opts.TaskContains)
	}
	query += " ORDER BY timestamp DESC, id DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += " LIMIT -1"
	}
	if opts.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []eventlog.EventRecord{}
	for rows.Next() {
		var rec eventlog.EventRecord
		if err := rows.Scan(&rec.Timestamp, &rec.LevelCode, &rec.EventID, &rec.TaskName); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// HistoryByTask summarizes the archive per task in order of first archival.
func (s *SQLiteStore) HistoryByTask(ctx context.Context) ([]history.TaskSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			task_name,
			COUNT(*) AS total,
			SUM(CASE WHEN level_code = 2 THEN 1 ELSE 0 END) AS errors,
			SUM(CASE WHEN level_code = 3 THEN 1 ELSE 0 END) AS warnings,
			MAX(timestamp) AS last_seen
		FROM history_entries
		GROUP BY task_name
		ORDER BY MIN(id)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []history.TaskSummary{}
	for rows.Next() {
		var ts history.TaskSummary
		if err := rows.Scan(&ts.TaskName, &ts.Total, &ts.Errors, &ts.Warnings, &ts.LastSeen); err != nil {
			return nil, err
		}
		out = append(out, ts)
	}
	return out, rows.Err()
}

// SaveSnapshots stores the task list read by one collection, keeping its order.
func (s *SQLiteStore) SaveSnapshots(ctx context.Context, collectionID string, snaps []tasks.TaskSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO task_snapshots (
			collection_id, seq, name, path, author, state, missed_runs,
			enabled, last_task_result, last_run_time, next_run_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, snap := range snaps {
		_, err := stmt.ExecContext(ctx,
			collectionID,
			i,
			snap.Name,
			snap.Path,
			snap.Author,
			int(snap.State),
			snap.NumberOfMissedRuns,
			snap.Enabled,
			snap.LastTaskResult,
			formatTimePtr(snap.LastRunTime),
			formatTimePtr(snap.NextRunTime),
		)
		if err != nil {
			return fmt.Errorf("insert task snapshot %s: %w", snap.Path, err)
		}
	}
	return tx.Commit()
}

// ListTaskSnapshots returns the task list of the latest successful snapshot
// collection, or an empty list when there is none. It makes the archive usable
// as a tasks.Store.
func (s *SQLiteStore) ListTaskSnapshots(ctx context.Context) ([]tasks.TaskSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, path, author, state, missed_runs, enabled,
			last_task_result, last_run_time, next_run_time
		FROM task_snapshots
		WHERE collection_id = (
			SELECT id FROM collections
			WHERE kind = ? AND error_msg IS NULL AND finished_at IS NOT NULL
			ORDER BY started_at DESC, id DESC
			LIMIT 1
		)
		ORDER BY seq`, KindSnapshots)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []tasks.TaskSnapshot{}
	for rows.Next() {
		var snap tasks.TaskSnapshot
		var state int
		var lastRun, nextRun sql.NullString
		err := rows.Scan(
			&snap.Name,
			&snap.Path,
			&snap.Author,
			&state,
			&snap.NumberOfMissedRuns,
			&snap.Enabled,
			&snap.LastTaskResult,
			&lastRun,
			&nextRun,
		)
		if err != nil {
			return nil, err
		}
		snap.State = tasks.State(state)
		if snap.LastRunTime, err = parseTimePtr(lastRun); err != nil {
			return nil, fmt.Errorf("parse last_run_time: %w", err)
		}
		if snap.NextRunTime, err = parseTimePtr(nextRun); err != nil {
			return nil, fmt.Errorf("parse next_run_time: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}
