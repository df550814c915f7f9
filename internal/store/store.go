package store

import (
	"context"
	"time"

	"github.com/patrickspencer/taskhist/internal/eventlog"
	"github.com/patrickspencer/taskhist/internal/history"
	"github.com/patrickspencer/taskhist/internal/tasks"
)

// Collection kinds.
const (
	KindHistory   = "history"
	KindSnapshots = "snapshots"
)

// Collection records one pass of the collector over the log or the task list.
type Collection struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"`
	Source     string     `json:"source"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// Records is the number of history entries or snapshots read.
	Records int `json:"records"`
	// Inserted is the number of history entries not already archived.
	Inserted  int       `json:"inserted"`
	Skipped   int       `json:"skipped"`
	ErrorMsg  string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListOpts controls filtering and pagination for history queries.
type ListOpts struct {
	TaskContains string
	Limit        int
	Offset       int
}

// Archive is the interface for persisting and querying collected data.
type Archive interface {
	RecordCollection(ctx context.Context, c *Collection) error
	ListCollections(ctx context.Context, limit int) ([]*Collection, error)
	SaveHistory(ctx context.Context, collectionID string, records []eventlog.EventRecord) (int, error)
	ListHistory(ctx context.Context, opts ListOpts) ([]eventlog.EventRecord, error)
	HistoryByTask(ctx context.Context) ([]history.TaskSummary, error)
	SaveSnapshots(ctx context.Context, collectionID string, snaps []tasks.TaskSnapshot) error
	ListTaskSnapshots(ctx context.Context) ([]tasks.TaskSnapshot, error)
}
