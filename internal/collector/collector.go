// Package collector runs history extractions and task snapshots, archives the
// results and publishes progress.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/patrickspencer/taskhist/internal/codes"
	"github.com/patrickspencer/taskhist/internal/eventlog"
	"github.com/patrickspencer/taskhist/internal/history"
	"github.com/patrickspencer/taskhist/internal/metrics"
	"github.com/patrickspencer/taskhist/internal/realtime"
	"github.com/patrickspencer/taskhist/internal/scheduler"
	"github.com/patrickspencer/taskhist/internal/store"
	"github.com/patrickspencer/taskhist/internal/tasks"
)

// Job names used with the scheduler.
const (
	HistoryJob  = "collect-history"
	SnapshotJob = "collect-snapshots"
)

// Collector holds the collaborators of one taskhist instance. Archive, Broker
// and Tasks are optional.
type Collector struct {
	History eventlog.Source
	Tasks   tasks.Store
	Archive store.Archive
	Broker  *realtime.Broker
	Policy  history.Policy
	Log     zerolog.Logger
}

// Outcome classifies an extraction error for metrics.
func Outcome(err error) string {
	var accessErr *eventlog.LogAccessError
	var malformedErr *eventlog.MalformedRecordError
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.As(err, &accessErr):
		return metrics.OutcomeAccess
	case errors.As(err, &malformedErr):
		return metrics.OutcomeMalformed
	default:
		return metrics.OutcomeError
	}
}

// Extract runs one history extraction and records its metrics. Every call
// opens its own read handle, so concurrent calls are independent.
func (c *Collector) Extract(ctx context.Context) (*history.Result, error) {
	return c.ExtractWith(ctx, c.Policy)
}

// ExtractWith is Extract with an explicit malformed-record policy.
func (c *Collector) ExtractWith(ctx context.Context, policy history.Policy) (*history.Result, error) {
	start := time.Now()
	res, err := history.Extract(ctx, c.History, history.Options{Policy: policy, Logger: c.Log})

	records, skipped := 0, 0
	if res != nil {
		records, skipped = res.Table.Len(), len(res.Skipped)
	}
	metrics.RecordExtraction(Outcome(err), time.Since(start), records, skipped)
	if err != nil {
		return nil, err
	}

	levels := make(map[string]int)
	for _, level := range codes.Levels() {
		text, _ := codes.LevelDescription(level)
		levels[text] = res.Table.CountByLevel(level)
	}
	metrics.UpdateEventLevels(levels)
	return res, nil
}

// CollectHistory extracts the log and archives entries not seen before.
func (c *Collector) CollectHistory(ctx context.Context) (*store.Collection, error) {
	coll := c.begin(ctx, store.KindHistory, c.History.Describe())

	res, err := c.Extract(ctx)
	if err != nil {
		return coll, c.fail(ctx, coll, err)
	}
	coll.Records = res.Table.Len()
	coll.Skipped = len(res.Skipped)

	if c.Archive != nil {
		entries := res.Table.Entries()
		records := make([]eventlog.EventRecord, len(entries))
		for i, e := range entries {
			records[i] = e.EventRecord
		}
		inserted, err := c.Archive.SaveHistory(ctx, coll.ID, records)
		if err != nil {
			return coll, c.fail(ctx, coll, fmt.Errorf("archive history: %w", err))
		}
		coll.Inserted = inserted
		metrics.RecordArchived(inserted)
	}

	return coll, c.finish(ctx, coll)
}

// CollectSnapshots reads the registered tasks, publishes their summary and
// archives the list.
func (c *Collector) CollectSnapshots(ctx context.Context) (*store.Collection, tasks.SummaryStats, error) {
	if c.Tasks == nil {
		return nil, tasks.SummaryStats{}, errors.New("no task store configured")
	}
	coll := c.begin(ctx, store.KindSnapshots, describeStore(c.Tasks))

	snaps, err := c.Tasks.ListTaskSnapshots(ctx)
	if err != nil {
		metrics.RecordSnapshot(metrics.OutcomeError)
		return coll, tasks.SummaryStats{}, c.fail(ctx, coll, err)
	}
	stats := tasks.Aggregate(snaps)
	coll.Records = stats.TaskTotal
	metrics.UpdateTaskStats(stats)

	if c.Archive != nil {
		if err := c.Archive.SaveSnapshots(ctx, coll.ID, snaps); err != nil {
			metrics.RecordSnapshot(metrics.OutcomeError)
			return coll, stats, c.fail(ctx, coll, fmt.Errorf("archive snapshots: %w", err))
		}
	}
	metrics.RecordSnapshot(metrics.OutcomeSuccess)
	return coll, stats, c.finish(ctx, coll)
}

// Schedule registers both collections with s. An empty expression leaves that
// collection unscheduled.
func (c *Collector) Schedule(s *scheduler.Scheduler, historyExpr, snapshotExpr string) error {
	if historyExpr != "" {
		err := s.Add(HistoryJob, historyExpr, func(ctx context.Context) error {
			_, err := c.CollectHistory(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	if snapshotExpr != "" && c.Tasks != nil {
		err := s.Add(SnapshotJob, snapshotExpr, func(ctx context.Context) error {
			_, _, err := c.CollectSnapshots(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func describeStore(s tasks.Store) string {
	if d, ok := s.(interface{ Describe() string }); ok {
		return d.Describe()
	}
	return fmt.Sprintf("%T", s)
}

func (c *Collector) begin(ctx context.Context, kind, source string) *store.Collection {
	coll := &store.Collection{
		ID:        store.NewCollectionID(),
		Kind:      kind,
		Source:    source,
		StartedAt: time.Now().UTC(),
	}
	c.record(ctx, coll)
	c.publish(realtime.CollectionStarted, coll)
	return coll
}

func (c *Collector) finish(ctx context.Context, coll *store.Collection) error {
	now := time.Now().UTC()
	coll.FinishedAt = &now
	if err := c.record(ctx, coll); err != nil {
		return err
	}
	c.Log.Info().
		Str("kind", coll.Kind).
		Str("collection", coll.ID).
		Int("records", coll.Records).
		Int("inserted", coll.Inserted).
		Int("skipped", coll.Skipped).
		Msg("collection finished")
	c.publish(realtime.CollectionFinished, coll)
	return nil
}

func (c *Collector) fail(ctx context.Context, coll *store.Collection, err error) error {
	now := time.Now().UTC()
	coll.FinishedAt = &now
	coll.ErrorMsg = err.Error()
	// Recorded even after cancellation.
	c.record(context.WithoutCancel(ctx), coll)
	c.publish(realtime.CollectionFailed, coll)
	return err
}

func (c *Collector) record(ctx context.Context, coll *store.Collection) error {
	if c.Archive == nil {
		return nil
	}
	if err := c.Archive.RecordCollection(ctx, coll); err != nil {
		c.Log.Error().Err(err).Str("collection", coll.ID).Msg("record collection")
		return fmt.Errorf("record collection: %w", err)
	}
	return nil
}

func (c *Collector) publish(typ string, coll *store.Collection) {
	if c.Broker == nil {
		return
	}
	c.Broker.Publish(realtime.Event{
		Type:         typ,
		Kind:         coll.Kind,
		CollectionID: coll.ID,
		Source:       coll.Source,
		Records:      coll.Records,
		Inserted:     coll.Inserted,
		Skipped:      coll.Skipped,
		Error:        coll.ErrorMsg,
	})
}
