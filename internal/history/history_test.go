package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrickspencer/taskhist/internal/eventlog"
)

// fakeSource serves pre-built records and remembers whether it was closed.
type fakeSource struct {
	records []*eventlog.Node
	openErr error
	// failAt makes Next return failErr once that many records were served.
	failAt  int
	failErr error
	closed  bool
}

func (s *fakeSource) Describe() string { return "fake" }

func (s *fakeSource) Open(context.Context) (eventlog.Iterator, error) {
	if s.openErr != nil {
		return nil, s.openErr
	}
	return &fakeIterator{src: s}, nil
}

type fakeIterator struct {
	src *fakeSource
	pos int
}

func (it *fakeIterator) Next() (eventlog.RawRecord, error) {
	if it.src.failErr != nil && it.pos == it.src.failAt {
		return nil, it.src.failErr
	}
	if it.pos >= len(it.src.records) {
		return nil, io.EOF
	}
	rec := it.src.records[it.pos]
	it.pos++
	return rec, nil
}

func (it *fakeIterator) Close() error {
	it.src.closed = true
	return nil
}

func rawEvent(t *testing.T, level, eventID int, taskName, ts string) *eventlog.Node {
	t.Helper()
	doc := fmt.Sprintf(`<Event>
  <System>
    <Provider Name="Microsoft-Windows-TaskScheduler"/>
    <EventID>%d</EventID>
    <Version>0</Version>
    <Level>%d</Level>
    <Task>%d</Task>
    <Opcode>0</Opcode>
    <Keywords>0x8000000000000000</Keywords>
    <TimeCreated SystemTime="%s"/>
  </System>
  <EventData>
    <Data Name="TaskName">%s</Data>
  </EventData>
</Event>`, eventID, level, eventID, ts, taskName)
	node, err := eventlog.ParseRecord([]byte(doc))
	require.NoError(t, err)
	return node
}

func brokenEvent(t *testing.T) *eventlog.Node {
	t.Helper()
	node, err := eventlog.ParseRecord([]byte(`<Event><System><EventID>1</EventID></System></Event>`))
	require.NoError(t, err)
	return node
}

func rec(level, eventID int, taskName, ts string) eventlog.EventRecord {
	return eventlog.EventRecord{Timestamp: ts, LevelCode: level, EventID: eventID, TaskName: taskName}
}

func TestExtractResolvesDescriptions(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: []*eventlog.Node{
		rawEvent(t, 2, 101, "Job1", "2024-01-01T00:00:00Z"),
	}}
	res, err := Extract(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.True(t, src.closed)
	require.Equal(t, 1, res.Table.TotalCount())

	e := res.Table.At(0)
	assert.Equal(t, rec(2, 101, "Job1", "2024-01-01T00:00:00Z"), e.EventRecord)
	require.NotNil(t, e.LevelDescription)
	assert.Equal(t, "ERROR", *e.LevelDescription)
	require.NotNil(t, e.EventIDDescription)
	assert.Equal(t, "Task Scheduler failed to start the task.", *e.EventIDDescription)
}

func TestExtractUnresolvedCodesAreNull(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: []*eventlog.Node{
		rawEvent(t, 9, 999, "Job1", "2024-01-01T00:00:00Z"),
	}}
	res, err := Extract(context.Background(), src, Options{})
	require.NoError(t, err)

	e := res.Table.At(0)
	assert.Equal(t, 9, e.LevelCode)
	assert.Equal(t, 999, e.EventID)
	assert.Nil(t, e.LevelDescription)
	assert.Nil(t, e.EventIDDescription)

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"timestamp": "2024-01-01T00:00:00Z",
		"level_code": 9,
		"event_id": 999,
		"task_name": "Job1",
		"folder": "",
		"level_description": null,
		"event_id_description": null
	}`, string(data))
}

func TestExtractEmptySource(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	res, err := Extract(context.Background(), src, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Table.TotalCount())
	assert.Empty(t, res.Skipped)
	assert.True(t, src.closed)
}

func TestExtractPreservesSourceOrder(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: []*eventlog.Node{
		rawEvent(t, 4, 102, "C", "2024-01-03T00:00:00Z"),
		rawEvent(t, 4, 102, "A", "2024-01-01T00:00:00Z"),
		rawEvent(t, 4, 102, "B", "2024-01-02T00:00:00Z"),
	}}
	res, err := Extract(context.Background(), src, Options{})
	require.NoError(t, err)

	var names []string
	for _, e := range res.Table.Entries() {
		names = append(names, e.TaskName)
	}
	assert.Equal(t, []string{"C", "A", "B"}, names)
}

func TestExtractAccessDenied(t *testing.T) {
	t.Parallel()

	src := &fakeSource{openErr: &eventlog.LogAccessError{Path: "fake", Err: os.ErrPermission}}
	res, err := Extract(context.Background(), src, Options{})
	assert.Nil(t, res)

	var accessErr *eventlog.LogAccessError
	require.True(t, errors.As(err, &accessErr))
	assert.True(t, errors.Is(err, os.ErrPermission))
}

func TestExtractReadFailureMidStream(t *testing.T) {
	t.Parallel()

	src := &fakeSource{
		records: []*eventlog.Node{rawEvent(t, 4, 100, "A", "2024-01-01T00:00:00Z")},
		failAt:  1,
		failErr: &eventlog.LogAccessError{Path: "fake", Err: errors.New("device error")},
	}
	for _, policy := range []Policy{FailFast, SkipMalformed} {
		src.closed = false
		res, err := Extract(context.Background(), src, Options{Policy: policy})
		assert.Nil(t, res)
		var accessErr *eventlog.LogAccessError
		assert.True(t, errors.As(err, &accessErr), "policy %s", policy)
		assert.True(t, src.closed)
	}
}

func TestExtractFailFast(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: []*eventlog.Node{
		rawEvent(t, 4, 100, "A", "2024-01-01T00:00:00Z"),
		brokenEvent(t),
		rawEvent(t, 4, 102, "A", "2024-01-01T00:01:00Z"),
	}}
	res, err := Extract(context.Background(), src, Options{Policy: FailFast})
	assert.Nil(t, res)
	assert.True(t, src.closed)

	var malformedErr *eventlog.MalformedRecordError
	require.True(t, errors.As(err, &malformedErr))
	assert.Equal(t, 1, malformedErr.Position)
}

func TestExtractSkipMalformed(t *testing.T) {
	t.Parallel()

	src := &fakeSource{records: []*eventlog.Node{
		brokenEvent(t),
		rawEvent(t, 4, 100, "A", "2024-01-01T00:00:00Z"),
		brokenEvent(t),
		rawEvent(t, 4, 102, "A", "2024-01-01T00:01:00Z"),
	}}
	res, err := Extract(context.Background(), src, Options{Policy: SkipMalformed})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Table.Len())
	require.Len(t, res.Skipped, 2)
	assert.Equal(t, 0, res.Skipped[0].Position)
	assert.Equal(t, 2, res.Skipped[1].Position)
}

func TestExtractCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{records: []*eventlog.Node{rawEvent(t, 4, 100, "A", "2024-01-01T00:00:00Z")}}
	res, err := Extract(ctx, src, Options{})
	assert.Nil(t, res)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, src.closed)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailFast, p)

	p, err = ParsePolicy("skip")
	require.NoError(t, err)
	assert.Equal(t, SkipMalformed, p)

	_, err = ParsePolicy("ignore")
	assert.Error(t, err)
}

func TestFilterByTaskName(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{
		rec(4, 102, "DailyBackupJob", "2024-01-01T00:00:00Z"),
		rec(4, 102, "Cleanup", "2024-01-01T00:01:00Z"),
	})

	got := table.Filter("Backup", "")
	require.Equal(t, 1, got.TotalCount())
	assert.Equal(t, "DailyBackupJob", got.At(0).TaskName)
	assert.Equal(t, 2, table.TotalCount())

	assert.Equal(t, 0, table.Filter("backup", "").TotalCount())
}

func TestFilterByFolder(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{
		rec(4, 102, `\Backups\DailyBackupJob`, "2024-01-01T00:00:00Z"),
		rec(4, 102, `\Backups\Nested\WeeklyBackupJob`, "2024-01-01T00:01:00Z"),
		rec(4, 102, `\DailyBackupJob`, "2024-01-01T00:02:00Z"),
	})

	got := table.Filter("Backup", `\Backups`)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, `\Backups\DailyBackupJob`, got.At(0).TaskName)

	assert.Equal(t, 1, table.Filter("", `\`).Len())
	assert.Equal(t, 0, table.Filter("", `\Missing`).Len())
}

func TestCounts(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{
		rec(2, 101, "A", "2024-01-01T00:00:00Z"),
		rec(4, 100, "A", "2024-01-01T00:01:00Z"),
		rec(4, 102, "A", "2024-01-01T00:02:00Z"),
		rec(3, 153, "B", "2024-01-01T00:03:00Z"),
		rec(4, 100, "B", "2024-01-01T00:04:00Z"),
	})

	assert.Equal(t, 1, table.CountByLevel(2))
	assert.Equal(t, 1, table.CountByLevel(3))
	assert.Equal(t, 3, table.CountByLevel(4))
	assert.Equal(t, 0, table.CountByLevel(1))
	assert.Equal(t, map[int]int{100: 2, 101: 1, 102: 1, 153: 1}, table.CountByEventID())
}

func TestEntriesReturnsCopy(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{rec(4, 100, "A", "2024-01-01T00:00:00Z")})
	entries := table.Entries()
	entries[0].TaskName = "changed"
	assert.Equal(t, "A", table.At(0).TaskName)
}

func TestSortByTime(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{
		rec(4, 100, "B", "2024-01-02T00:00:00Z"),
		rec(4, 100, "A1", "2024-01-01T00:00:00Z"),
		rec(4, 100, "C", "2024-01-03T00:00:00.5Z"),
		rec(4, 100, "A2", "2024-01-01T00:00:00Z"),
	})

	asc, err := table.SortByTime(false)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "A2", "B", "C"}, taskNames(asc))

	desc, err := table.SortByTime(true)
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A1", "A2"}, taskNames(desc))

	assert.Equal(t, []string{"B", "A1", "C", "A2"}, taskNames(table))
}

func TestSortByTimeRejectsBadTimestamp(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{
		rec(4, 100, "A", "2024-01-01T00:00:00Z"),
		rec(4, 100, "B", "not a time"),
	})
	_, err := table.SortByTime(false)
	assert.Error(t, err)
}

func TestSince(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{
		rec(4, 100, "old", "2024-01-01T00:00:00Z"),
		rec(4, 100, "edge", "2024-01-02T00:00:00Z"),
		rec(4, 100, "new", "2024-01-03T00:00:00Z"),
	})
	got := table.Since(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, []string{"edge", "new"}, taskNames(got))
}

func TestByTask(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{
		rec(4, 100, "B", "2024-01-01T00:05:00Z"),
		rec(2, 101, "A", "2024-01-01T00:00:00Z"),
		rec(3, 153, "B", "2024-01-01T00:09:00Z"),
		rec(4, 102, "B", "2024-01-01T00:07:00Z"),
	})

	assert.Equal(t, []TaskSummary{
		{TaskName: "B", Total: 3, Warnings: 1, LastSeen: "2024-01-01T00:09:00Z"},
		{TaskName: "A", Total: 1, Errors: 1, LastSeen: "2024-01-01T00:00:00Z"},
	}, table.ByTask())
}

func taskNames(t *Table) []string {
	out := []string{}
	for _, e := range t.Entries() {
		out = append(out, e.TaskName)
	}
	return out
}

func TestQueryApply(t *testing.T) {
	t.Parallel()

	table := NewTable([]eventlog.EventRecord{
		{Timestamp: "2024-01-01T00:00:00Z", LevelCode: 4, EventID: 100, TaskName: `\Backups\Daily`},
		{Timestamp: "2024-01-01T00:00:05Z", LevelCode: 2, EventID: 101, TaskName: `\Backups\Daily`},
		{Timestamp: "2024-01-01T00:00:03Z", LevelCode: 4, EventID: 102, TaskName: `\Cleanup`},
	})

	all, err := Query{}.Apply(table)
	require.NoError(t, err)
	assert.Equal(t, 3, all.Len())
	assert.True(t, Query{}.Unfiltered())

	info := 4
	got, err := Query{Level: &info, Sort: "desc"}.Apply(table)
	require.NoError(t, err)
	require.Equal(t, 2, got.Len())
	assert.Equal(t, `\Cleanup`, got.At(0).TaskName)

	since := time.Date(2024, 1, 1, 0, 0, 1, 0, time.UTC)
	id := 101
	q := Query{Task: "Daily", Folder: `\Backups`, EventID: &id, Since: &since}
	assert.False(t, q.Unfiltered())
	got, err = q.Apply(table)
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())
	assert.Equal(t, 2, got.At(0).LevelCode)
}
