// Package history turns decoded operational log records into an immutable,
// queryable table with level and event descriptions resolved.
package history

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickspencer/taskhist/internal/codes"
	"github.com/patrickspencer/taskhist/internal/eventlog"
)

// Entry is one history row. Descriptions are nil when the code table has no
// text for the code.
type Entry struct {
	eventlog.EventRecord
	Folder             string  `json:"folder"`
	LevelDescription   *string `json:"level_description"`
	EventIDDescription *string `json:"event_id_description"`
}

// NewEntry resolves the descriptions for rec.
func NewEntry(rec eventlog.EventRecord) Entry {
	e := Entry{EventRecord: rec, Folder: rec.Folder()}
	if text, ok := codes.LevelDescription(rec.LevelCode); ok {
		e.LevelDescription = &text
	}
	if text, ok := codes.EventIDDescription(rec.EventID); ok {
		e.EventIDDescription = &text
	}
	return e
}

// Table is an ordered history. Query methods never modify the receiver; the
// ones returning a *Table build a new one.
type Table struct {
	entries []Entry
}

// NewTable builds a table from records in the order given.
func NewTable(records []eventlog.EventRecord) *Table {
	entries := make([]Entry, len(records))
	for i, rec := range records {
		entries[i] = NewEntry(rec)
	}
	return &Table{entries: entries}
}

func fromEntries(entries []Entry) *Table {
	if entries == nil {
		entries = []Entry{}
	}
	return &Table{entries: entries}
}

// Len returns the number of entries.
func (t *Table) Len() int {
	return len(t.entries)
}

// TotalCount is an alias for Len.
func (t *Table) TotalCount() int {
	return len(t.entries)
}

// Entries returns a copy of the rows.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// At returns the i-th entry. It panics when i is out of range, like a slice.
func (t *Table) At(i int) Entry {
	return t.entries[i]
}

// CountByLevel counts entries with the given level code.
func (t *Table) CountByLevel(level int) int {
	n := 0
	for _, e := range t.entries {
		if e.LevelCode == level {
			n++
		}
	}
	return n
}

// CountByEventID returns how many entries carry each event ID.
func (t *Table) CountByEventID() map[int]int {
	counts := make(map[int]int)
	for _, e := range t.entries {
		counts[e.EventID]++
	}
	return counts
}

// Where returns the entries for which keep reports true, in table order.
func (t *Table) Where(keep func(Entry) bool) *Table {
	var out []Entry
	for _, e := range t.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return fromEntries(out)
}

// Filter keeps entries whose task name contains taskContains (case-sensitive)
// and, when folder is non-empty, whose folder equals it.
func (t *Table) Filter(taskContains, folder string) *Table {
	return t.Where(func(e Entry) bool {
		if !strings.Contains(e.TaskName, taskContains) {
			return false
		}
		return folder == "" || e.Folder == folder
	})
}

// Since keeps entries recorded at or after from. Entries whose timestamp does
// not parse are dropped.
func (t *Table) Since(from time.Time) *Table {
	return t.Where(func(e Entry) bool {
		ts, err := e.Time()
		return err == nil && !ts.Before(from)
	})
}

// SortByTime returns a copy ordered by timestamp. Entries with equal times
// keep their relative order. Every timestamp must parse.
func (t *Table) SortByTime(descending bool) (*Table, error) {
	times := make([]time.Time, len(t.entries))
	for i, e := range t.entries {
		ts, err := e.Time()
		if err != nil {
			return nil, fmt.Errorf("sort history entry %d: %w", i, err)
		}
		times[i] = ts
	}

	idx := make([]int, len(t.entries))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if descending {
			return times[idx[a]].After(times[idx[b]])
		}
		return times[idx[a]].Before(times[idx[b]])
	})

	out := make([]Entry, len(idx))
	for i, j := range idx {
		out[i] = t.entries[j]
	}
	return fromEntries(out), nil
}

// TaskSummary aggregates the history of a single task.
type TaskSummary struct {
	TaskName string `json:"task_name"`
	Total    int    `json:"total"`
	Errors   int    `json:"errors"`
	Warnings int    `json:"warnings"`
	// LastSeen is the latest timestamp recorded for the task, as written in the log.
	LastSeen string `json:"last_seen"`
}

// ByTask summarizes entries per task name in order of first appearance.
func (t *Table) ByTask() []TaskSummary {
	index := make(map[string]int)
	var out []TaskSummary
	var latest []time.Time

	for _, e := range t.entries {
		i, ok := index[e.TaskName]
		if !ok {
			i = len(out)
			index[e.TaskName] = i
			out = append(out, TaskSummary{TaskName: e.TaskName})
			latest = append(latest, time.Time{})
		}
		s := &out[i]
		s.Total++
		switch e.LevelCode {
		case 2:
			s.Errors++
		case 3:
			s.Warnings++
		}
		if ts, err := e.Time(); err == nil && (s.LastSeen == "" || ts.After(latest[i])) {
			latest[i] = ts
			s.LastSeen = e.Timestamp
		}
	}
	return out
}
