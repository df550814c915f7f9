package eventlog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// Positions inside <System> and the event payload, following the Windows
// event schema. Provider is 0, EventID 1, Version 2, Level 3, Task 4,
// Opcode 5, Keywords 6, TimeCreated 7.
const (
	systemIndex      = 0
	payloadIndex     = 1
	eventIDIndex     = 1
	levelIndex       = 3
	timeCreatedIndex = 7
	taskNameIndex    = 0
)

// EventRecord is one decoded operational log entry. Values are copied from the
// record as-is; resolving codes to text is left to the caller.
type EventRecord struct {
	Timestamp string `json:"timestamp"`
	LevelCode int    `json:"level_code"`
	EventID   int    `json:"event_id"`
	TaskName  string `json:"task_name"`
}

// Time parses the record timestamp.
func (r EventRecord) Time() (time.Time, error) {
	t, err := dateparse.ParseStrict(r.Timestamp)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", r.Timestamp, err)
	}
	return t, nil
}

// Folder returns the Task Scheduler folder of the task name.
func (r EventRecord) Folder() string {
	return FolderOf(r.TaskName)
}

// FolderOf returns the Task Scheduler folder of a task path: "\A\B\Job" is in
// "\A\B" and "\Job" is in "\". Names without a path have no folder.
func FolderOf(path string) string {
	i := strings.LastIndex(path, `\`)
	switch {
	case i < 0:
		return ""
	case i == 0:
		return `\`
	default:
		return path[:i]
	}
}

// Decode extracts the timestamp, level, event ID and task name from raw.
// position is the zero-based index of the record in its source and is only
// used for error reporting.
func Decode(position int, raw *Node) (EventRecord, error) {
	var rec EventRecord

	system := raw.Child(systemIndex)
	if system == nil {
		return rec, malformed(position, "Event[0]", "missing System element")
	}

	timeCreated, err := expectChild(position, system, timeCreatedIndex, "TimeCreated")
	if err != nil {
		return rec, err
	}
	ts, ok := timeCreated.Attr("SystemTime")
	if !ok || ts == "" {
		return rec, malformed(position, "System[7]@SystemTime", "missing timestamp")
	}
	rec.Timestamp = ts

	level, err := expectChild(position, system, levelIndex, "Level")
	if err != nil {
		return rec, err
	}
	if rec.LevelCode, err = parseCode(position, "System[3]", level.Text); err != nil {
		return rec, err
	}

	eventID, err := expectChild(position, system, eventIDIndex, "EventID")
	if err != nil {
		return rec, err
	}
	if rec.EventID, err = parseCode(position, "System[1]", eventID.Text); err != nil {
		return rec, err
	}

	payload := raw.Child(payloadIndex)
	if payload == nil {
		return rec, malformed(position, "Event[1]", "missing event payload")
	}
	taskName := payload.Child(taskNameIndex)
	if taskName == nil {
		return rec, malformed(position, "Event[1][0]", "missing task name element")
	}
	rec.TaskName = taskName.Text

	return rec, nil
}

func expectChild(position int, parent *Node, index int, name string) (*Node, error) {
	field := fmt.Sprintf("System[%d]", index)
	child := parent.Child(index)
	if child == nil {
		return nil, malformed(position, field, "missing "+name)
	}
	if child.Name != name {
		return nil, malformed(position, field, fmt.Sprintf("expected %s, found %s", name, child.Name))
	}
	return child, nil
}

func parseCode(position int, field, text string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0, &MalformedRecordError{Position: position, Field: field, Reason: fmt.Sprintf("invalid integer %q", text), Err: err}
	}
	return v, nil
}

func malformed(position int, field, reason string) error {
	return &MalformedRecordError{Position: position, Field: field, Reason: reason}
}
