// Package tasks reads the set of registered Task Scheduler tasks and
// summarizes it.
package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickspencer/taskhist/internal/codes"
	"github.com/patrickspencer/taskhist/internal/eventlog"
)

// State is the Task Scheduler task state code.
type State int

const (
	StateUnknown State = iota
	StateDisabled
	StateQueued
	StateReady
	StateRunning
)

// States lists the recognized state codes in order.
var States = []State{StateUnknown, StateDisabled, StateQueued, StateReady, StateRunning}

// Known reports whether s is one of the recognized codes.
func (s State) Known() bool {
	_, ok := codes.StateDescription(int(s))
	return ok
}

func (s State) String() string {
	if text, ok := codes.StateDescription(int(s)); ok {
		return text
	}
	return fmt.Sprintf("STATE(%d)", int(s))
}

// TaskSnapshot is a point-in-time read of one registered task.
type TaskSnapshot struct {
	Name               string     `json:"name" yaml:"name"`
	Path               string     `json:"path" yaml:"path"`
	Author             string     `json:"author" yaml:"author"`
	State              State      `json:"state" yaml:"state"`
	NumberOfMissedRuns int        `json:"number_of_missed_runs" yaml:"number_of_missed_runs"`
	Enabled            bool       `json:"enabled" yaml:"enabled"`
	LastTaskResult     int64      `json:"last_task_result" yaml:"last_task_result"`
	LastRunTime        *time.Time `json:"last_run_time,omitempty" yaml:"last_run_time,omitempty"`
	NextRunTime        *time.Time `json:"next_run_time,omitempty" yaml:"next_run_time,omitempty"`
}

// Folder returns the folder holding the task.
func (s TaskSnapshot) Folder() string {
	return eventlog.FolderOf(s.Path)
}

// ResultDescription resolves LastTaskResult, or returns "" when the code is
// not in the table.
func (s TaskSnapshot) ResultDescription() string {
	text, _ := codes.ResultDescription(s.LastTaskResult)
	return text
}

// Store enumerates the registered tasks.
type Store interface {
	ListTaskSnapshots(ctx context.Context) ([]TaskSnapshot, error)
}

// UnknownTaskError reports a task or folder name that is not registered.
type UnknownTaskError struct {
	Kind string
	Name string
}

func (e *UnknownTaskError) Error() string {
	kind := e.Kind
	if kind == "" {
		kind = "task"
	}
	return fmt.Sprintf("%s %q not found", kind, e.Name)
}

// Filter keeps the snapshots whose author contains authorContains and, when
// folder is non-empty, that live directly in folder. Input order is kept.
func Filter(snaps []TaskSnapshot, authorContains, folder string) []TaskSnapshot {
	out := []TaskSnapshot{}
	for _, s := range snaps {
		if !strings.Contains(s.Author, authorContains) {
			continue
		}
		if folder != "" && s.Folder() != folder {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Find returns the task registered at path. A bare name without a folder
// matches a task of that name in the root folder.
func Find(snaps []TaskSnapshot, path string) (TaskSnapshot, error) {
	want := path
	if !strings.HasPrefix(want, `\`) {
		want = `\` + want
	}
	for _, s := range snaps {
		if s.Path == want || s.Path == path {
			return s, nil
		}
	}
	return TaskSnapshot{}, &UnknownTaskError{Kind: "task", Name: path}
}
