package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// InventoryStore reads tasks from a directory tree of YAML files. Each
// subdirectory is a Task Scheduler folder and each *.yaml file one task; the
// inventory root is the "\" folder.
type InventoryStore struct {
	Dir string
}

func (s *InventoryStore) Describe() string {
	return "inventory " + s.Dir
}

type inventoryTask struct {
	Name               string     `yaml:"name"`
	Author             string     `yaml:"author"`
	State              State      `yaml:"state"`
	Enabled            *bool      `yaml:"enabled"`
	NumberOfMissedRuns int        `yaml:"number_of_missed_runs"`
	LastTaskResult     int64      `yaml:"last_task_result"`
	LastRunTime        *time.Time `yaml:"last_run_time,omitempty"`
	NextRunTime        *time.Time `yaml:"next_run_time,omitempty"`
}

// UnmarshalYAML accepts either the numeric code or the state name.
func (s *State) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: task state must be a scalar", value.Line)
	}
	if n, err := strconv.Atoi(value.Value); err == nil {
		*s = State(n)
		return nil
	}
	for _, known := range States {
		if strings.EqualFold(known.String(), value.Value) {
			*s = known
			return nil
		}
	}
	return fmt.Errorf("line %d: unknown task state %q", value.Line, value.Value)
}

// MarshalYAML writes recognized states by name.
func (s State) MarshalYAML() (any, error) {
	if s.Known() {
		return strings.ToLower(s.String()), nil
	}
	return int(s), nil
}

// MarshalTaskYAML writes snap in the inventory file format.
func MarshalTaskYAML(snap TaskSnapshot) ([]byte, error) {
	enabled := snap.Enabled
	return yaml.Marshal(inventoryTask{
		Name:               snap.Name,
		Author:             snap.Author,
		State:              snap.State,
		Enabled:            &enabled,
		NumberOfMissedRuns: snap.NumberOfMissedRuns,
		LastTaskResult:     snap.LastTaskResult,
		LastRunTime:        snap.LastRunTime,
		NextRunTime:        snap.NextRunTime,
	})
}

// WriteExport writes snaps as one multi-document YAML stream, each document in
// the inventory file format preceded by a comment naming the task path.
func WriteExport(w io.Writer, snaps []TaskSnapshot, at time.Time) error {
	if _, err := fmt.Fprintf(w, "# taskhist task export\n# exported_at: %s\n", at.UTC().Format(time.RFC3339)); err != nil {
		return err
	}
	for _, snap := range snaps {
		data, err := MarshalTaskYAML(snap)
		if err != nil {
			return fmt.Errorf("encode %s: %w", snap.Path, err)
		}
		if _, err := fmt.Fprintf(w, "---\n# path: %s\n%s", snap.Path, data); err != nil {
			return err
		}
	}
	return nil
}

// ParseTaskYAML parses one inventory file for a task in folder. name is used
// when the file does not set one.
func ParseTaskYAML(data []byte, folder, name string) (TaskSnapshot, error) {
	var t inventoryTask
	if err := yaml.Unmarshal(data, &t); err != nil {
		return TaskSnapshot{}, err
	}
	if t.Name == "" {
		t.Name = name
	}
	if t.NumberOfMissedRuns < 0 {
		return TaskSnapshot{}, fmt.Errorf("number_of_missed_runs must not be negative")
	}

	snap := TaskSnapshot{
		Name:               t.Name,
		Path:               joinTaskPath(folder, t.Name),
		Author:             t.Author,
		State:              t.State,
		NumberOfMissedRuns: t.NumberOfMissedRuns,
		Enabled:            t.State != StateDisabled,
		LastTaskResult:     t.LastTaskResult,
		LastRunTime:        t.LastRunTime,
		NextRunTime:        t.NextRunTime,
	}
	if t.Enabled != nil {
		snap.Enabled = *t.Enabled
	}
	return snap, nil
}

func joinTaskPath(folder, name string) string {
	if folder == `\` {
		return `\` + name
	}
	return folder + `\` + name
}

// inventoryDir is a pending directory together with its Task Scheduler path.
type inventoryDir struct {
	dir    string
	folder string
}

// walk visits every folder depth-first, in name order, without recursion.
// visit may stop the walk by returning false.
func (s *InventoryStore) walk(ctx context.Context, visit func(d inventoryDir, entries []os.DirEntry) (bool, error)) error {
	stack := []inventoryDir{{dir: s.Dir, folder: `\`}}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		d := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(d.dir)
		if err != nil {
			return fmt.Errorf("read inventory folder %s: %w", d.folder, err)
		}

		more, err := visit(d, entries)
		if err != nil || !more {
			return err
		}

		// Push in reverse so the first subfolder is visited next.
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].IsDir() {
				stack = append(stack, inventoryDir{
					dir:    filepath.Join(d.dir, entries[i].Name()),
					folder: joinTaskPath(d.folder, entries[i].Name()),
				})
			}
		}
	}
	return nil
}

// ListTaskSnapshots implements Store.
func (s *InventoryStore) ListTaskSnapshots(ctx context.Context) ([]TaskSnapshot, error) {
	snaps := []TaskSnapshot{}
	err := s.walk(ctx, func(d inventoryDir, entries []os.DirEntry) (bool, error) {
		for _, entry := range entries {
			name := entry.Name()
			if entry.IsDir() || !strings.HasSuffix(name, ".yaml") {
				continue
			}

			path := filepath.Join(d.dir, name)
			data, err := os.ReadFile(path)
			if err != nil {
				return false, fmt.Errorf("reading %s: %w", path, err)
			}
			snap, err := ParseTaskYAML(data, d.folder, strings.TrimSuffix(name, ".yaml"))
			if err != nil {
				return false, fmt.Errorf("parsing %s: %w", path, err)
			}
			snaps = append(snaps, snap)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return snaps, nil
}

// FindFolder returns the path of the first folder named name, searching
// depth-first from the root. The root itself is not a candidate.
func (s *InventoryStore) FindFolder(ctx context.Context, name string) (string, error) {
	var found string
	err := s.walk(ctx, func(d inventoryDir, _ []os.DirEntry) (bool, error) {
		if d.folder != `\` && filepath.Base(d.dir) == name {
			found = d.folder
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", &UnknownTaskError{Kind: "folder", Name: name}
	}
	return found, nil
}
