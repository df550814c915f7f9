package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickspencer/taskhist/internal/config"
	"github.com/patrickspencer/taskhist/internal/eventlog"
	"github.com/patrickspencer/taskhist/internal/history"
	"github.com/patrickspencer/taskhist/internal/store"
	"github.com/patrickspencer/taskhist/internal/tasks"
)

var errArchiveDisabled = errors.New("the archive is disabled (archive.enabled: false)")

// historySource builds the log source selected by cfg. With source "auto" an
// .xml path is read as an export and anything else through wevtutil.
func historySource(cfg *config.Config) (eventlog.Source, error) {
	h := cfg.History
	timeout, err := cfg.HistoryTimeout()
	if err != nil {
		return nil, err
	}
	wevtutil := &eventlog.WevtutilSource{
		Binary:  h.Wevtutil,
		Channel: h.Channel,
		LogFile: h.Path,
		Reverse: h.Reverse,
		Timeout: timeout,
	}

	switch h.Source {
	case "file":
		return &eventlog.FileSource{Path: h.Path}, nil
	case "wevtutil":
		return wevtutil, nil
	default:
		if strings.EqualFold(filepath.Ext(h.Path), ".xml") {
			return &eventlog.FileSource{Path: h.Path}, nil
		}
		return wevtutil, nil
	}
}

// malformedPolicy returns the configured policy, forced to skip when skip is set.
func malformedPolicy(cfg *config.Config, skip bool) (history.Policy, error) {
	if skip {
		return history.SkipMalformed, nil
	}
	return history.ParsePolicy(cfg.History.Malformed)
}

// openArchive opens the SQLite archive, creating its directory. It returns
// errArchiveDisabled when the archive is turned off.
func openArchive(cfg *config.Config) (*store.SQLiteStore, error) {
	if !cfg.Archive.IsEnabled() {
		return nil, errArchiveDisabled
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Archive.Path), 0755); err != nil {
		return nil, fmt.Errorf("create archive directory: %w", err)
	}
	return store.NewSQLiteStore(cfg.Archive.Path)
}

// taskStore builds the task source selected by cfg. archive may be nil unless
// the source is "archive".
func taskStore(cfg *config.Config, archive *store.SQLiteStore) (tasks.Store, error) {
	switch cfg.Tasks.Source {
	case "inventory":
		return &tasks.InventoryStore{Dir: cfg.Tasks.InventoryDir}, nil
	case "archive":
		if archive == nil {
			return nil, errArchiveDisabled
		}
		return archive, nil
	default:
		timeout, err := cfg.TasksTimeout()
		if err != nil {
			return nil, err
		}
		return &tasks.PowerShellStore{Binary: cfg.Tasks.PowerShell, Timeout: timeout}, nil
	}
}

// withTaskStore opens what cfg's task source needs, calls fn and releases it.
func withTaskStore(cfg *config.Config, fn func(tasks.Store) error) error {
	var archive *store.SQLiteStore
	if cfg.Tasks.Source == "archive" {
		var err error
		if archive, err = openArchive(cfg); err != nil {
			return err
		}
		defer archive.Close()
	}
	st, err := taskStore(cfg, archive)
	if err != nil {
		return err
	}
	return fn(st)
}
