package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/patrickspencer/taskhist/internal/history"
	"github.com/patrickspencer/taskhist/internal/store"
)

type historyOptions struct {
	query         history.Query
	level         int
	eventID       int
	since         string
	source        string
	logPath       string
	limit         int
	skipMalformed bool
	byTask        bool
}

func newHistoryCmd(a *app) *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the Task Scheduler operational history",
		Example: `  # Every entry for tasks under \Backups, newest first
  taskhist history --folder '\Backups' --sort desc

  # Errors only, read from an exported log
  taskhist history --log operational.xml --level 2

  # Per-task summary from the archive
  taskhist history --source archive --by-task`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.resolve(cmd); err != nil {
				return err
			}
			return a.runHistory(cmd, &opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.query.Task, "task", "", "keep entries whose task name contains this text (case-sensitive)")
	f.StringVar(&opts.query.Folder, "folder", "", `keep entries in exactly this folder, e.g. '\Backups' or '\'`)
	f.IntVar(&opts.level, "level", 0, "keep entries with this level code (2 error, 3 warning, 4 information)")
	f.IntVar(&opts.eventID, "event-id", 0, "keep entries with this event ID")
	f.StringVar(&opts.since, "since", "", "keep entries recorded at or after this time")
	f.StringVar(&opts.query.Sort, "sort", "", "sort by time: asc or desc (default log order)")
	f.StringVar(&opts.source, "source", "live", "read the live log or the archive: live or archive")
	f.StringVar(&opts.logPath, "log", "", "read this .evtx or .xml file instead of the configured log")
	f.IntVar(&opts.limit, "limit", 0, "show at most this many entries (0 for all)")
	f.BoolVar(&opts.skipMalformed, "skip-malformed", false, "skip malformed records instead of failing")
	f.BoolVar(&opts.byTask, "by-task", false, "summarize entries per task")
	return cmd
}

// resolve turns the raw flag values into the query.
func (o *historyOptions) resolve(cmd *cobra.Command) error {
	switch o.query.Sort {
	case "", "asc", "desc":
	default:
		return fmt.Errorf("--sort must be asc or desc, got %q", o.query.Sort)
	}
	switch o.source {
	case "live", "archive":
	default:
		return fmt.Errorf("--source must be live or archive, got %q", o.source)
	}
	if o.limit < 0 {
		return fmt.Errorf("--limit must not be negative")
	}
	if cmd.Flags().Changed("level") {
		o.query.Level = &o.level
	}
	if cmd.Flags().Changed("event-id") {
		o.query.EventID = &o.eventID
	}
	if o.since != "" {
		t, err := dateparse.ParseIn(o.since, time.Local)
		if err != nil {
			return fmt.Errorf("--since: %w", err)
		}
		o.query.Since = &t
	}
	return nil
}

func (a *app) runHistory(cmd *cobra.Command, opts *historyOptions) error {
	ctx := cmd.Context()
	var table *history.Table

	if opts.source == "archive" {
		archive, err := openArchive(a.cfg)
		if err != nil {
			return err
		}
		defer archive.Close()

		if opts.byTask && opts.query.Unfiltered() {
			summary, err := archive.HistoryByTask(ctx)
			if err != nil {
				return err
			}
			return a.renderSummary(summary)
		}
		records, err := archive.ListHistory(ctx, store.ListOpts{TaskContains: opts.query.Task})
		if err != nil {
			return err
		}
		table = history.NewTable(records)
	} else {
		if opts.logPath != "" {
			a.cfg.History.Path = opts.logPath
			if a.cfg.History.Source == "wevtutil" {
				a.cfg.History.Source = "auto"
			}
		}
		src, err := historySource(a.cfg)
		if err != nil {
			return err
		}
		policy, err := malformedPolicy(a.cfg, opts.skipMalformed)
		if err != nil {
			return err
		}

		res, err := history.Extract(ctx, src, history.Options{Policy: policy, Logger: a.log})
		if err != nil {
			return err
		}
		if n := len(res.Skipped); n > 0 {
			a.log.Warn().Int("skipped", n).Msg("malformed records were skipped")
		}
		table = res.Table
	}

	table, err := opts.query.Apply(table)
	if err != nil {
		return err
	}
	if opts.byTask {
		return a.renderSummary(table.ByTask())
	}

	entries := table.Entries()
	if opts.limit > 0 && len(entries) > opts.limit {
		entries = entries[:opts.limit]
	}
	return a.render(entries, []string{"Time", "Level", "Event", "Task", "Description"}, func() [][]string {
		rows := make([][]string, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, []string{
				e.Timestamp,
				textOr(e.LevelDescription, strconv.Itoa(e.LevelCode)),
				strconv.Itoa(e.EventID),
				e.TaskName,
				textOr(e.EventIDDescription, "-"),
			})
		}
		return rows
	})
}

func (a *app) renderSummary(summary []history.TaskSummary) error {
	if summary == nil {
		summary = []history.TaskSummary{}
	}
	return a.render(summary, []string{"Task", "Total", "Errors", "Warnings", "Last Seen"}, func() [][]string {
		rows := make([][]string, 0, len(summary))
		for _, s := range summary {
			rows = append(rows, []string{s.TaskName, itoa(s.Total), itoa(s.Errors), itoa(s.Warnings), s.LastSeen})
		}
		return rows
	})
}
