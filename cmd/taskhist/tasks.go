package main

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickspencer/taskhist/internal/tasks"
)

type tasksOptions struct {
	author string
	folder string
}

func (o *tasksOptions) addFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.author, "author", "", "keep tasks whose author contains this text (case-sensitive)")
	cmd.Flags().StringVar(&o.folder, "folder", "", `keep tasks in exactly this folder, e.g. '\Backups'`)
}

func newTasksCmd(a *app) *cobra.Command {
	var opts tasksOptions

	cmd := &cobra.Command{
		Use:   "tasks [path]",
		Short: "List registered tasks, or show one by path",
		Example: `  # Every task written by a given account
  taskhist tasks --author 'CORP\svc-backup'

  # One task
  taskhist tasks '\Backups\Daily'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTaskStore(a.cfg, func(st tasks.Store) error {
				snaps, err := st.ListTaskSnapshots(cmd.Context())
				if err != nil {
					return err
				}
				if len(args) == 1 {
					snap, err := tasks.Find(snaps, args[0])
					if err != nil {
						return err
					}
					snaps = []tasks.TaskSnapshot{snap}
				} else {
					snaps = tasks.Filter(snaps, opts.author, opts.folder)
				}
				return a.renderTasks(snaps)
			})
		},
	}
	opts.addFlags(cmd)

	cmd.AddCommand(newTasksExportCmd(a), newTasksFolderCmd(a))
	return cmd
}

func newTasksExportCmd(a *app) *cobra.Command {
	var opts tasksOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the task list as multi-document YAML in the inventory format",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTaskStore(a.cfg, func(st tasks.Store) error {
				snaps, err := st.ListTaskSnapshots(cmd.Context())
				if err != nil {
					return err
				}
				return tasks.WriteExport(a.out, tasks.Filter(snaps, opts.author, opts.folder), time.Now())
			})
		},
	}
	opts.addFlags(cmd)
	return cmd
}

type folderFinder interface {
	FindFolder(ctx context.Context, name string) (string, error)
}

func newTasksFolderCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "folder <name>",
		Short: "Print the path of the first folder with the given name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withTaskStore(a.cfg, func(st tasks.Store) error {
				finder, ok := st.(folderFinder)
				if !ok {
					return errors.New("folder lookup needs tasks.source: inventory")
				}
				path, err := finder.FindFolder(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return a.render(map[string]string{"name": args[0], "path": path}, []string{"Name", "Path"}, func() [][]string {
					return [][]string{{args[0], path}}
				})
			})
		},
	}
}

func (a *app) renderTasks(snaps []tasks.TaskSnapshot) error {
	if snaps == nil {
		snaps = []tasks.TaskSnapshot{}
	}
	return a.render(snaps, []string{"Path", "State", "Enabled", "Missed", "Last Run", "Last Result", "Next Run", "Author"}, func() [][]string {
		rows := make([][]string, 0, len(snaps))
		for _, s := range snaps {
			result := strconv.FormatInt(s.LastTaskResult, 10)
			if text := s.ResultDescription(); text != "" {
				result = text
			}
			rows = append(rows, []string{
				s.Path,
				s.State.String(),
				strconv.FormatBool(s.Enabled),
				itoa(s.NumberOfMissedRuns),
				formatTime(s.LastRunTime),
				result,
				formatTime(s.NextRunTime),
				s.Author,
			})
		}
		return rows
	})
}

type statsOutput struct {
	TaskTotal       int            `json:"task_total"`
	MissedRunsTotal int            `json:"missed_runs_total"`
	CountByState    map[string]int `json:"count_by_state"`
	Unrecognized    int            `json:"unrecognized"`
}

func newStatsCmd(a *app) *cobra.Command {
	var opts tasksOptions

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Summarize registered tasks by state and missed runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withTaskStore(a.cfg, func(st tasks.Store) error {
				snaps, err := st.ListTaskSnapshots(cmd.Context())
				if err != nil {
					return err
				}
				return a.renderStats(tasks.Aggregate(tasks.Filter(snaps, opts.author, opts.folder)))
			})
		},
	}
	opts.addFlags(cmd)
	return cmd
}

func (a *app) renderStats(stats tasks.SummaryStats) error {
	out := statsOutput{
		TaskTotal:       stats.TaskTotal,
		MissedRunsTotal: stats.MissedRunsTotal,
		CountByState:    make(map[string]int, len(stats.CountByState)),
		Unrecognized:    stats.Unrecognized,
	}
	for state, n := range stats.CountByState {
		out.CountByState[state.String()] = n
	}

	return a.render(out, []string{"Metric", "Value"}, func() [][]string {
		rows := [][]string{
			{"tasks", itoa(stats.TaskTotal)},
			{"missed runs", itoa(stats.MissedRunsTotal)},
		}
		for _, state := range tasks.States {
			rows = append(rows, []string{state.String(), itoa(stats.CountByState[state])})
		}
		return append(rows, []string{"UNRECOGNIZED", itoa(stats.Unrecognized)})
	})
}
