package main

import (
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/patrickspencer/taskhist/internal/config"
	"github.com/patrickspencer/taskhist/internal/logging"
)

// app carries the global flags and what PersistentPreRunE builds from them.
type app struct {
	configPath string
	logLevel   string
	output     string

	cfg *config.Config
	log zerolog.Logger
	out io.Writer
}

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "taskhist",
		Short: "Inspect Windows Task Scheduler history and registered tasks",
		Long: `taskhist reads the Task Scheduler operational log and the registered task
list, resolves level, event and state codes to text, and can archive both
into SQLite on a schedule while serving them over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	cmd.PersistentFlags().StringVarP(&a.output, "output", "o", "table", "output format: table or json")

	cmd.AddCommand(
		newHistoryCmd(a),
		newTasksCmd(a),
		newStatsCmd(a),
		newCodesCmd(a),
		newCollectCmd(a),
		newServeCmd(a),
		newWatchdogCmd(a),
	)
	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	switch a.output {
	case "table", "json":
	default:
		return fmt.Errorf("--output must be table or json, got %q", a.output)
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.log = log
	a.out = cmd.OutOrStdout()
	return nil
}
