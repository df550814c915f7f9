package main

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickspencer/taskhist/internal/command"
)

type watchdogOptions struct {
	apiURL     string
	restartCmd string
	timeout    time.Duration
}

func newWatchdogCmd(a *app) *cobra.Command {
	var opts watchdogOptions

	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Check a running taskhist server and optionally restart it",
		Long: `watchdog requests /api/v1/health once. When the server is unhealthy and
--restart-cmd is set, the command is run through the system shell and the
watchdog succeeds if the restart succeeds. Intended to run from Task Scheduler.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.watchdog(cmd.Context(), &opts)
		},
	}

	cmd.Flags().StringVar(&opts.apiURL, "api", "http://localhost:8080", "taskhist API URL")
	cmd.Flags().StringVar(&opts.restartCmd, "restart-cmd", "", "command to run if unhealthy")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 5*time.Second, "health check timeout")
	return cmd
}

func (a *app) watchdog(ctx context.Context, opts *watchdogOptions) error {
	err := checkHealth(ctx, strings.TrimRight(opts.apiURL, "/")+"/api/v1/health", opts.timeout)
	if err == nil {
		a.log.Debug().Str("api", opts.apiURL).Msg("server healthy")
		return nil
	}
	a.log.Warn().Err(err).Str("api", opts.apiURL).Msg("health check failed")
	if opts.restartCmd == "" {
		return err
	}

	a.log.Info().Str("cmd", opts.restartCmd).Msg("attempting restart")
	name, args := shellCommand(opts.restartCmd)
	out, runErr := command.Output(ctx, name, args, nil)
	if len(out) > 0 {
		_, _ = a.out.Write(out)
	}
	if runErr != nil {
		return fmt.Errorf("restart command failed: %w", runErr)
	}
	return nil
}

func checkHealth(ctx context.Context, url string, timeout time.Duration) error {
	client := &http.Client{Timeout: timeout}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

func shellCommand(line string) (string, []string) {
	if runtime.GOOS == "windows" {
		return "cmd.exe", []string{"/C", line}
	}
	return "sh", []string{"-c", line}
}
