package main

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/patrickspencer/taskhist/internal/collector"
	"github.com/patrickspencer/taskhist/internal/config"
	"github.com/patrickspencer/taskhist/internal/realtime"
	"github.com/patrickspencer/taskhist/internal/scheduler"
	"github.com/patrickspencer/taskhist/internal/store"
	"github.com/patrickspencer/taskhist/internal/web"
	"github.com/patrickspencer/taskhist/internal/web/api"
)

type serveOptions struct {
	listen      string
	collectNow  bool
	noCollector bool
}

func newServeCmd(a *app) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run scheduled collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context(), &opts)
		},
	}

	cmd.Flags().StringVar(&opts.listen, "listen", "", "listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.collectNow, "collect-now", true, "run both collections once at startup")
	cmd.Flags().BoolVar(&opts.noCollector, "no-collector", false, "serve the API without scheduled collections")
	return cmd
}

func (a *app) serve(ctx context.Context, opts *serveOptions) error {
	if opts.listen != "" {
		a.cfg.Listen = opts.listen
	}

	var archive *store.SQLiteStore
	if a.cfg.Archive.IsEnabled() {
		var err error
		if archive, err = openArchive(a.cfg); err != nil {
			return err
		}
		defer archive.Close()
		a.log.Info().Str("path", a.cfg.Archive.Path).Msg("archive opened")
	}

	broker := realtime.NewBroker()
	c, err := a.newCollector(archive, broker)
	if err != nil {
		return err
	}
	taskSrc, err := taskStore(a.cfg, archive)
	if err != nil {
		return err
	}

	handlers := &api.API{
		Extract:   c.ExtractWith,
		Policy:    c.Policy,
		Tasks:     taskSrc,
		Events:    broker,
		GetConfig: a.configSnapshot,
		CollectHistory: func(ctx context.Context) (*store.Collection, error) {
			return c.CollectHistory(ctx)
		},
	}
	if archive != nil {
		handlers.Archive = archive
	}
	if c.Tasks != nil {
		handlers.CollectSnapshots = func(ctx context.Context) (*store.Collection, error) {
			coll, _, err := c.CollectSnapshots(ctx)
			return coll, err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup

	if !opts.noCollector {
		sched := scheduler.New(a.log)
		if err := c.Schedule(sched, a.cfg.Collector.HistorySchedule, a.cfg.Collector.SnapshotSchedule); err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if opts.collectNow {
				a.collectOnce(ctx, c)
			}
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("scheduler stopped")
			}
		}()
	}

	srv := web.NewServer(a.cfg.Listen, handlers, a.log)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	a.log.Info().Str("listen", a.cfg.Listen).Msg("taskhist started")

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}
	a.log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("http server shutdown")
	}
	wg.Wait()

	a.log.Info().Msg("taskhist stopped")
	return serveErr
}

// collectOnce runs both collections, logging rather than returning failures.
func (a *app) collectOnce(ctx context.Context, c *collector.Collector) {
	if _, err := c.CollectHistory(ctx); err != nil {
		a.log.Error().Err(err).Msg("initial history collection failed")
	}
	if c.Tasks == nil {
		return
	}
	if _, _, err := c.CollectSnapshots(ctx); err != nil {
		a.log.Error().Err(err).Msg("initial snapshot collection failed")
	}
}

func (a *app) configSnapshot() *config.Config {
	cp := *a.cfg
	if a.cfg.Archive.Enabled != nil {
		v := *a.cfg.Archive.Enabled
		cp.Archive.Enabled = &v
	}
	return &cp
}
