package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/patrickspencer/taskhist/internal/collector"
	"github.com/patrickspencer/taskhist/internal/realtime"
	"github.com/patrickspencer/taskhist/internal/store"
)

// newCollector wires the configured sources to archive. The caller closes the
// archive.
func (a *app) newCollector(archive *store.SQLiteStore, broker *realtime.Broker) (*collector.Collector, error) {
	src, err := historySource(a.cfg)
	if err != nil {
		return nil, err
	}
	policy, err := malformedPolicy(a.cfg, false)
	if err != nil {
		return nil, err
	}
	taskSrc, err := taskStore(a.cfg, archive)
	if err != nil {
		return nil, err
	}

	c := &collector.Collector{
		History: src,
		Tasks:   taskSrc,
		Broker:  broker,
		Policy:  policy,
		Log:     a.log,
	}
	if archive != nil {
		c.Archive = archive
	}
	// The archive cannot snapshot itself.
	if a.cfg.Tasks.Source == "archive" {
		c.Tasks = nil
	}
	return c, nil
}

func newCollectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "collect [history|snapshots]",
		Short:     "Run one collection into the archive (both kinds by default)",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{store.KindHistory, store.KindSnapshots},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := ""
			if len(args) == 1 {
				kind = args[0]
				if kind != store.KindHistory && kind != store.KindSnapshots {
					return fmt.Errorf("unknown collection kind %q", kind)
				}
			}

			archive, err := openArchive(a.cfg)
			if err != nil {
				return err
			}
			defer archive.Close()

			c, err := a.newCollector(archive, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			var colls []*store.Collection
			if kind == "" || kind == store.KindHistory {
				coll, err := c.CollectHistory(ctx)
				if err != nil {
					return err
				}
				colls = append(colls, coll)
			}
			if kind == "" || kind == store.KindSnapshots {
				if c.Tasks == nil {
					if kind != "" {
						return fmt.Errorf("snapshots cannot be collected when tasks.source is archive")
					}
				} else {
					coll, _, err := c.CollectSnapshots(ctx)
					if err != nil {
						return err
					}
					colls = append(colls, coll)
				}
			}
			return a.renderCollections(colls)
		},
	}
}

func (a *app) renderCollections(colls []*store.Collection) error {
	if colls == nil {
		colls = []*store.Collection{}
	}
	return a.render(colls, []string{"ID", "Kind", "Source", "Records", "Inserted", "Skipped", "Error"}, func() [][]string {
		rows := make([][]string, 0, len(colls))
		for _, c := range colls {
			rows = append(rows, []string{c.ID, c.Kind, c.Source, itoa(c.Records), itoa(c.Inserted), itoa(c.Skipped), c.ErrorMsg})
		}
		return rows
	})
}
