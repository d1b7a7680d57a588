package main

import (
	"fmt"
	"log/slog"

	"github.com/openmined/localsync/internal/client/pipeline"
	"github.com/openmined/localsync/internal/client/propagator"
	"github.com/openmined/localsync/internal/client/watcher"
	"github.com/spf13/cobra"
)

func newApplyCmd() *cobra.Command {
	var (
		only    []string
		skip    []string
		asJSON  bool
		doWatch bool
	)

	cmd := &cobra.Command{
		Use:   "apply PLAN",
		Short: "Apply a plan of remove, mkdir and rename operations to the local tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			plan, err := pipeline.LoadPlan(args[0])
			if err != nil {
				return fmt.Errorf("load plan: %w", err)
			}
			items, err := plan.SyncItems()
			if err != nil {
				return fmt.Errorf("plan %s: %w", args[0], err)
			}
			filter, err := pipeline.NewFilter(only, skip)
			if err != nil {
				return err
			}
			items = filter.Apply(items)

			eng, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			var opts []propagator.ContextOption
			if doWatch {
				fw, err := startWatcher(cmd, eng)
				if err != nil {
					return err
				}
				defer fw.Stop()
				opts = append(opts, propagator.WithTouchedSink(fw))
			}

			runner := pipeline.NewRunner(eng.context(opts...), pipeline.WithWorkers(cfg.Workers))
			report, runErr := runner.Run(cmd.Context(), items)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				printReport(out, report)
			}

			if runErr != nil {
				return runErr
			}
			if !report.OK() {
				return fmt.Errorf("%d of %d items did not complete", report.Failed+report.Cancelled, report.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&only, "only", nil, "Only apply items whose path matches this glob (repeatable)")
	cmd.Flags().StringArrayVar(&skip, "skip", nil, "Skip items whose path matches this glob (repeatable)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the run report as JSON")
	cmd.Flags().BoolVar(&doWatch, "watch", false, "Report changes other processes make to the tree while applying")
	return cmd
}

// startWatcher logs foreign changes seen during the run; the engine's own
// changes arrive through IgnoreOnce and are dropped.
func startWatcher(cmd *cobra.Command, eng *engine) (*watcher.FileWatcher, error) {
	ws := eng.workspace
	ignore := watcher.NewIgnoreList(ws.Root)
	ignore.Load()

	fw := watcher.NewFileWatcher(ws.Root)
	fw.FilterPaths(func(path string) bool {
		return ws.IsMetadataPath(path) || ignore.ShouldIgnore(path)
	})
	if err := fw.Start(cmd.Context()); err != nil {
		return nil, fmt.Errorf("start watcher: %w", err)
	}

	go func() {
		for event := range fw.Events() {
			slog.Warn("external change during apply", "event", event.Event(), "path", displayPath(ws, event.Path()))
		}
	}()
	return fw, nil
}
