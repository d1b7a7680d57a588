package main

import (
	"fmt"
	"time"

	"github.com/openmined/localsync/internal/client/watcher"
	"github.com/openmined/localsync/internal/client/workspace"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print changes made to the local tree until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := setupLogging(cfg, ""); err != nil {
				return err
			}

			ws, err := workspace.NewWorkspace(cfg.LocalDir)
			if err != nil {
				return err
			}
			ignore := watcher.NewIgnoreList(ws.Root)
			ignore.Load()

			fw := watcher.NewFileWatcher(ws.Root)
			fw.FilterPaths(func(path string) bool {
				return ws.IsMetadataPath(path) || ignore.ShouldIgnore(path)
			})
			if err := fw.Start(cmd.Context()); err != nil {
				return err
			}
			defer fw.Stop()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s\n", bold.Render("watching"), cyan.Render(ws.Root))
			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case event, ok := <-fw.Events():
					if !ok {
						return nil
					}
					fmt.Fprintf(out, "%s %-8s %s\n",
						gray.Render(time.Now().Format(time.TimeOnly)),
						yellow.Render(event.Event().String()),
						displayPath(ws, event.Path()))
				}
			}
		},
	}
}
