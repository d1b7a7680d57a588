package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/openmined/localsync/internal/client/journal"
	"github.com/openmined/localsync/internal/utils"
	"github.com/spf13/cobra"
)

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect the sync journal",
	}
	cmd.AddCommand(newJournalLsCmd(), newJournalResetCmd())
	return cmd
}

func newJournalLsCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ls [PREFIX]",
		Short: "List journal records, optionally at or below PREFIX",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if _, err := setupLogging(cfg, ""); err != nil {
				return err
			}

			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			if !utils.FileExists(cfg.JournalPath) {
				return fmt.Errorf("no journal at %s", cfg.JournalPath)
			}
			j := journal.New(cfg.JournalPath)
			if err := j.Open(); err != nil {
				return err
			}
			defer j.Close()

			records, err := j.Records(prefix)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, records)
			}

			fmt.Fprintln(out, recordsTable(records))
			fmt.Fprintln(out, lightGray.Render(fmt.Sprintf("%s records", humanize.Comma(int64(len(records))))))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print records as JSON")
	return cmd
}

func newJournalResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Move the sync journal aside so the next run starts from scratch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !utils.FileExists(cfg.JournalPath) {
				return fmt.Errorf("no journal at %s", cfg.JournalPath)
			}

			eng, err := openEngine(cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			// Destroy closes the journal; the engine must not close it twice
			if err := eng.journal.Destroy(); err != nil {
				return err
			}
			eng.journal = nil

			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", yellow.Render("journal reset"), cfg.JournalPath)
			return nil
		},
	}
}

func recordsTable(records []*journal.FileRecord) *table.Table {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		kind, size := "file", humanSize(r.Size)
		if r.IsDirectory {
			kind, size = "dir", "-"
		}
		mtime := "-"
		if !r.ModTime.IsZero() {
			mtime = humanize.Time(r.ModTime)
		}
		etag := r.ETag
		if etag == "" {
			etag = "-"
		}
		rows = append(rows, []string{kind, size, mtime, etag, r.Path})
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(gray).
		Headers("KIND", "SIZE", "MTIME", "ETAG", "PATH").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			cell := lipgloss.NewStyle().Padding(0, 1)
			switch {
			case row == table.HeaderRow:
				return cell.Inherit(bold)
			case col == 0:
				return cell.Inherit(gray)
			case col == 4:
				return cell.Inherit(cyan)
			}
			return cell
		})
}
