package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
	"github.com/openmined/localsync/internal/client/pipeline"
	"github.com/openmined/localsync/internal/client/workspace"
)

var (
	// https://github.com/muesli/termenv/blob/master/ansicolors.go
	red       = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	green     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	yellow    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	cyan      = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	gray      = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	lightGray = lipgloss.NewStyle().Foreground(lipgloss.Color("248"))
	bold      = lipgloss.NewStyle().Bold(true)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReport(w io.Writer, report *pipeline.Report) {
	fmt.Fprintf(w, "%s %s\n", bold.Render("run"), gray.Render(report.RunID))
	fmt.Fprintf(w, "  %s %d  %s %d  %s %d  %s\n",
		green.Render("succeeded"), report.Succeeded,
		red.Render("failed"), report.Failed,
		yellow.Render("cancelled"), report.Cancelled,
		lightGray.Render("in "+report.Duration.Round(time.Millisecond).String()),
	)
	for _, e := range report.Errors {
		fmt.Fprintf(w, "  %s %s %s\n", red.Render("✗"), cyan.Render(string(e.Op)), e.Path)
		fmt.Fprintf(w, "    %s\n", gray.Render(strings.TrimSpace(e.Error)))
	}
}

func humanSize(n int64) string {
	if n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

// displayPath shows paths under the root as logical paths and anything else as is
func displayPath(ws *workspace.Workspace, absPath string) string {
	rel, err := ws.RelPath(absPath)
	if err != nil || workspace.IsOutside(rel) {
		return absPath
	}
	return rel
}
