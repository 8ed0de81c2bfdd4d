package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/muesli/reflow/wordwrap"

	"ytexport/internal/export"
	"ytexport/internal/progress"
)

const summaryWrapWidth = 90

// printExportSummary prints one line per project followed by run totals.
// It always ends with "Export complete!", failed projects included.
func printExportSummary(w io.Writer, report *export.Report) {
	duration := formatDuration(report.FinishedAt.Sub(report.StartedAt))
	header := titleStyle.Render("Export summary") +
		countStyle.Render(fmt.Sprintf(" • %d projects • %s • %s", len(report.Results), report.Selection.String(), duration))
	_, _ = fmt.Fprintln(w, header)

	for _, res := range report.Results {
		_, _ = fmt.Fprintln(w, summaryLine(res))
		if res.Err != nil {
			wrapped := wordwrap.String(res.Err.Error(), summaryWrapWidth)
			for _, line := range strings.Split(wrapped, "\n") {
				_, _ = fmt.Fprintln(w, "    "+errorStyle.Render(line))
			}
		}
	}

	failed := len(report.Failed())
	totals := fmt.Sprintf("%s issues exported", humanize.Comma(int64(report.Exported())))
	if failed > 0 {
		totals += ", " + errorStyle.Render(fmt.Sprintf("%d failed", failed))
	}
	_, _ = fmt.Fprintln(w, totals)
	_, _ = fmt.Fprintln(w, successStyle.Bold(true).Render("Export complete!"))
}

func summaryLine(res export.ProjectResult) string {
	name := projectStyle.Render(res.Project.Name)
	switch res.State {
	case progress.StateComplete:
		detail := fmt.Sprintf("%s issues", humanize.Comma(int64(res.Exported)))
		if res.Metadata != nil {
			detail += fmt.Sprintf(" (%s resolved, %s unresolved)",
				humanize.Comma(int64(res.Metadata.ResolvedCount)), humanize.Comma(int64(res.Metadata.UnresolvedCount)))
			if res.Metadata.TotalAttachments > 0 {
				detail += fmt.Sprintf(" • %s attachments", humanize.Comma(int64(res.Metadata.TotalAttachments)))
			}
		}
		if res.Exported < res.Total {
			detail += warnStyle.Render(fmt.Sprintf(" • %d counted", res.Total))
		}
		line := fmt.Sprintf("%s %s %s", successStyle.Render("✓"), name, detail)
		if res.Folder != "" {
			line += countStyle.Render(" → " + res.Folder)
		}
		return line
	case progress.StateHidden:
		return fmt.Sprintf("%s %s %s", countStyle.Render("-"), name, countStyle.Render("no issues to export"))
	default:
		return fmt.Sprintf("%s %s %s", errorStyle.Render("✗"), name, errorStyle.Render("failed"))
	}
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		mins := int(d.Minutes())
		secs := int(d.Seconds()) % 60
		if secs == 0 {
			return fmt.Sprintf("%dm", mins)
		}
		return fmt.Sprintf("%dm %ds", mins, secs)
	}
	hours := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if mins == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, mins)
}
