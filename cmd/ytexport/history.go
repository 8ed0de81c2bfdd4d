package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"ytexport/internal/config"
	apperrors "ytexport/internal/errors"
	"ytexport/internal/history"
)

const defaultHistoryLimit = 10

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show previous export runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.showHistory(cmd.Context(), limit)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", defaultHistoryLimit, "Maximum number of runs to show (0 shows all)")
	return cmd
}

func (a *app) showHistory(ctx context.Context, limit int) error {
	root := config.ExportSettings().Root
	path := history.PathFor(root)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		_, _ = fmt.Fprintln(a.out, subtitleStyle.Render("No export runs recorded in "+root+" yet."))
		return nil
	}

	store, err := history.Open(path)
	if err != nil {
		return apperrors.New(apperrors.CodeHistory, "Failed to open export history", err)
	}
	defer func() { _ = store.Close() }()

	runs, err := store.Recent(ctx, limit)
	if err != nil {
		return apperrors.New(apperrors.CodeHistory, "Failed to read export history", err)
	}
	_, _ = fmt.Fprintln(a.out, renderHistory(runs))
	return nil
}

func historyRow(run history.Run) []string {
	status := "ok"
	if failed := run.Failed(); failed > 0 {
		status = fmt.Sprintf("%d failed", failed)
	}
	return []string{
		humanize.Time(run.StartedAt),
		formatDuration(run.Duration()),
		strings.Join(run.Items, ","),
		fmt.Sprint(len(run.Projects)),
		humanize.Comma(int64(run.Exported())),
		status,
	}
}

func renderHistory(runs []history.Run) string {
	if len(runs) == 0 {
		return subtitleStyle.Render("No export runs recorded yet.")
	}
	headers := []string{"Started", "Duration", "Items", "Projects", "Issues", "Status"}
	rows := make([][]string, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, historyRow(run))
	}

	if !colorsEnabled {
		var b strings.Builder
		_, _ = fmt.Fprintf(&b, "%-16s %-9s %-40s %-9s %-8s %s\n", "Started", "Duration", "Items", "Projects", "Issues", "Status")
		_, _ = fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 100))
		for _, r := range rows {
			_, _ = fmt.Fprintf(&b, "%-16s %-9s %-40s %-9s %-8s %s\n", r[0], r[1], r[2], r[3], r[4], r[5])
		}
		return strings.TrimRight(b.String(), "\n")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(dimColor)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(textColor)
			}
			if row < 0 || row >= len(runs) {
				return s
			}
			if col == 5 {
				if runs[row].Failed() > 0 {
					return s.Foreground(errorColor)
				}
				return s.Foreground(successColor)
			}
			return s
		})
	return t.Render()
}
