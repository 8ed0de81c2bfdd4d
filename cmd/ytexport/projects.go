package main

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"ytexport/internal/config"
	"ytexport/internal/youtrack"
)

const maxDescriptionWidth = 60

func newProjectsCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:     "projects",
		Short:   "List the projects you can access",
		Aliases: []string{"ls"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.listProjects(cmd.Context(), all)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include archived projects")
	return cmd
}

func (a *app) fetchProjects(ctx context.Context) ([]youtrack.Project, error) {
	client, err := a.connect(ctx)
	if err != nil {
		return nil, err
	}
	return client.AllProjects(ctx, config.ExportSettings().PageSize)
}

func (a *app) listProjects(ctx context.Context, includeArchived bool) error {
	projects, err := a.fetchProjects(ctx)
	if err != nil {
		return err
	}
	if !includeArchived {
		projects = activeProjects(projects)
	}

	_, _ = fmt.Fprintf(a.out, "You are associated to %s projects.\n", successStyle.Render(fmt.Sprint(len(projects))))
	_, _ = fmt.Fprintln(a.out, subtitleStyle.Render("Note: only active projects are exportable"))
	_, _ = fmt.Fprintln(a.out, renderProjectTable(projects))
	return nil
}

// activeProjects drops archived projects, which cannot be fully exported.
func activeProjects(projects []youtrack.Project) []youtrack.Project {
	out := make([]youtrack.Project, 0, len(projects))
	for _, p := range projects {
		if !p.Archived {
			out = append(out, p)
		}
	}
	return out
}

func projectRow(p youtrack.Project) []string {
	active := "Yes"
	if p.Archived {
		active = "No"
	}
	return []string{p.ID, p.Name, active, truncate(singleLine(p.Description), maxDescriptionWidth)}
}

func renderProjectTable(projects []youtrack.Project) string {
	if len(projects) == 0 {
		return subtitleStyle.Render("No projects found.")
	}
	if !colorsEnabled {
		return renderPlainProjectTable(projects)
	}

	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, projectRow(p))
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(dimColor)).
		Headers("ID", "Name", "Active", "Description").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().PaddingLeft(1).PaddingRight(1)
			if row == table.HeaderRow {
				return s.Bold(true).Foreground(textColor)
			}
			if row < 0 || row >= len(projects) {
				return s
			}
			switch col {
			case 0:
				return s.Foreground(secondaryColor)
			case 2:
				if projects[row].Archived {
					return s.Foreground(dimColor)
				}
				return s.Foreground(successColor)
			case 3:
				return s.Foreground(dimColor)
			default:
				return s
			}
		})
	return t.Render()
}

func renderPlainProjectTable(projects []youtrack.Project) string {
	var b strings.Builder
	_, _ = fmt.Fprintf(&b, "%-10s %-30s %-7s %s\n", "ID", "Name", "Active", "Description")
	_, _ = fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 100))
	for _, p := range projects {
		row := projectRow(p)
		_, _ = fmt.Fprintf(&b, "%-10s %-30s %-7s %s\n", row[0], truncate(row[1], 30), row[2], row[3])
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate shortens s to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
