package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"ytexport/internal/config"
	"ytexport/internal/debug"
	apperrors "ytexport/internal/errors"
	"ytexport/internal/export"
	"ytexport/internal/history"
	"ytexport/internal/progress"
	"ytexport/internal/youtrack"
)

// exportRequest is what the user asked for on the command line. Empty
// fields are prompted for when attached to a terminal.
type exportRequest struct {
	all      bool
	projects []string
	items    []string
	hasItems bool
}

func newExportCmd(a *app) *cobra.Command {
	var req exportRequest
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export issues, comments and attachments of active projects",
		Example: "  ytexport export --all\n" +
			"  ytexport export --project DEMO --project \"Web Site\" --items unresolved,comments",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.hasItems = cmd.Flags().Changed("items")
			if req.all && len(req.projects) > 0 {
				return apperrors.New(apperrors.CodeMalformedInput, "--all and --project cannot be combined", nil)
			}
			return a.runExport(cmd.Context(), req)
		},
	}
	cmd.Flags().BoolVar(&req.all, "all", false, "Export every active project")
	cmd.Flags().StringArrayVarP(&req.projects, "project", "p", nil, "Project ID, short name, name or \"<name> | ID:<id>\" label (repeatable)")
	cmd.Flags().StringSliceVarP(&req.items, "items", "i", nil, "Categories to export: unresolved,resolved,comments,attachments (default all)")
	return cmd
}

func (a *app) runExport(ctx context.Context, req exportRequest) error {
	client, err := a.connect(ctx)
	if err != nil {
		return err
	}
	projects, err := client.AllProjects(ctx, config.ExportSettings().PageSize)
	if err != nil {
		return err
	}

	var labels []string
	switch {
	case req.all:
		labels = projectLabels(activeProjects(projects))
	case len(req.projects) > 0:
		if labels, err = resolveProjectLabels(projects, req.projects); err != nil {
			return err
		}
	case a.interactive:
		if labels, err = promptProjects(activeProjects(projects)); err != nil {
			return err
		}
		if labels == nil {
			return nil
		}
	default:
		return apperrors.New(apperrors.CodeMalformedInput, "No projects selected: pass --all or --project", nil)
	}
	if len(labels) == 0 {
		_, _ = fmt.Fprintln(a.out, errorStyle.Render("No projects were selected."))
		return nil
	}

	var sel youtrack.Selection
	switch {
	case req.hasItems:
		if sel, err = youtrack.ParseSelection(req.items); err != nil {
			return err
		}
	case a.interactive:
		if sel, err = promptItems(len(labels)); err != nil {
			return err
		}
	default:
		sel = youtrack.NewSelection(youtrack.AllExportItems...)
	}
	if sel.Empty() {
		_, _ = fmt.Fprintln(a.out, errorStyle.Render("No export items were selected."))
		return nil
	}

	return a.exportProjects(ctx, client, projects, labels, sel)
}

// exportProjects runs the orchestrator with the right display, then prints
// the summary and records the run.
func (a *app) exportProjects(ctx context.Context, client *youtrack.Client, known []youtrack.Project, labels []string, sel youtrack.Selection) error {
	settings := config.ExportSettings()

	var reporter progress.Reporter
	stop := func() {}
	if a.interactive {
		display := newExportDisplay(a.out, fmt.Sprintf("Exporting %d projects to %s", len(labels), settings.Root))
		reporter = display
		stop = display.Stop
	} else {
		reporter = newPlainReporter(a.out)
	}

	orch := export.NewOrchestrator(client, export.Options{
		Root:         settings.Root,
		BatchSize:    settings.BatchSize,
		PageSize:     settings.PageSize,
		Concurrency:  settings.Concurrency,
		MaxAttempts:  settings.MaxAttempts,
		PollingDelay: settings.PollingDelay,
		Reporter:     reporter,
		Known:        known,
	})
	report, err := orch.Run(ctx, labels, sel)
	stop()
	if err != nil {
		return err
	}

	printExportSummary(a.out, report)
	a.recordRun(ctx, client.BaseURL(), settings.Root, report)

	if ctx.Err() != nil {
		return apperrors.New(apperrors.CodeCancelled, "Export interrupted", ctx.Err())
	}
	if failed := len(report.Failed()); failed > 0 {
		return apperrors.New(apperrors.CodeExport, fmt.Sprintf("%d of %d projects failed to export", failed, len(report.Results)), nil)
	}
	return nil
}

// recordRun stores the run in the history ledger. Failures only warn: the
// exported files are already on disk.
func (a *app) recordRun(ctx context.Context, baseURL, root string, report *export.Report) {
	if len(report.Results) == 0 {
		return
	}
	store, err := history.Open(history.PathFor(root))
	if err != nil {
		a.warnHistory(err)
		return
	}
	defer func() { _ = store.Close() }()

	if err := store.Record(context.WithoutCancel(ctx), history.FromReport(baseURL, report)); err != nil {
		a.warnHistory(err)
	}
}

func (a *app) warnHistory(err error) {
	err = apperrors.Wrap(apperrors.CodeHistory, "Could not record export history", err)
	debug.Logf("%v", err)
	_, _ = fmt.Fprintln(a.out, warnStyle.Render("Warning: "+err.Error()))
}

func projectLabels(projects []youtrack.Project) []string {
	labels := make([]string, 0, len(projects))
	for _, p := range projects {
		labels = append(labels, p.Label())
	}
	return labels
}

// resolveProjectLabels maps --project values to labels. A value may be a
// full label, an ID, a short name or a name (case-insensitive).
func resolveProjectLabels(projects []youtrack.Project, values []string) ([]string, error) {
	labels := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if strings.Contains(value, youtrack.LabelDelimiter) {
			labels = append(labels, value)
			continue
		}
		p, ok := findProject(projects, value)
		if !ok {
			return nil, apperrors.New(apperrors.CodeMalformedInput, fmt.Sprintf("unknown project %q", value), nil)
		}
		if p.Archived {
			return nil, apperrors.New(apperrors.CodeMalformedInput, fmt.Sprintf("project %q is archived and cannot be exported", p.Name), nil)
		}
		labels = append(labels, p.Label())
	}
	return labels, nil
}

func findProject(projects []youtrack.Project, value string) (youtrack.Project, bool) {
	for _, p := range projects {
		if p.ID == value {
			return p, true
		}
	}
	for _, p := range projects {
		if strings.EqualFold(p.ShortName, value) || strings.EqualFold(p.Name, value) {
			return p, true
		}
	}
	return youtrack.Project{}, false
}

const (
	scopeEverything = "everything"
	scopeSpecific   = "specific"
	scopeBack       = "back"
)

// promptProjects asks which active projects to export. A nil result means
// the user went back.
func promptProjects(projects []youtrack.Project) ([]string, error) {
	scope := scopeEverything
	err := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("What active projects would you like to export?").
			Options(
				huh.NewOption("Everything", scopeEverything),
				huh.NewOption("Specific projects", scopeSpecific),
				huh.NewOption("<< Back", scopeBack),
			).
			Value(&scope),
	)).Run()
	if err != nil {
		return nil, err
	}

	labels := projectLabels(projects)
	switch scope {
	case scopeBack:
		return nil, nil
	case scopeEverything:
		return labels, nil
	}

	options := make([]huh.Option[string], 0, len(labels))
	for _, label := range labels {
		options = append(options, huh.NewOption(label, label))
	}
	chosen := []string{}
	err = huh.NewForm(huh.NewGroup(
		huh.NewMultiSelect[string]().
			Title("Select the projects you would like to export:").
			Options(options...).
			Filterable(true).
			Value(&chosen),
	)).Run()
	if err != nil {
		return nil, err
	}
	return chosen, nil
}

func promptItems(projectCount int) (youtrack.Selection, error) {
	options := make([]huh.Option[youtrack.ExportItem], 0, len(youtrack.AllExportItems))
	for _, item := range youtrack.AllExportItems {
		options = append(options, huh.NewOption(item.Label(), item))
	}
	var chosen []youtrack.ExportItem
	err := huh.NewForm(huh.NewGroup(
		huh.NewMultiSelect[youtrack.ExportItem]().
			Title(fmt.Sprintf("What would you like to export from these %d projects?", projectCount)).
			Options(options...).
			Value(&chosen),
	)).Run()
	if err != nil {
		return youtrack.Selection{}, err
	}
	return youtrack.NewSelection(chosen...), nil
}
