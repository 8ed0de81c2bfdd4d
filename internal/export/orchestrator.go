// Package export runs the per-project export pipeline: count polling,
// paginated issue retrieval, batch files, attachments and metadata.
package export

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ytexport/internal/debug"
	apperrors "ytexport/internal/errors"
	"ytexport/internal/progress"
	"ytexport/internal/youtrack"
)

// API is everything a pipeline needs from the server.
type API interface {
	Counter
	IssueSource
}

// Options tunes a run. Zero values fall back to defaults; Concurrency 0
// runs every project at once.
type Options struct {
	Root         string
	BatchSize    int
	PageSize     int
	Concurrency  int
	MaxAttempts  int
	PollingDelay time.Duration
	Reporter     progress.Reporter
	// Known holds server project records; parsed labels take their short
	// names from it by ID.
	Known []youtrack.Project
}

// ProjectResult is the tagged outcome of one pipeline.
type ProjectResult struct {
	Project  youtrack.Project
	State    progress.State
	Total    int
	Exported int
	Metadata *Metadata
	Folder   string
	Duration time.Duration
	Err      error
}

// Report collects every pipeline outcome of a run, in input order.
type Report struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Selection  youtrack.Selection
	Results    []ProjectResult
}

// Succeeded returns results that completed or had nothing to export.
func (r *Report) Succeeded() []ProjectResult {
	var out []ProjectResult
	for _, res := range r.Results {
		if res.Err == nil {
			out = append(out, res)
		}
	}
	return out
}

// Failed returns results that ended in the error state.
func (r *Report) Failed() []ProjectResult {
	var out []ProjectResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Exported sums the issues written across projects.
func (r *Report) Exported() int {
	total := 0
	for _, res := range r.Results {
		total += res.Exported
	}
	return total
}

// Orchestrator fans out one pipeline per project.
type Orchestrator struct {
	api  API
	opts Options
	now  func() time.Time
}

// NewOrchestrator builds an orchestrator sharing api across pipelines.
func NewOrchestrator(api API, opts Options) *Orchestrator {
	if opts.Root == "" {
		opts.Root = "exports"
	}
	if opts.Reporter == nil {
		opts.Reporter = progress.Discard
	}
	return &Orchestrator{api: api, opts: opts, now: time.Now}
}

// Run parses the project labels, then exports every project concurrently.
// Malformed labels fail before any I/O. A failing project never cancels
// its siblings; its error is recorded on its ProjectResult instead.
func (o *Orchestrator) Run(ctx context.Context, rawProjects []string, sel youtrack.Selection) (*Report, error) {
	projects, err := ParseProjects(rawProjects)
	if err != nil {
		return nil, err
	}

	projects = withShortNames(projects, o.opts.Known)
	folders := AssignFolders(o.opts.Root, projects)

	report := &Report{StartedAt: o.now(), Selection: sel}
	if len(projects) == 0 || sel.Empty() {
		report.FinishedAt = o.now()
		return report, nil
	}

	//nolint:gosec // G301: export output is meant to be readable
	if err := os.MkdirAll(o.opts.Root, 0755); err != nil {
		return nil, apperrors.New(apperrors.CodeExport, fmt.Sprintf("create export folder %s: %v", o.opts.Root, err), err)
	}

	debug.With(zap.Int("projects", len(projects)), zap.String("items", sel.String())).Debug("export run started")

	tasks := make([]*progress.Task, len(projects))
	for i, p := range projects {
		tasks[i] = progress.NewTask(p.ID, p.Name, o.opts.Reporter)
	}

	poller := NewPoller(o.api, o.opts.MaxAttempts, o.opts.PollingDelay)
	exporter := NewExporter(o.api, o.opts.PageSize, o.opts.BatchSize)
	exporter.now = o.now

	results := make([]ProjectResult, len(projects))
	var g errgroup.Group
	if o.opts.Concurrency > 0 {
		g.SetLimit(o.opts.Concurrency)
	}
	for i, p := range projects {
		g.Go(func() error {
			results[i] = o.pipeline(ctx, poller, exporter, p, folders[i], sel, tasks[i])
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	report.FinishedAt = o.now()
	debug.With(zap.Int("failed", len(report.Failed())), zap.Int("exported", report.Exported())).Debug("export run finished")
	return report, nil
}

func (o *Orchestrator) pipeline(ctx context.Context, poller *Poller, exporter *Exporter, project youtrack.Project, folder ProjectFolder, sel youtrack.Selection, task *progress.Task) (res ProjectResult) {
	start := time.Now()
	res = ProjectResult{Project: project}
	log := debug.With(zap.String("project", project.Name), zap.String("id", project.ID))

	defer func() {
		if r := recover(); r != nil {
			res = o.fail(res, task, apperrors.New(apperrors.CodeExport, fmt.Sprintf("export panicked: %v", r), nil))
		}
		res.State = task.State()
		res.Duration = time.Since(start)
		if res.Err != nil {
			log.Debug("pipeline failed", zap.Error(res.Err))
		} else {
			log.Debug("pipeline finished", zap.String("state", string(res.State)), zap.Int("exported", res.Exported))
		}
	}()

	if err := task.Start(); err != nil {
		return o.fail(res, task, err)
	}

	total, err := poller.Poll(ctx, project, sel, task.Counting)
	if err != nil {
		return o.fail(res, task, err)
	}
	res.Total = total

	if total == 0 {
		if err := folder.ClearStale(); err != nil {
			return o.fail(res, task, apperrors.Wrap(apperrors.CodeExport, "Failed to remove previous export", err))
		}
		if err := task.Hide(); err != nil {
			return o.fail(res, task, err)
		}
		return res
	}

	if err := task.Exporting(total); err != nil {
		return o.fail(res, task, err)
	}
	out, err := exporter.Export(ctx, folder, project, sel, task)
	if err != nil {
		return o.fail(res, task, err)
	}
	res.Exported = out.Exported
	res.Folder = out.Folder
	meta := out.Metadata
	res.Metadata = &meta

	desc := "Complete!"
	if out.Exported < total {
		desc = fmt.Sprintf("Complete! (%d of %d counted)", out.Exported, total)
	}
	if err := task.Complete(desc); err != nil {
		return o.fail(res, task, err)
	}
	return res
}

func withShortNames(projects, known []youtrack.Project) []youtrack.Project {
	if len(known) == 0 {
		return projects
	}
	short := make(map[string]string, len(known))
	for _, k := range known {
		short[k.ID] = k.ShortName
	}
	for i := range projects {
		if projects[i].ShortName == "" {
			projects[i].ShortName = short[projects[i].ID]
		}
	}
	return projects
}

func (o *Orchestrator) fail(res ProjectResult, task *progress.Task, err error) ProjectResult {
	if !apperrors.IsCode(err, apperrors.CodeExport) && !apperrors.IsCode(err, apperrors.CodeCancelled) {
		err = apperrors.Wrap(apperrors.CodeExport, "Export failed", err)
	}
	res.Err = err
	_ = task.Fail(err)
	return res
}
