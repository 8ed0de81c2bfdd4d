package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"ytexport/internal/export"
	"ytexport/internal/progress"
)

// timeLayout is fixed-width so started_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ProjectRun is the outcome of one project within a run.
type ProjectRun struct {
	ProjectID   string
	ProjectName string
	State       progress.State
	Total       int
	Exported    int
	Resolved    int
	Unresolved  int
	Attachments int
	Folder      string
	Error       string
}

// Run is one invocation of the exporter.
type Run struct {
	ID         string
	BaseURL    string
	Items      []string
	StartedAt  time.Time
	FinishedAt time.Time
	Projects   []ProjectRun
}

// Duration is the wall time of the run.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Failed counts projects that ended in error.
func (r Run) Failed() int {
	n := 0
	for _, p := range r.Projects {
		if p.State == progress.StateError {
			n++
		}
	}
	return n
}

// Exported sums exported issues across projects.
func (r Run) Exported() int {
	n := 0
	for _, p := range r.Projects {
		n += p.Exported
	}
	return n
}

// FromReport converts an orchestrator report into a run with a fresh ID.
func FromReport(baseURL string, report *export.Report) Run {
	run := Run{
		ID:         uuid.NewString(),
		BaseURL:    baseURL,
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	for _, item := range report.Selection.Items() {
		run.Items = append(run.Items, string(item))
	}
	for _, res := range report.Results {
		pr := ProjectRun{
			ProjectID:   res.Project.ID,
			ProjectName: res.Project.Name,
			State:       res.State,
			Total:       res.Total,
			Exported:    res.Exported,
			Folder:      res.Folder,
		}
		if res.Metadata != nil {
			pr.Resolved = res.Metadata.ResolvedCount
			pr.Unresolved = res.Metadata.UnresolvedCount
			pr.Attachments = res.Metadata.TotalAttachments
		}
		if res.Err != nil {
			pr.Error = res.Err.Error()
		}
		run.Projects = append(run.Projects, pr)
	}
	return run
}

// Record stores a run and its projects in one transaction.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, base_url, items, started_at, finished_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.BaseURL, strings.Join(run.Items, ","),
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, p := range run.Projects {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_projects (run_id, position, project_id, project_name, state, total, exported,
			                           resolved, unresolved, attachments, folder, error)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, p.ProjectID, p.ProjectName, string(p.State), p.Total, p.Exported,
			p.Resolved, p.Unresolved, p.Attachments, nullable(p.Folder), nullable(p.Error),
		); err != nil {
			return fmt.Errorf("inserting project %s: %w", p.ProjectID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT id, base_url, items, started_at, finished_at FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	var runs []Run
	for rows.Next() {
		var r Run
		var items, startedAt, finished string
		if err := rows.Scan(&r.ID, &r.BaseURL, &items, &startedAt, &finished); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		if items != "" {
			r.Items = strings.Split(items, ",")
		}
		if r.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parsing run started_at: %w", err)
		}
		if r.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("parsing run finished_at: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	_ = rows.Close()

	// One connection: project rows are loaded after the run cursor is closed.
	for i := range runs {
		projects, err := s.projects(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Projects = projects
	}
	return runs, nil
}

func (s *Store) projects(ctx context.Context, runID string) ([]ProjectRun, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT project_id, project_name, state, total, exported, resolved, unresolved, attachments, folder, error
		 FROM run_projects WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run projects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ProjectRun
	for rows.Next() {
		var p ProjectRun
		var state string
		var folder, fail sql.NullString
		if err := rows.Scan(&p.ProjectID, &p.ProjectName, &state, &p.Total, &p.Exported,
			&p.Resolved, &p.Unresolved, &p.Attachments, &folder, &fail); err != nil {
			return nil, fmt.Errorf("scanning run project row: %w", err)
		}
		p.State = progress.State(state)
		p.Folder = folder.String
		p.Error = fail.String
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run project rows: %w", err)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
