package progress

import (
	"fmt"
	"sync"
	"time"

	apperrors "ytexport/internal/errors"
)

// Update is a snapshot of a task after a change.
type Update struct {
	Key         string
	Project     string
	State       State
	Description string
	Completed   int
	Total       int
	StartedAt   time.Time
	Err         error
}

// Elapsed is the time since the task started, zero if it has not.
func (u Update) Elapsed(now time.Time) time.Duration {
	if u.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(u.StartedAt)
}

// Percent returns completion in [0,1].
func (u Update) Percent() float64 {
	if u.Total <= 0 {
		return 0
	}
	p := float64(u.Completed) / float64(u.Total)
	if p > 1 {
		return 1
	}
	return p
}

// Reporter receives task updates. Implementations must be safe for
// concurrent use since every project reports from its own goroutine.
type Reporter interface {
	Report(Update)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(Update)

// Report implements Reporter.
func (f ReporterFunc) Report(u Update) {
	if f == nil {
		return
	}
	f(u)
}

// Discard drops every update.
var Discard Reporter = ReporterFunc(nil)

// Task is the progress line of one project.
type Task struct {
	mu       sync.Mutex
	reporter Reporter
	now      func() time.Time
	update   Update
}

// NewTask creates a pending task. key identifies the project (its ID).
func NewTask(key, project string, reporter Reporter) *Task {
	if reporter == nil {
		reporter = Discard
	}
	t := &Task{
		reporter: reporter,
		now:      time.Now,
		update: Update{
			Key:         key,
			Project:     project,
			State:       StatePending,
			Description: "Starting export...",
		},
	}
	t.emit()
	return t
}

// Snapshot returns the current state of the task.
func (t *Task) Snapshot() Update {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.update
}

// State returns the current state.
func (t *Task) State() State {
	return t.Snapshot().State
}

// Start begins counting issues.
func (t *Task) Start() error {
	return t.change(StateCounting, func(u *Update) {
		u.StartedAt = t.now()
		u.Description = "Fetching issues count..."
	})
}

// Counting records a polling attempt while the server computes the count.
func (t *Task) Counting(attempt, max int) {
	t.mutate(StateCounting, func(u *Update) {
		u.Description = "Loading issues count..."
		u.Completed = attempt
		u.Total = max
	})
}

// Exporting switches to the export phase with the expected total.
func (t *Task) Exporting(total int) error {
	return t.change(StateExporting, func(u *Update) {
		u.Description = "Exporting issues..."
		u.Completed = 0
		u.Total = total
	})
}

// Advance adds n exported issues. The total grows if the server returns
// more issues than it counted.
func (t *Task) Advance(n int) {
	t.mutate(StateExporting, func(u *Update) {
		u.Completed += n
		if u.Completed > u.Total {
			u.Total = u.Completed
		}
	})
}

// Describe replaces the description without changing state.
func (t *Task) Describe(desc string) {
	t.mu.Lock()
	if t.update.State.IsTerminal() {
		t.mu.Unlock()
		return
	}
	t.update.Description = desc
	t.mu.Unlock()
	t.emit()
}

// Complete marks the export finished.
func (t *Task) Complete(desc string) error {
	if desc == "" {
		desc = "Complete!"
	}
	return t.change(StateComplete, func(u *Update) {
		u.Description = desc
	})
}

// Hide marks a project with no matching issues.
func (t *Task) Hide() error {
	return t.change(StateHidden, func(u *Update) {
		u.Description = "No issues to export"
		u.Completed = 0
		u.Total = 0
	})
}

// Fail moves the task to the terminal error state carrying err.
func (t *Task) Fail(err error) error {
	return t.change(StateError, func(u *Update) {
		u.Err = err
		u.Description = fmt.Sprintf("Error exporting: %v", err)
	})
}

func (t *Task) change(next State, apply func(*Update)) error {
	t.mu.Lock()
	current := t.update.State
	if !current.CanTransitionTo(next) {
		t.mu.Unlock()
		return apperrors.New(apperrors.CodeInvalidTransition,
			fmt.Sprintf("%s: cannot move from %s to %s", t.update.Project, current, next), nil)
	}
	t.update.State = next
	apply(&t.update)
	t.mu.Unlock()
	t.emit()
	return nil
}

// mutate applies a change only while the task is in state.
func (t *Task) mutate(state State, apply func(*Update)) {
	t.mu.Lock()
	if t.update.State != state {
		t.mu.Unlock()
		return
	}
	apply(&t.update)
	t.mu.Unlock()
	t.emit()
}

func (t *Task) emit() {
	t.reporter.Report(t.Snapshot())
}
