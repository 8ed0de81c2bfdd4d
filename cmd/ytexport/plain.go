package main

import (
	"fmt"
	"io"
	"sync"

	"ytexport/internal/progress"
)

// plainReporter writes one line per state change. Used when stdout is not a
// terminal.
type plainReporter struct {
	w io.Writer

	mu   sync.Mutex
	last map[string]progress.Update
}

func newPlainReporter(w io.Writer) *plainReporter {
	return &plainReporter{w: w, last: make(map[string]progress.Update)}
}

// Report implements progress.Reporter.
func (r *plainReporter) Report(u progress.Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, seen := r.last[u.Key]
	r.last[u.Key] = u
	if seen && prev.State == u.State && prev.Description == u.Description {
		return
	}
	if u.State == progress.StatePending {
		return
	}

	line := u.Description
	switch u.State {
	case progress.StateCounting:
		if u.Total > 0 {
			line = fmt.Sprintf("%s (attempt %d/%d)", u.Description, u.Completed, u.Total)
		}
	case progress.StateExporting:
		line = fmt.Sprintf("%s (%d issues)", u.Description, u.Total)
	case progress.StateComplete:
		line = fmt.Sprintf("%s (%d/%d)", u.Description, u.Completed, u.Total)
	}
	_, _ = fmt.Fprintf(r.w, "[%s] %s\n", u.Project, line)
}
