package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytexport/internal/progress"
)

func TestDisplayModelRendersRows(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := newDisplayModel("Exporting 3 projects")
	m.now = func() time.Time { return start.Add(90 * time.Second) }

	m.apply(progress.Update{Key: "0-1", Project: "Alpha", State: progress.StateExporting,
		Description: "Exporting issues...", Completed: 25, Total: 100, StartedAt: start})
	m.apply(progress.Update{Key: "0-2", Project: "Empty", State: progress.StateHidden,
		Description: "No issues to export", StartedAt: start})
	m.apply(progress.Update{Key: "0-3", Project: "Beta", State: progress.StateCounting,
		Description: "Loading issues count...", Completed: 2, Total: 10, StartedAt: start})

	view := m.View()
	lines := strings.Split(strings.TrimRight(view, "\n"), "\n")
	require.Len(t, lines, 3, view)
	assert.Equal(t, "Exporting 3 projects", lines[0])

	assert.Contains(t, lines[1], "Alpha")
	assert.Contains(t, lines[1], " 25%")
	assert.Contains(t, lines[1], "(25/100)")
	assert.Contains(t, lines[1], "1m 30s")
	assert.Contains(t, lines[1], "Exporting issues...")

	assert.Contains(t, lines[2], "Beta")
	assert.Contains(t, lines[2], "attempt 2/10")
	assert.NotContains(t, view, "Empty", "hidden projects are not shown")
}

func TestDisplayModelFreezesElapsedWhenDone(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Second)
	m := newDisplayModel("Export")
	m.now = func() time.Time { return now }

	m.apply(progress.Update{Key: "0-1", Project: "Alpha", State: progress.StateComplete,
		Description: "Complete!", Completed: 4, Total: 4, StartedAt: start})
	now = start.Add(time.Hour)

	view := m.View()
	assert.Contains(t, view, "✓")
	assert.Contains(t, view, "100%")
	assert.Contains(t, view, "5s")
	assert.NotContains(t, view, "1h")
}

func TestDisplayModelTruncatesToWidth(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)

	m := newDisplayModel("Export")
	m.width = 60
	m.apply(progress.Update{Key: "0-1", Project: "A project with a remarkably long name indeed",
		State: progress.StateError, Description: "Error exporting: " + strings.Repeat("x", 200)})

	for _, line := range strings.Split(strings.TrimRight(m.View(), "\n"), "\n") {
		assert.LessOrEqual(t, lipgloss.Width(line), 60)
	}
	assert.Contains(t, m.View(), "✗")
	assert.Contains(t, m.View(), "…")
}

func TestPlainReporterPrintsStateChanges(t *testing.T) {
	var buf bytes.Buffer
	r := newPlainReporter(&buf)

	task := progress.NewTask("0-1", "Alpha", r)
	require.NoError(t, task.Start())
	task.Counting(1, 10)
	task.Counting(2, 10)
	require.NoError(t, task.Exporting(3))
	task.Advance(1)
	task.Advance(1)
	task.Advance(1)
	require.NoError(t, task.Complete(""))

	other := progress.NewTask("0-2", "Beta", r)
	require.NoError(t, other.Start())
	require.NoError(t, other.Fail(errors.New("boom")))

	assert.Equal(t, strings.Join([]string{
		"[Alpha] Fetching issues count...",
		"[Alpha] Loading issues count... (attempt 1/10)",
		"[Alpha] Exporting issues... (3 issues)",
		"[Alpha] Complete! (3/3)",
		"[Beta] Fetching issues count...",
		"[Beta] Error exporting: boom",
	}, "\n")+"\n", buf.String())
}
