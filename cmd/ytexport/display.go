package main

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	bar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"ytexport/internal/progress"
)

const (
	projectColumnWidth = 24
	barWidth           = 30
	defaultDisplayWide = 120
	stopTimeout        = 500 * time.Millisecond
)

// row is the display state of one project.
type row struct {
	update   progress.Update
	finished time.Time
}

// displayModel is the bubbletea model for the multi-project progress view.
type displayModel struct {
	spinner spinner.Model
	bar     bar.Model
	title   string
	now     func() time.Time

	rows  map[string]*row
	order []string

	width int
	done  bool

	updates chan progress.Update
	stop    chan struct{}
}

type updateMsg progress.Update
type stopMsg struct{}

func newDisplayModel(title string) *displayModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = spinnerStyle

	b := bar.New(
		bar.WithDefaultGradient(),
		bar.WithWidth(barWidth),
		bar.WithoutPercentage(),
	)

	return &displayModel{
		spinner: s,
		bar:     b,
		title:   title,
		now:     time.Now,
		rows:    make(map[string]*row),
		width:   defaultDisplayWide,
		updates: make(chan progress.Update, 64),
		stop:    make(chan struct{}),
	}
}

func (m *displayModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForUpdate(),
	)
}

func (m *displayModel) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		select {
		case u := <-m.updates:
			return updateMsg(u)
		case <-m.stop:
			return stopMsg{}
		}
	}
}

func (m *displayModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
		}
		return m, nil

	case updateMsg:
		m.apply(progress.Update(msg))
		return m, m.waitForUpdate()

	case stopMsg:
		// Drain anything reported before the stop.
		for drained := false; !drained; {
			select {
			case u := <-m.updates:
				m.apply(u)
			default:
				drained = true
			}
		}
		m.done = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *displayModel) apply(u progress.Update) {
	r, ok := m.rows[u.Key]
	if !ok {
		r = &row{}
		m.rows[u.Key] = r
		m.order = append(m.order, u.Key)
	}
	r.update = u
	if u.State.IsTerminal() && r.finished.IsZero() {
		r.finished = m.now()
	}
}

func (m *displayModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")
	for _, key := range m.order {
		r := m.rows[key]
		if r.update.State == progress.StateHidden {
			continue
		}
		b.WriteString(m.renderRow(r))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *displayModel) renderRow(r *row) string {
	u := r.update

	var icon string
	switch u.State {
	case progress.StateComplete:
		icon = successStyle.Render("✓")
	case progress.StateError:
		icon = errorStyle.Render("✗")
	default:
		icon = m.spinner.View()
	}

	name := ansi.Truncate(u.Project, projectColumnWidth, "…")
	name = projectStyle.Render(name + strings.Repeat(" ", max(0, projectColumnWidth-ansi.StringWidth(name))))

	var meter string
	switch u.State {
	case progress.StateExporting, progress.StateComplete:
		meter = fmt.Sprintf("%s %3.0f%% %s", m.bar.ViewAs(u.Percent()), u.Percent()*100,
			countStyle.Render(fmt.Sprintf("(%d/%d)", u.Completed, u.Total)))
	case progress.StateCounting:
		if u.Total > 0 {
			meter = countStyle.Render(fmt.Sprintf("attempt %d/%d", u.Completed, u.Total))
		}
	}

	end := m.now()
	if !r.finished.IsZero() {
		end = r.finished
	}
	elapsed := countStyle.Render(formatDuration(u.Elapsed(end)))

	parts := []string{icon, name}
	if meter != "" {
		parts = append(parts, meter)
	}
	parts = append(parts, elapsed)
	line := strings.Join(parts, " ")

	descStyle := subtitleStyle
	if u.State == progress.StateError {
		descStyle = errorStyle
	}
	room := m.width - ansi.StringWidth(line) - 1
	if room > 3 {
		line += " " + descStyle.Render(ansi.Truncate(u.Description, room, "…"))
	}
	return lipgloss.NewStyle().MaxWidth(m.width).Render(line)
}

// exportDisplay runs the progress model inline while an export is running.
// It implements progress.Reporter.
type exportDisplay struct {
	program *tea.Program
	model   *displayModel
	done    chan struct{}

	mu      sync.Mutex
	stopped bool
}

func newExportDisplay(w io.Writer, title string) *exportDisplay {
	model := newDisplayModel(title)
	program := tea.NewProgram(
		model,
		tea.WithOutput(w),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)

	d := &exportDisplay{
		program: program,
		model:   model,
		done:    make(chan struct{}),
	}
	go func() {
		_, _ = program.Run()
		close(d.done)
	}()
	return d
}

// Report implements progress.Reporter.
func (d *exportDisplay) Report(u progress.Update) {
	select {
	case d.model.updates <- u:
	case <-d.done:
	}
}

// Stop renders the final frame and waits for the program to exit.
func (d *exportDisplay) Stop() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.stopped = true
	d.mu.Unlock()

	close(d.model.stop)
	select {
	case <-d.done:
	case <-time.After(stopTimeout):
		d.program.Kill()
		<-d.done
	}
}
