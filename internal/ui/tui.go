package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TUIRenderer draws rebuild progress with bubbletea. Keyboard input and
// signals are left to the process.
type TUIRenderer struct {
	mu      sync.Mutex
	cfg     Config
	program *tea.Program
	model   *rebuildModel
	tracker *ProgressTracker
	done    chan struct{}
}

// NewTUIRenderer creates a TUI renderer. It fails when the output is not a
// terminal.
func NewTUIRenderer(cfg Config) (*TUIRenderer, error) {
	if !IsTTY(cfg.Output) {
		return nil, errors.New("output is not a TTY")
	}

	tracker := NewProgressTracker()
	model := newRebuildModel(tracker)
	if cfg.NoColor || DetectNoColor() {
		model.styles = NoColorStyles()
	}

	return &TUIRenderer{
		cfg:     cfg,
		tracker: tracker,
		model:   model,
		done:    make(chan struct{}),
	}, nil
}

// Start implements Renderer.
func (r *TUIRenderer) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.program != nil {
		return nil
	}

	opts := []tea.ProgramOption{
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	}
	if f, ok := r.cfg.Output.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	r.program = tea.NewProgram(r.model, opts...)

	go func() {
		defer close(r.done)
		_, _ = r.program.Run()
	}()
	return nil
}

// UpdateProgress implements Renderer.
func (r *TUIRenderer) UpdateProgress(event ProgressEvent) {
	r.tracker.Observe(event)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(progressMsg(event))
	}
}

// Complete implements Renderer.
func (r *TUIRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.program != nil {
		r.program.Send(completeMsg(stats))
	}
}

// Stop implements Renderer.
func (r *TUIRenderer) Stop() error {
	r.mu.Lock()
	program := r.program
	r.mu.Unlock()

	if program == nil {
		return nil
	}
	program.Quit()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
	}
	return nil
}

type progressMsg ProgressEvent
type completeMsg CompletionStats

// rebuildModel is the bubbletea model for rebuild progress.
type rebuildModel struct {
	tracker     *ProgressTracker
	width       int
	finished    []CompletionStats
	spinner     spinner.Model
	progressBar progress.Model
	styles      Styles
}

func newRebuildModel(tracker *ProgressTracker) *rebuildModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(ColorLime))

	p := progress.New(
		progress.WithSolidFill(ColorLime),
		progress.WithWidth(40),
		progress.WithoutPercentage(),
	)

	return &rebuildModel{
		tracker:     tracker,
		width:       80,
		spinner:     s,
		progressBar: p,
		styles:      DefaultStyles(),
	}
}

// Init implements tea.Model.
func (m *rebuildModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update implements tea.Model.
func (m *rebuildModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progressBar.Width = max(msg.Width-40, 20)

	case progressMsg:
		// Tracked by the renderer; a redraw is enough.
		return m, nil

	case completeMsg:
		m.finished = append(m.finished, CompletionStats(msg))
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View implements tea.Model.
func (m *rebuildModel) View() string {
	var lines []string
	for _, f := range m.finished {
		lines = append(lines, m.renderFinished(f))
	}

	stats := m.tracker.Stats()
	if stats.Index != "" && !m.isFinished(stats.Index) {
		lines = append(lines, m.renderActive(stats))
	}
	if len(lines) == 0 {
		lines = append(lines, m.spinner.View()+" "+m.styles.Dim.Render("Preparing..."))
	}

	return m.styles.Header.Render("contentindex rebuild") + "\n" +
		m.styles.Panel.Width(max(m.width-4, 40)).Render(strings.Join(lines, "\n")) + "\n"
}

func (m *rebuildModel) isFinished(index string) bool {
	for _, f := range m.finished {
		if f.Index == index {
			return true
		}
	}
	return false
}

func (m *rebuildModel) renderFinished(f CompletionStats) string {
	return fmt.Sprintf("%s %s %s",
		m.styles.Active.Render("✓"),
		f.Index,
		m.styles.Label.Render(fmt.Sprintf("%d written, %d skipped of %d in %s",
			f.Written, f.Skipped, f.Entities, formatDuration(f.Duration))))
}

func (m *rebuildModel) renderActive(stats ProgressStats) string {
	head := fmt.Sprintf("%s %s %s", m.spinner.View(), stats.Index, m.styles.Stage.Render(string(stats.Stage)))
	if stats.Total == 0 {
		return head
	}

	bar := m.progressBar.ViewAs(stats.Progress)
	line := fmt.Sprintf("%s\n%s  %s  %s", head, bar,
		m.styles.Active.Render(fmt.Sprintf("%3.0f%%", stats.Progress*100)),
		m.styles.Label.Render(fmt.Sprintf("%d / %d", stats.Current, stats.Total)))

	if stats.AvgSpeed > 0 {
		metrics := fmt.Sprintf("%.0f/s", stats.AvgSpeed)
		if stats.ETA > 0 {
			metrics += "  •  ETA " + formatDuration(stats.ETA)
		}
		line += "\n" + m.styles.Dim.Render(metrics)
	}
	return line
}

var _ Renderer = (*TUIRenderer)(nil)
