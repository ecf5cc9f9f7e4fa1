// Package dashboard is the optional terminal view of a running exhibit:
// per-loop counters, recent events and the log tail.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/zjrosen/displayboard/internal/events"
	"github.com/zjrosen/displayboard/internal/log"
	"github.com/zjrosen/displayboard/internal/metrics"
	"github.com/zjrosen/displayboard/internal/pubsub"
)

const (
	refreshInterval = time.Second
	maxEvents       = 8
	maxLogLines     = 6
)

// Config wires the dashboard to a running exhibit.
type Config struct {
	RunID  string
	Stats  *metrics.Registry
	Events *events.Bus
	Logs   *log.LogListener // nil disables the log tail
	// OnQuit runs when the operator quits, typically to start shutdown.
	OnQuit func()
	Now    func() time.Time
}

type refreshMsg struct{}

// Model is the Bubble Tea model.
type Model struct {
	cfg       Config
	events    *pubsub.Listener[events.Event]
	loops     table.Model
	recent    []events.Event
	logLines  []string
	width     int
	quitting  bool
	startedAt time.Time
}

// New creates the model. ctx bounds the event subscriptions.
func New(ctx context.Context, cfg Config) Model {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := Model{cfg: cfg, startedAt: cfg.Now()}
	if cfg.Events != nil {
		m.events = pubsub.NewListener(ctx, cfg.Events, maxEvents)
	}

	styles := table.DefaultStyles()
	styles.Header = tableHeaderStyle
	styles.Selected = lipgloss.NewStyle()
	m.loops = table.New(
		table.WithColumns(columns(80)),
		table.WithHeight(8),
		table.WithStyles(styles),
	)
	m.loops.SetRows(m.rows())
	return m
}

func columns(width int) []table.Column {
	errWidth := max(width-62, 12)
	return []table.Column{
		{Title: "Loop", Width: 12},
		{Title: "State", Width: 8},
		{Title: "Runs", Width: 8},
		{Title: "Failed", Width: 8},
		{Title: "Last run", Width: 12},
		{Title: "Last error", Width: errWidth},
	}
}

func (m Model) rows() []table.Row {
	now := m.cfg.Now()
	snaps := m.cfg.Stats.Snapshot()
	rows := make([]table.Row, 0, len(snaps))
	for _, s := range snaps {
		state := "stopped"
		if s.Running {
			state = "running"
		}
		rows = append(rows, table.Row{
			s.Name,
			state,
			fmt.Sprintf("%d", s.Iterations),
			fmt.Sprintf("%d", s.Failures),
			s.FormatLastRun(now),
			s.LastError,
		})
	}
	return rows
}

// Init starts the listeners and the refresh tick.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{refresh()}
	if m.events != nil {
		cmds = append(cmds, m.events.Next())
	}
	if m.cfg.Logs != nil {
		cmds = append(cmds, m.cfg.Logs.Next())
	}
	return tea.Batch(cmds...)
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(time.Time) tea.Msg { return refreshMsg{} })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			if m.cfg.OnQuit != nil {
				m.cfg.OnQuit()
			}
			return m, tea.Quit
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.loops.SetColumns(columns(msg.Width))
		return m, nil

	case refreshMsg:
		m.loops.SetRows(m.rows())
		return m, refresh()

	case pubsub.Batch[events.Event]:
		m.recent = append(m.recent, msg.Payloads()...)
		if len(m.recent) > maxEvents {
			m.recent = m.recent[len(m.recent)-maxEvents:]
		}
		m.loops.SetRows(m.rows())
		return m, m.events.Next()

	case log.LogBatch:
		for _, line := range msg.Payloads() {
			m.logLines = append(m.logLines, strings.TrimRight(line, "\n"))
		}
		if len(m.logLines) > maxLogLines {
			m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
		}
		return m, m.cfg.Logs.Next()
	}
	return m, nil
}

// View renders the dashboard.
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	var b strings.Builder

	runID := m.cfg.RunID
	if len(runID) > 8 {
		runID = runID[:8]
	}
	uptime := m.cfg.Now().Sub(m.startedAt).Truncate(time.Second)
	b.WriteString(titleStyle.Render("displayboard"))
	b.WriteString(mutedStyle.Render(fmt.Sprintf("  run %s  up %s", runID, uptime)))
	b.WriteString("\n\n")
	b.WriteString(m.loops.View())
	b.WriteString("\n")

	b.WriteString(sectionStyle.Render("Events"))
	b.WriteString("\n")
	if len(m.recent) == 0 {
		b.WriteString(mutedStyle.Render("  none yet"))
		b.WriteString("\n")
	}
	for _, ev := range m.recent {
		line := "  " + ev.String()
		switch ev.Kind {
		case pubsub.FailedEvent:
			line = errorStyle.Render(line)
		case pubsub.StartedEvent:
			line = okStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	if m.cfg.Logs != nil {
		b.WriteString(sectionStyle.Render("Log"))
		b.WriteString("\n")
		for _, l := range m.logLines {
			b.WriteString(mutedStyle.Render("  " + truncate(l, m.width-2)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("q quit"))
	b.WriteString("\n")
	return b.String()
}

func truncate(s string, width int) string {
	if width <= 3 || lipgloss.Width(s) <= width {
		return s
	}
	r := []rune(s)
	if len(r) > width-3 {
		r = r[:width-3]
	}
	return string(r) + "..."
}

// Run starts the dashboard and blocks until it exits or ctx is cancelled.
func Run(ctx context.Context, cfg Config, opts ...tea.ProgramOption) error {
	p := tea.NewProgram(New(ctx, cfg), append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)...)
	_, err := p.Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
