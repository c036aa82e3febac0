// Live run view rendered with a bubbletea TUI.
package runner

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"scriptquest/internal/state"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// snapshotMsg carries a per-tick snapshot row.
type snapshotMsg struct{ row state.Row }

// scriptLogMsg carries a captured script console line.
type scriptLogMsg struct{ line LogLine }

// statusMsg carries a run status transition.
type statusMsg struct{ status Status }

const maxLogLines = 200

// TUIWriter renders run progress using a bubbletea TUI.
type TUIWriter struct {
	program teaProgram
	done    chan struct{}
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
func NewTUIWriter(challenge string) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	p := tea.NewProgram(newTUIModel(challenge), tea.WithAltScreen())
	w.program = p
	go func() {
		_ = p.Start()
		close(w.done)
	}()
	return w
}

// WriteSnapshot implements SnapshotWriter.
func (w *TUIWriter) WriteSnapshot(row state.Row) error {
	w.program.Send(snapshotMsg{row: row})
	return nil
}

// WriteLog implements LogSink.
func (w *TUIWriter) WriteLog(line LogLine) error {
	w.program.Send(scriptLogMsg{line: line})
	return nil
}

// SetStatus pushes a status transition into the view.
func (w *TUIWriter) SetStatus(s Status) {
	w.program.Send(statusMsg{status: s})
}

// Quit asks the TUI to exit and blocks until it has shut down.
func (w *TUIWriter) Quit() {
	w.program.Send(tea.Quit())
	<-w.done
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	statusStyle = map[Status]lipgloss.Style{
		StatusIdle:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		StatusRunning: lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		StatusSuccess: lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		StatusFailure: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		StatusTimeout: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		StatusError:   lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
	paneStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

type tuiModel struct {
	challenge string
	status    Status
	tick      uint64
	frame     int
	vars      table.Model
	logs      viewport.Model
	logLines  []string
	width     int
	ready     bool
}

func newTUIModel(challenge string) tuiModel {
	vars := table.New(
		table.WithColumns([]table.Column{
			{Title: "variable", Width: 16},
			{Title: "value", Width: 12},
		}),
		table.WithHeight(8),
	)
	return tuiModel{
		challenge: challenge,
		status:    StatusIdle,
		vars:      vars,
		logs:      viewport.New(60, 10),
	}
}

func (m tuiModel) Init() tea.Cmd {
	return nil
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.logs.Width = msg.Width - 4
		m.logs.Height = msg.Height - 16
		if m.logs.Height < 4 {
			m.logs.Height = 4
		}
		m.ready = true
	case snapshotMsg:
		m.tick = msg.row.Tick
		m.frame = msg.row.Frame
		rows := make([]table.Row, 0, len(msg.row.Values))
		for _, name := range msg.row.Values.Names() {
			rows = append(rows, table.Row{name, fmt.Sprintf("%d", msg.row.Values[name])})
		}
		m.vars.SetRows(rows)
	case scriptLogMsg:
		width := m.logs.Width
		if width <= 0 {
			width = 60
		}
		line := fmt.Sprintf("[%s] f=%d %s", msg.line.Level, msg.line.Frame, msg.line.Message)
		m.logLines = append(m.logLines, wordwrap.String(line, width))
		if len(m.logLines) > maxLogLines {
			m.logLines = m.logLines[len(m.logLines)-maxLogLines:]
		}
		m.logs.SetContent(strings.Join(m.logLines, "\n"))
		m.logs.GotoBottom()
	case statusMsg:
		m.status = msg.status
	}
	return m, nil
}

func (m tuiModel) View() string {
	st, ok := statusStyle[m.status]
	if !ok {
		st = statusStyle[StatusIdle]
	}
	header := fmt.Sprintf("%s  %s  tick=%d frame=%d",
		titleStyle.Render("scriptquest · "+m.challenge),
		st.Render(string(m.status)),
		m.tick, m.frame,
	)
	body := lipgloss.JoinVertical(lipgloss.Left,
		header,
		paneStyle.Render(m.vars.View()),
		paneStyle.Render(m.logs.View()),
		"press q to quit",
	)
	return body
}
