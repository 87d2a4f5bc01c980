// Package tui renders the interactive multi-workspace overview: a sidebar
// listing every registered workspace and a log pane tailing the selected
// workspace's agent session events as they are written.
package tui

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/loom-dev/loom/internal/events"
)

const sidebarWidth = 38

// WorkspaceRow holds the data needed to display one workspace in the
// overview.
type WorkspaceRow struct {
	Key     string
	Branch  string
	Port    int
	Path    string
	Missing bool
}

// logEventMsg wraps an event from a specific workspace's log reader.
type logEventMsg struct {
	index int
	event events.Event
}

// logReaderDoneMsg is sent when a workspace's log reader channel closes.
type logReaderDoneMsg struct {
	index int
}

// MultiModel is the BubbleTea model for the multi-workspace overview.
type MultiModel struct {
	rows     []WorkspaceRow
	channels []<-chan events.Event
	cursor   int

	logViewport viewport.Model
	logLines    map[int][]string

	ready  bool
	width  int
	height int
}

// NewMultiModel creates a new multi-workspace overview model. channels may
// be nil (or hold nil entries) for workspaces with no log stream.
func NewMultiModel(rows []WorkspaceRow, channels []<-chan events.Event) MultiModel {
	return MultiModel{
		rows:     rows,
		channels: channels,
		logLines: make(map[int][]string),
	}
}

func (m MultiModel) Init() tea.Cmd {
	var cmds []tea.Cmd
	for i, ch := range m.channels {
		if ch != nil {
			cmds = append(cmds, waitForEvent(i, ch))
		}
	}
	return tea.Batch(cmds...)
}

func waitForEvent(index int, ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return logReaderDoneMsg{index: index}
		}
		return logEventMsg{index: index, event: e}
	}
}

func (m MultiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
			m.syncViewport()
			return m, nil
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
			m.syncViewport()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		footerHeight := 1
		vpWidth := max(m.width-sidebarWidth, 1)
		vpHeight := max(m.height-footerHeight, 1)
		if !m.ready {
			m.logViewport = viewport.New(vpWidth, vpHeight)
			m.ready = true
		} else {
			m.logViewport.Width = vpWidth
			m.logViewport.Height = vpHeight
		}
		m.syncViewport()

	case logEventMsg:
		m.handleLogEvent(msg.index, msg.event)
		if msg.index == m.cursor {
			m.syncViewport()
		}
		if msg.index < len(m.channels) && m.channels[msg.index] != nil {
			return m, waitForEvent(msg.index, m.channels[msg.index])
		}
		return m, nil

	case logReaderDoneMsg:
		return m, nil
	}

	if m.ready {
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *MultiModel) syncViewport() {
	if !m.ready {
		return
	}
	m.logViewport.SetContent(strings.Join(m.logLines[m.cursor], "\n"))
	m.logViewport.GotoBottom()
}

func (m *MultiModel) handleLogEvent(index int, e events.Event) {
	lines := m.logLines[index]
	switch e := e.(type) {
	case events.SessionStart:
		lines = append(lines, fmt.Sprintf("[%s] session starting", e.Label))
	case events.ToolUse:
		line := fmt.Sprintf("  → %s", e.Name)
		if e.Detail != "" {
			line += " " + e.Detail
		}
		lines = append(lines, line)
	case events.AgentText:
		text := strings.TrimSpace(e.Text)
		for _, line := range strings.Split(text, "\n") {
			lines = append(lines, "  "+line)
		}
	case events.InvocationDone:
		durationSec := e.DurationMS / 1000
		lines = append(lines, fmt.Sprintf("  ✓ Done (%d turns, %ds)", e.NumTurns, durationSec))
	case events.LogMessage:
		prefix := "  · "
		if e.Level == "warning" {
			prefix = "  ! "
		}
		lines = append(lines, prefix+e.Message)
	}
	m.logLines[index] = lines
}

var (
	wsTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "#24292f", Dark: "#e6edf3"}).
			Background(lipgloss.AdaptiveColor{Light: "#d8dee4", Dark: "#30363d"}).
			Padding(0, 1)

	wsPresentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1a7f37", Dark: "#3fb950"})
	wsMissingStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#656d76", Dark: "#8b949e"})

	wsCursorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#0550ae", Dark: "#58a6ff"}).
			Bold(true)

	wsHintStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#656d76", Dark: "#8b949e"})
)

func (m MultiModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	left := m.renderWorkspaceList()
	right := m.logViewport.View()
	content := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	return content + "\n" + m.statusBar()
}

func (m MultiModel) renderWorkspaceList() string {
	title := wsTitleStyle.Width(sidebarWidth - 2).Render("Workspaces")

	var lines []string
	for i, row := range m.rows {
		var indicator string
		if row.Missing {
			indicator = wsMissingStyle.Render("○")
		} else {
			indicator = wsPresentStyle.Render("●")
		}

		name := row.Key
		maxNameWidth := sidebarWidth - 6
		if len(name) > maxNameWidth {
			name = name[:maxNameWidth-1] + "…"
		}
		if i == m.cursor {
			name = wsCursorStyle.Render("> " + name)
		} else {
			name = "  " + name
		}

		lines = append(lines, fmt.Sprintf("%s %s", indicator, name))
		detail := row.Branch
		if row.Port != 0 {
			detail = fmt.Sprintf("%s :%d", detail, row.Port)
		}
		lines = append(lines, "    "+wsHintStyle.Render(detail))
	}
	if len(lines) == 0 {
		lines = append(lines, wsHintStyle.Render("  no workspaces registered"))
	}

	body := strings.Join(lines, "\n")
	return lipgloss.NewStyle().Width(sidebarWidth).Render(title + "\n" + body)
}

func (m MultiModel) statusBar() string {
	return wsHintStyle.Render("↑/↓ select · q quit")
}

// RunOverview starts log readers for every present workspace and runs the
// overview program until the user quits.
func RunOverview(rows []WorkspaceRow) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	channels := make([]<-chan events.Event, len(rows))
	for i, row := range rows {
		if row.Missing || row.Path == "" {
			continue
		}
		reader := events.NewLogReader(filepath.Join(row.Path, ".loom", "logs"))
		go reader.Run(ctx)
		channels[i] = reader.Events()
	}

	_, err := tea.NewProgram(NewMultiModel(rows, channels), tea.WithAltScreen()).Run()
	return err
}
