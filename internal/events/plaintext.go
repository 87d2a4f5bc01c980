package events

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	arrowStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))            // cyan
	toolStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true) // blue bold
	pathStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // gray
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))            // light gray
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))            // green
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))            // dim gray
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))            // yellow
	sessionStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))            // magenta
)

// PlainTextHandler writes events to an io.Writer using lipgloss-styled
// formatting, the default sink when the AI agent is attached to a terminal.
type PlainTextHandler struct {
	W io.Writer
}

func (h *PlainTextHandler) Handle(event Event) {
	switch e := event.(type) {
	case SessionStart:
		h.handleSessionStart(e)
	case ToolUse:
		h.handleToolUse(e)
	case AgentText:
		h.handleAgentText(e)
	case InvocationDone:
		h.handleInvocationDone(e)
	case LogMessage:
		h.handleLogMessage(e)
	}
}

func (h *PlainTextHandler) handleSessionStart(e SessionStart) {
	label := sessionStyle.Render(e.Label)
	fmt.Fprintf(h.W, "\n[%s] session starting\n", label)
}

func (h *PlainTextHandler) handleToolUse(e ToolUse) {
	arrow := arrowStyle.Render("→")
	tool := toolStyle.Render(e.Name)
	if e.Detail != "" {
		path := pathStyle.Render(e.Detail)
		fmt.Fprintf(h.W, "  %s %s %s\n", arrow, tool, path)
	} else {
		fmt.Fprintf(h.W, "  %s %s\n", arrow, tool)
	}
}

func (h *PlainTextHandler) handleAgentText(e AgentText) {
	lines := strings.Split(strings.TrimSpace(e.Text), "\n")
	fmt.Fprintln(h.W)
	for _, line := range lines {
		styled := textStyle.Render(line)
		fmt.Fprintf(h.W, "  %s\n", styled)
	}
	fmt.Fprintln(h.W)
}

func (h *PlainTextHandler) handleInvocationDone(e InvocationDone) {
	durationSec := e.DurationMS / 1000
	check := successStyle.Render("✓")
	info := dimStyle.Render(fmt.Sprintf("(%d turns, %ds)", e.NumTurns, durationSec))
	fmt.Fprintf(h.W, "  %s Done %s\n", check, info)
}

func (h *PlainTextHandler) handleLogMessage(e LogMessage) {
	if e.Level == "warning" {
		fmt.Fprintf(h.W, "  %s %s\n", warnStyle.Render("!"), e.Message)
		return
	}
	fmt.Fprintf(h.W, "  %s %s\n", dimStyle.Render("·"), e.Message)
}
