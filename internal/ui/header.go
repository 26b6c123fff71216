package ui

import (
	"fmt"
	"strings"

	"github.com/five82/excelextractor/internal/quota"
	"github.com/five82/excelextractor/internal/submit"
)

// renderHeader renders the status bar: user, monthly count and state.
func (m Model) renderHeader() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)
	sep := styles.Text.Render("  ")

	parts := []string{styles.Logo.Render("excelextractor")}

	if user := m.session.UserID(); user != "" {
		label := user
		if _, ok := m.session.Token(); !ok {
			label += " (signed out)"
		}
		parts = append(parts, styles.MutedText.Render("user ")+styles.Text.Render(label))
	}

	parts = append(parts, m.renderQuota(styles))

	if m.currentView != ViewLogin {
		parts = append(parts, styles.StatusStyle(m.snapshot.State.String()).Render(strings.ToUpper(m.snapshot.State.String())))
	}
	if m.history.IsOffline() {
		parts = append(parts, styles.DangerText.Render(classifyConnectionError(m.history.LastError)))
	}

	return styles.Header.Width(m.width).Render(strings.Join(parts, sep))
}

func (m Model) renderQuota(styles Styles) string {
	snap := m.quotaSnap
	label := styles.MutedText.Render("this month ")
	switch snap.Source {
	case quota.SourceServer:
		return label + styles.Text.Render(fmt.Sprintf("%d", snap.Count))
	case quota.SourceCache:
		return label + styles.WarningText.Render(fmt.Sprintf("%d (cached)", snap.Count))
	default:
		return label + styles.FaintText.Render("-")
	}
}

// classifyConnectionError returns a short description of a connection error.
func classifyConnectionError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "OFFLINE"
	case strings.Contains(msg, "no such host"):
		return "HOST NOT FOUND"
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "TIMEOUT"
	default:
		return "ERROR"
	}
}

// renderCommandBar renders the command hints bar for the current view.
func (m Model) renderCommandBar() string {
	styles := m.theme.Styles().WithBackground(m.theme.Surface)

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewLogin:
		commands = []cmd{
			{"tab", "Field"},
			{"enter", "Log in"},
			{"ctrl+c", "Quit"},
		}
	case ViewHistory:
		commands = []cmd{
			{"j/k", "Navigate"},
			{"enter", "Download"},
			{"R", "Refresh"},
			{"tab", "Files"},
			{"?", "More"},
		}
	default:
		if m.drag.Active() {
			commands = []cmd{
				{"j/k", "Place"},
				{"m/enter", "Drop"},
			}
			break
		}
		commands = []cmd{
			{"a", "Add"},
			{"o", "Name"},
			{"m", "Move"},
			{"x", "Remove"},
		}
		switch {
		case m.snapshot.State == submit.StateSuccess:
			commands = append(commands, cmd{"d", "Download"}, cmd{"D", "Leave"})
		case m.snapshot.CanSubmit():
			commands = append(commands, cmd{"s", "Extract"})
		}
		commands = append(commands, cmd{"r", "Reset"}, cmd{"tab", "History"}, cmd{"?", "More"})
	}

	colon := styles.Text.Render(":")
	segments := make([]string, 0, len(commands)+1)
	for _, c := range commands {
		segments = append(segments, styles.AccentText.Render(c.key)+colon+styles.MutedText.Render(c.desc))
	}
	segments = append(segments, styles.AccentText.Render("T")+colon+styles.FaintText.Render(m.theme.Name))

	return styles.Header.Width(m.width).Render(strings.Join(segments, styles.Text.Render("  ")))
}
