package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/excelextractor/internal/history"
	"github.com/five82/excelextractor/internal/submit"
)

// handleHistoryKey processes keyboard input for the history view.
func (m Model) handleHistoryKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.history.Entries)

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.historyRow > 0 {
			m.historyRow--
		}
	case key.Matches(msg, m.keys.Down):
		if m.historyRow < count-1 {
			m.historyRow++
		}
	case key.Matches(msg, m.keys.Top):
		m.historyRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.historyRow = maxInt(count-1, 0)

	case key.Matches(msg, m.keys.FetchEntry):
		if count == 0 || m.ledger == nil || m.busy {
			return m, nil
		}
		entry := m.history.Entries[m.historyRow]
		if entry.Status == history.Downloaded {
			return m, nil
		}
		m.busy = true
		m.setNotice("Downloading "+entry.FileName+"...", noticeInfo)
		return m, fetchEntryCmd(m.ctx, m.ctrl, m.ledger, entry, m.downloadDir)

	case key.Matches(msg, m.keys.Refresh):
		if m.ledger == nil {
			return m, nil
		}
		return m, refreshRemoteCmd(m.ctx, nil, m.ledger)
	}

	m.updateHistoryViewport()
	return m, nil
}

func (m Model) handleMarkDone(msg markDoneMsg) Model {
	m.busy = false
	m.refreshData()
	switch {
	case msg.path == "":
		m.setNotice("Download failed: "+msg.err.Error(), noticeError)
	case msg.err != nil:
		m.setNotice("Saved "+msg.path+" but could not update history: "+msg.err.Error(), noticeWarn)
	default:
		m.setNotice("Saved "+msg.path, noticeInfo)
	}
	return m
}

// updateHistoryViewport re-renders the history rows into the viewport and
// keeps the selected row visible.
func (m *Model) updateHistoryViewport() {
	if !m.ready {
		return
	}
	m.historyViewport.SetContent(m.historyContent())

	// Two lines of heading precede the rows.
	row := m.historyRow + 2
	if row < m.historyViewport.YOffset {
		m.historyViewport.SetYOffset(row)
	} else if bottom := m.historyViewport.YOffset + m.historyViewport.Height - 1; row > bottom {
		m.historyViewport.SetYOffset(row - m.historyViewport.Height + 1)
	}
}

func (m Model) historyContent() string {
	styles := m.theme.Styles()
	width := maxInt(m.width-2, 40)
	nameWidth := maxInt(width-40, 12)

	var b strings.Builder
	heading := fmt.Sprintf(" %-*s  %-19s  %s", nameWidth, "File", "Created", "Status")
	b.WriteString(styles.AccentText.Bold(true).Render(heading))
	b.WriteString("\n")
	b.WriteString(m.historyStatusLine(styles))
	b.WriteString("\n")

	if len(m.history.Entries) == 0 {
		b.WriteString(styles.MutedText.Render(" No processed files yet."))
		return b.String()
	}

	for i, e := range m.history.Entries {
		created := "-"
		if !e.CreatedAt.IsZero() {
			created = e.CreatedAt.Local().Format("2006-01-02 15:04:05")
		}
		name := padRight(truncateMiddle(e.FileName, nameWidth), nameWidth)
		badge := styles.StatusStyle(string(e.Status)).Render(statusLabel(e.Status))

		prefix := fmt.Sprintf(" %s  %-19s  ", name, created)
		if i == m.historyRow && m.currentView == ViewHistory {
			b.WriteString(styles.Selected.Render(prefix))
		} else {
			b.WriteString(styles.Text.Render(prefix))
		}
		b.WriteString(badge)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) historyStatusLine(styles Styles) string {
	snap := m.history
	switch {
	case snap.IsOffline():
		return styles.DangerText.Render(" History unavailable: " + classifyConnectionError(snap.LastError))
	case snap.LastError != nil:
		return styles.WarningText.Render(" Last refresh failed; showing cached history")
	case !snap.Loaded:
		return styles.MutedText.Render(" Loading history...")
	default:
		return styles.FaintText.Render(" Updated " + snap.LastUpdated.Local().Format("15:04:05") + "  enter: download  R: refresh")
	}
}

// renderHistory renders the history view.
func (m Model) renderHistory() string {
	view := m.historyViewport.View()
	if m.notice.text == "" {
		return view
	}
	styles := m.theme.Styles()
	return view + "\n" + m.noticeStyle(styles).Render(" "+m.notice.text)
}

func statusLabel(s history.Status) string {
	switch s {
	case history.Downloaded:
		return "downloaded"
	case history.NotDownloaded:
		return "not downloaded"
	default:
		return string(s)
	}
}

// fetchEntryCmd downloads a history entry and marks it downloaded only once
// the file is on disk.
func fetchEntryCmd(ctx context.Context, ctrl *submit.Controller, l Ledger, entry history.Entry, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := ctrl.FetchFile(ctx, entry.FileName, entry.FileURL, dir)
		if err != nil {
			return markDoneMsg{name: entry.FileName, err: err}
		}
		_, err = l.MarkDownloaded(ctx, entry.FileName)
		return markDoneMsg{name: entry.FileName, path: path, err: err}
	}
}
