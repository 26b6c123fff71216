package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/excelextractor/internal/selection"
	"github.com/five82/excelextractor/internal/submit"
)

// inputMode is the single-line prompt shown under the file list.
type inputMode int

const (
	inputNone inputMode = iota
	inputAddPaths
	inputOutputName
)

// handleFilesKey processes keyboard input for the files view.
func (m Model) handleFilesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	count := len(m.snapshot.Files)

	if m.drag.Active() {
		return m.handleDragKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Up):
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.Down):
		if m.selectedRow < count-1 {
			m.selectedRow++
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = maxInt(count-1, 0)

	case key.Matches(msg, m.keys.AddFiles):
		return m.openInput(inputAddPaths, "", "image paths or globs, comma separated")
	case key.Matches(msg, m.keys.OutputName):
		return m.openInput(inputOutputName, m.snapshot.OutputName, submit.DefaultOutputName)

	case key.Matches(msg, m.keys.Remove):
		if count == 0 {
			return m, nil
		}
		m.apply(m.ctrl.RemoveFile(m.selectedRow))

	case key.Matches(msg, m.keys.Grab):
		if m.busy || m.snapshot.State == submit.StateSuccess || !m.drag.Begin(m.selectedRow) {
			return m, nil
		}
		m.setNotice("Moving: j/k to place, m or enter to drop", noticeInfo)

	case key.Matches(msg, m.keys.MoveUp):
		if m.selectedRow > 0 && m.apply(m.ctrl.MoveFile(m.selectedRow, m.selectedRow-1)) {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.MoveDown):
		if m.selectedRow < count-1 && m.apply(m.ctrl.MoveFile(m.selectedRow, m.selectedRow+1)) {
			m.selectedRow++
		}

	case key.Matches(msg, m.keys.Submit):
		if m.busy || !m.snapshot.CanSubmit() {
			return m, nil
		}
		m.busy = true
		m.notice = notice{}
		return m, submitCmd(m.ctx, m.ctrl)

	case key.Matches(msg, m.keys.Download):
		if m.busy || m.snapshot.State != submit.StateSuccess {
			return m, nil
		}
		m.busy = true
		m.setNotice("Downloading...", noticeInfo)
		return m, downloadCmd(m.ctx, m.ctrl, m.downloadDir)

	case key.Matches(msg, m.keys.Discard):
		if m.busy || m.snapshot.State != submit.StateSuccess {
			return m, nil
		}
		m.busy = true
		return m, actionCmd("Left on server; recorded as not downloaded", func() error {
			return m.ctrl.Abandon(m.ctx)
		})

	case key.Matches(msg, m.keys.Reset):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, actionCmd("", func() error { return m.ctrl.Reset(m.ctx) })
	}

	m.refreshData()
	return m, nil
}

// handleDragKey moves the grabbed row with the cursor keys.
func (m Model) handleDragKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.drag.Over(m.drag.Index() - 1)
	case key.Matches(msg, m.keys.Down):
		m.drag.Over(m.drag.Index() + 1)
	case key.Matches(msg, m.keys.Top):
		m.drag.Over(0)
	case key.Matches(msg, m.keys.Bottom):
		m.drag.Over(len(m.snapshot.Files) - 1)
	case key.Matches(msg, m.keys.Grab), key.Matches(msg, m.keys.Confirm), key.Matches(msg, m.keys.Escape):
		m.selectedRow = m.drag.End()
		m.notice = notice{}
	case msg.String() == "ctrl+c":
		m.drag.End()
		return m, tea.Quit
	}
	m.refreshData()
	return m, nil
}

func (m Model) openInput(mode inputMode, value, placeholder string) (tea.Model, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	m.inputMode = mode
	m.input.Reset()
	m.input.SetValue(value)
	m.input.Placeholder = placeholder
	m.input.Prompt = "> "
	m.input.CursorEnd()
	return m, m.input.Focus()
}

// handleInputKey feeds the prompt until enter or esc.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Escape):
		m.closeInput()
		return m, nil
	case msg.String() == "ctrl+c":
		return m, tea.Quit
	case key.Matches(msg, m.keys.Confirm):
		value := m.input.Value()
		mode := m.inputMode
		m.closeInput()
		switch mode {
		case inputAddPaths:
			m.addPaths(value)
		case inputOutputName:
			m.apply(m.ctrl.SetOutputName(strings.TrimSpace(value)))
		}
		m.refreshData()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) closeInput() {
	m.inputMode = inputNone
	m.input.Blur()
}

// addPaths expands globs, builds candidates and hands them to the controller
// as one batch.
func (m *Model) addPaths(raw string) {
	var (
		batch    []selection.Candidate
		problems []string
	)
	for _, entry := range splitPaths(raw) {
		matches, err := filepath.Glob(expandHome(entry))
		if err != nil || len(matches) == 0 {
			matches = []string{expandHome(entry)}
		}
		for _, path := range matches {
			c, err := selection.FromPath(path)
			if err != nil {
				problems = append(problems, filepath.Base(path))
				continue
			}
			batch = append(batch, c)
		}
	}
	if len(batch) == 0 {
		if len(problems) > 0 {
			m.setNotice("Could not read: "+strings.Join(problems, ", "), noticeError)
		}
		return
	}

	added, err := m.ctrl.AddFiles(batch)
	switch {
	case errors.Is(err, selection.ErrNoAcceptableFiles):
		m.setNotice("No PNG, JPEG or HEIC images in that selection", noticeWarn)
	case err != nil:
		m.setNotice(err.Error(), noticeError)
	default:
		text := fmt.Sprintf("Added %d image(s)", added)
		if skipped := len(batch) - added; skipped > 0 {
			text += fmt.Sprintf(", skipped %d", skipped)
		}
		if len(problems) > 0 {
			text += "; could not read: " + strings.Join(problems, ", ")
		}
		m.setNotice(text, noticeInfo)
	}
}

// apply surfaces a synchronous controller error and reports success.
func (m *Model) apply(err error) bool {
	if err == nil {
		return true
	}
	m.setNotice(err.Error(), noticeError)
	return false
}

func (m Model) handleSubmitDone(msg submitDoneMsg) Model {
	m.busy = false
	m.refreshData()
	if msg.err == nil {
		m.notice = notice{}
		return m
	}
	var subErr *submit.Error
	if errors.As(msg.err, &subErr) {
		// The result line already shows the classified message.
		m.notice = notice{}
		return m
	}
	m.setNotice(msg.err.Error(), noticeWarn)
	return m
}

func (m Model) handleDownloadDone(msg downloadDoneMsg) Model {
	m.busy = false
	m.refreshData()
	if msg.err != nil {
		m.setNotice("Download failed: "+msg.err.Error(), noticeError)
		return m
	}
	m.selectedRow = 0
	m.setNotice("Saved "+msg.path, noticeInfo)
	return m
}

// renderFiles renders the selection, the output name and the current result.
func (m Model) renderFiles() string {
	styles := m.theme.Styles()
	width := maxInt(m.width-4, 20)

	var b strings.Builder
	title := fmt.Sprintf("Images (%d)", len(m.snapshot.Files))
	b.WriteString(styles.AccentText.Bold(true).Render(title))
	b.WriteString("\n")

	if len(m.snapshot.Files) == 0 {
		b.WriteString(styles.MutedText.Render("No images selected. Press a to add PNG, JPEG or HEIC files."))
		b.WriteString("\n")
	}
	for i, f := range m.snapshot.Files {
		line := fmt.Sprintf("%3d  %s  %s", i+1, padRight(truncateMiddle(f.Name, width-20), width-20), humanSize(f.Size))
		switch {
		case m.drag.Active() && i == m.drag.Index():
			b.WriteString(styles.Grabbed.Width(width).Render("↕" + line))
		case i == m.selectedRow && m.currentView == ViewFiles:
			b.WriteString(styles.Selected.Width(width).Render(" " + line))
		default:
			b.WriteString(styles.Text.Render(" " + line))
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	name := m.snapshot.OutputName
	if strings.TrimSpace(name) == "" {
		name = styles.FaintText.Render(submit.DefaultOutputName + " (default)")
	} else {
		name = styles.Text.Render(name)
	}
	b.WriteString(styles.MutedText.Render("Output  ") + name)
	b.WriteString("\n")

	if m.inputMode != inputNone {
		label := "Add"
		if m.inputMode == inputOutputName {
			label = "Name"
		}
		b.WriteString(styles.AccentText.Render(label+" ") + m.input.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderResult(styles))

	if m.snapshot.Warning != "" {
		b.WriteString("\n")
		b.WriteString(styles.WarningText.Render(m.snapshot.Warning))
	}
	if m.notice.text != "" {
		b.WriteString("\n")
		b.WriteString(m.noticeStyle(styles).Render(m.notice.text))
	}

	return lipgloss.NewStyle().Padding(0, 1).Render(b.String())
}

// renderResult shows the controller state and its message.
func (m Model) renderResult(styles Styles) string {
	snap := m.snapshot
	badge := styles.StatusStyle(snap.State.String()).Render(strings.ToUpper(snap.State.String()))

	var line string
	switch {
	case m.busy && snap.State != submit.StateSuccess:
		line = m.spinner.View() + " " + styles.InfoText.Render("Extracting tables...")
	case snap.State == submit.StateSuccess:
		line = styles.SuccessText.Render(snap.Result.Message) + "\n" +
			styles.MutedText.Render("File  ") + styles.Text.Render(truncateMiddle(snap.Result.FileURL, maxInt(m.width-12, 20))) + "\n" +
			styles.FaintText.Render("d download  D leave on server")
	case snap.Result.Kind != submit.KindNone:
		line = styles.DangerText.Render(snap.Result.Message)
	default:
		line = styles.MutedText.Render("Press s to extract and merge tables.")
	}
	return badge + " " + line
}

func (m Model) noticeStyle(styles Styles) lipgloss.Style {
	switch m.notice.level {
	case noticeError:
		return styles.DangerText
	case noticeWarn:
		return styles.WarningText
	default:
		return styles.InfoText
	}
}

// Commands

func submitCmd(ctx context.Context, ctrl *submit.Controller) tea.Cmd {
	return func() tea.Msg {
		return submitDoneMsg{err: ctrl.Submit(ctx)}
	}
}

func downloadCmd(ctx context.Context, ctrl *submit.Controller, dir string) tea.Cmd {
	return func() tea.Msg {
		path, err := ctrl.Download(ctx, dir)
		return downloadDoneMsg{path: path, err: err}
	}
}

func actionCmd(done string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return actionDoneMsg{done: done, err: fn()}
	}
}
