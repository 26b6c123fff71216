package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/excelextractor/internal/extractor"
	"github.com/five82/excelextractor/internal/session"
)

const (
	loginUser = iota
	loginPassword
)

type loginState struct {
	inputs  [2]textinput.Model
	focus   int
	message string
	pending bool
}

func newLoginState() loginState {
	user := textinput.New()
	user.Placeholder = "user id"
	user.Prompt = "User      "
	user.CharLimit = 128

	pass := textinput.New()
	pass.Placeholder = "password"
	pass.Prompt = "Password  "
	pass.EchoMode = textinput.EchoPassword
	pass.EchoCharacter = '•'
	pass.CharLimit = 256

	return loginState{inputs: [2]textinput.Model{user, pass}}
}

// enterLogin switches to the login view, prefilled with the last user.
func (m *Model) enterLogin(message string) {
	m.drag.End()
	m.closeInput()
	m.currentView = ViewLogin
	m.login.message = message
	m.login.pending = false
	m.login.inputs[loginUser].SetValue(m.session.UserID())
	m.login.inputs[loginPassword].SetValue("")
	m.login.focus = loginUser
	if m.session.UserID() != "" {
		m.login.focus = loginPassword
	}
	m.focusLoginInput()
}

func (m *Model) focusLoginInput() {
	for i := range m.login.inputs {
		if i == m.login.focus {
			m.login.inputs[i].Focus()
		} else {
			m.login.inputs[i].Blur()
		}
	}
}

// handleLoginKey processes keyboard input for the login view.
func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	if m.login.pending {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Tab), msg.String() == "up", msg.String() == "down":
		m.login.focus = (m.login.focus + 1) % len(m.login.inputs)
		m.focusLoginInput()
		return m, textinput.Blink

	case key.Matches(msg, m.keys.Confirm):
		if m.login.focus == loginUser {
			m.login.focus = loginPassword
			m.focusLoginInput()
			return m, textinput.Blink
		}
		user := strings.TrimSpace(m.login.inputs[loginUser].Value())
		pass := m.login.inputs[loginPassword].Value()
		if user == "" || pass == "" {
			m.login.message = "Enter both user id and password."
			return m, nil
		}
		if m.auth == nil {
			m.login.message = "No service configured."
			return m, nil
		}
		m.login.pending = true
		m.login.message = ""
		return m, loginCmd(m.ctx, m.session, m.auth, user, pass)
	}

	var cmd tea.Cmd
	m.login.inputs[m.login.focus], cmd = m.login.inputs[m.login.focus].Update(msg)
	return m, cmd
}

func (m Model) handleLoginDone(msg loginDoneMsg) (tea.Model, tea.Cmd) {
	m.login.pending = false
	if msg.err != nil {
		m.login.message = loginErrorText(msg.err)
		m.login.inputs[loginPassword].SetValue("")
		m.login.focus = loginPassword
		m.focusLoginInput()
		return m, textinput.Blink
	}

	m.login.message = ""
	m.login.inputs[loginPassword].SetValue("")
	for i := range m.login.inputs {
		m.login.inputs[i].Blur()
	}
	m.currentView = ViewFiles
	m.setNotice("Logged in as "+m.session.UserID(), noticeInfo)
	return m, refreshRemoteCmd(m.ctx, m.quota, m.ledger)
}

func loginErrorText(err error) string {
	var apiErr *extractor.APIError
	switch {
	case errors.As(err, &apiErr) && apiErr.IsAuth():
		return "Invalid user id or password."
	case errors.As(err, &apiErr) && apiErr.Detail != "":
		return apiErr.Detail
	case errors.Is(err, session.ErrMissingCredentials):
		return "Enter both user id and password."
	default:
		return "Login failed: " + classifyConnectionError(err)
	}
}

// renderLogin renders the centered login form.
func (m Model) renderLogin() string {
	styles := m.theme.Styles()

	var b strings.Builder
	b.WriteString(styles.AccentText.Bold(true).Render("Log in"))
	b.WriteString("\n")
	if m.apiBase != "" {
		b.WriteString(styles.FaintText.Render(m.apiBase))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for _, in := range m.login.inputs {
		b.WriteString(in.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case m.login.pending:
		b.WriteString(m.spinner.View() + " " + styles.InfoText.Render("Signing in..."))
	case m.login.message != "":
		b.WriteString(styles.DangerText.Render(m.login.message))
	default:
		b.WriteString(styles.FaintText.Render("tab switch field  enter submit  ctrl+c quit"))
	}

	form := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color(m.theme.BorderFocus)).
		Padding(1, 2).
		Width(48).
		Render(b.String())

	return lipgloss.Place(m.width, m.contentHeight(), lipgloss.Center, lipgloss.Center, form)
}

func loginCmd(ctx context.Context, sess *session.Context, auth session.Authenticator, user, pass string) tea.Cmd {
	return func() tea.Msg {
		return loginDoneMsg{err: sess.Login(ctx, auth, user, pass)}
	}
}
