package ui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/excelextractor/internal/history"
	"github.com/five82/excelextractor/internal/quota"
	"github.com/five82/excelextractor/internal/selection"
	"github.com/five82/excelextractor/internal/session"
	"github.com/five82/excelextractor/internal/submit"
)

// View represents the current active view.
type View int

const (
	ViewFiles View = iota
	ViewHistory
	ViewLogin
)

// Ledger is the history the UI shows and edits.
type Ledger interface {
	Snapshot() history.Snapshot
	Refresh(ctx context.Context) error
	MarkDownloaded(ctx context.Context, fileName string) (bool, error)
}

// Quota is the monthly counter the header shows.
type Quota interface {
	Snapshot() quota.Snapshot
	Start(ctx context.Context)
}

// ThemeStore persists the chosen theme.
type ThemeStore interface {
	SaveTheme(name string) error
}

// Options configures the UI.
type Options struct {
	Context     context.Context
	Controller  *submit.Controller
	Session     *session.Context
	Auth        session.Authenticator
	History     Ledger
	Quota       Quota
	Prefs       ThemeStore
	DownloadDir string
	APIBase     string
	PollTick    time.Duration
	ThemeName   string
	Logger      *slog.Logger
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx         context.Context
	ctrl        *submit.Controller
	session     *session.Context
	auth        session.Authenticator
	ledger      Ledger
	quota       Quota
	prefs       ThemeStore
	downloadDir string
	apiBase     string
	pollTick    time.Duration
	logger      *slog.Logger
	keys        keyMap

	// UI state
	theme       Theme
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	// Data state
	snapshot    submit.Snapshot
	history     history.Snapshot
	quotaSnap   quota.Snapshot
	lastUpdated time.Time

	// Files state
	selectedRow int
	drag        *selection.Drag
	input       textinput.Model
	inputMode   inputMode
	spinner     spinner.Model
	busy        bool // a controller call is running
	notice      notice

	// History state
	historyRow      int
	historyViewport viewport.Model

	// Login state
	login loginState
}

// notice is a transient line under the file list.
type notice struct {
	text  string
	level noticeLevel
}

type noticeLevel int

const (
	noticeInfo noticeLevel = iota
	noticeWarn
	noticeError
)

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	pollTick := opts.PollTick
	if pollTick == 0 {
		pollTick = time.Second
	}

	themeName := opts.ThemeName
	if themeName == "" {
		themeName = "Dracula"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sess := opts.Session
	if sess == nil {
		sess = session.New(session.Credential{})
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))

	m := Model{
		ctx:         ctx,
		ctrl:        opts.Controller,
		session:     sess,
		auth:        opts.Auth,
		ledger:      opts.History,
		quota:       opts.Quota,
		prefs:       opts.Prefs,
		downloadDir: opts.DownloadDir,
		apiBase:     opts.APIBase,
		pollTick:    pollTick,
		logger:      logger,
		keys:        DefaultKeyMap(),
		theme:       GetTheme(themeName),
		currentView: ViewFiles,
		drag:        selection.NewDrag(opts.Controller.Files()),
		input:       textinput.New(),
		spinner:     sp,
		login:       newLoginState(),
	}
	if _, ok := m.session.Token(); !ok {
		m.enterLogin("")
	}
	m.refreshData()
	return m
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		tickCmd(m.pollTick),
		m.spinner.Tick,
	}
	if m.currentView == ViewLogin {
		cmds = append(cmds, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.historyViewport = viewport.New(msg.Width, m.historyHeight())
		}
		m.ready = true
		m.historyViewport.Width = msg.Width
		m.historyViewport.Height = m.historyHeight()
		m.updateHistoryViewport()
		return m, nil

	case tickMsg:
		m.refreshData()
		return m, tickCmd(m.pollTick)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case submitDoneMsg:
		return m.handleSubmitDone(msg), nil

	case downloadDoneMsg:
		return m.handleDownloadDone(msg), nil

	case actionDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.setNotice(msg.err.Error(), noticeError)
		} else if msg.done != "" {
			m.setNotice(msg.done, noticeInfo)
		}
		m.refreshData()
		return m, nil

	case markDoneMsg:
		return m.handleMarkDone(msg), nil

	case loginDoneMsg:
		return m.handleLoginDone(msg)

	case remoteRefreshedMsg:
		m.refreshData()
		return m, nil

	case reauthMsg:
		m.enterLogin(submit.MsgSessionExpired)
		return m, textinput.Blink
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	if m.showHelp {
		return m.renderHelp()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	return b.String()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	// Text entry owns the keyboard.
	if m.currentView == ViewLogin {
		return m.handleLoginKey(msg)
	}
	if m.inputMode != inputNone {
		return m.handleInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil

	case key.Matches(msg, m.keys.CycleTheme):
		m.theme = GetTheme(NextTheme(m.theme.Name))
		if m.prefs != nil {
			if err := m.prefs.SaveTheme(m.theme.Name); err != nil {
				m.logger.Warn("save theme failed", "error", err)
			}
		}
		m.updateHistoryViewport()
		return m, nil

	case key.Matches(msg, m.keys.Tab):
		if m.drag.Active() {
			return m, nil
		}
		if m.currentView == ViewFiles {
			m.currentView = ViewHistory
			m.updateHistoryViewport()
		} else {
			m.currentView = ViewFiles
		}
		return m, nil

	case key.Matches(msg, m.keys.Logout):
		if m.busy {
			return m, nil
		}
		m.session.Logout()
		m.enterLogin("")
		return m, textinput.Blink
	}

	switch m.currentView {
	case ViewFiles:
		return m.handleFilesKey(msg)
	case ViewHistory:
		return m.handleHistoryKey(msg)
	}
	return m, nil
}

// refreshData copies the latest controller, history and quota state into the
// model.
func (m *Model) refreshData() {
	m.snapshot = m.ctrl.Snapshot()
	if m.ledger != nil {
		m.history = m.ledger.Snapshot()
	}
	if m.quota != nil {
		m.quotaSnap = m.quota.Snapshot()
	}
	m.lastUpdated = time.Now()

	if n := len(m.snapshot.Files); m.selectedRow >= n {
		m.selectedRow = maxInt(n-1, 0)
	}
	if n := len(m.history.Entries); m.historyRow >= n {
		m.historyRow = maxInt(n-1, 0)
	}
	if m.drag.Active() {
		m.selectedRow = m.drag.Index()
	}
	m.updateHistoryViewport()
}

func (m *Model) setNotice(text string, level noticeLevel) {
	m.notice = notice{text: text, level: level}
}

// contentHeight is the space below the header and command bar.
func (m Model) contentHeight() int {
	return maxInt(m.height-2, 1)
}

// historyHeight leaves one line under the history for notices.
func (m Model) historyHeight() int {
	return maxInt(m.contentHeight()-1, 1)
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewFiles:
		return m.renderFiles()
	case ViewHistory:
		return m.renderHistory()
	case ViewLogin:
		return m.renderLogin()
	default:
		return ""
	}
}

// Messages

type tickMsg time.Time

type submitDoneMsg struct{ err error }

type downloadDoneMsg struct {
	path string
	err  error
}

type actionDoneMsg struct {
	done string
	err  error
}

type markDoneMsg struct {
	name string
	path string
	err  error
}

type loginDoneMsg struct{ err error }

type remoteRefreshedMsg struct{}

type reauthMsg struct{}

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// refreshRemoteCmd reloads quota and history after a login.
func refreshRemoteCmd(ctx context.Context, q Quota, l Ledger) tea.Cmd {
	return func() tea.Msg {
		if q != nil {
			q.Start(ctx)
		}
		if l != nil {
			_ = l.Refresh(ctx)
		}
		return remoteRefreshedMsg{}
	}
}

// Run starts the Bubble Tea program. A credential rejected by the service
// sends the program back to the login view.
func Run(opts Options) error {
	m := New(opts)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	m.session.OnReauth(func() { p.Send(reauthMsg{}) })
	defer m.session.OnReauth(nil)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && m.ctx.Err() != nil {
		return nil
	}
	return err
}
