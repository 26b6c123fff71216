package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/five82/excelextractor/internal/config"
	"github.com/five82/excelextractor/internal/extractor"
	"github.com/five82/excelextractor/internal/history"
	"github.com/five82/excelextractor/internal/prefs"
	"github.com/five82/excelextractor/internal/quota"
	"github.com/five82/excelextractor/internal/session"
	"github.com/five82/excelextractor/internal/submit"
	"github.com/five82/excelextractor/internal/ui"
)

// Options configure the extractor application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/excelextractor/prefs.toml
	OutputDir  string // overrides download_dir
	OutputName string // overrides output_name for this run
	PollEvery  time.Duration

	// Files switches to headless mode: submit these paths, download the
	// result and exit.
	Files []string
	// KeepRemote skips the download in headless mode and records the file
	// as not downloaded.
	KeepRemote bool
	Stdout     io.Writer
}

// env is the wired application.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	prefs   *prefs.File
	client  *extractor.Client
	session *session.Context
	tracker *quota.Tracker
	ledger  *history.Ledger
	ctrl    *submit.Controller
}

// Run boots the extractor until the work is done or the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	if err := config.LoadDotEnv(); err != nil {
		return err
	}
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.OutputDir != "" {
		cfg.DownloadDir = opts.OutputDir
	}
	if opts.OutputName != "" {
		cfg.OutputName = opts.OutputName
	}

	logger, closeLog, err := openLogger(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	e, err := wire(cfg, opts.PrefsPath, logger)
	if err != nil {
		return err
	}

	if len(opts.Files) > 0 {
		return e.runHeadless(ctx, opts)
	}

	if err := e.login(ctx); err != nil {
		// The login view takes over.
		logger.Warn("startup login failed", "user", cfg.UserID, "error", err)
	}
	if e.authenticated() {
		e.warmUp(ctx)
	}
	StartPoller(ctx, opts.PollEvery, logger, e.backgroundSources()...)

	return ui.Run(ui.Options{
		Context:     ctx,
		Controller:  e.ctrl,
		Session:     e.session,
		Auth:        e.client,
		History:     e.ledger,
		Quota:       e.tracker,
		Prefs:       e.prefs,
		DownloadDir: cfg.DownloadDir,
		APIBase:     e.client.BaseURL(),
		ThemeName:   e.prefs.Theme(),
		Logger:      logger,
	})
}

func wire(cfg config.Config, prefsPath string, logger *slog.Logger) (*env, error) {
	sess := session.New(session.Credential{UserID: cfg.UserID, Token: cfg.Token})

	client, err := extractor.NewClient(cfg.APIBase, sess, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("init extractor client: %w", err)
	}

	userPrefs := prefs.Open(prefsPath)
	tracker := quota.NewTracker(client, userPrefs, sess.UserID, logger)
	ledger := history.NewLedger(client, logger)
	ctrl := submit.New(submit.Options{
		Service:           client,
		Session:           sess,
		Quota:             tracker,
		History:           ledger,
		DefaultOutputName: cfg.OutputName,
		RedirectDelay:     cfg.RedirectDelay,
		Logger:            logger,
	})

	return &env{
		cfg:     cfg,
		logger:  logger,
		prefs:   userPrefs,
		client:  client,
		session: sess,
		tracker: tracker,
		ledger:  ledger,
		ctrl:    ctrl,
	}, nil
}

// login exchanges configured credentials for a token when none was supplied.
func (e *env) login(ctx context.Context) error {
	if _, ok := e.session.Token(); ok {
		return nil
	}
	if e.cfg.UserID == "" || e.cfg.Password == "" {
		return nil
	}
	if err := e.session.Login(ctx, e.client, e.cfg.UserID, e.cfg.Password); err != nil {
		return err
	}
	e.logger.Info("logged in", "user", e.cfg.UserID)
	return nil
}

func (e *env) authenticated() bool {
	_, ok := e.session.Token()
	return ok
}

// warmUp loads the quota and history concurrently. Both are best-effort.
func (e *env) warmUp(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.tracker.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := e.ledger.Refresh(gctx); err != nil {
			e.logger.Warn("initial history load failed", "error", err)
		}
		return nil
	})
	_ = g.Wait()
}

// backgroundSources only poll while a credential is held so an expired
// session does not generate a stream of 401s. A rejected credential is
// dropped quietly; the next submit asks the operator to log in.
func (e *env) backgroundSources() []Refresher {
	return []Refresher{
		whenAuthenticated{e.session, e.ledger},
		whenAuthenticated{e.session, e.tracker},
	}
}

type whenAuthenticated struct {
	session *session.Context
	inner   Refresher
}

func (w whenAuthenticated) Refresh(ctx context.Context) error {
	if _, ok := w.session.Token(); !ok {
		return nil
	}
	err := w.inner.Refresh(ctx)
	var apiErr *extractor.APIError
	if errors.As(err, &apiErr) && apiErr.IsAuth() {
		w.session.Invalidate()
	}
	return err
}

func openLogger(path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelInfo}))
	return logger, func() { _ = f.Close() }, nil
}
