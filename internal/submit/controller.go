package submit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/five82/excelextractor/internal/extractor"
	"github.com/five82/excelextractor/internal/history"
	"github.com/five82/excelextractor/internal/selection"
)

const (
	// DefaultOutputName is used when the operator leaves the name blank.
	DefaultOutputName = "merged_output.xlsx"
	// DefaultRedirectDelay keeps the expiry message visible before the
	// re-authentication redirect.
	DefaultRedirectDelay = 1500 * time.Millisecond
)

// Service is the remote side of a submission.
type Service interface {
	ExtractMergeTables(ctx context.Context, outputName string, files []extractor.Part) (extractor.ExtractResult, error)
	Download(ctx context.Context, fileURL string, w io.Writer) (int64, error)
}

// Session supplies the credential and handles expiry.
type Session interface {
	Token() (string, bool)
	Invalidate()
	RequestReauth()
}

// QuotaObserver receives the server-reported monthly count.
type QuotaObserver interface {
	Observe(count int)
}

// Ledger records download attempts and reconciles with the server.
type Ledger interface {
	Refresh(ctx context.Context) error
	RecordAttempt(ctx context.Context, fileName, fileURL string, status history.Status) error
}

// Options wires a Controller.
type Options struct {
	Service           Service
	Session           Session
	Quota             QuotaObserver
	History           Ledger
	DefaultOutputName string
	RedirectDelay     time.Duration
	Logger            *slog.Logger

	// AfterFunc schedules the re-authentication redirect; nil uses
	// time.AfterFunc.
	AfterFunc func(d time.Duration, f func())
}

// Controller owns the selection and drives one submission at a time through
// Idle, Invalid, Submitting, Success and Failed.
type Controller struct {
	service       Service
	session       Session
	quota         QuotaObserver
	ledger        Ledger
	defaultName   string
	redirectDelay time.Duration
	afterFunc     func(time.Duration, func())
	logger        *slog.Logger

	files *selection.Set

	mu         sync.Mutex
	state      State
	outputName string
	result     Result
	warning    string
	attempts   int

	// finishing is set while a Download or Abandon owns the result.
	finishing bool
}

// New builds a controller in the Idle state with an empty selection.
func New(opts Options) *Controller {
	c := &Controller{
		service:       opts.Service,
		session:       opts.Session,
		quota:         opts.Quota,
		ledger:        opts.History,
		defaultName:   strings.TrimSpace(opts.DefaultOutputName),
		redirectDelay: opts.RedirectDelay,
		afterFunc:     opts.AfterFunc,
		logger:        opts.Logger,
		files:         &selection.Set{},
	}
	if c.defaultName == "" {
		c.defaultName = DefaultOutputName
	}
	if c.redirectDelay <= 0 {
		c.redirectDelay = DefaultRedirectDelay
	}
	if c.afterFunc == nil {
		c.afterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Files exposes the selection for adapters that need a drag binding.
func (c *Controller) Files() *selection.Set {
	return c.files
}

// AddFiles validates batch and appends the accepted members. A batch with
// nothing acceptable sets a warning and returns selection.ErrNoAcceptableFiles.
func (c *Controller) AddFiles(batch []selection.Candidate) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return 0, err
	}

	added, err := c.files.Add(batch)
	if err != nil {
		c.warning = err.Error()
		return 0, err
	}
	c.warning = ""
	return added, nil
}

// MoveFile reorders the selection.
func (c *Controller) MoveFile(from, to int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	return c.files.Move(from, to)
}

// RemoveFile drops one file from the selection.
func (c *Controller) RemoveFile(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	return c.files.Remove(index)
}

// SetOutputName sets the requested spreadsheet name.
func (c *Controller) SetOutputName(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.editableLocked(); err != nil {
		return err
	}
	c.outputName = name
	return nil
}

// Submit runs one attempt. It blocks until the service answers. Local
// validation failures move to Invalid without a network call and return an
// *Error of KindValidation; remote failures move to Failed and return an
// *Error of KindAuth or KindRequest.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateSubmitting:
		c.mu.Unlock()
		return ErrBusy
	case StateSuccess:
		c.mu.Unlock()
		return ErrResultPending
	}

	files := c.files.Snapshot()
	if len(files) == 0 {
		err := c.invalidLocked(MsgNoFiles, errNoFiles)
		c.mu.Unlock()
		return err
	}
	if _, ok := c.token(); !ok {
		err := c.invalidLocked(MsgNoCredential, errNoCredential)
		c.mu.Unlock()
		return err
	}

	name := strings.TrimSpace(c.outputName)
	if name == "" {
		name = c.defaultName
	}
	c.state = StateSubmitting
	c.result = Result{OutputName: name}
	c.warning = ""
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	parts := make([]extractor.Part, len(files))
	for i, f := range files {
		parts[i] = f
	}

	c.logger.Info("submitting batch", "attempt", attempt, "files", len(parts), "output", name)
	res, err := c.service.ExtractMergeTables(ctx, name, parts)
	if err != nil {
		return c.fail(attempt, name, err)
	}
	if strings.TrimSpace(res.MergedExcelURL) == "" {
		return c.fail(attempt, name, errNoFileURL)
	}

	c.mu.Lock()
	c.state = StateSuccess
	c.result = Result{
		OutputName:   name,
		FileURL:      res.MergedExcelURL,
		MonthlyCount: res.MonthlyAPICount,
		Message:      MsgSuccess,
	}
	c.mu.Unlock()

	if c.quota != nil {
		c.quota.Observe(res.MonthlyAPICount)
	}
	c.logger.Info("submission succeeded", "attempt", attempt, "url", res.MergedExcelURL, "monthly_count", res.MonthlyAPICount)
	return nil
}

// Download fetches the produced file into dir, records it as downloaded and
// resets. The returned path is the written file. On a fetch failure the
// controller stays in Success so the operator can retry or abandon.
func (c *Controller) Download(ctx context.Context, dir string) (string, error) {
	result, err := c.pendingResult()
	if err != nil {
		return "", err
	}

	path, err := c.fetchTo(ctx, result, dir)
	if err != nil {
		c.release()
		return "", err
	}

	c.record(ctx, result, history.Downloaded)
	if err := c.Reset(ctx); err != nil {
		return path, err
	}
	return path, nil
}

// FetchFile downloads an earlier result, such as a history entry, into dir
// without touching the current submission. The returned path is the
// written file.
func (c *Controller) FetchFile(ctx context.Context, fileName, fileURL, dir string) (string, error) {
	if strings.TrimSpace(fileURL) == "" {
		return "", ErrNoResult
	}
	return c.fetchTo(ctx, Result{OutputName: fileName, FileURL: fileURL}, dir)
}

// Abandon records the produced file as not downloaded and resets.
func (c *Controller) Abandon(ctx context.Context) error {
	result, err := c.pendingResult()
	if err != nil {
		return err
	}
	c.record(ctx, result, history.NotDownloaded)
	return c.Reset(ctx)
}

// Reset clears the selection, output name and result, returns to Idle and
// refreshes the history ledger. It is refused while submitting.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return ErrBusy
	}
	c.files.Clear()
	c.outputName = ""
	c.result = Result{}
	c.warning = ""
	c.finishing = false
	c.state = StateIdle
	c.mu.Unlock()

	if c.ledger != nil {
		if err := c.ledger.Refresh(ctx); err != nil {
			c.logger.Warn("history refresh after reset failed", "error", err)
		}
	}
	return nil
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		State:      c.state,
		OutputName: c.outputName,
		Files:      c.files.Snapshot(),
		Result:     c.result,
		Warning:    c.warning,
		Attempts:   c.attempts,
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) invalidLocked(msg string, cause error) error {
	c.state = StateInvalid
	c.result = Result{Kind: KindValidation, Message: msg}
	return &Error{Kind: KindValidation, Message: msg, Err: cause}
}

func (c *Controller) fail(attempt int, name string, cause error) error {
	kind := KindRequest
	msg := MsgUploadFailed

	var apiErr *extractor.APIError
	switch {
	case errors.As(cause, &apiErr) && apiErr.IsAuth():
		kind = KindAuth
		msg = MsgSessionExpired
	case errors.Is(cause, extractor.ErrNoCredential):
		// The token vanished between the local check and the request.
		kind = KindAuth
		msg = MsgSessionExpired
	case apiErr != nil && apiErr.Detail != "":
		msg = apiErr.Detail
	}

	c.mu.Lock()
	c.state = StateFailed
	c.result = Result{OutputName: name, Kind: kind, Message: msg}
	c.mu.Unlock()

	c.logger.Warn("submission failed", "attempt", attempt, "kind", kind.String(), "error", cause)

	if kind == KindAuth && c.session != nil {
		c.session.Invalidate()
		c.afterFunc(c.redirectDelay, c.session.RequestReauth)
	}
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// pendingResult claims the produced file for one Download or Abandon.
func (c *Controller) pendingResult() (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateSuccess || c.result.FileURL == "" || c.finishing {
		return Result{}, ErrNoResult
	}
	c.finishing = true
	return c.result, nil
}

// release returns a claimed result after a failed download so it can be
// retried or abandoned.
func (c *Controller) release() {
	c.mu.Lock()
	c.finishing = false
	c.mu.Unlock()
}

// editableLocked reports whether the selection and output name may change.
func (c *Controller) editableLocked() error {
	switch c.state {
	case StateSubmitting:
		return ErrBusy
	case StateSuccess:
		return ErrResultPending
	}
	return nil
}

func (c *Controller) record(ctx context.Context, result Result, status history.Status) {
	if c.ledger == nil {
		return
	}
	if err := c.ledger.RecordAttempt(ctx, result.OutputName, result.FileURL, status); err != nil {
		c.logger.Warn("history record failed", "file", result.OutputName, "status", status, "error", err)
	}
}

func (c *Controller) fetchTo(ctx context.Context, result Result, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := c.service.Download(ctx, result.FileURL, tmp); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("download %s: %w", result.OutputName, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close download: %w", err)
	}

	dest := uniquePath(filepath.Join(dir, localName(result.OutputName)))
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("save download: %w", err)
	}
	c.logger.Info("downloaded merged workbook", "path", dest)
	return dest, nil
}

func (c *Controller) token() (string, bool) {
	if c.session == nil {
		return "", false
	}
	return c.session.Token()
}

// localName is the on-disk name for a produced workbook.
func localName(outputName string) string {
	name := filepath.Base(outputName)
	if !strings.EqualFold(filepath.Ext(name), ".xlsx") {
		name += ".xlsx"
	}
	return name
}

// uniquePath appends " (n)" before the extension until the path is free.
func uniquePath(path string) string {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return path
	}
	ext := filepath.Ext(path)
	stem := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s (%d)%s", stem, i, ext)
		if _, err := os.Stat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate
		}
	}
}
