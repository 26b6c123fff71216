package submit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/five82/excelextractor/internal/extractor"
	"github.com/five82/excelextractor/internal/history"
	"github.com/five82/excelextractor/internal/selection"
)

type fakeService struct {
	mu      sync.Mutex
	calls   int
	names   []string
	files   [][]string
	result  extractor.ExtractResult
	err     error
	block   chan struct{}
	started chan struct{}
	payload string
	dlErr   error
	dlCalls int
	lastURL string
	dlBlock chan struct{}
	dlStart chan struct{}
}

func (f *fakeService) ExtractMergeTables(_ context.Context, name string, parts []extractor.Part) (extractor.ExtractResult, error) {
	f.mu.Lock()
	f.calls++
	f.names = append(f.names, name)
	var got []string
	for _, p := range parts {
		got = append(got, p.FileName())
	}
	f.files = append(f.files, got)
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	return f.result, f.err
}

func (f *fakeService) Download(_ context.Context, url string, w io.Writer) (int64, error) {
	f.mu.Lock()
	block, started := f.dlBlock, f.dlStart
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.dlCalls++
	f.lastURL = url
	if f.dlErr != nil {
		return 0, f.dlErr
	}
	n, err := io.WriteString(w, f.payload)
	return int64(n), err
}

func (f *fakeService) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeSession struct {
	token       string
	invalidated int
	reauths     int
}

func (s *fakeSession) Token() (string, bool) { return s.token, s.token != "" }
func (s *fakeSession) Invalidate()           { s.invalidated++; s.token = "" }
func (s *fakeSession) RequestReauth()        { s.reauths++ }

type fakeQuota struct{ observed []int }

func (q *fakeQuota) Observe(n int) { q.observed = append(q.observed, n) }

type record struct {
	name, url string
	status    history.Status
}

type fakeLedger struct {
	refreshes int
	records   []record
}

func (l *fakeLedger) Refresh(context.Context) error { l.refreshes++; return nil }
func (l *fakeLedger) RecordAttempt(_ context.Context, name, url string, status history.Status) error {
	l.records = append(l.records, record{name, url, status})
	return nil
}

type scheduled struct {
	delays []time.Duration
	funcs  []func()
}

func (s *scheduled) afterFunc(d time.Duration, f func()) {
	s.delays = append(s.delays, d)
	s.funcs = append(s.funcs, f)
}

type harness struct {
	c      *Controller
	svc    *fakeService
	sess   *fakeSession
	quota  *fakeQuota
	ledger *fakeLedger
	sched  *scheduled
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		svc:    &fakeService{result: extractor.ExtractResult{MergedExcelURL: "https://blob/merged.xlsx", MonthlyAPICount: 7}},
		sess:   &fakeSession{token: "tok"},
		quota:  &fakeQuota{},
		ledger: &fakeLedger{},
		sched:  &scheduled{},
	}
	h.c = New(Options{
		Service:   h.svc,
		Session:   h.sess,
		Quota:     h.quota,
		History:   h.ledger,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		AfterFunc: h.sched.afterFunc,
	})
	return h
}

func pngs(names ...string) []selection.Candidate {
	out := make([]selection.Candidate, len(names))
	for i, n := range names {
		out[i] = selection.FromBytes(n, "image/png", []byte(n))
	}
	return out
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	var se *Error
	if !errors.As(err, &se) {
		t.Fatalf("error %v is not *submit.Error", err)
	}
	return se.Kind
}

func TestSubmit_EmptySelectionIsInvalidWithoutNetwork(t *testing.T) {
	h := newHarness(t)

	err := h.c.Submit(context.Background())
	if kindOf(t, err) != KindValidation {
		t.Fatalf("kind = %v, want validation", kindOf(t, err))
	}
	snap := h.c.Snapshot()
	if snap.State != StateInvalid || snap.Result.Message != MsgNoFiles {
		t.Fatalf("snapshot = %#v", snap)
	}
	if h.svc.callCount() != 0 {
		t.Fatalf("service calls = %d, want 0", h.svc.callCount())
	}
}

func TestSubmit_MissingCredentialIsInvalidWithoutNetwork(t *testing.T) {
	h := newHarness(t)
	h.sess.token = ""
	if _, err := h.c.AddFiles(pngs("a.png", "b.png")); err != nil {
		t.Fatalf("AddFiles: %v", err)
	}

	err := h.c.Submit(context.Background())
	if kindOf(t, err) != KindValidation {
		t.Fatalf("kind = %v, want validation", kindOf(t, err))
	}
	if snap := h.c.Snapshot(); snap.State != StateInvalid || snap.Result.Message != MsgNoCredential {
		t.Fatalf("snapshot = %#v", snap)
	}
	if h.svc.callCount() != 0 {
		t.Fatalf("service calls = %d, want 0", h.svc.callCount())
	}

	// Recovery: once a credential exists the same selection submits.
	h.sess.token = "tok"
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit after login: %v", err)
	}
	if h.c.State() != StateSuccess {
		t.Fatalf("state = %v, want success", h.c.State())
	}
}

func TestSubmit_SuccessDefaultsNameAndUpdatesQuota(t *testing.T) {
	h := newHarness(t)
	_, _ = h.c.AddFiles(pngs("p1.png", "p2.png"))
	_ = h.c.SetOutputName("   ")

	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.svc.names[0] != DefaultOutputName {
		t.Fatalf("output name = %q, want %q", h.svc.names[0], DefaultOutputName)
	}
	if strings.Join(h.svc.files[0], ",") != "p1.png,p2.png" {
		t.Fatalf("files = %v", h.svc.files[0])
	}
	snap := h.c.Snapshot()
	if snap.State != StateSuccess || snap.Result.FileURL != "https://blob/merged.xlsx" || snap.Result.MonthlyCount != 7 {
		t.Fatalf("snapshot = %#v", snap)
	}
	if len(h.quota.observed) != 1 || h.quota.observed[0] != 7 {
		t.Fatalf("quota observed %v, want [7]", h.quota.observed)
	}
	if snap.CanSubmit() {
		t.Fatal("CanSubmit = true while a result is pending")
	}
	if err := h.c.Submit(context.Background()); !errors.Is(err, ErrResultPending) {
		t.Fatalf("Submit in success = %v, want ErrResultPending", err)
	}
}

func TestSubmit_UsesTrimmedOutputName(t *testing.T) {
	h := newHarness(t)
	_, _ = h.c.AddFiles(pngs("p1.png"))
	_ = h.c.SetOutputName("  q3.xlsx ")
	_ = h.c.Submit(context.Background())
	if h.svc.names[0] != "q3.xlsx" {
		t.Fatalf("output name = %q", h.svc.names[0])
	}
}

func TestSubmit_AuthFailureSchedulesOneRedirect(t *testing.T) {
	for _, status := range []int{401, 403} {
		h := newHarness(t)
		h.svc.err = &extractor.APIError{Endpoint: "/extract_merge_tables/", StatusCode: status, Detail: "Not authenticated"}
		_, _ = h.c.AddFiles(pngs("a.png"))

		err := h.c.Submit(context.Background())
		if kindOf(t, err) != KindAuth {
			t.Fatalf("status %d: kind = %v, want auth", status, kindOf(t, err))
		}
		snap := h.c.Snapshot()
		if snap.State != StateFailed || snap.Result.Message != MsgSessionExpired {
			t.Fatalf("status %d: snapshot = %#v", status, snap)
		}
		if h.sess.invalidated != 1 {
			t.Fatalf("status %d: invalidated = %d, want 1", status, h.sess.invalidated)
		}
		if len(h.sched.delays) != 1 || h.sched.delays[0] != DefaultRedirectDelay {
			t.Fatalf("status %d: scheduled = %v, want one at %v", status, h.sched.delays, DefaultRedirectDelay)
		}
		if h.sess.reauths != 0 {
			t.Fatalf("status %d: redirect fired before the delay", status)
		}
		h.sched.funcs[0]()
		if h.sess.reauths != 1 {
			t.Fatalf("status %d: reauths = %d, want 1", status, h.sess.reauths)
		}
	}
}

func TestSubmit_RequestFailureUsesDetailOrGeneric(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"server detail", &extractor.APIError{StatusCode: 500, Detail: "OCR backend unavailable"}, "OCR backend unavailable"},
		{"no detail", &extractor.APIError{StatusCode: 502}, MsgUploadFailed},
		{"transport", errors.New("execute request: connection refused"), MsgUploadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.svc.err = tt.err
			_, _ = h.c.AddFiles(pngs("a.png"))

			err := h.c.Submit(context.Background())
			if kindOf(t, err) != KindRequest {
				t.Fatalf("kind = %v, want request", kindOf(t, err))
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("error does not wrap cause: %v", err)
			}
			snap := h.c.Snapshot()
			if snap.State != StateFailed || snap.Result.Message != tt.want {
				t.Fatalf("snapshot = %#v, want message %q", snap, tt.want)
			}
			if len(h.sched.delays) != 0 {
				t.Fatal("redirect scheduled for a request error")
			}
			if len(h.quota.observed) != 0 {
				t.Fatal("quota updated on failure")
			}

			// Failed -> Submitting is allowed as a retry.
			h.svc.err = nil
			if err := h.c.Submit(context.Background()); err != nil {
				t.Fatalf("retry Submit: %v", err)
			}
		})
	}
}

func TestSubmit_RejectsConcurrentAttempt(t *testing.T) {
	h := newHarness(t)
	h.svc.block = make(chan struct{})
	h.svc.started = make(chan struct{})
	_, _ = h.c.AddFiles(pngs("a.png"))

	done := make(chan error, 1)
	go func() { done <- h.c.Submit(context.Background()) }()
	<-h.svc.started

	if h.c.State() != StateSubmitting {
		t.Fatalf("state = %v, want submitting", h.c.State())
	}
	if h.c.Snapshot().CanSubmit() {
		t.Fatal("CanSubmit = true while submitting")
	}
	if err := h.c.Submit(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Submit = %v, want ErrBusy", err)
	}
	if err := h.c.Reset(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Reset while submitting = %v, want ErrBusy", err)
	}
	if _, err := h.c.AddFiles(pngs("b.png")); !errors.Is(err, ErrBusy) {
		t.Fatalf("AddFiles while submitting = %v, want ErrBusy", err)
	}

	close(h.svc.block)
	if err := <-done; err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if h.svc.callCount() != 1 {
		t.Fatalf("service calls = %d, want 1", h.svc.callCount())
	}
}

func TestReset_AfterSuccessClearsAndRefreshesHistory(t *testing.T) {
	h := newHarness(t)
	_, _ = h.c.AddFiles(pngs("a.png", "b.png"))
	_ = h.c.SetOutputName("report.xlsx")
	_ = h.c.Submit(context.Background())

	if err := h.c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	snap := h.c.Snapshot()
	if snap.State != StateIdle || len(snap.Files) != 0 || snap.OutputName != "" || snap.Result != (Result{}) {
		t.Fatalf("snapshot after reset = %#v", snap)
	}
	if h.ledger.refreshes != 1 {
		t.Fatalf("history refreshes = %d, want 1", h.ledger.refreshes)
	}
}

func TestAbandon_RecordsNotDownloadedThenResets(t *testing.T) {
	h := newHarness(t)
	_, _ = h.c.AddFiles(pngs("a.png"))
	_ = h.c.SetOutputName("q1.xlsx")

	if err := h.c.Abandon(context.Background()); !errors.Is(err, ErrNoResult) {
		t.Fatalf("Abandon before success = %v, want ErrNoResult", err)
	}

	_ = h.c.Submit(context.Background())
	if err := h.c.Abandon(context.Background()); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	want := record{"q1.xlsx", "https://blob/merged.xlsx", history.NotDownloaded}
	if len(h.ledger.records) != 1 || h.ledger.records[0] != want {
		t.Fatalf("records = %#v, want %#v", h.ledger.records, want)
	}
	if h.c.State() != StateIdle || h.ledger.refreshes != 1 {
		t.Fatalf("state = %v refreshes = %d", h.c.State(), h.ledger.refreshes)
	}
}

func TestDownload_WritesFileRecordsAndResets(t *testing.T) {
	h := newHarness(t)
	h.svc.payload = "xlsx-bytes"
	_, _ = h.c.AddFiles(pngs("a.png"))
	_ = h.c.Submit(context.Background())

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultOutputName), []byte("older"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	path, err := h.c.Download(context.Background(), dir)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if filepath.Base(path) != "merged_output (1).xlsx" {
		t.Fatalf("path = %q, want de-duplicated name", path)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "xlsx-bytes" {
		t.Fatalf("file content = %q", data)
	}
	if h.svc.lastURL != "https://blob/merged.xlsx" {
		t.Fatalf("downloaded url = %q", h.svc.lastURL)
	}
	if len(h.ledger.records) != 1 || h.ledger.records[0].status != history.Downloaded {
		t.Fatalf("records = %#v, want one downloaded", h.ledger.records)
	}
	if h.c.State() != StateIdle || h.c.Files().Len() != 0 {
		t.Fatalf("state = %v files = %d after download", h.c.State(), h.c.Files().Len())
	}
}

func TestDownload_FailureKeepsResult(t *testing.T) {
	h := newHarness(t)
	h.svc.dlErr = errors.New("blob gone")
	_, _ = h.c.AddFiles(pngs("a.png"))
	_ = h.c.Submit(context.Background())

	dir := t.TempDir()
	if _, err := h.c.Download(context.Background(), dir); err == nil {
		t.Fatal("Download returned nil error")
	}
	if h.c.State() != StateSuccess {
		t.Fatalf("state = %v, want success kept for retry", h.c.State())
	}
	if len(h.ledger.records) != 0 {
		t.Fatalf("records = %#v, want none", h.ledger.records)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("download dir not cleaned: %d entries", len(entries))
	}
}

func TestSubmit_MissingFileURLFails(t *testing.T) {
	h := newHarness(t)
	h.svc.result = extractor.ExtractResult{MonthlyAPICount: 4}
	_, _ = h.c.AddFiles(pngs("a.png"))

	err := h.c.Submit(context.Background())
	if kindOf(t, err) != KindRequest {
		t.Fatalf("kind = %v, want request", kindOf(t, err))
	}
	if !errors.Is(err, errNoFileURL) {
		t.Fatalf("Submit = %v, want errNoFileURL", err)
	}
	snap := h.c.Snapshot()
	if snap.State != StateFailed || snap.Result.Message != MsgUploadFailed {
		t.Fatalf("snapshot = %#v", snap)
	}
	if len(h.quota.observed) != 0 {
		t.Fatalf("quota observed = %v, want none", h.quota.observed)
	}

	// The selection is kept so the operator can retry.
	h.svc.result = extractor.ExtractResult{MergedExcelURL: "https://blob/merged.xlsx", MonthlyAPICount: 5}
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
	if h.c.State() != StateSuccess {
		t.Fatalf("state = %v, want success", h.c.State())
	}
}

func TestSuccess_RefusesSelectionEdits(t *testing.T) {
	h := newHarness(t)
	_, _ = h.c.AddFiles(pngs("a.png", "b.png"))
	_ = h.c.SetOutputName("q2.xlsx")
	if err := h.c.Submit(context.Background()); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if n, err := h.c.AddFiles(pngs("c.png")); !errors.Is(err, ErrResultPending) || n != 0 {
		t.Fatalf("AddFiles = %d, %v, want ErrResultPending", n, err)
	}
	if err := h.c.RemoveFile(0); !errors.Is(err, ErrResultPending) {
		t.Fatalf("RemoveFile = %v, want ErrResultPending", err)
	}
	if err := h.c.MoveFile(0, 1); !errors.Is(err, ErrResultPending) {
		t.Fatalf("MoveFile = %v, want ErrResultPending", err)
	}
	if err := h.c.SetOutputName("other.xlsx"); !errors.Is(err, ErrResultPending) {
		t.Fatalf("SetOutputName = %v, want ErrResultPending", err)
	}

	snap := h.c.Snapshot()
	if got := strings.Join(fileNamesOf(snap), ","); got != "a.png,b.png" || snap.OutputName != "q2.xlsx" {
		t.Fatalf("selection changed in success: %s name=%q", got, snap.OutputName)
	}

	// Edits are accepted again once the result is handled.
	if err := h.c.Abandon(context.Background()); err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if _, err := h.c.AddFiles(pngs("c.png")); err != nil {
		t.Fatalf("AddFiles after abandon: %v", err)
	}
}

func TestDownload_ClaimsResultAgainstAbandon(t *testing.T) {
	h := newHarness(t)
	h.svc.payload = "xlsx"
	h.svc.dlBlock = make(chan struct{})
	h.svc.dlStart = make(chan struct{})
	_, _ = h.c.AddFiles(pngs("a.png"))
	_ = h.c.Submit(context.Background())

	dir := t.TempDir()
	done := make(chan error, 1)
	go func() {
		_, err := h.c.Download(context.Background(), dir)
		done <- err
	}()
	<-h.svc.dlStart

	if err := h.c.Abandon(context.Background()); !errors.Is(err, ErrNoResult) {
		t.Fatalf("Abandon during download = %v, want ErrNoResult", err)
	}
	if _, err := h.c.Download(context.Background(), dir); !errors.Is(err, ErrNoResult) {
		t.Fatalf("second Download = %v, want ErrNoResult", err)
	}

	close(h.svc.dlBlock)
	if err := <-done; err != nil {
		t.Fatalf("Download: %v", err)
	}
	if len(h.ledger.records) != 1 || h.ledger.records[0].status != history.Downloaded {
		t.Fatalf("records = %#v, want one downloaded", h.ledger.records)
	}
}

func TestDownload_FailureReleasesResult(t *testing.T) {
	h := newHarness(t)
	h.svc.dlErr = errors.New("blob gone")
	_, _ = h.c.AddFiles(pngs("a.png"))
	_ = h.c.Submit(context.Background())

	if _, err := h.c.Download(context.Background(), t.TempDir()); err == nil {
		t.Fatal("Download returned nil error")
	}
	if err := h.c.Abandon(context.Background()); err != nil {
		t.Fatalf("Abandon after failed download: %v", err)
	}
	if len(h.ledger.records) != 1 || h.ledger.records[0].status != history.NotDownloaded {
		t.Fatalf("records = %#v, want one not_downloaded", h.ledger.records)
	}
}

func fileNamesOf(snap Snapshot) []string {
	out := make([]string, 0, len(snap.Files))
	for _, f := range snap.Files {
		out = append(out, f.Name)
	}
	return out
}

func TestAddFiles_WarningOnRejectedBatch(t *testing.T) {
	h := newHarness(t)
	_, err := h.c.AddFiles([]selection.Candidate{selection.FromBytes("notes.txt", "text/plain", nil)})
	if !errors.Is(err, selection.ErrNoAcceptableFiles) {
		t.Fatalf("AddFiles = %v, want ErrNoAcceptableFiles", err)
	}
	if h.c.Snapshot().Warning == "" {
		t.Fatal("warning not set")
	}

	added, err := h.c.AddFiles(append(pngs("a.png", "b.png", "c.png"), selection.FromBytes("notes.txt", "text/plain", nil)))
	if err != nil || added != 3 {
		t.Fatalf("AddFiles mixed = %d, %v", added, err)
	}
	if h.c.Snapshot().Warning != "" {
		t.Fatal("warning kept after an accepted batch")
	}
}

func TestMoveFile_ReordersSubmission(t *testing.T) {
	h := newHarness(t)
	_, _ = h.c.AddFiles(pngs("A.png", "B.png", "C.png"))
	if err := h.c.MoveFile(0, 2); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	_ = h.c.Submit(context.Background())
	if got := strings.Join(h.svc.files[0], ","); got != "B.png,C.png,A.png" {
		t.Fatalf("submitted order = %s, want B,C,A", got)
	}
}

func TestState_String(t *testing.T) {
	want := map[State]string{
		StateIdle: "idle", StateInvalid: "invalid", StateSubmitting: "submitting",
		StateSuccess: "success", StateFailed: "failed", State(99): "unknown",
	}
	for s, w := range want {
		if s.String() != w {
			t.Fatalf("%d.String() = %q, want %q", s, s.String(), w)
		}
	}
}
