package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/five82/excelextractor/internal/extractor"
)

// ErrStatusRegression is returned when a write would move an entry from
// downloaded back to not_downloaded.
var ErrStatusRegression = errors.New("download status cannot go back to not_downloaded")

// Status is the download state of an entry.
type Status string

const (
	Downloaded    Status = extractor.StatusDownloaded
	NotDownloaded Status = extractor.StatusNotDownloaded
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == Downloaded || s == NotDownloaded
}

// Entry is one produced file and its download state.
type Entry struct {
	FileName  string
	FileURL   string
	CreatedAt time.Time
	Status    Status
}

// Remote is the server side of the ledger. It is implemented by
// *extractor.Client.
type Remote interface {
	FetchHistory(ctx context.Context) ([]extractor.HistoryEntry, error)
	SaveHistory(ctx context.Context, fileName, fileURL, status string) error
	UpdateDownloadStatus(ctx context.Context, fileName string) error
}

// Snapshot is the cached history as last reconciled with the server.
type Snapshot struct {
	Entries             []Entry
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int
	Loaded              bool
}

// IsOffline returns true when the history has been unreachable for multiple
// refreshes.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Ledger is a read cache of the server's download history. Writes go to the
// server first and are always followed by a refresh, so the cache reflects
// server state including server-assigned timestamps.
type Ledger struct {
	remote Remote
	logger *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewLedger builds a ledger over remote.
func NewLedger(remote Remote, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{remote: remote, logger: logger}
}

// Refresh replaces the cache with the server's list. On failure the previous
// entries are kept and the error is recorded.
func (l *Ledger) Refresh(ctx context.Context) error {
	raw, err := l.remote.FetchHistory(ctx)
	if err != nil {
		l.mu.Lock()
		l.snapshot.LastError = err
		l.snapshot.LastUpdated = time.Now()
		l.snapshot.ConsecutiveFailures++
		l.mu.Unlock()
		l.logger.Warn("history refresh failed", "error", err)
		return fmt.Errorf("refresh history: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		entries = append(entries, Entry{
			FileName:  item.FileName,
			FileURL:   item.FileURL,
			CreatedAt: item.ParsedCreatedAt(),
			Status:    Status(item.DownloadStatus),
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshot.Entries = entries
	l.snapshot.LastError = nil
	l.snapshot.LastUpdated = time.Now()
	l.snapshot.ConsecutiveFailures = 0
	l.snapshot.Loaded = true
	return nil
}

// RecordAttempt posts an entry and then refreshes. The refresh runs even when
// the write fails so a partially applied write cannot leave the cache drifting.
func (l *Ledger) RecordAttempt(ctx context.Context, fileName, fileURL string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("record %s: unknown status %q", fileName, status)
	}
	if status == NotDownloaded && l.alreadyDownloaded(fileName, fileURL) {
		return fmt.Errorf("record %s: %w", fileName, ErrStatusRegression)
	}

	writeErr := l.remote.SaveHistory(ctx, fileName, fileURL, string(status))
	if writeErr != nil {
		l.logger.Warn("history write failed", "file", fileName, "status", status, "error", writeErr)
	}
	_ = l.Refresh(ctx)

	if writeErr != nil {
		return fmt.Errorf("record %s: %w", fileName, writeErr)
	}
	return nil
}

// MarkDownloaded flips the first not_downloaded entry named fileName. It
// reports false without contacting the server when no such entry is cached.
func (l *Ledger) MarkDownloaded(ctx context.Context, fileName string) (bool, error) {
	if !l.flipLocal(fileName) {
		return false, nil
	}

	writeErr := l.remote.UpdateDownloadStatus(ctx, fileName)
	if writeErr != nil {
		l.logger.Warn("history status update failed", "file", fileName, "error", writeErr)
	}
	_ = l.Refresh(ctx)

	if writeErr != nil {
		return true, fmt.Errorf("mark %s downloaded: %w", fileName, writeErr)
	}
	return true, nil
}

// Snapshot returns a copy of the cached history, newest first as ordered by
// the server.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snap := l.snapshot
	snap.Entries = cloneEntries(l.snapshot.Entries)
	if l.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", l.snapshot.LastError)
	}
	return snap
}

// Entries returns a copy of the cached entries.
func (l *Ledger) Entries() []Entry {
	return l.Snapshot().Entries
}

func (l *Ledger) alreadyDownloaded(fileName, fileURL string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.snapshot.Entries {
		if e.FileName == fileName && e.FileURL == fileURL && e.Status == Downloaded {
			return true
		}
	}
	return false
}

func (l *Ledger) flipLocal(fileName string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.snapshot.Entries {
		e := &l.snapshot.Entries[i]
		if e.FileName == fileName && e.Status == NotDownloaded {
			e.Status = Downloaded
			return true
		}
	}
	return false
}

func cloneEntries(entries []Entry) []Entry {
	if len(entries) == 0 {
		return nil
	}
	dup := make([]Entry, len(entries))
	copy(dup, entries)
	return dup
}
