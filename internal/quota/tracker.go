// Package quota mirrors the server's monthly usage counter for display.
//
// The server owns the authoritative count and enforces limits. The tracker
// only keeps the last value it saw, backed by a local cache so the number
// survives restarts and outages. A cached value is never treated as
// authoritative.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Fetcher retrieves the authoritative count.
type Fetcher interface {
	FetchMonthlyCount(ctx context.Context) (int, error)
}

// Cache persists the last known count per user.
type Cache interface {
	LoadCount(user string) (int, bool)
	SaveCount(user string, count int) error
}

// Source describes where the current value came from.
type Source int

const (
	SourceNone Source = iota
	SourceCache
	SourceServer
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cached"
	case SourceServer:
		return "server"
	default:
		return "unknown"
	}
}

// Snapshot is the tracker's current view.
type Snapshot struct {
	Count     int
	Source    Source
	UpdatedAt time.Time
}

// Stale reports whether the value did not come from the server.
func (s Snapshot) Stale() bool {
	return s.Source != SourceServer
}

// Tracker holds the last known count for one user.
type Tracker struct {
	fetcher Fetcher
	cache   Cache
	user    func() string
	logger  *slog.Logger

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker builds a tracker. user is consulted on every cache access so the
// key follows the current session.
func NewTracker(fetcher Fetcher, cache Cache, user func() string, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if user == nil {
		user = func() string { return "" }
	}
	return &Tracker{fetcher: fetcher, cache: cache, user: user, logger: logger}
}

// Start fetches the authoritative count. When the service is unreachable the
// cached value is shown instead. Failures are logged, not returned, so callers
// never block on telemetry.
func (t *Tracker) Start(ctx context.Context) {
	if err := t.Refresh(ctx); err != nil {
		t.logger.Warn("monthly count fetch failed; using cached value", "error", err)
		t.loadCached()
	}
}

// Refresh re-fetches the count. A failure leaves the current value in place.
func (t *Tracker) Refresh(ctx context.Context) error {
	count, err := t.fetcher.FetchMonthlyCount(ctx)
	if err != nil {
		return fmt.Errorf("fetch monthly count: %w", err)
	}
	t.Observe(count)
	return nil
}

// Observe records a server-reported count in memory and in the cache.
func (t *Tracker) Observe(count int) {
	if count < 0 {
		count = 0
	}
	t.mu.Lock()
	t.snap = Snapshot{Count: count, Source: SourceServer, UpdatedAt: time.Now()}
	t.mu.Unlock()

	if t.cache == nil {
		return
	}
	if err := t.cache.SaveCount(t.user(), count); err != nil {
		t.logger.Warn("monthly count cache write failed", "error", err)
	}
}

// Snapshot returns the current view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.snap
}

// Count returns the current count.
func (t *Tracker) Count() int {
	return t.Snapshot().Count
}

func (t *Tracker) loadCached() {
	if t.cache == nil {
		return
	}
	count, ok := t.cache.LoadCount(t.user())
	if !ok {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	// A concurrent Observe already holds a fresher server value.
	if t.snap.Source == SourceServer {
		return
	}
	t.snap = Snapshot{Count: count, Source: SourceCache, UpdatedAt: time.Now()}
}
