package app

import (
	"context"
	"log/slog"
	"time"
)

const (
	defaultPollInterval = 30 * time.Second
	maxBackoff          = 5 * time.Minute
)

// Refresher is a background source the poller keeps current.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// StartPoller launches a background goroutine that refreshes every source at
// a fixed cadence, backing off while any of them keeps failing. It returns
// immediately. Failures are logged and never surfaced to the operator.
func StartPoller(ctx context.Context, interval time.Duration, logger *slog.Logger, sources ...Refresher) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		failures := 0
		for {
			wait := calculateBackoff(failures, interval)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			if pollOnce(ctx, logger, sources) {
				failures = 0
			} else {
				failures++
			}
		}
	}()
}

// pollOnce refreshes each source and reports whether all succeeded.
func pollOnce(ctx context.Context, logger *slog.Logger, sources []Refresher) bool {
	ok := true
	for _, src := range sources {
		if err := src.Refresh(ctx); err != nil {
			if ctx.Err() != nil {
				return false
			}
			logger.Debug("background refresh failed", "error", err)
			ok = false
		}
	}
	return ok
}

// calculateBackoff doubles the interval per consecutive failure, capped at
// maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	d := base
	for i := 0; i < failures; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return d
}
