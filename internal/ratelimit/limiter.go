// Package ratelimit provides a blocking sliding-window admission gate for outbound API calls.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/expensify-os/internal/metrics"
)

// Config holds the two simultaneous quotas.
type Config struct {
	ShortLimit  int
	ShortWindow time.Duration
	LongLimit   int
	LongWindow  time.Duration
}

// DefaultConfig returns the Expensify quotas: 5 per 10s and 20 per 60s.
func DefaultConfig() Config {
	return Config{
		ShortLimit:  5,
		ShortWindow: 10 * time.Second,
		LongLimit:   20,
		LongWindow:  60 * time.Second,
	}
}

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SlidingWindow admits calls only while both windows are under their limits.
// It never rejects; Acquire blocks until admission or context cancellation.
type SlidingWindow struct {
	mu     sync.Mutex
	cfg    Config
	stamps []time.Time // admitted calls, oldest first
	clock  Clock
	logger *zap.Logger
}

// New creates a limiter. Zero-valued config fields fall back to DefaultConfig.
func New(cfg Config, logger *zap.Logger) *SlidingWindow {
	def := DefaultConfig()
	if cfg.ShortLimit <= 0 {
		cfg.ShortLimit = def.ShortLimit
	}
	if cfg.ShortWindow <= 0 {
		cfg.ShortWindow = def.ShortWindow
	}
	if cfg.LongLimit <= 0 {
		cfg.LongLimit = def.LongLimit
	}
	if cfg.LongWindow <= 0 {
		cfg.LongWindow = def.LongWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlidingWindow{cfg: cfg, clock: realClock{}, logger: logger}
}

// WithClock replaces the time source.
func (l *SlidingWindow) WithClock(c Clock) *SlidingWindow {
	l.clock = c
	return l
}

// Acquire blocks until one more call fits both quotas, then records it.
// The lock is held while waiting so that concurrent callers queue instead of overshooting.
// On context cancellation nothing is recorded.
func (l *SlidingWindow) Acquire(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := l.clock.Now()
	for {
		now := l.clock.Now()
		wait := l.waitLocked(now)
		if wait <= 0 {
			l.stamps = append(l.stamps, now)
			metrics.RateLimitWaitSeconds.Observe(now.Sub(start).Seconds())
			return nil
		}

		l.logger.Debug("Rate limit reached, waiting",
			zap.Duration("wait", wait),
			zap.Int("in_window", len(l.stamps)),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter wait: %w", ctx.Err())
		case <-l.clock.After(wait):
		}
	}
}

// InFlight returns the number of admissions still inside the longest window.
func (l *SlidingWindow) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.clock.Now())
	return len(l.stamps)
}

// waitLocked returns how long until the next admission is allowed (<= 0 means now).
// Windows are half-open: a call admitted exactly one window ago no longer counts.
func (l *SlidingWindow) waitLocked(now time.Time) time.Duration {
	l.pruneLocked(now)

	var wait time.Duration

	shortCutoff := now.Add(-l.cfg.ShortWindow)
	count := 0
	var oldestShort time.Time
	for _, ts := range l.stamps {
		if !ts.After(shortCutoff) {
			continue
		}
		if count == 0 {
			oldestShort = ts
		}
		count++
	}
	if count >= l.cfg.ShortLimit {
		wait = oldestShort.Add(l.cfg.ShortWindow).Sub(now)
	}

	if len(l.stamps) >= l.cfg.LongLimit {
		if w := l.stamps[0].Add(l.cfg.LongWindow).Sub(now); w > wait {
			wait = w
		}
	}
	return wait
}

// pruneLocked drops timestamps that fell out of the longest window.
func (l *SlidingWindow) pruneLocked(now time.Time) {
	window := l.cfg.LongWindow
	if l.cfg.ShortWindow > window {
		window = l.cfg.ShortWindow
	}
	cutoff := now.Add(-window)

	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
