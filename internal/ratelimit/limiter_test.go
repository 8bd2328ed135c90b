package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

// --- Fake clock ---

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	waits []time.Duration
	block bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits = append(c.waits, d)
	ch := make(chan time.Time, 1)
	if c.block {
		return ch
	}
	c.now = c.now.Add(d)
	ch <- c.now
	return ch
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// assertWindow checks that no window starting at an admission holds more than limit admissions.
func assertWindow(t *testing.T, admitted []time.Time, window time.Duration, limit int) {
	t.Helper()
	for i, start := range admitted {
		n := 0
		for _, ts := range admitted[i:] {
			if ts.Sub(start) < window {
				n++
			}
		}
		if n > limit {
			t.Fatalf("window starting at %v holds %d admissions, limit %d", start, n, limit)
		}
	}
}

// --- Tests ---

func TestSlidingWindow_AllowsWithinLimit(t *testing.T) {
	clock := newFakeClock()
	l := New(Config{ShortLimit: 3, ShortWindow: 10 * time.Second, LongLimit: 10, LongWindow: time.Minute}, zap.NewNop()).
		WithClock(clock)

	for i := 0; i < 3; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if len(clock.waits) != 0 {
		t.Errorf("expected no waits, got %v", clock.waits)
	}
	if l.InFlight() != 3 {
		t.Errorf("expected 3 in flight, got %d", l.InFlight())
	}
}

func TestSlidingWindow_WaitsForShortWindow(t *testing.T) {
	clock := newFakeClock()
	l := New(DefaultConfig(), zap.NewNop()).WithClock(clock)

	for i := 0; i < 6; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if len(clock.waits) != 1 || clock.waits[0] != 10*time.Second {
		t.Errorf("expected a single 10s wait, got %v", clock.waits)
	}
}

func TestSlidingWindow_WaitsForLongWindow(t *testing.T) {
	clock := newFakeClock()
	start := clock.Now()
	l := New(DefaultConfig(), zap.NewNop()).WithClock(clock)

	var admitted []time.Time
	for i := 0; i < 21; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
		admitted = append(admitted, clock.Now())
	}

	want := []time.Duration{10 * time.Second, 10 * time.Second, 10 * time.Second, 30 * time.Second}
	if len(clock.waits) != len(want) {
		t.Fatalf("expected waits %v, got %v", want, clock.waits)
	}
	for i := range want {
		if clock.waits[i] != want[i] {
			t.Errorf("wait %d: expected %v, got %v", i, want[i], clock.waits[i])
		}
	}
	if got := admitted[20].Sub(start); got != time.Minute {
		t.Errorf("expected 21st admission after 60s, got %v", got)
	}

	assertWindow(t, admitted, 10*time.Second, 5)
	assertWindow(t, admitted, time.Minute, 20)
}

func TestSlidingWindow_PrunesOldTimestamps(t *testing.T) {
	clock := newFakeClock()
	l := New(DefaultConfig(), zap.NewNop()).WithClock(clock)

	for i := 0; i < 5; i++ {
		if err := l.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	clock.Advance(61 * time.Second)

	if n := l.InFlight(); n != 0 {
		t.Errorf("expected pruned state, got %d in flight", n)
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("acquire after prune: %v", err)
	}
	if len(clock.waits) != 0 {
		t.Errorf("expected no waits after prune, got %v", clock.waits)
	}
}

func TestSlidingWindow_CancelledWaitRecordsNothing(t *testing.T) {
	clock := newFakeClock()
	clock.block = true
	l := New(Config{ShortLimit: 1, ShortWindow: time.Hour, LongLimit: 10, LongWindow: 2 * time.Hour}, zap.NewNop()).
		WithClock(clock)

	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if n := l.InFlight(); n != 1 {
		t.Errorf("expected 1 in flight after cancelled wait, got %d", n)
	}
}

func TestSlidingWindow_ThirdCallWaitsRealClock(t *testing.T) {
	l := New(Config{ShortLimit: 2, ShortWindow: 300 * time.Millisecond, LongLimit: 100, LongWindow: time.Minute}, zap.NewNop())

	ctx := context.Background()
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	if err := l.Acquire(ctx); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 200*time.Millisecond {
		t.Errorf("expected third call to wait >= 200ms, waited %v", elapsed)
	}
}

func TestSlidingWindow_ConcurrentCallersDoNotOvershoot(t *testing.T) {
	l := New(Config{ShortLimit: 2, ShortWindow: 200 * time.Millisecond, LongLimit: 100, LongWindow: time.Minute}, zap.NewNop())

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
			}
		}()
	}
	wg.Wait()

	// 6 calls at 2 per 200ms need two full window slides.
	if elapsed := time.Since(start); elapsed < 380*time.Millisecond {
		t.Errorf("expected >= ~400ms for 6 concurrent calls, got %v", elapsed)
	}
}

func TestNew_AppliesDefaults(t *testing.T) {
	l := New(Config{}, nil)
	if l.cfg != DefaultConfig() {
		t.Errorf("expected default config, got %+v", l.cfg)
	}
}
