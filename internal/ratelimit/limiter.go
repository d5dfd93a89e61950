// Package ratelimit implements fixed-window request limits keyed by a client
// identifier such as an IP address.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result describes the outcome of one Allow call.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is the wait until the current window closes, rounded up to a
// whole second and never below one second for a denied request.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed {
		return 0
	}
	d := r.ResetAt.Sub(now)
	if d <= 0 {
		return time.Second
	}
	return ((d + time.Second - 1) / time.Second) * time.Second
}

// Limiter records an attempt for key when the key still has budget in its
// current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter keeps windows in process memory. It is correct for a single
// instance only; use RedisLimiter when several instances share traffic.
type MemoryLimiter struct {
	max     int
	window  time.Duration
	now     func() time.Time
	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryLimiter(maxAttempts int, d time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     maxAttempts,
		window:  d,
		now:     time.Now,
		windows: make(map[string]*window),
	}
}

// WithClock replaces the wall clock, for tests.
func (l *MemoryLimiter) WithClock(now func() time.Time) *MemoryLimiter {
	l.now = now
	return l
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		w = &window{count: 1, resetAt: now.Add(l.window)}
		l.windows[key] = w
		return Result{Allowed: true, Remaining: l.max - 1, ResetAt: w.resetAt}, nil
	}

	if w.count >= l.max {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.resetAt}, nil
	}

	w.count++
	return Result{Allowed: true, Remaining: l.max - w.count, ResetAt: w.resetAt}, nil
}

// IsAllowed is the boolean form of Allow.
func (l *MemoryLimiter) IsAllowed(key string) bool {
	res, _ := l.Allow(context.Background(), key)
	return res.Allowed
}

// Prune drops every window that expired before now and returns how many were
// removed.
func (l *MemoryLimiter) Prune(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run prunes expired windows every interval until ctx is cancelled.
func (l *MemoryLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune(l.now())
		}
	}
}
