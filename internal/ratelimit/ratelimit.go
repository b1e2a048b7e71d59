package ratelimit

import (
	"sync"
	"time"
)

// Defaults for the per-tenant request window
const (
	DefaultWindow      = time.Minute
	DefaultMaxRequests = 15
)

// Limiter implements a per-process, tenant-scoped request counter.
// State is held in memory only: counters reset on restart and are not
// shared across instances in a horizontally scaled deployment. That is
// a documented property of this limiter, not something to paper over here.
type Limiter struct {
	windows map[string]*window
	mu      sync.Mutex
	max     int
	period  time.Duration
	now     func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

// Result is the outcome of a single rate limit check
type Result struct {
	Allowed   bool
	Remaining int
	ResetInMs int64
}

func NewLimiter(maxRequests int, period time.Duration) *Limiter {
	if maxRequests <= 0 {
		maxRequests = DefaultMaxRequests
	}
	if period <= 0 {
		period = DefaultWindow
	}
	return &Limiter{
		windows: make(map[string]*window),
		max:     maxRequests,
		period:  period,
		now:     time.Now,
	}
}

// Check records one request for the tenant key and reports whether it is
// allowed. The read-increment-write sequence is guarded by the limiter
// mutex; a denied request does not grow the counter further.
func (l *Limiter) Check(tenantKey string) Result {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	w, exists := l.windows[tenantKey]
	if !exists || !now.Before(w.resetAt) {
		l.windows[tenantKey] = &window{
			count:   1,
			resetAt: now.Add(l.period),
		}
		return Result{
			Allowed:   true,
			Remaining: l.max - 1,
			ResetInMs: l.period.Milliseconds(),
		}
	}

	resetIn := w.resetAt.Sub(now).Milliseconds()
	if w.count >= l.max {
		return Result{
			Allowed:   false,
			Remaining: 0,
			ResetInMs: resetIn,
		}
	}

	w.count++
	return Result{
		Allowed:   true,
		Remaining: l.max - w.count,
		ResetInMs: resetIn,
	}
}

// Sweep evicts windows whose reset time passed more than the given age ago.
// Callers drive this periodically; the limiter itself never spawns goroutines.
func (l *Limiter) Sweep(age time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, w := range l.windows {
		if now.Sub(w.resetAt) > age {
			delete(l.windows, key)
			evicted++
		}
	}
	return evicted
}

// Size reports the number of tracked tenant keys
func (l *Limiter) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
