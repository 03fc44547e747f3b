package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// counter is one fixed window for one key.
type counter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	window      time.Duration
	dead        bool
}

// Limiter is a process-scoped fixed-window counter table.
// Keys never contend with each other; calls for the same key serialize on that key's counter.
type Limiter struct {
	counters sync.Map
	now      func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// New creates an empty limiter.
func New(opts ...Option) *Limiter {
	l := &Limiter{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit counts one call against key and reports whether it fits within limit per window.
// Denials carry the time until the current window ends.
func (l *Limiter) Admit(key string, limit int, window time.Duration) Decision {
	for {
		c := l.load(key)
		c.mu.Lock()
		if c.dead {
			c.mu.Unlock()
			continue
		}

		now := l.now()
		elapsed := now.Sub(c.windowStart)
		if c.windowStart.IsZero() || elapsed > window {
			c.count = 0
			c.windowStart = now
			elapsed = 0
		}
		c.window = window
		c.count++
		count := c.count
		c.mu.Unlock()

		if count > limit {
			retry := window - elapsed
			if retry <= 0 {
				retry = time.Second
			}
			return Decision{Allowed: false, RetryAfter: retry}
		}
		return Decision{Allowed: true, Remaining: limit - count}
	}
}

// Prune removes counters whose window ended more than idle ago and returns how many were dropped.
func (l *Limiter) Prune(idle time.Duration) int {
	now := l.now()
	removed := 0
	l.counters.Range(func(key, value any) bool {
		c := value.(*counter)
		c.mu.Lock()
		if now.Sub(c.windowStart) > c.window+idle {
			c.dead = true
			l.counters.Delete(key)
			removed++
		}
		c.mu.Unlock()
		return true
	})
	return removed
}

// Len returns the number of live keys.
func (l *Limiter) Len() int {
	n := 0
	l.counters.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (l *Limiter) load(key string) *counter {
	if v, ok := l.counters.Load(key); ok {
		return v.(*counter)
	}
	v, _ := l.counters.LoadOrStore(key, &counter{})
	return v.(*counter)
}
