package messaging

import (
	"sync"
	"time"
)

// Default rate limit: 10 messages per trailing 60 seconds per sender.
const (
	DefaultMaxMessages   = 10
	DefaultWindowSeconds = 60
)

// Limiter is a per-sender sliding-window rate limiter. It is in-memory
// and therefore per-process; multiple processes for the same sender each
// get their own window.
type Limiter struct {
	max    int
	window time.Duration

	mu   sync.Mutex
	hits map[string][]time.Time

	now func() time.Time // overridden in tests
}

// NewLimiter creates a limiter. Non-positive arguments select the
// defaults.
func NewLimiter(maxMessages int, window time.Duration) *Limiter {
	if maxMessages <= 0 {
		maxMessages = DefaultMaxMessages
	}
	if window <= 0 {
		window = DefaultWindowSeconds * time.Second
	}
	return &Limiter{
		max:    maxMessages,
		window: window,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow reports whether sender may send now: the number of recorded hits
// inside the trailing window must be strictly below the maximum.
func (l *Limiter) Allow(sender string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prune(sender)) < l.max
}

// Record charges one send against the sender's window. Callers invoke it
// only after a send actually went out, so denied or failed sends do not
// consume budget.
func (l *Limiter) Record(sender string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hits[sender] = append(l.prune(sender), l.now())
}

// prune drops hits older than the window. Caller holds mu.
func (l *Limiter) prune(sender string) []time.Time {
	cutoff := l.now().Add(-l.window)
	kept := l.hits[sender][:0]
	for _, t := range l.hits[sender] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.hits, sender)
		return nil
	}
	l.hits[sender] = kept
	return kept
}
