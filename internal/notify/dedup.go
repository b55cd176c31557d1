package notify

import (
	"context"
	"sync"
	"time"
)

// DefaultDedupWindow is how long an identical notification stays suppressed.
const DefaultDedupWindow = 3 * time.Second

// Filter decides whether a keyed event should go through.
type Filter interface {
	// Allow returns false if key was already allowed within the window.
	Allow(ctx context.Context, key string) bool
}

// Deduper is an in-process Filter. The window starts when a key is first
// allowed; suppressed repeats do not extend it.
type Deduper struct {
	mu        sync.Mutex
	window    time.Duration
	clock     Clock
	seen      map[string]time.Time
	lastPrune time.Time
}

// NewDeduper creates a Deduper. A non-positive window uses DefaultDedupWindow
// and a nil clock uses the system clock.
func NewDeduper(window time.Duration, clock Clock) *Deduper {
	if window <= 0 {
		window = DefaultDedupWindow
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &Deduper{
		window: window,
		clock:  clock,
		seen:   make(map[string]time.Time),
	}
}

// Allow implements Filter.
func (d *Deduper) Allow(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.clock.Now()
	d.pruneLocked(now)

	if at, ok := d.seen[key]; ok && now.Sub(at) < d.window {
		return false
	}
	d.seen[key] = now
	return true
}

// pruneLocked drops expired keys at most once per window.
func (d *Deduper) pruneLocked(now time.Time) {
	if now.Sub(d.lastPrune) < d.window {
		return
	}
	for key, at := range d.seen {
		if now.Sub(at) >= d.window {
			delete(d.seen, key)
		}
	}
	d.lastPrune = now
}

// Len returns the number of keys currently tracked.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Verify interface implementation at compile time.
var _ Filter = (*Deduper)(nil)
