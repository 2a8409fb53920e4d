// Package logring keeps the run log of a strategy session: an
// append-only, bounded sequence of timestamped lines. When the ring is
// full the oldest line is overwritten.
//
// Lines are also fanned out to subscribers (the websocket log stream);
// a slow subscriber drops lines rather than blocking the loop.
package logring

import (
	"fmt"
	"sync"
	"time"

	"github.com/Bmittal0901/SensexAlgo/internal/markethours"
)

// Ring is a bounded, concurrency-safe log ring.
type Ring struct {
	mu    sync.RWMutex
	buf   []string
	head  int // next write position
	count int
	subs  []chan string

	now func() time.Time
}

// New creates a ring holding at most capacity lines.
func New(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{
		buf: make([]string, capacity),
		now: time.Now,
	}
}

// SetNow overrides the clock, for tests.
func (r *Ring) SetNow(now func() time.Time) { r.now = now }

// Appendf formats and appends one timestamped line.
func (r *Ring) Appendf(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	ts := r.now().In(markethours.IST).Format("02-01-2006 15:04:05")
	line := fmt.Sprintf("[%s] %s", ts, msg)

	r.mu.Lock()
	r.buf[r.head] = line
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
	subs := r.subs
	r.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- line:
		default:
			// subscriber lagging, drop
		}
	}
	return line
}

// Lines returns all retained lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, r.count)
	start := r.head - r.count
	for i := 0; i < r.count; i++ {
		idx := (start + i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Tail returns the last n lines, oldest first.
func (r *Ring) Tail(n int) []string {
	lines := r.Lines()
	if n >= len(lines) {
		return lines
	}
	return lines[len(lines)-n:]
}

// Len returns the number of retained lines.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Reset discards all retained lines. Subscriptions survive; each run
// starts with an empty log.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.buf {
		r.buf[i] = ""
	}
	r.head = 0
	r.count = 0
}

// Subscribe registers a channel receiving every future line. The
// returned cancel func removes the subscription.
func (r *Ring) Subscribe(buffer int) (<-chan string, func()) {
	ch := make(chan string, buffer)
	r.mu.Lock()
	r.subs = append(r.subs, ch)
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, s := range r.subs {
			if s == ch {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				break
			}
		}
	}
	return ch, cancel
}
