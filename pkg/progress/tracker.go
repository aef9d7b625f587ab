// pkg/progress/tracker.go - non-blocking progress publication for the UI.

package progress

import (
	"sync"
	"time"
)

// Update is one progress snapshot.
type Update struct {
	Phase     string
	Done      int
	Total     int
	Current   string
	Timestamp time.Time
}

// Percent returns completion as 0-100, or -1 when the total is unknown.
func (u Update) Percent() int {
	if u.Total <= 0 {
		return -1
	}
	p := u.Done * 100 / u.Total
	if p > 100 {
		p = 100
	}
	return p
}

// Tracker counts completed units for one transaction. The worker calls Step;
// the UI either polls Snapshot or drains Updates. Publishing never blocks: a
// full channel drops the update, and Snapshot always has the latest state.
type Tracker struct {
	mu      sync.RWMutex
	last    Update
	updates chan Update
	closed  bool
}

// NewTracker returns a tracker whose channel buffers up to buffer updates.
func NewTracker(buffer int) *Tracker {
	if buffer < 1 {
		buffer = 1
	}
	return &Tracker{updates: make(chan Update, buffer)}
}

// Updates returns the update channel. It is closed by Close.
func (t *Tracker) Updates() <-chan Update {
	return t.updates
}

// Begin starts a phase of total units.
func (t *Tracker) Begin(phase string, total int) {
	t.publish(func(u *Update) {
		u.Phase = phase
		u.Total = total
		u.Done = 0
		u.Current = ""
	})
}

// Step records one finished unit.
func (t *Tracker) Step(current string) {
	t.publish(func(u *Update) {
		u.Done++
		u.Current = current
	})
}

// Snapshot returns the latest state.
func (t *Tracker) Snapshot() Update {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last
}

// Close closes the update channel. Later calls to Step are ignored.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.updates)
	}
}

func (t *Tracker) publish(change func(*Update)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	change(&t.last)
	t.last.Timestamp = time.Now()

	select {
	case t.updates <- t.last:
	default:
		// Channel full, skip update to prevent blocking
	}
}
