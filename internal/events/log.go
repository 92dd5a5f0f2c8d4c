package events

import "sync"

// Log is the bounded, append-only lookback log of a session's emitted
// events. The engine only ever needs the previous event (for diffing)
// and a short recent window (for narrative throttling), so the log
// drops its oldest entries once capacity is reached.
type Log struct {
	mu    sync.RWMutex
	cap   int
	items []*GameEvent
}

// DefaultLogCapacity bounds the lookback window when no explicit
// capacity is configured.
const DefaultLogCapacity = 32

// NewLog creates a lookback log holding at most capacity events.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &Log{cap: capacity}
}

// Append records an emitted event, evicting the oldest if full.
func (l *Log) Append(e *GameEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, e)
	if len(l.items) > l.cap {
		// Shift rather than reslice so evicted events can be collected.
		copy(l.items, l.items[1:])
		l.items[len(l.items)-1] = nil
		l.items = l.items[:len(l.items)-1]
	}
}

// Last returns the most recently emitted event, or nil before the
// first tick.
func (l *Log) Last() *GameEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.items) == 0 {
		return nil
	}
	return l.items[len(l.items)-1]
}

// Len returns the number of retained events.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// NarrativeInLast reports whether any of the last n retained events
// carried a narrative.
func (l *Log) NarrativeInLast(n int) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	start := len(l.items) - n
	if start < 0 {
		start = 0
	}
	for _, e := range l.items[start:] {
		if e.HasNarrative() {
			return true
		}
	}
	return false
}
