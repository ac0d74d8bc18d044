package tap

import (
	"sync"
	"time"
)

// window tracks the last accepted tap per subject. Entries carry their own
// mutex: the engine holds it across the dedup check and the persistence
// write, so concurrent taps for one subject serialize while taps for
// different subjects never contend. Growth is bounded by the number of
// distinct subjects seen during the process lifetime.
type window struct {
	mu      sync.Mutex
	entries map[string]*subjectEntry
}

type subjectEntry struct {
	mu   sync.Mutex
	last time.Time // zero until the first accepted tap
}

func (w *window) entry(subjectID string) *subjectEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.entries == nil {
		w.entries = make(map[string]*subjectEntry)
	}
	e, ok := w.entries[subjectID]
	if !ok {
		e = &subjectEntry{}
		w.entries[subjectID] = e
	}
	return e
}

// duplicate reports whether a tap at ts falls inside the dedup window.
// Taps earlier than the stored timestamp (clock skew, out-of-order
// delivery) are duplicates too: the stored timestamp never rewinds.
func (e *subjectEntry) duplicate(ts time.Time, win time.Duration) bool {
	if e.last.IsZero() {
		return false
	}
	if ts.Before(e.last) {
		return true
	}
	return ts.Sub(e.last) < win
}

// advance records ts as the last accepted tap. Called only after the
// persistence write succeeded, so a failed tap stays retryable.
func (e *subjectEntry) advance(ts time.Time) {
	e.last = ts
}
