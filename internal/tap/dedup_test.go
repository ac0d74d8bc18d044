package tap

import (
	"testing"
	"time"
)

func TestSubjectEntryDuplicate(t *testing.T) {
	base := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	win := 300 * time.Second

	tests := []struct {
		name string
		last time.Time
		ts   time.Time
		want bool
	}{
		{name: "no prior tap", ts: base, want: false},
		{name: "inside window", last: base, ts: base.Add(120 * time.Second), want: true},
		{name: "same instant", last: base, ts: base, want: true},
		{name: "exactly at window edge", last: base, ts: base.Add(win), want: false},
		{name: "outside window", last: base, ts: base.Add(400 * time.Second), want: false},
		{name: "earlier than last accepted", last: base, ts: base.Add(-time.Second), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := &subjectEntry{last: tt.last}
			if got := e.duplicate(tt.ts, win); got != tt.want {
				t.Errorf("duplicate(%v) = %v, want %v", tt.ts, got, tt.want)
			}
		})
	}
}

func TestWindowEntriesAreIndependent(t *testing.T) {
	var w window
	a := w.entry("s1")
	b := w.entry("s2")
	if a == b {
		t.Fatal("distinct subjects share a window entry")
	}
	if w.entry("s1") != a {
		t.Fatal("entry lookup is not stable")
	}

	ts := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	a.advance(ts)
	if b.duplicate(ts.Add(time.Second), 300*time.Second) {
		t.Error("one subject's tap deduplicated another subject")
	}
}
