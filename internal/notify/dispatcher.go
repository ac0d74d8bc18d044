package notify

import (
	"context"

	"taptrack/internal/tap"
)

// Dispatcher satisfies tap.Notifier by translating a finalized record
// into a queue job. Enqueue failure is reported to the engine, which
// logs it; the stored record is never affected.
type Dispatcher struct {
	q Queue
}

// NewDispatcher creates a dispatcher over a queue backend.
func NewDispatcher(q Queue) *Dispatcher {
	return &Dispatcher{q: q}
}

// Notify enqueues a notification for the given transition.
func (d *Dispatcher) Notify(ctx context.Context, subj tap.Subject, rec tap.Record, tr tap.Transition) error {
	ts := rec.ArrivalAt
	loc := rec.ArrivalLocation
	if tr == tap.TransitionDeparture && rec.DepartureAt != nil {
		ts = *rec.DepartureAt
		loc = rec.DepartureLocation
	}
	return d.q.Publish(ctx, Job{
		RecordID:    rec.ID,
		SubjectID:   subj.ID,
		SubjectName: subj.Name,
		SubjectRole: string(subj.Role),
		Transition:  string(tr),
		Timestamp:   ts,
		Location:    loc,
	})
}
