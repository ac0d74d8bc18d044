package tap

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"taptrack/internal/broadcast"
)

// Publisher is the fan-out side of the live monitor, satisfied by
// *broadcast.Hub.
type Publisher interface {
	Publish(msg broadcast.Message)
}

// Engine is the tap ingestion pipeline: resolve the credential, run the
// dedup window, apply the arrival/departure state machine, persist, then
// fan out to the live monitor and the notification queue.
type Engine struct {
	resolver Resolver
	records  RecordStore
	settings Settings
	pub      Publisher
	notifier Notifier

	loc            *time.Location
	persistTimeout time.Duration
	now            func() time.Time
	win            window
}

// NewEngine wires the ingestion pipeline. loc is the institution's local
// time zone used for day-boundary computation.
func NewEngine(resolver Resolver, records RecordStore, settings Settings, pub Publisher, notifier Notifier, loc *time.Location, persistTimeout time.Duration) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if persistTimeout <= 0 {
		persistTimeout = 3 * time.Second
	}
	return &Engine{
		resolver:       resolver,
		records:        records,
		settings:       settings,
		pub:            pub,
		notifier:       notifier,
		loc:            loc,
		persistTimeout: persistTimeout,
		now:            time.Now,
	}
}

// Process ingests one tap and returns its outcome. Rejections come back
// as the typed errors in this package; transient store failures come back
// as *PersistError and leave no engine state behind, so the caller may
// retry the identical tap.
func (e *Engine) Process(ctx context.Context, evt TapEvent) (Outcome, error) {
	if !evt.ActorType.Valid() {
		return Outcome{}, ErrActorTypeMismatch
	}
	subj, err := e.resolver.Resolve(ctx, evt.CredentialID, evt.ActorType)
	if err != nil {
		return Outcome{}, err
	}

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = e.now()
	}
	// Read per tap so operators can change the window live.
	win := e.settings.TapDelay(ctx)

	ent := e.win.entry(subj.ID)
	ent.mu.Lock()
	out, err := e.transition(ctx, ent, subj, ts, win, evt)
	ent.mu.Unlock()
	if err != nil {
		return Outcome{}, err
	}

	e.pub.Publish(broadcast.Message{
		Type:       string(subj.Role),
		Name:       subj.Name,
		Transition: string(out.Transition),
		Timestamp:  ts,
		Location:   evt.LocationID,
	})

	if e.notifier != nil {
		// Fire-and-forget: delivery failures are the dispatcher's
		// problem, never the tap's.
		go func(rec Record, tr Transition) {
			nctx, cancel := context.WithTimeout(context.Background(), e.persistTimeout)
			defer cancel()
			if err := e.notifier.Notify(nctx, subj, rec, tr); err != nil {
				log.Printf("notify enqueue failed for record %s: %v", rec.ID, err)
			}
		}(out.Record, out.Transition)
	}

	return out, nil
}

// transition runs the dedup check and the per-day state machine while the
// subject's window entry is locked. The window only advances after the
// store write succeeded.
func (e *Engine) transition(ctx context.Context, ent *subjectEntry, subj Subject, ts time.Time, win time.Duration, evt TapEvent) (Outcome, error) {
	if ent.duplicate(ts, win) {
		return Outcome{}, ErrDuplicateTap
	}

	day := ts.In(e.loc).Format("2006-01-02")

	pctx, cancel := context.WithTimeout(ctx, e.persistTimeout)
	defer cancel()

	rec, err := e.records.FindForDay(pctx, subj.ID, day)
	if err != nil {
		return Outcome{}, &PersistError{Err: err}
	}

	var tr Transition
	switch {
	case rec == nil:
		tr = TransitionArrival
		rec = &Record{
			ID:              uuid.NewString(),
			SubjectID:       subj.ID,
			SubjectRole:     subj.Role,
			Day:             day,
			ArrivalAt:       ts,
			ArrivalSource:   evt.Source,
			ArrivalLocation: evt.LocationID,
		}
		if err := e.records.InsertArrival(pctx, rec); err != nil {
			return Outcome{}, &PersistError{Err: err}
		}
	case rec.DepartureAt == nil:
		if !ts.After(rec.ArrivalAt) {
			return Outcome{}, ErrInvalidOrdering
		}
		tr = TransitionDeparture
		if err := e.records.SetDeparture(pctx, rec.ID, ts, evt.Source, evt.LocationID); err != nil {
			return Outcome{}, &PersistError{Err: err}
		}
		rec.DepartureAt = &ts
		rec.DepartureSource = evt.Source
		rec.DepartureLocation = evt.LocationID
	default:
		// Two punches close the day; a third tap is rejected rather
		// than overwriting the recorded departure.
		return Outcome{}, ErrAlreadyDeparted
	}

	ent.advance(ts)
	return Outcome{Record: *rec, Transition: tr}, nil
}
