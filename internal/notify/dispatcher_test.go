package notify

import (
	"context"
	"testing"
	"time"

	"taptrack/internal/tap"
)

func TestDispatcherBuildsDepartureJob(t *testing.T) {
	q := NewInMemory(4)
	d := NewDispatcher(q)

	arrival := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	departure := arrival.Add(7 * time.Hour)
	rec := tap.Record{
		ID:                "r1",
		SubjectID:         "s1",
		SubjectRole:       tap.ActorStudent,
		Day:               "2026-03-10",
		ArrivalAt:         arrival,
		ArrivalLocation:   "gate",
		DepartureAt:       &departure,
		DepartureLocation: "side-door",
	}
	subj := tap.Subject{ID: "s1", Name: "Ana Gomez", Role: tap.ActorStudent}

	if err := d.Notify(context.Background(), subj, rec, tap.TransitionDeparture); err != nil {
		t.Fatal(err)
	}

	jobs, err := q.Consume(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	select {
	case job := <-jobs:
		if job.Transition != "departure" {
			t.Errorf("transition = %q", job.Transition)
		}
		if !job.Timestamp.Equal(departure) || job.Location != "side-door" {
			t.Errorf("job carries arrival fields: %+v", job)
		}
		if job.SubjectName != "Ana Gomez" || job.RecordID != "r1" {
			t.Errorf("job identity = %+v", job)
		}
	case <-time.After(time.Second):
		t.Fatal("job never consumed")
	}
}

func TestInMemoryQueueHonorsCancellation(t *testing.T) {
	q := NewInMemory(1)
	ctx, cancel := context.WithCancel(context.Background())
	jobs, err := q.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}
	cancel()
	select {
	case _, ok := <-jobs:
		if ok {
			t.Error("received a job after cancellation")
		}
	case <-time.After(time.Second):
		t.Fatal("consume channel never closed")
	}
}
