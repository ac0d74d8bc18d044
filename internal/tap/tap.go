package tap

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ActorType tags a subject as student or teacher.
type ActorType string

const (
	ActorStudent ActorType = "student"
	ActorTeacher ActorType = "teacher"
)

// Valid reports whether the actor type is one the engine accepts.
func (a ActorType) Valid() bool {
	return a == ActorStudent || a == ActorTeacher
}

// Transition is the semantic meaning assigned to an accepted tap.
type Transition string

const (
	TransitionArrival   Transition = "arrival"
	TransitionDeparture Transition = "departure"
)

// Source identifies where a tap came from: "manual" or "device:<id>".
type Source string

// SourceManual marks taps entered through the admin UI.
const SourceManual Source = "manual"

// DeviceSource builds the source tag for a hardware reader.
func DeviceSource(deviceID string) Source {
	return Source("device:" + deviceID)
}

// Subject is a student or teacher known to the roster.
type Subject struct {
	ID   string
	Name string
	Role ActorType
}

// TapEvent is a raw ingress tap. It is never persisted verbatim: it either
// becomes (part of) a Record or is rejected.
type TapEvent struct {
	CredentialID string
	ActorType    ActorType
	Timestamp    time.Time // zero means "use receipt time"
	Source       Source
	LocationID   string
}

// Record is the durable attendance outcome for one subject and one local
// calendar day. Departure fields stay empty until the second accepted tap.
type Record struct {
	ID                string     `json:"id"`
	SubjectID         string     `json:"subject_id"`
	SubjectRole       ActorType  `json:"subject_role"`
	Day               string     `json:"day"` // YYYY-MM-DD in the institution zone
	ArrivalAt         time.Time  `json:"arrival_at"`
	ArrivalSource     Source     `json:"arrival_source"`
	ArrivalLocation   string     `json:"arrival_location,omitempty"`
	DepartureAt       *time.Time `json:"departure_at,omitempty"`
	DepartureSource   Source     `json:"departure_source,omitempty"`
	DepartureLocation string     `json:"departure_location,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Outcome is returned for an accepted tap.
type Outcome struct {
	Record     Record
	Transition Transition
}

// Resolver maps a credential to a roster subject.
type Resolver interface {
	Resolve(ctx context.Context, credentialID string, declared ActorType) (Subject, error)
}

// RecordStore persists attendance records. FindForDay returns (nil, nil)
// when no record exists for the given subject and day.
type RecordStore interface {
	FindForDay(ctx context.Context, subjectID, day string) (*Record, error)
	InsertArrival(ctx context.Context, rec *Record) error
	SetDeparture(ctx context.Context, id string, at time.Time, source Source, location string) error
}

// Settings exposes administrative settings read per tap, so operators can
// change the dedup window without a restart.
type Settings interface {
	TapDelay(ctx context.Context) time.Duration
}

// Notifier is invoked after a successful transition, off the ingestion
// path. Failures never affect the stored record.
type Notifier interface {
	Notify(ctx context.Context, subj Subject, rec Record, tr Transition) error
}

// Input errors: the caller or device sent something the roster cannot map.
var (
	ErrUnknownCredential = errors.New("unknown credential")
	ErrActorTypeMismatch = errors.New("actor type mismatch")
)

// Policy rejections: expected, non-exceptional outcomes of the state machine.
var (
	ErrDuplicateTap    = errors.New("duplicate tap")
	ErrAlreadyDeparted = errors.New("already departed")
	ErrInvalidOrdering = errors.New("invalid ordering")
)

// PersistError wraps a transient store failure. The tap is retryable and
// no engine state was advanced for it.
type PersistError struct {
	Err error
}

func (e *PersistError) Error() string { return fmt.Sprintf("persistence: %v", e.Err) }
func (e *PersistError) Unwrap() error { return e.Err }

// Reason maps a processing error to the machine-readable code returned to
// devices, so hardware can signal distinct patterns per rejection.
func Reason(err error) string {
	var pe *PersistError
	switch {
	case errors.Is(err, ErrUnknownCredential):
		return "unknown_credential"
	case errors.Is(err, ErrActorTypeMismatch):
		return "actor_type_mismatch"
	case errors.Is(err, ErrDuplicateTap):
		return "duplicate_tap"
	case errors.Is(err, ErrAlreadyDeparted):
		return "already_departed"
	case errors.Is(err, ErrInvalidOrdering):
		return "invalid_ordering"
	case errors.As(err, &pe):
		return "persistence_error"
	}
	return "internal_error"
}
