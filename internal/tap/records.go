package tap

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRecordStore persists attendance records in Postgres. A unique index
// on (subject_id, day) backstops the engine's per-subject serialization.
type PGRecordStore struct {
	db *sql.DB
}

// NewPGRecordStore creates a store over an open connection pool.
func NewPGRecordStore(db *sql.DB) *PGRecordStore {
	return &PGRecordStore{db: db}
}

// FindForDay returns the record for (subject, day), or (nil, nil) when
// the subject has not tapped that day.
func (s *PGRecordStore) FindForDay(ctx context.Context, subjectID, day string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject_id, subject_role, day::text, arrival_at, arrival_source, arrival_location,
		       departure_at, departure_source, departure_location, created_at
		FROM attendance_records
		WHERE subject_id = $1 AND day = $2
	`, subjectID, day)
	return scanRecord(row)
}

// InsertArrival writes a fresh record with only the arrival half filled.
func (s *PGRecordStore) InsertArrival(ctx context.Context, rec *Record) error {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records
			(id, subject_id, subject_role, day, arrival_at, arrival_source, arrival_location)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, rec.ID, rec.SubjectID, rec.SubjectRole, rec.Day, rec.ArrivalAt, rec.ArrivalSource, nullable(rec.ArrivalLocation))
	return row.Scan(&rec.CreatedAt)
}

// SetDeparture closes the day's record.
func (s *PGRecordStore) SetDeparture(ctx context.Context, id string, at time.Time, source Source, location string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE attendance_records
		SET departure_at = $2, departure_source = $3, departure_location = $4
		WHERE id = $1 AND departure_at IS NULL
	`, id, at, source, nullable(location))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("record already closed or missing")
	}
	return nil
}

// ListForDay returns all records for one local calendar day, newest
// arrival first. Used by the monitor's initial snapshot.
func (s *PGRecordStore) ListForDay(ctx context.Context, day string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject_id, subject_role, day::text, arrival_at, arrival_source, arrival_location,
		       departure_at, departure_source, departure_location, created_at
		FROM attendance_records
		WHERE day = $1
		ORDER BY arrival_at DESC
		LIMIT $2
	`, day, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var arrLoc, depSource, depLoc sql.NullString
	var depAt sql.NullTime
	err := row.Scan(&rec.ID, &rec.SubjectID, &rec.SubjectRole, &rec.Day,
		&rec.ArrivalAt, &rec.ArrivalSource, &arrLoc,
		&depAt, &depSource, &depLoc, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.ArrivalLocation = arrLoc.String
	if depAt.Valid {
		t := depAt.Time
		rec.DepartureAt = &t
		rec.DepartureSource = Source(depSource.String)
		rec.DepartureLocation = depLoc.String
	}
	return &rec, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
