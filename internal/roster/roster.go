// Package roster resolves badge credentials to subjects. The roster data
// itself is owned by the admin CRUD layer; this package only reads it.
package roster

import (
	"context"
	"database/sql"
	"errors"

	"taptrack/internal/tap"
)

// Store looks up credential bindings in Postgres.
type Store struct {
	db *sql.DB
}

// New creates a roster store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Resolve returns the subject bound to credentialID. An unbound or
// inactive credential yields ErrUnknownCredential; a credential bound to
// a subject whose role differs from the declared actor type yields
// ErrActorTypeMismatch, so devices can surface a clear error instead of
// misfiling the tap.
func (s *Store) Resolve(ctx context.Context, credentialID string, declared tap.ActorType) (tap.Subject, error) {
	if credentialID == "" {
		return tap.Subject{}, tap.ErrUnknownCredential
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.name, s.role
		FROM credentials c
		JOIN subjects s ON s.id = c.subject_id
		WHERE c.uid = $1 AND c.active
	`, credentialID)
	var subj tap.Subject
	if err := row.Scan(&subj.ID, &subj.Name, &subj.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tap.Subject{}, tap.ErrUnknownCredential
		}
		return tap.Subject{}, err
	}
	if subj.Role != declared {
		return tap.Subject{}, tap.ErrActorTypeMismatch
	}
	return subj, nil
}
