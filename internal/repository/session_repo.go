package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"device_tuner/internal/models"
)

type SessionSQLite struct {
	db *sql.DB
}

func NewSessionSQLite(db *sql.DB) *SessionSQLite {
	return &SessionSQLite{db: db}
}

var _ SessionRepo = (*SessionSQLite)(nil)

const (
	sessionRowID = 1

	upsertSessionSQL = `
		INSERT INTO session_state (id, sequence, overrides, scans, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sequence=excluded.sequence,
			overrides=excluded.overrides,
			scans=excluded.scans,
			updated_at=excluded.updated_at
	`

	selectSessionSQL = `
		SELECT id, sequence, overrides, scans, updated_at
		FROM session_state WHERE id=?
	`
)

// Save writes the session row (id always 1). Overrides and scan configs are
// stored as JSON objects keyed by property key.
func (r *SessionSQLite) Save(ctx context.Context, s models.SessionState) error {
	overrides, err := marshalJSON(s.Overrides)
	if err != nil {
		return fmt.Errorf("marshal overrides: %w", err)
	}
	scans, err := marshalJSON(s.Scans)
	if err != nil {
		return fmt.Errorf("marshal scans: %w", err)
	}

	ts := s.UpdatedAt
	if ts.IsZero() {
		ts = time.Now()
	}

	_, err = r.db.ExecContext(ctx, upsertSessionSQL,
		sessionRowID,
		s.Sequence,
		overrides,
		scans,
		ts.UTC(),
	)
	return err
}

// Load returns the zero state when nothing was saved yet.
func (r *SessionSQLite) Load(ctx context.Context) (models.SessionState, error) {
	var (
		s                models.SessionState
		overrides, scans sql.NullString
	)
	err := r.db.QueryRowContext(ctx, selectSessionSQL, sessionRowID).
		Scan(&s.ID, &s.Sequence, &overrides, &scans, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.SessionState{}, nil
		}
		return models.SessionState{}, err
	}

	if overrides.Valid && overrides.String != "" {
		if err := json.Unmarshal([]byte(overrides.String), &s.Overrides); err != nil {
			return models.SessionState{}, fmt.Errorf("decode overrides: %w", err)
		}
	}
	if scans.Valid && scans.String != "" {
		if err := json.Unmarshal([]byte(scans.String), &s.Scans); err != nil {
			return models.SessionState{}, fmt.Errorf("decode scans: %w", err)
		}
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
