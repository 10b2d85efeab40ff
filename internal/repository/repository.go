package repository

import (
	"context"
	"database/sql"
	"time"

	"device_tuner/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.Operator, error)
}

// SessionRepo keeps the single session row restored on startup.
type SessionRepo interface {
	Save(ctx context.Context, s models.SessionState) error
	Load(ctx context.Context) (models.SessionState, error)
}

type EventRepo interface {
	Append(ctx context.Context, e models.TuningEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.TuningEvent, error)
}

type Repository struct {
	SessionRepo SessionRepo
	EventRepo   EventRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		SessionRepo: NewSessionSQLite(db),
		EventRepo:   NewEventSQLite(db),
		Auth:        NewOperatorRepository(db),
	}
}
