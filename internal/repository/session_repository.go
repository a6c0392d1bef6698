package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-li-api/internal/models"
)

// SessionRepository persists training sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository constructs the repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, name, coordinator_id, start_date, end_date,
	active, created_at, updated_at, archived_at`

// GetByID fetches one session.
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.TrainingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM training_sessions WHERE id = $1`
	var session models.TrainingSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListActive returns sessions currently open for applications.
func (r *SessionRepository) ListActive(ctx context.Context) ([]models.TrainingSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM training_sessions
	WHERE active = TRUE AND archived_at IS NULL ORDER BY start_date DESC`
	var sessions []models.TrainingSession
	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}
