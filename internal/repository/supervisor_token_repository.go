package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-li-api/internal/models"
)

// SupervisorTokenRepository persists external-supervisor signing tokens.
type SupervisorTokenRepository struct {
	db *sqlx.DB
}

// NewSupervisorTokenRepository constructs the repository.
func NewSupervisorTokenRepository(db *sqlx.DB) *SupervisorTokenRepository {
	return &SupervisorTokenRepository{db: db}
}

const supervisorTokenColumns = `id, application_id, form_type, token,
	supervisor_email, supervisor_name, expires_at, is_revoked, used_at, created_at`

// Create inserts a new token row.
func (r *SupervisorTokenRepository) Create(ctx context.Context, token *models.SupervisorToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO supervisor_tokens
	(id, application_id, form_type, token, supervisor_email, supervisor_name, expires_at, is_revoked, used_at, created_at)
	VALUES (:id, :application_id, :form_type, :token, :supervisor_email, :supervisor_name, :expires_at, :is_revoked, :used_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, token); err != nil {
		return fmt.Errorf("create supervisor token: %w", err)
	}
	return nil
}

// FindByToken looks up a token by its opaque value.
func (r *SupervisorTokenRepository) FindByToken(ctx context.Context, value string) (*models.SupervisorToken, error) {
	query := `SELECT ` + supervisorTokenColumns + ` FROM supervisor_tokens WHERE token = $1`
	var token models.SupervisorToken
	if err := r.db.GetContext(ctx, &token, query, value); err != nil {
		return nil, err
	}
	return &token, nil
}

// RevokeActive revokes every non-revoked token for the (application, form)
// pair, keeping the at-most-one-active invariant when a new link is issued.
func (r *SupervisorTokenRepository) RevokeActive(ctx context.Context, applicationID string, formType models.FormType) error {
	const query = `UPDATE supervisor_tokens SET is_revoked = TRUE
	WHERE application_id = $1 AND form_type = $2 AND is_revoked = FALSE`
	if _, err := r.db.ExecContext(ctx, query, applicationID, formType); err != nil {
		return fmt.Errorf("revoke active tokens: %w", err)
	}
	return nil
}

// MarkUsed claims the token for consumption. The condition on used_at makes
// the claim one-shot: a concurrent or repeated consume sees zero rows and
// gets sql.ErrNoRows, which callers surface as "already used".
func (r *SupervisorTokenRepository) MarkUsed(ctx context.Context, id string, usedAt time.Time) error {
	const query = `UPDATE supervisor_tokens SET used_at = $1
	WHERE id = $2 AND used_at IS NULL AND is_revoked = FALSE`
	result, err := r.db.ExecContext(ctx, query, usedAt, id)
	if err != nil {
		return fmt.Errorf("mark token used: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check token used rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
