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

// FormResponseRepository persists online form submissions.
type FormResponseRepository struct {
	db *sqlx.DB
}

// NewFormResponseRepository constructs the repository.
func NewFormResponseRepository(db *sqlx.DB) *FormResponseRepository {
	return &FormResponseRepository{db: db}
}

const formResponseColumns = `id, application_id, form_type, payload,
	student_signature, student_signature_kind, student_signed_at,
	coordinator_signed_by, coordinator_signed_at,
	supervisor_name, supervisor_signature, supervisor_signature_kind, supervisor_signed_at,
	verified_by, verified_at, created_at, updated_at`

// Create inserts a new form response.
func (r *FormResponseRepository) Create(ctx context.Context, fr *models.FormResponse) error {
	if fr.ID == "" {
		fr.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if fr.CreatedAt.IsZero() {
		fr.CreatedAt = now
	}
	fr.UpdatedAt = now
	const query = `INSERT INTO form_responses
	(id, application_id, form_type, payload,
	 student_signature, student_signature_kind, student_signed_at,
	 coordinator_signed_by, coordinator_signed_at,
	 supervisor_name, supervisor_signature, supervisor_signature_kind, supervisor_signed_at,
	 verified_by, verified_at, created_at, updated_at)
	VALUES (:id, :application_id, :form_type, :payload,
	 :student_signature, :student_signature_kind, :student_signed_at,
	 :coordinator_signed_by, :coordinator_signed_at,
	 :supervisor_name, :supervisor_signature, :supervisor_signature_kind, :supervisor_signed_at,
	 :verified_by, :verified_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, fr); err != nil {
		return fmt.Errorf("create form response: %w", err)
	}
	return nil
}

// GetByApplicationAndType fetches the single response for the pair.
func (r *FormResponseRepository) GetByApplicationAndType(ctx context.Context, applicationID string, formType models.FormType) (*models.FormResponse, error) {
	query := `SELECT ` + formResponseColumns + ` FROM form_responses
	WHERE application_id = $1 AND form_type = $2`
	var fr models.FormResponse
	if err := r.db.GetContext(ctx, &fr, query, applicationID, formType); err != nil {
		return nil, err
	}
	return &fr, nil
}

// Update rewrites the mutable columns of a form response.
func (r *FormResponseRepository) Update(ctx context.Context, fr *models.FormResponse) error {
	fr.UpdatedAt = time.Now().UTC()
	const query = `UPDATE form_responses SET
	payload = :payload,
	student_signature = :student_signature,
	student_signature_kind = :student_signature_kind,
	student_signed_at = :student_signed_at,
	coordinator_signed_by = :coordinator_signed_by,
	coordinator_signed_at = :coordinator_signed_at,
	supervisor_name = :supervisor_name,
	supervisor_signature = :supervisor_signature,
	supervisor_signature_kind = :supervisor_signature_kind,
	supervisor_signed_at = :supervisor_signed_at,
	verified_by = :verified_by,
	verified_at = :verified_at,
	updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, fr)
	if err != nil {
		return fmt.Errorf("update form response: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check form response update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
