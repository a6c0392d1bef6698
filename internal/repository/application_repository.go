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

// ApplicationRepository persists placement applications.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

const applicationColumns = `id, student_id, session_id, status,
	org_name, org_address, org_city, org_state, org_postcode,
	supervisor_name, supervisor_email, supervisor_phone,
	student_signature, student_signature_kind, student_signed_at,
	supervisor_signature, supervisor_signature_kind, supervisor_signed_at,
	submitted_at, created_at, updated_at`

// Create inserts a new application row.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.Status == "" {
		app.Status = models.ApplicationStatusDraft
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	const query = `INSERT INTO applications
	(id, student_id, session_id, status,
	 org_name, org_address, org_city, org_state, org_postcode,
	 supervisor_name, supervisor_email, supervisor_phone,
	 student_signature, student_signature_kind, student_signed_at,
	 supervisor_signature, supervisor_signature_kind, supervisor_signed_at,
	 submitted_at, created_at, updated_at)
	VALUES (:id, :student_id, :session_id, :status,
	 :org_name, :org_address, :org_city, :org_state, :org_postcode,
	 :supervisor_name, :supervisor_email, :supervisor_phone,
	 :student_signature, :student_signature_kind, :student_signed_at,
	 :supervisor_signature, :supervisor_signature_kind, :supervisor_signed_at,
	 :submitted_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// GetByID fetches an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindByStudentAndSession returns the application for the pair, if any.
func (r *ApplicationRepository) FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
	WHERE student_id = $1 AND session_id = $2
	ORDER BY created_at DESC LIMIT 1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, studentID, sessionID); err != nil {
		return nil, err
	}
	return &app, nil
}

// ListByStudent returns a student's applications, latest first.
func (r *ApplicationRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications
	WHERE student_id = $1 ORDER BY created_at DESC`
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, query, studentID); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// Update rewrites mutable columns of an application.
func (r *ApplicationRepository) Update(ctx context.Context, app *models.Application) error {
	app.UpdatedAt = time.Now().UTC()
	const query = `UPDATE applications SET
	status = :status,
	org_name = :org_name, org_address = :org_address, org_city = :org_city,
	org_state = :org_state, org_postcode = :org_postcode,
	supervisor_name = :supervisor_name, supervisor_email = :supervisor_email,
	supervisor_phone = :supervisor_phone,
	student_signature = :student_signature,
	student_signature_kind = :student_signature_kind,
	student_signed_at = :student_signed_at,
	supervisor_signature = :supervisor_signature,
	supervisor_signature_kind = :supervisor_signature_kind,
	supervisor_signed_at = :supervisor_signed_at,
	submitted_at = :submitted_at,
	updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, app)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus sets the lifecycle status only.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error {
	const query = `UPDATE applications SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update application status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteCascade removes an application and every child row scoped to it.
// Used when a fresh application supersedes a non-terminal one.
func (r *ApplicationRepository) DeleteCascade(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin supersede delete: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	for _, query := range []string{
		`DELETE FROM notifications WHERE application_id = $1`,
		`DELETE FROM supervisor_tokens WHERE application_id = $1`,
		`DELETE FROM reviews WHERE application_id = $1`,
		`DELETE FROM form_responses WHERE application_id = $1`,
		`DELETE FROM documents WHERE application_id = $1`,
		`DELETE FROM applications WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, query, id); err != nil {
			return fmt.Errorf("supersede delete: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit supersede delete: %w", err)
	}
	return nil
}

// ListDueReminderRows projects approved applications joined with their
// session end date, excluding those whose BLI-04 is already settled.
func (r *ApplicationRepository) ListDueReminderRows(ctx context.Context) ([]models.DueReminderRow, error) {
	const query = `SELECT a.id AS application_id, a.student_id, s.coordinator_id, s.end_date AS session_end_date
	FROM applications a
	JOIN training_sessions s ON s.id = a.session_id
	WHERE a.status = 'APPROVED'
	AND NOT EXISTS (
		SELECT 1 FROM documents d
		WHERE d.application_id = a.id AND d.type = 'BLI-04' AND d.status = 'SIGNED'
	)
	AND NOT EXISTS (
		SELECT 1 FROM form_responses f
		WHERE f.application_id = a.id AND f.form_type = 'BLI-04' AND f.verified_by IS NOT NULL
	)`
	var rows []models.DueReminderRow
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list due reminder rows: %w", err)
	}
	return rows, nil
}

// ListStuckReviews projects applications sitting in SUBMITTED/UNDER_REVIEW
// since before the cutoff, joined with the responsible coordinator.
func (r *ApplicationRepository) ListStuckReviews(ctx context.Context, before time.Time) ([]models.StuckReviewRow, error) {
	const query = `SELECT a.id AS application_id, a.student_id, s.coordinator_id, a.status, a.submitted_at
	FROM applications a
	JOIN training_sessions s ON s.id = a.session_id
	WHERE a.status IN ('SUBMITTED', 'UNDER_REVIEW')
	AND a.submitted_at IS NOT NULL AND a.submitted_at < $1`
	var rows []models.StuckReviewRow
	if err := r.db.SelectContext(ctx, &rows, query, before); err != nil {
		return nil, fmt.Errorf("list stuck reviews: %w", err)
	}
	return rows, nil
}
