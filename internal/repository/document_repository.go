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

// DocumentRepository persists per-application document slots.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, application_id, type, status, file_ref, version,
	signed_by, signed_at, created_at, updated_at`

// Create inserts a new document row.
func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.Version <= 0 {
		doc.Version = 1
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	const query = `INSERT INTO documents
	(id, application_id, type, status, file_ref, version, signed_by, signed_at, created_at, updated_at)
	VALUES (:id, :application_id, :type, :status, :file_ref, :version, :signed_by, :signed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, doc); err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

// GetByID fetches one document row.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetByApplicationAndType fetches the single slot for the pair.
func (r *DocumentRepository) GetByApplicationAndType(ctx context.Context, applicationID string, docType models.DocumentType) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
	WHERE application_id = $1 AND type = $2`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, applicationID, docType); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListByApplication returns all slots for one application.
func (r *DocumentRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
	WHERE application_id = $1 ORDER BY created_at`
	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, query, applicationID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Update rewrites a document row, returning sql.ErrNoRows when the row has
// been deleted since it was read. Callers rely on that signal to fall back
// to create (the idempotent-upsert race rule).
func (r *DocumentRepository) Update(ctx context.Context, doc *models.Document) error {
	doc.UpdatedAt = time.Now().UTC()
	const query = `UPDATE documents SET
	status = :status, file_ref = :file_ref, version = :version,
	signed_by = :signed_by, signed_at = :signed_at, updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, doc)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document update rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus sets the approval status only.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status models.DocumentStatus) error {
	const query = `UPDATE documents SET status = $1, updated_at = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check document status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
