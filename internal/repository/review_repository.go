package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-li-api/internal/models"
)

// ReviewRepository persists coordinator decision records.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create appends a decision record.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO reviews
	(id, application_id, document_id, reviewer_id, decision, comments, created_at)
	VALUES (:id, :application_id, :document_id, :reviewer_id, :decision, :comments, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, review); err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

// ListByApplication returns all decisions for an application, latest first.
func (r *ReviewRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Review, error) {
	const query = `SELECT id, application_id, document_id, reviewer_id, decision, comments, created_at
	FROM reviews WHERE application_id = $1 ORDER BY created_at DESC`
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, applicationID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	return reviews, nil
}

// DeleteRequestChanges purges stale REQUEST_CHANGES decisions for an
// application. Every resubmission path calls this so a "changes requested"
// banner never outlives the fix.
func (r *ReviewRepository) DeleteRequestChanges(ctx context.Context, applicationID string) error {
	const query = `DELETE FROM reviews WHERE application_id = $1 AND decision = $2`
	if _, err := r.db.ExecContext(ctx, query, applicationID, models.DecisionRequestChanges); err != nil {
		return fmt.Errorf("delete request-changes reviews: %w", err)
	}
	return nil
}
