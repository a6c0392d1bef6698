package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/sma-li-api/internal/models"
)

// NotificationRepository persists notification delivery bookkeeping.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository constructs the repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

const notificationColumns = `id, user_id, type, category, subject, body,
	application_id, queued, status, dedupe_key, batch_id, sent_at, created_at`

// Create inserts a notification row.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Status == "" {
		n.Status = models.NotificationPending
	}
	if n.Category == "" {
		n.Category = models.CategoryOf(n.Type)
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO notifications
	(id, user_id, type, category, subject, body, application_id, queued, status, dedupe_key, batch_id, sent_at, created_at)
	VALUES (:id, :user_id, :type, :category, :subject, :body, :application_id, :queued, :status, :dedupe_key, :batch_id, :sent_at, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, n); err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

// ExistsByDedupeKey reports whether a row with the given dedupe key exists.
// Sweep-generated reminders use this to fire at most once per window.
func (r *NotificationRepository) ExistsByDedupeKey(ctx context.Context, key string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM notifications WHERE dedupe_key = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, key); err != nil {
		return false, fmt.Errorf("check dedupe key: %w", err)
	}
	return exists, nil
}

// ListQueuedPending returns queued rows still awaiting a batch flush. The
// status filter guarantees a row already marked SENT is never picked up
// again.
func (r *NotificationRepository) ListQueuedPending(ctx context.Context) ([]models.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications
	WHERE queued = TRUE AND status = $1 ORDER BY user_id, category, created_at`
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, models.NotificationPending); err != nil {
		return nil, fmt.Errorf("list queued notifications: %w", err)
	}
	return rows, nil
}

// MarkOutcome stamps a set of rows with their delivery result and a shared
// batch identifier for audit.
func (r *NotificationRepository) MarkOutcome(ctx context.Context, ids []string, status models.NotificationStatus, batchID string, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE notifications SET status = $1, batch_id = $2, sent_at = $3
	WHERE id = ANY($4) AND status = $5`
	if _, err := r.db.ExecContext(ctx, query, status, batchID, sentAt, pq.Array(ids), models.NotificationPending); err != nil {
		return fmt.Errorf("mark notification outcome: %w", err)
	}
	return nil
}

// MarkSent records a synchronous delivery outcome for one row.
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, status models.NotificationStatus, sentAt time.Time) error {
	const query = `UPDATE notifications SET status = $1, sent_at = $2
	WHERE id = $3 AND status = $4`
	if _, err := r.db.ExecContext(ctx, query, status, sentAt, id, models.NotificationPending); err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	return nil
}

// ListByUser returns a user's notifications, latest first.
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + notificationColumns + ` FROM notifications
	WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
	var rows []models.Notification
	if err := r.db.SelectContext(ctx, &rows, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return rows, nil
}
