package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/mailer"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ExistsByDedupeKey(ctx context.Context, key string) (bool, error)
	ListQueuedPending(ctx context.Context) ([]models.Notification, error)
	MarkOutcome(ctx context.Context, ids []string, status models.NotificationStatus, batchID string, sentAt time.Time) error
	MarkSent(ctx context.Context, id string, status models.NotificationStatus, sentAt time.Time) error
	ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error)
}

type userStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// NotificationService records every workflow event as a notification row and
// delivers it by email. Coordinator-facing event types are deferred into
// per-category digests flushed by the scheduler; everything else goes out
// immediately.
type NotificationService struct {
	repo   notificationStore
	users  userStore
	mail   mailer.Mailer
	logger *zap.Logger

	// flushing guards against overlapping batch flushes when a flush
	// outlives the ticker interval.
	flushing atomic.Bool
}

// NewNotificationService constructs the service. mail may be nil, in which
// case rows are recorded but delivery is skipped.
func NewNotificationService(repo notificationStore, users userStore, mail mailer.Mailer, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{repo: repo, users: users, mail: mail, logger: logger}
}

// Notify records one event for one recipient. Batchable types addressed to a
// coordinator are queued for the next digest flush; the rest are delivered
// synchronously with the outcome stamped on the row.
func (s *NotificationService) Notify(ctx context.Context, userID string, t models.NotificationType, applicationID string, data map[string]string) error {
	return s.notify(ctx, userID, t, applicationID, nil, data)
}

// NotifyDedupe is Notify with an idempotency key. If a row with the key
// already exists nothing happens; sweeps use this to fire at most once per
// window.
func (s *NotificationService) NotifyDedupe(ctx context.Context, userID string, t models.NotificationType, applicationID, dedupeKey string, data map[string]string) error {
	exists, err := s.repo.ExistsByDedupeKey(ctx, dedupeKey)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check notification dedupe key")
	}
	if exists {
		return nil
	}
	return s.notify(ctx, userID, t, applicationID, &dedupeKey, data)
}

func (s *NotificationService) notify(ctx context.Context, userID string, t models.NotificationType, applicationID string, dedupeKey *string, data map[string]string) error {
	subject, body := renderNotification(t, data)
	n := &models.Notification{
		UserID:    userID,
		Type:      t,
		Subject:   subject,
		Body:      body,
		Queued:    s.shouldQueue(ctx, userID, t),
		DedupeKey: dedupeKey,
	}
	if applicationID != "" {
		n.ApplicationID = &applicationID
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record notification")
	}
	if n.Queued {
		return nil
	}
	s.deliverOne(ctx, n)
	return nil
}

// shouldQueue defers a row into the digest only when both halves hold: the
// event type is batchable and the recipient is a coordinator. A batchable
// event addressed to anyone else still goes out immediately. If the recipient
// cannot be loaded the row falls through to synchronous delivery, which
// records the failure.
func (s *NotificationService) shouldQueue(ctx context.Context, userID string, t models.NotificationType) bool {
	if !models.Batchable(t) {
		return false
	}
	recipient, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to load notification recipient",
			zap.String("user_id", userID),
			zap.Error(err))
		return false
	}
	return recipient.Role == models.RoleCoordinator
}

// deliverOne attempts the synchronous send and stamps the outcome. Delivery
// failure is recorded, never propagated; the row is the source of truth.
func (s *NotificationService) deliverOne(ctx context.Context, n *models.Notification) {
	status := models.NotificationSent
	if err := s.sendEmail(ctx, n.UserID, n.Subject, n.Body); err != nil {
		s.logger.Warn("notification delivery failed",
			zap.String("notification_id", n.ID),
			zap.String("type", string(n.Type)),
			zap.Error(err))
		status = models.NotificationFailed
	}
	if err := s.repo.MarkSent(ctx, n.ID, status, time.Now().UTC()); err != nil {
		s.logger.Error("failed to stamp notification outcome", zap.String("notification_id", n.ID), zap.Error(err))
	}
}

// FlushBatches collects all queued pending rows, groups them per recipient
// and category, and sends one digest email per group. Every row in a group
// shares the group's batch id. If a previous flush is still running this
// call returns immediately.
func (s *NotificationService) FlushBatches(ctx context.Context) error {
	if !s.flushing.CompareAndSwap(false, true) {
		s.logger.Debug("batch flush already in progress, skipping")
		return nil
	}
	defer s.flushing.Store(false)

	rows, err := s.repo.ListQueuedPending(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list queued notifications")
	}
	if len(rows) == 0 {
		return nil
	}

	type groupKey struct {
		userID   string
		category models.NotificationCategory
	}
	groups := make(map[groupKey][]models.Notification)
	order := make([]groupKey, 0)
	for _, row := range rows {
		key := groupKey{userID: row.UserID, category: row.Category}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], row)
	}

	for _, key := range order {
		group := groups[key]
		batchID := uuid.NewString()
		ids := make([]string, len(group))
		for i, row := range group {
			ids[i] = row.ID
		}

		subject, body := renderDigest(key.category, group)
		status := models.NotificationSent
		if err := s.sendEmail(ctx, key.userID, subject, body); err != nil {
			s.logger.Warn("digest delivery failed",
				zap.String("user_id", key.userID),
				zap.String("category", string(key.category)),
				zap.Int("size", len(group)),
				zap.Error(err))
			status = models.NotificationFailed
		}
		if err := s.repo.MarkOutcome(ctx, ids, status, batchID, time.Now().UTC()); err != nil {
			s.logger.Error("failed to stamp batch outcome", zap.String("batch_id", batchID), zap.Error(err))
		}
	}
	return nil
}

// ListByUser returns a user's notifications, latest first.
func (s *NotificationService) ListByUser(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	rows, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return rows, nil
}

func (s *NotificationService) sendEmail(ctx context.Context, userID, subject, body string) error {
	if s.mail == nil {
		return nil
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("recipient %s not found", userID)
		}
		return fmt.Errorf("load recipient %s: %w", userID, err)
	}
	return s.mail.Send(ctx, user.Email, subject, body)
}

func renderNotification(t models.NotificationType, data map[string]string) (subject, body string) {
	get := func(key string) string {
		if data == nil {
			return ""
		}
		return data[key]
	}
	student := get("studentName")
	docType := get("documentType")

	switch t {
	case models.NotifyNewSubmission:
		subject = "New document submission"
		body = fmt.Sprintf("<p>%s submitted %s for review.</p>", student, docType)
	case models.NotifyChangesRequested:
		subject = fmt.Sprintf("Changes requested on %s", docType)
		body = fmt.Sprintf("<p>Your %s needs changes before it can be approved.</p><p>%s</p>", docType, get("comment"))
	case models.NotifyDocumentApproved:
		subject = fmt.Sprintf("%s approved", docType)
		body = fmt.Sprintf("<p>Your %s has been approved.</p>", docType)
	case models.NotifyDocumentRejected:
		subject = fmt.Sprintf("%s rejected", docType)
		body = fmt.Sprintf("<p>Your %s was rejected.</p><p>%s</p>", docType, get("comment"))
	case models.NotifySLI03Ready:
		subject = "Your placement confirmation letter is ready"
		body = "<p>Your SLI-03 letter has been generated and is available for download.</p>"
	case models.NotifySupervisorSigned:
		subject = "Supervisor signed a placement form"
		body = fmt.Sprintf("<p>The industrial supervisor signed %s for %s.</p>", docType, student)
	case models.NotifyBLI04Reminder:
		subject = "Reminder: placement confirmation form due"
		body = fmt.Sprintf("<p>Your BLI-04 form is due in %s day(s). Please submit it before the deadline.</p>", get("daysLeft"))
	case models.NotifyBLI04Overdue:
		subject = "Overdue: placement confirmation form"
		body = "<p>Your BLI-04 form is overdue. Submit it as soon as possible.</p>"
	case models.NotifyReviewEscalation:
		subject = "Submission awaiting review"
		body = fmt.Sprintf("<p>A submission from %s has been waiting for review for over a week.</p>", student)
	default:
		subject = string(t)
		body = fmt.Sprintf("<p>%s</p>", t)
	}
	return subject, body
}

func renderDigest(category models.NotificationCategory, group []models.Notification) (subject, body string) {
	switch category {
	case models.CategorySubmissions:
		subject = fmt.Sprintf("%d new submission update(s)", len(group))
	case models.CategoryEscalations:
		subject = fmt.Sprintf("%d submission(s) awaiting review", len(group))
	default:
		subject = fmt.Sprintf("%d notification(s)", len(group))
	}

	var b strings.Builder
	b.WriteString("<ul>")
	for _, row := range group {
		b.WriteString("<li>")
		b.WriteString(row.Subject)
		if row.Body != "" {
			b.WriteString(": ")
			b.WriteString(row.Body)
		}
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")
	return subject, b.String()
}
