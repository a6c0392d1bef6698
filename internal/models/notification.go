package models

import "time"

// NotificationType names a specific workflow event.
type NotificationType string

const (
	NotifyNewSubmission    NotificationType = "NEW_SUBMISSION"
	NotifyChangesRequested NotificationType = "CHANGES_REQUESTED"
	NotifyDocumentApproved NotificationType = "DOCUMENT_APPROVED"
	NotifyDocumentRejected NotificationType = "DOCUMENT_REJECTED"
	NotifySLI03Ready       NotificationType = "SLI03_READY"
	NotifySupervisorSigned NotificationType = "SUPERVISOR_SIGNED"
	NotifyBLI04Reminder    NotificationType = "BLI04_REMINDER"
	NotifyBLI04Overdue     NotificationType = "BLI04_OVERDUE"
	NotifyReviewEscalation NotificationType = "REVIEW_ESCALATION"
)

// NotificationCategory is the coarse grouping key used by batch flushes.
// Several types collapse into one category so a coordinator gets one digest
// per category, not one per type variant.
type NotificationCategory string

const (
	CategorySubmissions NotificationCategory = "submissions"
	CategoryEscalations NotificationCategory = "escalations"
	CategoryGeneral     NotificationCategory = "general"
)

// CategoryOf maps a type onto its batching category.
func CategoryOf(t NotificationType) NotificationCategory {
	switch t {
	case NotifyNewSubmission, NotifySupervisorSigned:
		return CategorySubmissions
	case NotifyReviewEscalation:
		return CategoryEscalations
	default:
		return CategoryGeneral
	}
}

// Batchable reports whether the type may be deferred into a coordinator
// digest instead of being sent immediately.
func Batchable(t NotificationType) bool {
	switch t {
	case NotifyNewSubmission, NotifySupervisorSigned, NotifyReviewEscalation:
		return true
	default:
		return false
	}
}

// NotificationStatus tracks delivery bookkeeping. A row transitions
// PENDING -> SENT|FAILED exactly once.
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	NotificationFailed  NotificationStatus = "FAILED"
)

// Notification is one queued or delivered message to one recipient.
type Notification struct {
	ID            string               `db:"id" json:"id"`
	UserID        string               `db:"user_id" json:"userId"`
	Type          NotificationType     `db:"type" json:"type"`
	Category      NotificationCategory `db:"category" json:"category"`
	Subject       string               `db:"subject" json:"subject"`
	Body          string               `db:"body" json:"body"`
	ApplicationID *string              `db:"application_id" json:"applicationId,omitempty"`
	Queued        bool                 `db:"queued" json:"queued"`
	Status        NotificationStatus   `db:"status" json:"status"`
	// DedupeKey prevents re-firing sweep-generated rows for the same
	// window (reminder lead slot, overdue day, escalation day).
	DedupeKey *string    `db:"dedupe_key" json:"-"`
	BatchID   *string    `db:"batch_id" json:"batchId,omitempty"`
	SentAt    *time.Time `db:"sent_at" json:"sentAt,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}
