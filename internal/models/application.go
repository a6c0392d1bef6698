package models

import "time"

// ApplicationStatus captures the placement application lifecycle.
type ApplicationStatus string

const (
	ApplicationStatusDraft       ApplicationStatus = "DRAFT"
	ApplicationStatusSubmitted   ApplicationStatus = "SUBMITTED"
	ApplicationStatusUnderReview ApplicationStatus = "UNDER_REVIEW"
	ApplicationStatusApproved    ApplicationStatus = "APPROVED"
	ApplicationStatusRejected    ApplicationStatus = "REJECTED"
	ApplicationStatusCancelled   ApplicationStatus = "CANCELLED"
)

// Terminal reports whether the status allows no further student action.
// A fresh application for the same (student, session) pair supersedes a
// non-terminal one instead of coexisting with it.
func (s ApplicationStatus) Terminal() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusRejected
}

// SignatureKind distinguishes how a signature was captured.
type SignatureKind string

const (
	SignatureKindTyped SignatureKind = "typed"
	SignatureKindDrawn SignatureKind = "drawn"
	SignatureKindImage SignatureKind = "image"
)

// Valid reports whether the kind is one of the supported capture modes.
func (k SignatureKind) Valid() bool {
	switch k {
	case SignatureKindTyped, SignatureKindDrawn, SignatureKindImage:
		return true
	default:
		return false
	}
}

// Application is one student's placement record for one training session.
// The two signature slots here belong to the BLI-03 placement confirmation;
// per-form signature chains live on FormResponse.
type Application struct {
	ID        string            `db:"id" json:"id"`
	StudentID string            `db:"student_id" json:"studentId"`
	SessionID string            `db:"session_id" json:"sessionId"`
	Status    ApplicationStatus `db:"status" json:"status"`

	OrgName         string `db:"org_name" json:"orgName"`
	OrgAddress      string `db:"org_address" json:"orgAddress"`
	OrgCity         string `db:"org_city" json:"orgCity"`
	OrgState        string `db:"org_state" json:"orgState"`
	OrgPostcode     string `db:"org_postcode" json:"orgPostcode"`
	SupervisorName  string `db:"supervisor_name" json:"supervisorName"`
	SupervisorEmail string `db:"supervisor_email" json:"supervisorEmail"`
	SupervisorPhone string `db:"supervisor_phone" json:"supervisorPhone"`

	StudentSignature     *string        `db:"student_signature" json:"studentSignature,omitempty"`
	StudentSignatureKind *SignatureKind `db:"student_signature_kind" json:"studentSignatureKind,omitempty"`
	StudentSignedAt      *time.Time     `db:"student_signed_at" json:"studentSignedAt,omitempty"`

	SupervisorSignature     *string        `db:"supervisor_signature" json:"supervisorSignature,omitempty"`
	SupervisorSignatureKind *SignatureKind `db:"supervisor_signature_kind" json:"supervisorSignatureKind,omitempty"`
	SupervisorSignedAt      *time.Time     `db:"supervisor_signed_at" json:"supervisorSignedAt,omitempty"`

	SubmittedAt *time.Time `db:"submitted_at" json:"submittedAt,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
}

// DueReminderRow is the daily-sweep projection for BLI-04 deadline checks.
type DueReminderRow struct {
	ApplicationID  string    `db:"application_id"`
	StudentID      string    `db:"student_id"`
	CoordinatorID  string    `db:"coordinator_id"`
	SessionEndDate time.Time `db:"session_end_date"`
}

// StuckReviewRow is the daily-sweep projection for review escalations.
type StuckReviewRow struct {
	ApplicationID string            `db:"application_id"`
	StudentID     string            `db:"student_id"`
	CoordinatorID string            `db:"coordinator_id"`
	Status        ApplicationStatus `db:"status"`
	SubmittedAt   time.Time         `db:"submitted_at"`
}
