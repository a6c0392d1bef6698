package models

import "time"

// ReviewDecision enumerates coordinator decisions.
type ReviewDecision string

const (
	DecisionApprove        ReviewDecision = "APPROVE"
	DecisionRequestChanges ReviewDecision = "REQUEST_CHANGES"
	DecisionReject         ReviewDecision = "REJECT"
)

// Valid reports whether d is a supported decision.
func (d ReviewDecision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionRequestChanges, DecisionReject:
		return true
	default:
		return false
	}
}

// Review is an immutable decision record. REQUEST_CHANGES rows are the one
// exception to immutability: a resubmission deletes them so stale
// "changes requested" markers never linger after the student has acted.
type Review struct {
	ID            string         `db:"id" json:"id"`
	ApplicationID string         `db:"application_id" json:"applicationId"`
	DocumentID    string         `db:"document_id" json:"documentId"`
	ReviewerID    string         `db:"reviewer_id" json:"reviewerId"`
	Decision      ReviewDecision `db:"decision" json:"decision"`
	Comments      string         `db:"comments" json:"comments"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
}
