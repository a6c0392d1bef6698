package models

import "time"

// SupervisorToken is the ephemeral capability letting an unauthenticated
// industrial supervisor sign one form. At most one non-revoked token exists
// per (application, form type); issuing a new one revokes the prior. A token
// is single-use: once UsedAt is set every verification fails.
type SupervisorToken struct {
	ID              string     `db:"id" json:"id"`
	ApplicationID   string     `db:"application_id" json:"applicationId"`
	FormType        FormType   `db:"form_type" json:"formType"`
	Token           string     `db:"token" json:"-"`
	SupervisorEmail string     `db:"supervisor_email" json:"supervisorEmail"`
	SupervisorName  string     `db:"supervisor_name" json:"supervisorName"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expiresAt"`
	IsRevoked       bool       `db:"is_revoked" json:"isRevoked"`
	UsedAt          *time.Time `db:"used_at" json:"usedAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
}
