package dto

import "time"

// IssueLinkRequest asks for a fresh supervisor signing link.
type IssueLinkRequest struct {
	FormType        string `json:"formType" validate:"required,oneof=BLI-03 BLI-04"`
	SupervisorEmail string `json:"supervisorEmail" validate:"required,email"`
	SupervisorName  string `json:"supervisorName" validate:"required"`
}

// IssueLinkResponse returns the signing link and its lifetime.
type IssueLinkResponse struct {
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// VerifyLinkResponse describes a valid signing link to the public signing
// page, without exposing anything beyond what the supervisor needs.
type VerifyLinkResponse struct {
	ApplicationID  string    `json:"applicationId"`
	FormType       string    `json:"formType"`
	SupervisorName string    `json:"supervisorName"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// SignRequest is the supervisor's signature submission on the public
// endpoint.
type SignRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=typed drawn image"`
	Signature string `json:"signature"`
}
