package models

import "time"

// DocumentType identifies one slot in the fixed form set. The order below is
// the canonical workflow order.
type DocumentType string

const (
	DocTypeBLI01   DocumentType = "BLI-01"
	DocTypeBLI02   DocumentType = "BLI-02"
	DocTypeBLI03   DocumentType = "BLI-03"
	DocTypeBLI03HC DocumentType = "BLI-03-HARDCOPY"
	DocTypeSLI03   DocumentType = "SLI-03"
	DocTypeDLI01   DocumentType = "DLI-01"
	DocTypeBLI04   DocumentType = "BLI-04"
)

// AllDocumentTypes lists every slot in canonical order.
var AllDocumentTypes = []DocumentType{
	DocTypeBLI01,
	DocTypeBLI02,
	DocTypeBLI03,
	DocTypeBLI03HC,
	DocTypeSLI03,
	DocTypeDLI01,
	DocTypeBLI04,
}

// Valid reports whether t names a known slot.
func (t DocumentType) Valid() bool {
	for _, known := range AllDocumentTypes {
		if t == known {
			return true
		}
	}
	return false
}

// DocumentStatus captures the per-slot approval state.
type DocumentStatus string

const (
	DocumentStatusDraft            DocumentStatus = "DRAFT"
	DocumentStatusPendingSignature DocumentStatus = "PENDING_SIGNATURE"
	DocumentStatusSigned           DocumentStatus = "SIGNED"
	DocumentStatusRejected         DocumentStatus = "REJECTED"
	DocumentStatusCancelled        DocumentStatus = "CANCELLED"
)

// FileRefOnlineSubmission marks a document that exists purely as a status
// marker for an online form; it must never reach blob storage.
const FileRefOnlineSubmission = "ONLINE_SUBMISSION"

// GeneratedFileRef returns the marker reference used for placeholders whose
// bytes are produced on demand by the PDF generation endpoint.
func GeneratedFileRef(t DocumentType) string {
	return "generate://" + string(t)
}

// IsMarkerRef reports whether ref points at no physical file.
func IsMarkerRef(ref string) bool {
	return ref == FileRefOnlineSubmission || len(ref) > 11 && ref[:11] == "generate://"
}

// Document is one logical approval/file slot per (application, type).
// At most one row exists per pair; re-uploads update in place and bump
// Version.
type Document struct {
	ID            string         `db:"id" json:"id"`
	ApplicationID string         `db:"application_id" json:"applicationId"`
	Type          DocumentType   `db:"type" json:"type"`
	Status        DocumentStatus `db:"status" json:"status"`
	FileRef       string         `db:"file_ref" json:"fileRef"`
	Version       int            `db:"version" json:"version"`
	SignedBy      *string        `db:"signed_by" json:"signedBy,omitempty"`
	SignedAt      *time.Time     `db:"signed_at" json:"signedAt,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`
}
