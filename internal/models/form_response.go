package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FormType identifies which online form a FormResponse belongs to.
type FormType string

const (
	FormTypeBLI03 FormType = "BLI-03"
	FormTypeBLI04 FormType = "BLI-04"
)

// Valid reports whether t is a known online form.
func (t FormType) Valid() bool {
	return t == FormTypeBLI03 || t == FormTypeBLI04
}

// BLI03Payload is the placement-confirmation form data.
type BLI03Payload struct {
	OrgName          string `json:"orgName"`
	OrgAddress       string `json:"orgAddress"`
	OrgCity          string `json:"orgCity"`
	OrgState         string `json:"orgState"`
	OrgPostcode      string `json:"orgPostcode"`
	OrgPhone         string `json:"orgPhone"`
	SupervisorName   string `json:"supervisorName"`
	SupervisorEmail  string `json:"supervisorEmail"`
	SupervisorPhone  string `json:"supervisorPhone"`
	ReportingDate    string `json:"reportingDate"`
	TrainingUnit     string `json:"trainingUnit"`
	StudentRemarks   string `json:"studentRemarks,omitempty"`
	AllowanceMonthly string `json:"allowanceMonthly,omitempty"`
}

// BLI04Payload is the end-of-training completion report data.
type BLI04Payload struct {
	CompletionDate   string `json:"completionDate"`
	AttendanceDays   int    `json:"attendanceDays"`
	AbsenceDays      int    `json:"absenceDays"`
	TaskSummary      string `json:"taskSummary"`
	SupervisorRating string `json:"supervisorRating,omitempty"`
	StudentRemarks   string `json:"studentRemarks,omitempty"`
}

// FormPayload is the tagged union of per-form data. Exactly one variant is
// non-nil, matching the form type it is stored under.
type FormPayload struct {
	BLI03 *BLI03Payload `json:"bli03,omitempty"`
	BLI04 *BLI04Payload `json:"bli04,omitempty"`
}

// EncodePayload marshals the variant matching formType.
func EncodePayload(formType FormType, payload FormPayload) ([]byte, error) {
	switch formType {
	case FormTypeBLI03:
		if payload.BLI03 == nil {
			return nil, fmt.Errorf("BLI-03 payload missing")
		}
		return json.Marshal(payload.BLI03)
	case FormTypeBLI04:
		if payload.BLI04 == nil {
			return nil, fmt.Errorf("BLI-04 payload missing")
		}
		return json.Marshal(payload.BLI04)
	default:
		return nil, fmt.Errorf("unknown form type %q", formType)
	}
}

// DecodePayload unmarshals raw into the variant matching formType.
func DecodePayload(formType FormType, raw []byte) (FormPayload, error) {
	switch formType {
	case FormTypeBLI03:
		var p BLI03Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return FormPayload{}, fmt.Errorf("decode BLI-03 payload: %w", err)
		}
		return FormPayload{BLI03: &p}, nil
	case FormTypeBLI04:
		var p BLI04Payload
		if err := json.Unmarshal(raw, &p); err != nil {
			return FormPayload{}, fmt.Errorf("decode BLI-04 payload: %w", err)
		}
		return FormPayload{BLI04: &p}, nil
	default:
		return FormPayload{}, fmt.Errorf("unknown form type %q", formType)
	}
}

// FormResponse stores one submitted online form per (application, form type)
// together with that form's own signature chain. The coordinator-signed
// timestamp here, not any Document status, is what unlocks SLI-03/DLI-01.
type FormResponse struct {
	ID            string   `db:"id" json:"id"`
	ApplicationID string   `db:"application_id" json:"applicationId"`
	FormType      FormType `db:"form_type" json:"formType"`
	Payload       []byte   `db:"payload" json:"payload"`

	StudentSignature     *string        `db:"student_signature" json:"studentSignature,omitempty"`
	StudentSignatureKind *SignatureKind `db:"student_signature_kind" json:"studentSignatureKind,omitempty"`
	StudentSignedAt      *time.Time     `db:"student_signed_at" json:"studentSignedAt,omitempty"`

	CoordinatorSignedBy *string    `db:"coordinator_signed_by" json:"coordinatorSignedBy,omitempty"`
	CoordinatorSignedAt *time.Time `db:"coordinator_signed_at" json:"coordinatorSignedAt,omitempty"`

	SupervisorName          *string        `db:"supervisor_name" json:"supervisorName,omitempty"`
	SupervisorSignature     *string        `db:"supervisor_signature" json:"supervisorSignature,omitempty"`
	SupervisorSignatureKind *SignatureKind `db:"supervisor_signature_kind" json:"supervisorSignatureKind,omitempty"`
	SupervisorSignedAt      *time.Time     `db:"supervisor_signed_at" json:"supervisorSignedAt,omitempty"`

	// VerifiedBy records the coordinator who verified a BLI-04 report.
	VerifiedBy *string    `db:"verified_by" json:"verifiedBy,omitempty"`
	VerifiedAt *time.Time `db:"verified_at" json:"verifiedAt,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
