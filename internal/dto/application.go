package dto

// CreateApplicationRequest defines the payload for starting a placement
// application.
type CreateApplicationRequest struct {
	SessionID       string `json:"sessionId" validate:"required"`
	OrgName         string `json:"orgName" validate:"required"`
	OrgAddress      string `json:"orgAddress" validate:"required"`
	OrgCity         string `json:"orgCity" validate:"required"`
	OrgState        string `json:"orgState" validate:"required"`
	OrgPostcode     string `json:"orgPostcode" validate:"required"`
	SupervisorName  string `json:"supervisorName" validate:"required"`
	SupervisorEmail string `json:"supervisorEmail" validate:"required,email"`
	SupervisorPhone string `json:"supervisorPhone"`
}

// SignatureRequest carries a captured signature. An image-kind request may
// omit the data to reuse the stored signature image.
type SignatureRequest struct {
	Signature string `json:"signature"`
	Kind      string `json:"kind" validate:"required,oneof=typed drawn image"`
}

// BLI03FormRequest is the placement-confirmation form submission.
type BLI03FormRequest struct {
	OrgName          string           `json:"orgName" validate:"required"`
	OrgAddress       string           `json:"orgAddress"`
	OrgCity          string           `json:"orgCity"`
	OrgState         string           `json:"orgState"`
	OrgPostcode      string           `json:"orgPostcode"`
	OrgPhone         string           `json:"orgPhone"`
	SupervisorName   string           `json:"supervisorName" validate:"required"`
	SupervisorEmail  string           `json:"supervisorEmail"`
	SupervisorPhone  string           `json:"supervisorPhone"`
	ReportingDate    string           `json:"reportingDate" validate:"required"`
	TrainingUnit     string           `json:"trainingUnit"`
	StudentRemarks   string           `json:"studentRemarks"`
	AllowanceMonthly string           `json:"allowanceMonthly"`
	Signature        SignatureRequest `json:"signature" validate:"required"`
}

// BLI04FormRequest is the end-of-training completion report submission.
type BLI04FormRequest struct {
	CompletionDate   string           `json:"completionDate" validate:"required"`
	AttendanceDays   int              `json:"attendanceDays" validate:"min=0"`
	AbsenceDays      int              `json:"absenceDays" validate:"min=0"`
	TaskSummary      string           `json:"taskSummary" validate:"required"`
	SupervisorRating string           `json:"supervisorRating"`
	StudentRemarks   string           `json:"studentRemarks"`
	Signature        SignatureRequest `json:"signature" validate:"required"`
}
