package dto

// ReviewRequest records a coordinator decision on a document or online form.
type ReviewRequest struct {
	Decision string `json:"decision" validate:"required,oneof=APPROVE REQUEST_CHANGES REJECT"`
	Comments string `json:"comments"`
}
