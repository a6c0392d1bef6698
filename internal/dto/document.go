package dto

import "github.com/noah-isme/sma-li-api/internal/models"

// DocumentItem is a document slot together with its download link, when the
// slot is backed by a physical file.
type DocumentItem struct {
	models.Document
	DownloadURL string `json:"downloadUrl,omitempty"`
}

// UnlockState reports which slots are currently available to the student.
type UnlockState struct {
	ApplicationID string                       `json:"applicationId"`
	Unlocked      map[models.DocumentType]bool `json:"unlocked"`
}
