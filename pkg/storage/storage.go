package storage

import "context"

// UploadInput describes one blob to persist.
type UploadInput struct {
	Filename    string
	Directory   string
	ContentType string
	Metadata    map[string]string
	Data        []byte
}

// StoredFile identifies a persisted blob.
type StoredFile struct {
	Path     string `json:"path"`
	Provider string `json:"provider"`
}

// Blob is the storage contract consumed by the workflow core. Callers must
// never pass marker references (ONLINE_SUBMISSION, generate://...) here.
type Blob interface {
	Upload(ctx context.Context, in UploadInput) (StoredFile, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	GetURL(path string, expiresIn int64) (string, error)
}
