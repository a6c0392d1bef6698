package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// LocalStorage persists document files on disk under a base directory and
// mints HMAC-signed download URLs for them.
type LocalStorage struct {
	baseDir string
	baseURL string
	signer  *URLSigner
}

var _ Blob = (*LocalStorage)(nil)

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir, baseURL string, signer *URLSigner) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./documents"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create documents directory: %w", err)
	}
	return &LocalStorage{
		baseDir: baseDir,
		baseURL: strings.TrimRight(baseURL, "/"),
		signer:  signer,
	}, nil
}

// Upload writes the blob under directory/filename, de-duplicating names with
// a timestamp suffix when the target already exists.
func (s *LocalStorage) Upload(_ context.Context, in UploadInput) (StoredFile, error) {
	if in.Filename == "" {
		return StoredFile{}, fmt.Errorf("filename required")
	}
	rel := filepath.Join(in.Directory, in.Filename)
	abs := s.resolve(rel)
	if _, err := os.Stat(abs); err == nil {
		ext := filepath.Ext(in.Filename)
		base := strings.TrimSuffix(in.Filename, ext)
		rel = filepath.Join(in.Directory, fmt.Sprintf("%s-%d%s", base, time.Now().UnixNano(), ext))
		abs = s.resolve(rel)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return StoredFile{}, fmt.Errorf("prepare directory: %w", err)
	}
	if err := os.WriteFile(abs, in.Data, 0o644); err != nil {
		return StoredFile{}, fmt.Errorf("write file: %w", err)
	}
	return StoredFile{Path: filepath.ToSlash(rel), Provider: "local"}, nil
}

// Download reads the blob back.
func (s *LocalStorage) Download(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return data, nil
}

// Delete removes a stored file if present.
func (s *LocalStorage) Delete(_ context.Context, path string) error {
	if err := os.Remove(s.resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Exists reports whether the blob is on disk.
func (s *LocalStorage) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(s.resolve(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat file: %w", err)
}

// GetURL returns a signed download URL valid for expiresIn seconds (or the
// signer default when zero).
func (s *LocalStorage) GetURL(path string, expiresIn int64) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("url signer not configured")
	}
	ttl := time.Duration(expiresIn) * time.Second
	token, _, err := s.signer.Generate(path, ttl)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/files/%s", s.baseURL, token), nil
}

func (s *LocalStorage) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.baseDir, filepath.FromSlash(path))
}
