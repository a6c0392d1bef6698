package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/storage"
)

type documentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	GetByApplicationAndType(ctx context.Context, applicationID string, docType models.DocumentType) (*models.Document, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error)
	Create(ctx context.Context, doc *models.Document) error
	Update(ctx context.Context, doc *models.Document) error
	UpdateStatus(ctx context.Context, id string, status models.DocumentStatus) error
}

// UpsertOptions alters upsert behaviour for system-generated output.
type UpsertOptions struct {
	// Finalize forces status SIGNED regardless of prior state; used when a
	// generated PDF replaces the slot's file after approval.
	Finalize   bool
	SignerID   *string
	SignerName string
}

// DocumentService owns the per-slot status machine: one row per
// (application, document type), updated in place with a version bump on
// every re-upload.
type DocumentService struct {
	repo   documentStore
	blob   storage.Blob
	logger *zap.Logger
}

// NewDocumentService constructs the lifecycle manager.
func NewDocumentService(repo documentStore, blob storage.Blob, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{repo: repo, blob: blob, logger: logger}
}

// Upsert creates or replaces the slot for (applicationID, docType).
//
// A fresh slot starts at version 1 with status PENDING_SIGNATURE (SIGNED
// when finalizing generated output). An existing slot gets the new file
// reference, a version bump, and a status reset to PENDING_SIGNATURE,
// unless Finalize is set, which forces SIGNED. If the row disappears
// between read and write (stale-file cleanup race), the update falls back
// to creating a new record instead of failing.
func (s *DocumentService) Upsert(ctx context.Context, applicationID string, docType models.DocumentType, fileRef string, opts UpsertOptions) (*models.Document, error) {
	if !docType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown document type")
	}

	existing, err := s.repo.GetByApplicationAndType(ctx, applicationID, docType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.createFresh(ctx, applicationID, docType, fileRef, opts)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document slot")
	}

	oldRef := existing.FileRef
	existing.FileRef = fileRef
	existing.Version++
	if opts.Finalize {
		s.applySignature(existing, opts)
	} else {
		existing.Status = models.DocumentStatusPendingSignature
		existing.SignedBy = nil
		existing.SignedAt = nil
	}

	if err := s.repo.Update(ctx, existing); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Row deleted since the read; recreate rather than fail.
			return s.createFresh(ctx, applicationID, docType, fileRef, opts)
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document slot")
	}

	s.deleteOldFile(ctx, oldRef, fileRef)
	return existing, nil
}

// UploadableTypes lists the slots students fill by uploading a file rather
// than through an online form or system generation.
var UploadableTypes = map[models.DocumentType]bool{
	models.DocTypeBLI02:   true,
	models.DocTypeBLI03HC: true,
}

// Upload stores the uploaded bytes and upserts the matching slot.
func (s *DocumentService) Upload(ctx context.Context, applicationID string, docType models.DocumentType, filename, contentType string, data []byte) (*models.Document, error) {
	if !UploadableTypes[docType] {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document type does not accept uploads")
	}
	if len(data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	stored, err := s.blob.Upload(ctx, storage.UploadInput{
		Filename:    filename,
		Directory:   "uploads/" + applicationID,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store upload")
	}
	return s.Upsert(ctx, applicationID, docType, stored.Path, UpsertOptions{})
}

// Finalize marks the slot SIGNED in place, keeping its current file.
func (s *DocumentService) Finalize(ctx context.Context, applicationID string, docType models.DocumentType, opts UpsertOptions) (*models.Document, error) {
	doc, err := s.repo.GetByApplicationAndType(ctx, applicationID, docType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document slot")
	}
	s.applySignature(doc, opts)
	if err := s.repo.Update(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finalize document")
	}
	return doc, nil
}

// Get returns one document row by id.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}
	return doc, nil
}

// ListByApplication returns every slot for the application.
func (s *DocumentService) ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error) {
	docs, err := s.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	return docs, nil
}

// DownloadURL mints a signed URL for a slot backed by a real file.
func (s *DocumentService) DownloadURL(ctx context.Context, doc *models.Document) (string, error) {
	if models.IsMarkerRef(doc.FileRef) {
		return "", appErrors.Clone(appErrors.ErrInvalidState, "document has no stored file")
	}
	url, err := s.blob.GetURL(doc.FileRef, 0)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}
	return url, nil
}

func (s *DocumentService) createFresh(ctx context.Context, applicationID string, docType models.DocumentType, fileRef string, opts UpsertOptions) (*models.Document, error) {
	doc := &models.Document{
		ApplicationID: applicationID,
		Type:          docType,
		FileRef:       fileRef,
		Version:       1,
		Status:        models.DocumentStatusPendingSignature,
	}
	if opts.Finalize {
		s.applySignature(doc, opts)
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document slot")
	}
	return doc, nil
}

func (s *DocumentService) applySignature(doc *models.Document, opts UpsertOptions) {
	now := time.Now().UTC()
	doc.Status = models.DocumentStatusSigned
	doc.SignedAt = &now
	if opts.SignerID != nil {
		doc.SignedBy = opts.SignerID
	}
}

// deleteOldFile removes the superseded physical file. Failure must not abort
// the upsert; the new reference is already durable.
func (s *DocumentService) deleteOldFile(ctx context.Context, oldRef, newRef string) {
	if oldRef == "" || oldRef == newRef || models.IsMarkerRef(oldRef) {
		return
	}
	if s.blob == nil {
		return
	}
	if err := s.blob.Delete(ctx, oldRef); err != nil {
		s.logger.Warn("failed to delete superseded file", zap.String("path", oldRef), zap.Error(err))
	}
}
