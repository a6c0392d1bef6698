package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
)

func TestUpsertCreatesFreshSlot(t *testing.T) {
	docs := newStubDocs()
	svc := NewDocumentService(docs, newStubBlob(), nil)

	doc, err := svc.Upsert(context.Background(), "app-1", models.DocTypeBLI02, "uploads/bli02.pdf", UpsertOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, doc.Version)
	require.Equal(t, models.DocumentStatusPendingSignature, doc.Status)
	require.Len(t, docs.docs, 1)
}

func TestUpsertReplacesInPlaceAndBumpsVersion(t *testing.T) {
	blob := newStubBlob()
	blob.files["uploads/old.pdf"] = []byte("old")
	signer := "coord-1"
	docs := newStubDocs(&models.Document{
		ApplicationID: "app-1",
		Type:          models.DocTypeBLI02,
		Status:        models.DocumentStatusSigned,
		FileRef:       "uploads/old.pdf",
		Version:       2,
		SignedBy:      &signer,
	})
	svc := NewDocumentService(docs, blob, nil)

	doc, err := svc.Upsert(context.Background(), "app-1", models.DocTypeBLI02, "uploads/new.pdf", UpsertOptions{})
	require.NoError(t, err)
	require.Equal(t, 3, doc.Version)
	require.Equal(t, models.DocumentStatusPendingSignature, doc.Status)
	require.Nil(t, doc.SignedBy)
	require.Len(t, docs.docs, 1, "re-upload must not create a second row")
	require.Equal(t, []string{"uploads/old.pdf"}, blob.deleted)
}

func TestUpsertFinalizeForcesSigned(t *testing.T) {
	docs := newStubDocs(&models.Document{
		ApplicationID: "app-1",
		Type:          models.DocTypeSLI03,
		Status:        models.DocumentStatusPendingSignature,
		FileRef:       models.GeneratedFileRef(models.DocTypeSLI03),
		Version:       1,
	})
	svc := NewDocumentService(docs, newStubBlob(), nil)

	doc, err := svc.Upsert(context.Background(), "app-1", models.DocTypeSLI03, "generated/sli03.pdf", UpsertOptions{Finalize: true})
	require.NoError(t, err)
	require.Equal(t, models.DocumentStatusSigned, doc.Status)
	require.NotNil(t, doc.SignedAt)
	require.Equal(t, 2, doc.Version)
}

func TestUpsertRecreatesWhenRowVanishes(t *testing.T) {
	docs := newStubDocs(&models.Document{
		ApplicationID: "app-1",
		Type:          models.DocTypeBLI02,
		Status:        models.DocumentStatusPendingSignature,
		FileRef:       "uploads/old.pdf",
		Version:       4,
	})
	docs.vanishBeforeUpdate = true
	svc := NewDocumentService(docs, newStubBlob(), nil)

	doc, err := svc.Upsert(context.Background(), "app-1", models.DocTypeBLI02, "uploads/new.pdf", UpsertOptions{})
	require.NoError(t, err, "a concurrently deleted row must fall back to create")
	require.Equal(t, 1, doc.Version)
	require.Len(t, docs.docs, 1)
}

func TestUpsertNeverDeletesMarkerRefs(t *testing.T) {
	blob := newStubBlob()
	docs := newStubDocs(&models.Document{
		ApplicationID: "app-1",
		Type:          models.DocTypeBLI03,
		Status:        models.DocumentStatusDraft,
		FileRef:       models.FileRefOnlineSubmission,
		Version:       1,
	})
	svc := NewDocumentService(docs, blob, nil)

	_, err := svc.Upsert(context.Background(), "app-1", models.DocTypeBLI03, models.FileRefOnlineSubmission, UpsertOptions{})
	require.NoError(t, err)
	require.Empty(t, blob.deleted)
}

func TestUpsertRejectsUnknownType(t *testing.T) {
	svc := NewDocumentService(newStubDocs(), newStubBlob(), nil)
	_, err := svc.Upsert(context.Background(), "app-1", models.DocumentType("XX-99"), "x.pdf", UpsertOptions{})
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestDownloadURLRejectsMarkerRefs(t *testing.T) {
	svc := NewDocumentService(newStubDocs(), newStubBlob(), nil)

	for _, ref := range []string{models.FileRefOnlineSubmission, models.GeneratedFileRef(models.DocTypeSLI03)} {
		_, err := svc.DownloadURL(context.Background(), &models.Document{FileRef: ref})
		require.Error(t, err)
		require.Equal(t, appErrors.ErrInvalidState.Code, appErrors.FromError(err).Code)
	}

	url, err := svc.DownloadURL(context.Background(), &models.Document{FileRef: "uploads/real.pdf"})
	require.NoError(t, err)
	require.Contains(t, url, "uploads/real.pdf")
}

func TestUploadStoresFileAndUpsertsSlot(t *testing.T) {
	docs := newStubDocs()
	blob := newStubBlob()
	svc := NewDocumentService(docs, blob, nil)

	doc, err := svc.Upload(context.Background(), "app-1", models.DocTypeBLI02, "bli02.pdf", "application/pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Equal(t, "uploads/app-1/bli02.pdf", doc.FileRef)
	require.Equal(t, 1, doc.Version)
	require.Equal(t, models.DocumentStatusPendingSignature, doc.Status)
	require.Contains(t, blob.files, "uploads/app-1/bli02.pdf")
}

func TestUploadRejectsGeneratedSlots(t *testing.T) {
	svc := NewDocumentService(newStubDocs(), newStubBlob(), nil)

	for _, docType := range []models.DocumentType{models.DocTypeBLI01, models.DocTypeSLI03, models.DocTypeDLI01, models.DocTypeBLI04} {
		_, err := svc.Upload(context.Background(), "app-1", docType, "x.pdf", "application/pdf", []byte("x"))
		require.Error(t, err)
		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	svc := NewDocumentService(newStubDocs(), newStubBlob(), nil)
	_, err := svc.Upload(context.Background(), "app-1", models.DocTypeBLI02, "x.pdf", "application/pdf", nil)
	require.Error(t, err)
	require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
