package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
)

func reviewFixture(t *testing.T) (*ReviewService, *stubApps, *stubDocs, *stubForms, *stubReviews, *stubNotifier, *stubOutbox) {
	t.Helper()
	apps := newStubApps(&models.Application{ID: "app-1", StudentID: "stu-1", SessionID: "sess-1", Status: models.ApplicationStatusSubmitted})
	sessions := newStubSessions(&models.TrainingSession{ID: "sess-1", Name: "2026/1", CoordinatorID: "coord-1", Active: true})
	docs := newStubDocs(&models.Document{
		ID: "doc-bli01", ApplicationID: "app-1", Type: models.DocTypeBLI01,
		Status: models.DocumentStatusPendingSignature, FileRef: models.FileRefOnlineSubmission, Version: 1,
	})
	forms := newStubForms()
	reviews := &stubReviews{}
	notify := &stubNotifier{}
	ob := &stubOutbox{}
	svc := NewReviewService(docs, apps, sessions, reviews, forms, notify, ob, nil)
	return svc, apps, docs, forms, reviews, notify, ob
}

func TestReviewRejectsNonCoordinator(t *testing.T) {
	svc, _, _, _, reviews, _, _ := reviewFixture(t)

	_, err := svc.Review(context.Background(), "doc-bli01", "someone-else", models.DecisionApprove, "")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	require.Empty(t, reviews.reviews, "no decision row before authorization passes")
}

func TestReviewUnknownDocument(t *testing.T) {
	svc, _, _, _, _, _, _ := reviewFixture(t)

	_, err := svc.Review(context.Background(), "missing", "coord-1", models.DecisionApprove, "")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestApproveBLI01ApprovesApplication(t *testing.T) {
	svc, apps, docs, _, reviews, notify, ob := reviewFixture(t)

	review, err := svc.Review(context.Background(), "doc-bli01", "coord-1", models.DecisionApprove, "looks good")
	require.NoError(t, err)
	require.Equal(t, models.DecisionApprove, review.Decision)
	require.Len(t, reviews.reviews, 1)

	doc := docs.byType("app-1", models.DocTypeBLI01)
	require.Equal(t, models.DocumentStatusSigned, doc.Status)
	require.NotNil(t, doc.SignedAt)
	require.Equal(t, models.ApplicationStatusApproved, apps.apps["app-1"].Status)

	approved := notify.ofType(models.NotifyDocumentApproved)
	require.Len(t, approved, 1)
	require.Equal(t, "stu-1", approved[0].UserID)

	require.Len(t, ob.jobs, 2)
	jobTypes := map[string]bool{}
	for _, job := range ob.jobs {
		jobTypes[job.Type] = true
	}
	require.True(t, jobTypes[JobTypeRegeneratePDF])
	require.True(t, jobTypes[JobTypeMaterializeUnlocks])
}

func TestRequestChangesResetsDocumentAndNotifies(t *testing.T) {
	svc, apps, docs, _, _, notify, ob := reviewFixture(t)

	_, err := svc.Review(context.Background(), "doc-bli01", "coord-1", models.DecisionRequestChanges, "missing supervisor phone")
	require.NoError(t, err)

	doc := docs.byType("app-1", models.DocTypeBLI01)
	require.Equal(t, models.DocumentStatusDraft, doc.Status)
	require.Nil(t, doc.SignedAt)
	require.Equal(t, models.ApplicationStatusUnderReview, apps.apps["app-1"].Status,
		"the coordinator has acted, so the submission is no longer waiting")

	changed := notify.ofType(models.NotifyChangesRequested)
	require.Len(t, changed, 1)
	require.Equal(t, "missing supervisor phone", changed[0].Data["comment"])
	require.Empty(t, ob.jobs, "no follow-up automation without an approval")
}

func TestRejectBLI01RejectsApplication(t *testing.T) {
	svc, apps, docs, _, reviews, notify, ob := reviewFixture(t)

	review, err := svc.Review(context.Background(), "doc-bli01", "coord-1", models.DecisionReject, "organization not eligible")
	require.NoError(t, err)
	require.Equal(t, models.DecisionReject, review.Decision)
	require.Len(t, reviews.reviews, 1)

	doc := docs.byType("app-1", models.DocTypeBLI01)
	require.Equal(t, models.DocumentStatusRejected, doc.Status)
	require.Equal(t, models.ApplicationStatusRejected, apps.apps["app-1"].Status)
	require.True(t, apps.apps["app-1"].Status.Terminal())

	rejected := notify.ofType(models.NotifyDocumentRejected)
	require.Len(t, rejected, 1)
	require.Equal(t, "organization not eligible", rejected[0].Data["comment"])
	require.Empty(t, ob.jobs, "no follow-up automation on a rejection")
}

func TestFirstDecisionMarksApplicationUnderReview(t *testing.T) {
	svc, apps, docs, _, _, _, _ := reviewFixture(t)
	require.NoError(t, docs.Create(context.Background(), &models.Document{
		ID: "doc-bli02", ApplicationID: "app-1", Type: models.DocTypeBLI02,
		Status: models.DocumentStatusPendingSignature, FileRef: "uploads/app-1/offer.pdf", Version: 1,
	}))

	_, err := svc.Review(context.Background(), "doc-bli02", "coord-1", models.DecisionApprove, "")
	require.NoError(t, err)

	// Approving a supporting document is not the BLI-01 verdict; the
	// application leaves the submission queue without being decided.
	require.Equal(t, models.ApplicationStatusUnderReview, apps.apps["app-1"].Status)
}

func TestApproveBLI03StampsCoordinatorTimestamp(t *testing.T) {
	svc, _, docs, forms, _, _, ob := reviewFixture(t)
	require.NoError(t, docs.Create(context.Background(), &models.Document{
		ApplicationID: "app-1", Type: models.DocTypeBLI03,
		Status: models.DocumentStatusPendingSignature, FileRef: models.FileRefOnlineSubmission, Version: 1,
	}))
	sig := "data:sig"
	kind := models.SignatureKindDrawn
	now := time.Now().UTC()
	require.NoError(t, forms.Create(context.Background(), &models.FormResponse{
		ApplicationID: "app-1", FormType: models.FormTypeBLI03, Payload: []byte(`{}`),
		StudentSignature: &sig, StudentSignatureKind: &kind, StudentSignedAt: &now,
	}))

	_, err := svc.ApproveBLI03(context.Background(), "app-1", "coord-1", models.DecisionApprove, "")
	require.NoError(t, err)

	fr := forms.get("app-1", models.FormTypeBLI03)
	require.NotNil(t, fr.CoordinatorSignedAt)
	require.Equal(t, "coord-1", *fr.CoordinatorSignedBy)
	require.Equal(t, models.DocumentStatusSigned, docs.byType("app-1", models.DocTypeBLI03).Status)
	require.Len(t, ob.jobs, 2)
}

func TestBLI03RequestChangesClearsBothSignatures(t *testing.T) {
	svc, _, docs, forms, _, _, _ := reviewFixture(t)
	require.NoError(t, docs.Create(context.Background(), &models.Document{
		ApplicationID: "app-1", Type: models.DocTypeBLI03,
		Status: models.DocumentStatusSigned, FileRef: models.FileRefOnlineSubmission, Version: 2,
	}))
	sig := "data:sig"
	kind := models.SignatureKindDrawn
	coordinator := "coord-1"
	now := time.Now().UTC()
	require.NoError(t, forms.Create(context.Background(), &models.FormResponse{
		ApplicationID: "app-1", FormType: models.FormTypeBLI03, Payload: []byte(`{}`),
		StudentSignature: &sig, StudentSignatureKind: &kind, StudentSignedAt: &now,
		CoordinatorSignedBy: &coordinator, CoordinatorSignedAt: &now,
	}))

	_, err := svc.ApproveBLI03(context.Background(), "app-1", "coord-1", models.DecisionRequestChanges, "wrong reporting date")
	require.NoError(t, err)

	fr := forms.get("app-1", models.FormTypeBLI03)
	require.Nil(t, fr.StudentSignature)
	require.Nil(t, fr.StudentSignedAt)
	require.Nil(t, fr.CoordinatorSignedBy)
	require.Nil(t, fr.CoordinatorSignedAt)
	require.Equal(t, models.DocumentStatusDraft, docs.byType("app-1", models.DocTypeBLI03).Status)
}

func TestApproveBLI03RequiresSubmittedForm(t *testing.T) {
	svc, _, _, _, _, _, _ := reviewFixture(t)

	_, err := svc.ApproveBLI03(context.Background(), "app-1", "coord-1", models.DecisionApprove, "")
	require.Error(t, err)
	require.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
