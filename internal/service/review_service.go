package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/jobs"
)

type reviewStore interface {
	Create(ctx context.Context, review *models.Review) error
	ListByApplication(ctx context.Context, applicationID string) ([]models.Review, error)
	DeleteRequestChanges(ctx context.Context, applicationID string) error
}

type sessionStore interface {
	GetByID(ctx context.Context, id string) (*models.TrainingSession, error)
	ListActive(ctx context.Context) ([]models.TrainingSession, error)
}

// outbox receives post-commit follow-up jobs. The review paths enqueue PDF
// regeneration and unlock materialization here so their failure can never
// unwind a persisted decision.
type outbox interface {
	Enqueue(job jobs.Job) error
}

// Follow-up job types dispatched through the outbox.
const (
	JobTypeRegeneratePDF      = "pdf.regenerate"
	JobTypeMaterializeUnlocks = "unlock.materialize"
)

// FollowUpPayload carries the target of an outbox job.
type FollowUpPayload struct {
	ApplicationID string
	DocumentType  models.DocumentType
}

// ReviewService sequences coordinator decisions: authorize, persist the
// decision record, transition document/application state, then hand
// best-effort automation to the outbox.
type ReviewService struct {
	docs     documentStore
	apps     applicationStore
	sessions sessionStore
	reviews  reviewStore
	forms    formResponseStore
	notify   notifier
	outbox   outbox
	logger   *zap.Logger
}

// NewReviewService constructs the orchestrator. notify and outbox may be nil.
func NewReviewService(docs documentStore, apps applicationStore, sessions sessionStore, reviews reviewStore, forms formResponseStore, notify notifier, ob outbox, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		docs:     docs,
		apps:     apps,
		sessions: sessions,
		reviews:  reviews,
		forms:    forms,
		notify:   notify,
		outbox:   ob,
		logger:   logger,
	}
}

// Review records a coordinator decision on one document slot.
//
// The decision row is persisted before any state transition; a later failure
// leaves the decision on record. Approving or rejecting BLI-01 carries the
// owning application to the matching terminal status; the first decision on a
// submitted application otherwise marks it UNDER_REVIEW. PDF regeneration and
// unlock materialization run through the outbox and never abort the approval.
func (s *ReviewService) Review(ctx context.Context, documentID, reviewerID string, decision models.ReviewDecision, comments string) (*models.Review, error) {
	if !decision.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown review decision")
	}

	doc, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	app, err := s.loadApplication(ctx, doc.ApplicationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCoordinator(ctx, app, reviewerID); err != nil {
		return nil, err
	}

	review := &models.Review{
		ApplicationID: app.ID,
		DocumentID:    doc.ID,
		ReviewerID:    reviewerID,
		Decision:      decision,
		Comments:      comments,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review")
	}

	if err := s.applyDecisionToDocument(ctx, doc, reviewerID, decision); err != nil {
		return nil, err
	}

	// A BLI-01 decision decides the application itself; any other decision
	// on a fresh submission moves it to UNDER_REVIEW so the escalation
	// sweep stops treating it as untouched.
	target := app.Status
	if app.Status == models.ApplicationStatusSubmitted {
		target = models.ApplicationStatusUnderReview
	}
	if doc.Type == models.DocTypeBLI01 {
		switch decision {
		case models.DecisionApprove:
			target = models.ApplicationStatusApproved
		case models.DecisionReject:
			target = models.ApplicationStatusRejected
		}
	}
	if target != app.Status {
		if err := s.apps.UpdateStatus(ctx, app.ID, target); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
		}
	}

	s.notifyDecision(ctx, app.StudentID, app.ID, doc.Type, decision, comments)
	if decision == models.DecisionApprove {
		s.enqueueFollowUps(app.ID, doc.Type)
	}
	return review, nil
}

// ApproveBLI03 is the form-specific review variant for the placement
// confirmation. Approval stamps the FormResponse's coordinator-signed
// timestamp, which is what actually unlocks SLI-03 and DLI-01; the document
// status flip is bookkeeping. Request-changes clears both the student and
// coordinator signatures on the form, forcing a full re-sign.
func (s *ReviewService) ApproveBLI03(ctx context.Context, applicationID, reviewerID string, decision models.ReviewDecision, comments string) (*models.Review, error) {
	if !decision.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown review decision")
	}

	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeCoordinator(ctx, app, reviewerID); err != nil {
		return nil, err
	}

	fr, err := s.forms.GetByApplicationAndType(ctx, applicationID, models.FormTypeBLI03)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "BLI-03 form has not been submitted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form response")
	}

	doc, err := s.docs.GetByApplicationAndType(ctx, applicationID, models.DocTypeBLI03)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "BLI-03 document not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document")
	}

	review := &models.Review{
		ApplicationID: applicationID,
		DocumentID:    doc.ID,
		ReviewerID:    reviewerID,
		Decision:      decision,
		Comments:      comments,
	}
	if err := s.reviews.Create(ctx, review); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record review")
	}

	now := time.Now().UTC()
	switch decision {
	case models.DecisionApprove:
		fr.CoordinatorSignedBy = &reviewerID
		fr.CoordinatorSignedAt = &now
	case models.DecisionRequestChanges:
		fr.StudentSignature = nil
		fr.StudentSignatureKind = nil
		fr.StudentSignedAt = nil
		fr.CoordinatorSignedBy = nil
		fr.CoordinatorSignedAt = nil
	}
	if decision != models.DecisionReject {
		if err := s.forms.Update(ctx, fr); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update form response")
		}
	}

	if err := s.applyDecisionToDocument(ctx, doc, reviewerID, decision); err != nil {
		return nil, err
	}

	s.notifyDecision(ctx, app.StudentID, app.ID, doc.Type, decision, comments)
	if decision == models.DecisionApprove {
		s.enqueueFollowUps(applicationID, models.DocTypeBLI03)
	}
	return review, nil
}

// ListByApplication returns the decision history for an application, after
// checking the caller is its session coordinator or the owning student.
func (s *ReviewService) ListByApplication(ctx context.Context, applicationID, actorID string, role models.UserRole) ([]models.Review, error) {
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	switch role {
	case models.RoleAdmin:
	case models.RoleStudent:
		if app.StudentID != actorID {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "not your application")
		}
	default:
		if err := s.authorizeCoordinator(ctx, app, actorID); err != nil {
			return nil, err
		}
	}
	reviews, err := s.reviews.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}
	return reviews, nil
}

func (s *ReviewService) loadApplication(ctx context.Context, applicationID string) (*models.Application, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *ReviewService) authorizeCoordinator(ctx context.Context, app *models.Application, reviewerID string) error {
	session, err := s.sessions.GetByID(ctx, app.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "training session not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training session")
	}
	if session.CoordinatorID != reviewerID {
		return appErrors.Clone(appErrors.ErrForbidden, "only the session coordinator may review this application")
	}
	return nil
}

func (s *ReviewService) applyDecisionToDocument(ctx context.Context, doc *models.Document, reviewerID string, decision models.ReviewDecision) error {
	now := time.Now().UTC()
	switch decision {
	case models.DecisionApprove:
		doc.Status = models.DocumentStatusSigned
		doc.SignedBy = &reviewerID
		doc.SignedAt = &now
	case models.DecisionRequestChanges:
		doc.Status = models.DocumentStatusDraft
		doc.SignedBy = nil
		doc.SignedAt = nil
	case models.DecisionReject:
		doc.Status = models.DocumentStatusRejected
	}
	if err := s.docs.Update(ctx, doc); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update document status")
	}
	return nil
}

func (s *ReviewService) notifyDecision(ctx context.Context, studentID, applicationID string, docType models.DocumentType, decision models.ReviewDecision, comments string) {
	if s.notify == nil {
		return
	}
	data := map[string]string{"documentType": string(docType), "comment": comments}
	var t models.NotificationType
	switch decision {
	case models.DecisionApprove:
		t = models.NotifyDocumentApproved
	case models.DecisionRequestChanges:
		t = models.NotifyChangesRequested
	case models.DecisionReject:
		t = models.NotifyDocumentRejected
	default:
		return
	}
	if err := s.notify.Notify(ctx, studentID, t, applicationID, data); err != nil {
		s.logger.Warn("failed to notify student of review decision",
			zap.String("application_id", applicationID),
			zap.String("decision", string(decision)),
			zap.Error(err))
	}
}

// enqueueFollowUps hands PDF regeneration and unlock materialization to the
// outbox. An enqueue failure is logged; the approval already committed.
func (s *ReviewService) enqueueFollowUps(applicationID string, docType models.DocumentType) {
	if s.outbox == nil {
		return
	}
	followUps := []jobs.Job{
		{ID: uuid.NewString(), Type: JobTypeRegeneratePDF, Payload: FollowUpPayload{ApplicationID: applicationID, DocumentType: docType}},
		{ID: uuid.NewString(), Type: JobTypeMaterializeUnlocks, Payload: FollowUpPayload{ApplicationID: applicationID}},
	}
	for _, job := range followUps {
		if err := s.outbox.Enqueue(job); err != nil {
			s.logger.Warn("failed to enqueue follow-up job",
				zap.String("job_type", job.Type),
				zap.String("application_id", applicationID),
				zap.Error(err))
		}
	}
}
