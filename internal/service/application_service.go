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

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	GetByID(ctx context.Context, id string) (*models.Application, error)
	FindByStudentAndSession(ctx context.Context, studentID, sessionID string) (*models.Application, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Application, error)
	Update(ctx context.Context, app *models.Application) error
	UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error
	DeleteCascade(ctx context.Context, id string) error
}

// CreateApplicationInput is the organization snapshot captured at creation.
type CreateApplicationInput struct {
	SessionID       string
	OrgName         string
	OrgAddress      string
	OrgCity         string
	OrgState        string
	OrgPostcode     string
	SupervisorName  string
	SupervisorEmail string
	SupervisorPhone string
}

// SignatureInput is a captured signature with its kind.
type SignatureInput struct {
	Signature string
	Kind      models.SignatureKind
}

// ApplicationService owns the placement application lifecycle, the student
// form submission paths, and the dedupe-supersede rule for repeat creates.
type ApplicationService struct {
	apps     applicationStore
	docs     documentUpserter
	forms    formResponseStore
	reviews  reviewStore
	sessions sessionStore
	users    userStore
	notify   notifier
	outbox   outbox
	logger   *zap.Logger
}

// NewApplicationService constructs the service. notify and outbox may be nil.
func NewApplicationService(apps applicationStore, docs documentUpserter, forms formResponseStore, reviews reviewStore, sessions sessionStore, users userStore, notify notifier, ob outbox, logger *zap.Logger) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApplicationService{
		apps:     apps,
		docs:     docs,
		forms:    forms,
		reviews:  reviews,
		sessions: sessions,
		users:    users,
		notify:   notify,
		outbox:   ob,
		logger:   logger,
	}
}

// Create starts a placement application for (student, session).
//
// A prior non-terminal application for the same pair is superseded: the old
// row and all its children (documents, form responses, reviews, signing
// tokens, notifications) are deleted before the fresh one is created. A
// finalized prior application blocks a second create.
func (s *ApplicationService) Create(ctx context.Context, studentID string, input CreateApplicationInput) (*models.Application, error) {
	session, err := s.sessions.GetByID(ctx, input.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "training session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training session")
	}
	if !session.Active {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "training session is not open for applications")
	}

	prior, err := s.apps.FindByStudentAndSession(ctx, studentID, input.SessionID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing application")
	}
	if prior != nil {
		if prior.Status.Terminal() {
			return nil, appErrors.Clone(appErrors.ErrConflict, "an application for this session has already been finalized")
		}
		if err := s.apps.DeleteCascade(ctx, prior.ID); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to supersede prior application")
		}
		s.logger.Info("superseded prior application",
			zap.String("prior_application_id", prior.ID),
			zap.String("student_id", studentID))
	}

	app := &models.Application{
		StudentID:       studentID,
		SessionID:       input.SessionID,
		Status:          models.ApplicationStatusDraft,
		OrgName:         input.OrgName,
		OrgAddress:      input.OrgAddress,
		OrgCity:         input.OrgCity,
		OrgState:        input.OrgState,
		OrgPostcode:     input.OrgPostcode,
		SupervisorName:  input.SupervisorName,
		SupervisorEmail: input.SupervisorEmail,
		SupervisorPhone: input.SupervisorPhone,
	}
	if err := s.apps.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create application")
	}
	return app, nil
}

// Get loads one application, enforcing ownership for students.
func (s *ApplicationService) Get(ctx context.Context, id, actorID string, role models.UserRole) (*models.Application, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if role == models.RoleStudent && app.StudentID != actorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not your application")
	}
	return app, nil
}

// ListByStudent returns the student's applications, newest first.
func (s *ApplicationService) ListByStudent(ctx context.Context, studentID string) ([]models.Application, error) {
	apps, err := s.apps.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	return apps, nil
}

// Submit signs and submits the application (the BLI-01 stage). The student's
// signature lands on the application row, the BLI-01 document slot is
// created as an online marker, and the session coordinator is notified.
func (s *ApplicationService) Submit(ctx context.Context, applicationID, studentID string, sig SignatureInput) (*models.Application, error) {
	app, err := s.Get(ctx, applicationID, studentID, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusDraft {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "application has already been submitted")
	}

	payload, err := resolveStudentSignature(app, sig)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	kind := sig.Kind
	app.StudentSignature = &payload
	app.StudentSignatureKind = &kind
	app.StudentSignedAt = &now
	app.SubmittedAt = &now
	app.Status = models.ApplicationStatusSubmitted
	if err := s.apps.Update(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit application")
	}

	if _, err := s.docs.Upsert(ctx, app.ID, models.DocTypeBLI01, models.FileRefOnlineSubmission, UpsertOptions{}); err != nil {
		return nil, err
	}

	s.notifyCoordinator(ctx, app, models.NotifyNewSubmission, models.DocTypeBLI01)
	return app, nil
}

// SubmitBLI03Form records the placement confirmation form. Allowed only once
// the application is approved; every resubmission purges stale
// REQUEST_CHANGES reviews and resets the BLI-03 document slot.
func (s *ApplicationService) SubmitBLI03Form(ctx context.Context, applicationID, studentID string, payload models.BLI03Payload, sig SignatureInput) (*models.FormResponse, error) {
	app, err := s.Get(ctx, applicationID, studentID, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "BLI-03 opens after the application is approved")
	}
	return s.submitForm(ctx, app, models.FormTypeBLI03, models.FormPayload{BLI03: &payload}, sig)
}

// SubmitBLI04Form records the completion report form.
func (s *ApplicationService) SubmitBLI04Form(ctx context.Context, applicationID, studentID string, payload models.BLI04Payload, sig SignatureInput) (*models.FormResponse, error) {
	app, err := s.Get(ctx, applicationID, studentID, models.RoleStudent)
	if err != nil {
		return nil, err
	}
	if app.Status != models.ApplicationStatusApproved {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "BLI-04 opens after the application is approved")
	}
	return s.submitForm(ctx, app, models.FormTypeBLI04, models.FormPayload{BLI04: &payload}, sig)
}

// VerifyBLI04 is the coordinator's sign-off on a completion report. The
// verified-by stamp is what the unlock resolver reads for BLI-04.
func (s *ApplicationService) VerifyBLI04(ctx context.Context, applicationID, coordinatorID string) (*models.FormResponse, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	session, err := s.sessions.GetByID(ctx, app.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "training session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training session")
	}
	if session.CoordinatorID != coordinatorID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session coordinator may verify this report")
	}

	fr, err := s.forms.GetByApplicationAndType(ctx, applicationID, models.FormTypeBLI04)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "BLI-04 form has not been submitted")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form response")
	}

	now := time.Now().UTC()
	fr.VerifiedBy = &coordinatorID
	fr.VerifiedAt = &now
	if err := s.forms.Update(ctx, fr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp verification")
	}

	if _, err := s.docs.Upsert(ctx, applicationID, models.DocTypeBLI04, models.FileRefOnlineSubmission, UpsertOptions{Finalize: true, SignerID: &coordinatorID}); err != nil {
		return nil, err
	}

	if s.notify != nil {
		data := map[string]string{"documentType": string(models.DocTypeBLI04)}
		if err := s.notify.Notify(ctx, app.StudentID, models.NotifyDocumentApproved, app.ID, data); err != nil {
			s.logger.Warn("failed to notify student of BLI-04 verification", zap.Error(err))
		}
	}
	s.enqueueMaterialize(applicationID)
	return fr, nil
}

func (s *ApplicationService) submitForm(ctx context.Context, app *models.Application, formType models.FormType, payload models.FormPayload, sig SignatureInput) (*models.FormResponse, error) {
	signature, err := resolveStudentSignature(app, sig)
	if err != nil {
		return nil, err
	}

	raw, err := models.EncodePayload(formType, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}

	now := time.Now().UTC()
	kind := sig.Kind
	fr, err := s.forms.GetByApplicationAndType(ctx, app.ID, formType)
	switch {
	case err == nil:
		// Resubmission: new payload, fresh student signature, and the
		// coordinator stamp starts over.
		fr.Payload = raw
		fr.StudentSignature = &signature
		fr.StudentSignatureKind = &kind
		fr.StudentSignedAt = &now
		fr.CoordinatorSignedBy = nil
		fr.CoordinatorSignedAt = nil
		if err := s.forms.Update(ctx, fr); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update form response")
		}
	case errors.Is(err, sql.ErrNoRows):
		fr = &models.FormResponse{
			ApplicationID:        app.ID,
			FormType:             formType,
			Payload:              raw,
			StudentSignature:     &signature,
			StudentSignatureKind: &kind,
			StudentSignedAt:      &now,
		}
		if err := s.forms.Create(ctx, fr); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create form response")
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form response")
	}

	if err := s.reviews.DeleteRequestChanges(ctx, app.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to clear stale change requests")
	}

	docType := models.DocTypeBLI03
	if formType == models.FormTypeBLI04 {
		docType = models.DocTypeBLI04
	}
	if _, err := s.docs.Upsert(ctx, app.ID, docType, models.FileRefOnlineSubmission, UpsertOptions{}); err != nil {
		return nil, err
	}

	s.notifyCoordinator(ctx, app, models.NotifyNewSubmission, docType)
	return fr, nil
}

func (s *ApplicationService) notifyCoordinator(ctx context.Context, app *models.Application, t models.NotificationType, docType models.DocumentType) {
	if s.notify == nil {
		return
	}
	session, err := s.sessions.GetByID(ctx, app.SessionID)
	if err != nil {
		s.logger.Warn("failed to load session for coordinator notification", zap.Error(err))
		return
	}
	studentName := app.StudentID
	if s.users != nil {
		if student, err := s.users.FindByID(ctx, app.StudentID); err == nil {
			studentName = student.FullName
		}
	}
	data := map[string]string{"documentType": string(docType), "studentName": studentName}
	if err := s.notify.Notify(ctx, session.CoordinatorID, t, app.ID, data); err != nil {
		s.logger.Warn("failed to notify coordinator", zap.String("type", string(t)), zap.Error(err))
	}
}

func (s *ApplicationService) enqueueMaterialize(applicationID string) {
	if s.outbox == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: JobTypeMaterializeUnlocks, Payload: FollowUpPayload{ApplicationID: applicationID}}
	if err := s.outbox.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue unlock materialization", zap.String("application_id", applicationID), zap.Error(err))
	}
}

// resolveStudentSignature validates a student signature input against its
// kind. An empty image payload reuses the signature image already stored on
// the application; typed and drawn must carry data.
func resolveStudentSignature(app *models.Application, sig SignatureInput) (string, error) {
	if !sig.Kind.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown signature kind")
	}
	if sig.Signature != "" {
		return sig.Signature, nil
	}
	if sig.Kind != models.SignatureKindImage {
		return "", appErrors.Clone(appErrors.ErrInvalidState, "signature payload is required for this signature kind")
	}
	if app.StudentSignature != nil && *app.StudentSignature != "" {
		return *app.StudentSignature, nil
	}
	return "", appErrors.Clone(appErrors.ErrInvalidState, "no stored signature image to reuse")
}
