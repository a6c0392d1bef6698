package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
)

type supervisorTokenStore interface {
	Create(ctx context.Context, token *models.SupervisorToken) error
	FindByToken(ctx context.Context, value string) (*models.SupervisorToken, error)
	RevokeActive(ctx context.Context, applicationID string, formType models.FormType) error
	MarkUsed(ctx context.Context, id string, usedAt time.Time) error
}

const supervisorTokenLength = 32

// ConsumeInput is the signature a supervisor submits through a signing link.
type ConsumeInput struct {
	Kind    models.SignatureKind
	Payload string
}

// SignatureService runs the external-supervisor handshake: single-use,
// expiring, revocable signing links for people who never have an account.
type SignatureService struct {
	tokens   supervisorTokenStore
	apps     applicationStore
	forms    formResponseStore
	docs     documentStore
	sessions sessionStore
	users    userStore
	notify   notifier
	ttl      time.Duration
	baseURL  string
	logger   *zap.Logger
}

// NewSignatureService constructs the handshake service.
func NewSignatureService(tokens supervisorTokenStore, apps applicationStore, forms formResponseStore, docs documentStore, sessions sessionStore, users userStore, notify notifier, ttl time.Duration, baseURL string, logger *zap.Logger) *SignatureService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 14 * 24 * time.Hour
	}
	return &SignatureService{
		tokens:   tokens,
		apps:     apps,
		forms:    forms,
		docs:     docs,
		sessions: sessions,
		users:    users,
		notify:   notify,
		ttl:      ttl,
		baseURL:  baseURL,
		logger:   logger,
	}
}

// Issue mints a fresh signing link for (application, form type), revoking any
// prior non-revoked token for the pair. The form must already have been
// submitted; a link cannot point at a form that does not exist yet.
func (s *SignatureService) Issue(ctx context.Context, applicationID string, formType models.FormType, actorID string, supervisorEmail, supervisorName string) (*models.SupervisorToken, string, error) {
	if !formType.Valid() {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unknown form type")
	}

	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	if app.StudentID != actorID {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "not your application")
	}

	if _, err := s.forms.GetByApplicationAndType(ctx, applicationID, formType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("%s form has not been submitted yet", formType))
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form response")
	}

	if err := s.tokens.RevokeActive(ctx, applicationID, formType); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to revoke prior signing links")
	}

	value, err := gonanoid.New(supervisorTokenLength)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate signing token")
	}

	token := &models.SupervisorToken{
		ApplicationID:   applicationID,
		FormType:        formType,
		Token:           value,
		SupervisorEmail: supervisorEmail,
		SupervisorName:  supervisorName,
		ExpiresAt:       time.Now().UTC().Add(s.ttl),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store signing token")
	}

	link := fmt.Sprintf("%s/sign/%s", s.baseURL, value)
	return token, link, nil
}

// Verify resolves a signing link and checks it is still usable. Each failure
// mode carries its own message so the supervisor sees why the link is dead.
func (s *SignatureService) Verify(ctx context.Context, value string) (*models.SupervisorToken, error) {
	token, err := s.tokens.FindByToken(ctx, value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "signing link not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to look up signing link")
	}
	if token.IsRevoked {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "signing link has been revoked")
	}
	if token.UsedAt != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "signing link already used")
	}
	if time.Now().UTC().After(token.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "signing link has expired")
	}
	return token, nil
}

// Consume applies the supervisor's signature through a signing link.
//
// The token claim is a conditional update on used_at; a concurrent or
// repeated consume loses the claim and fails with "already used". After the
// claim, the form's supervisor signature chain is stamped and the matching
// document slot is marked SIGNED.
func (s *SignatureService) Consume(ctx context.Context, value string, input ConsumeInput) (*models.FormResponse, error) {
	token, err := s.Verify(ctx, value)
	if err != nil {
		return nil, err
	}

	app, err := s.apps.GetByID(ctx, token.ApplicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	fr, err := s.forms.GetByApplicationAndType(ctx, token.ApplicationID, token.FormType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "form response not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form response")
	}

	payload, err := s.resolveSignaturePayload(app, fr, input)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.tokens.MarkUsed(ctx, token.ID, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidState, "signing link already used")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to claim signing link")
	}

	kind := input.Kind
	fr.SupervisorName = &token.SupervisorName
	fr.SupervisorSignature = &payload
	fr.SupervisorSignatureKind = &kind
	fr.SupervisorSignedAt = &now
	if err := s.forms.Update(ctx, fr); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stamp supervisor signature")
	}

	if err := s.markDocumentSigned(ctx, token.ApplicationID, token.FormType, now); err != nil {
		return nil, err
	}

	s.notifyCoordinator(ctx, app, token)
	return fr, nil
}

// resolveSignaturePayload validates the payload against its kind. An empty
// image payload falls back to the signature image already stored for this
// application; typed and drawn signatures must always carry data.
func (s *SignatureService) resolveSignaturePayload(app *models.Application, fr *models.FormResponse, input ConsumeInput) (string, error) {
	if !input.Kind.Valid() {
		return "", appErrors.Clone(appErrors.ErrValidation, "unknown signature kind")
	}
	if input.Payload != "" {
		return input.Payload, nil
	}
	if input.Kind != models.SignatureKindImage {
		return "", appErrors.Clone(appErrors.ErrInvalidState, "signature payload is required for this signature kind")
	}
	if fr.SupervisorSignature != nil && *fr.SupervisorSignature != "" {
		return *fr.SupervisorSignature, nil
	}
	if app.SupervisorSignature != nil && *app.SupervisorSignature != "" {
		return *app.SupervisorSignature, nil
	}
	return "", appErrors.Clone(appErrors.ErrInvalidState, "no stored signature image to reuse")
}

func (s *SignatureService) markDocumentSigned(ctx context.Context, applicationID string, formType models.FormType, signedAt time.Time) error {
	docType := models.DocTypeBLI03
	if formType == models.FormTypeBLI04 {
		docType = models.DocTypeBLI04
	}

	doc, err := s.docs.GetByApplicationAndType(ctx, applicationID, docType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			doc = &models.Document{
				ApplicationID: applicationID,
				Type:          docType,
				Status:        models.DocumentStatusSigned,
				FileRef:       models.FileRefOnlineSubmission,
				Version:       1,
				SignedAt:      &signedAt,
			}
			if err := s.docs.Create(ctx, doc); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create document slot")
			}
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load document slot")
	}

	doc.Status = models.DocumentStatusSigned
	doc.SignedAt = &signedAt
	if err := s.docs.Update(ctx, doc); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark document signed")
	}
	return nil
}

func (s *SignatureService) notifyCoordinator(ctx context.Context, app *models.Application, token *models.SupervisorToken) {
	if s.notify == nil {
		return
	}
	session, err := s.sessions.GetByID(ctx, app.SessionID)
	if err != nil {
		s.logger.Warn("failed to load session for supervisor-signed notification", zap.Error(err))
		return
	}
	studentName := app.StudentID
	if s.users != nil {
		if student, err := s.users.FindByID(ctx, app.StudentID); err == nil {
			studentName = student.FullName
		}
	}
	data := map[string]string{
		"documentType": string(token.FormType),
		"studentName":  studentName,
	}
	if err := s.notify.Notify(ctx, session.CoordinatorID, models.NotifySupervisorSigned, app.ID, data); err != nil {
		s.logger.Warn("failed to notify coordinator of supervisor signature", zap.Error(err))
	}
}
