package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/pdf"
	"github.com/noah-isme/sma-li-api/pkg/storage"
)

// documentUpserter is the slice of the lifecycle manager the PDF path needs.
type documentUpserter interface {
	Upsert(ctx context.Context, applicationID string, docType models.DocumentType, fileRef string, opts UpsertOptions) (*models.Document, error)
}

// PDFService assembles the data bundle for each official form and drives
// generation, storage and slot finalization. Layout lives in pkg/pdf.
type PDFService struct {
	registry pdf.Registry
	apps     applicationStore
	sessions sessionStore
	users    userStore
	forms    formResponseStore
	blob     storage.Blob
	docs     documentUpserter
	logger   *zap.Logger
}

// NewPDFService constructs the generation service.
func NewPDFService(registry pdf.Registry, apps applicationStore, sessions sessionStore, users userStore, forms formResponseStore, blob storage.Blob, docs documentUpserter, logger *zap.Logger) *PDFService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PDFService{
		registry: registry,
		apps:     apps,
		sessions: sessions,
		users:    users,
		forms:    forms,
		blob:     blob,
		docs:     docs,
		logger:   logger,
	}
}

// Render produces the current PDF bytes for a form without persisting
// anything. The generate:// placeholder download path serves these directly.
func (s *PDFService) Render(ctx context.Context, applicationID string, docType models.DocumentType) ([]byte, error) {
	gen, ok := s.registry[string(docType)]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, fmt.Sprintf("%s has no generated form", docType))
	}

	data, err := s.buildData(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if err := gen.Validate(data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	bytes, err := gen.Generate(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render form")
	}
	return bytes, nil
}

// RegenerateDocument renders the form, stores the bytes, and finalizes the
// document slot with the new file reference. Called from the post-approval
// outbox; callers treat failure as retriable, not fatal.
func (s *PDFService) RegenerateDocument(ctx context.Context, applicationID string, docType models.DocumentType) (*models.Document, error) {
	bytes, err := s.Render(ctx, applicationID, docType)
	if err != nil {
		return nil, err
	}

	stored, err := s.blob.Upload(ctx, storage.UploadInput{
		Filename:    fmt.Sprintf("%s-%d.pdf", docType, time.Now().UTC().Unix()),
		Directory:   fmt.Sprintf("generated/%s", applicationID),
		ContentType: "application/pdf",
		Metadata:    map[string]string{"applicationId": applicationID, "formCode": string(docType)},
		Data:        bytes,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store generated form")
	}

	doc, err := s.docs.Upsert(ctx, applicationID, docType, stored.Path, UpsertOptions{Finalize: true})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// buildData flattens the application, session, student and form rows into
// the key/value bundle the generators render from.
func (s *PDFService) buildData(ctx context.Context, applicationID string) (pdf.Data, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pdf.Data{}, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return pdf.Data{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	fields := map[string]string{
		"orgName":         app.OrgName,
		"orgAddress":      joinAddress(app.OrgAddress, app.OrgCity, app.OrgState, app.OrgPostcode),
		"supervisorName":  app.SupervisorName,
		"supervisorEmail": app.SupervisorEmail,
	}
	if app.StudentSignedAt != nil {
		fields["studentSignedAt"] = app.StudentSignedAt.Format("2006-01-02")
	}
	if app.SupervisorSignedAt != nil {
		fields["supervisorSignedAt"] = app.SupervisorSignedAt.Format("2006-01-02")
	}

	if student, err := s.users.FindByID(ctx, app.StudentID); err == nil {
		fields["studentName"] = student.FullName
		if student.MatricNo != nil {
			fields["matricNo"] = *student.MatricNo
		}
	} else {
		return pdf.Data{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	if session, err := s.sessions.GetByID(ctx, app.SessionID); err == nil {
		fields["sessionName"] = session.Name
	} else if !errors.Is(err, sql.ErrNoRows) {
		return pdf.Data{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load training session")
	}

	s.mergeFormFields(ctx, applicationID, fields)
	return pdf.Data{Fields: fields}, nil
}

// mergeFormFields overlays form-response data when present. A missing or
// undecodable form never fails the bundle; the generator's required-field
// validation decides whether the result is renderable.
func (s *PDFService) mergeFormFields(ctx context.Context, applicationID string, fields map[string]string) {
	if bli03, err := s.forms.GetByApplicationAndType(ctx, applicationID, models.FormTypeBLI03); err == nil {
		payload, err := models.DecodePayload(models.FormTypeBLI03, bli03.Payload)
		if err != nil {
			s.logger.Warn("undecodable BLI-03 payload", zap.String("application_id", applicationID), zap.Error(err))
		} else if p := payload.BLI03; p != nil {
			setIfNotEmpty(fields, "orgName", p.OrgName)
			setIfNotEmpty(fields, "orgAddress", joinAddress(p.OrgAddress, p.OrgCity, p.OrgState, p.OrgPostcode))
			setIfNotEmpty(fields, "supervisorName", p.SupervisorName)
			setIfNotEmpty(fields, "supervisorEmail", p.SupervisorEmail)
			setIfNotEmpty(fields, "reportingDate", p.ReportingDate)
			setIfNotEmpty(fields, "trainingUnit", p.TrainingUnit)
		}
		if bli03.CoordinatorSignedAt != nil {
			fields["coordinatorSignedAt"] = bli03.CoordinatorSignedAt.Format("2006-01-02")
		}
		if bli03.CoordinatorSignedBy != nil {
			if coordinator, err := s.users.FindByID(ctx, *bli03.CoordinatorSignedBy); err == nil {
				fields["coordinatorName"] = coordinator.FullName
			}
		}
	}

	if bli04, err := s.forms.GetByApplicationAndType(ctx, applicationID, models.FormTypeBLI04); err == nil {
		payload, err := models.DecodePayload(models.FormTypeBLI04, bli04.Payload)
		if err != nil {
			s.logger.Warn("undecodable BLI-04 payload", zap.String("application_id", applicationID), zap.Error(err))
		} else if p := payload.BLI04; p != nil {
			setIfNotEmpty(fields, "completionDate", p.CompletionDate)
			setIfNotEmpty(fields, "taskSummary", p.TaskSummary)
			if p.AttendanceDays > 0 {
				fields["attendanceDays"] = strconv.Itoa(p.AttendanceDays)
			}
		}
	}
}

func setIfNotEmpty(fields map[string]string, key, value string) {
	if value != "" {
		fields[key] = value
	}
}

func joinAddress(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += ", "
		}
		out += p
	}
	return out
}
