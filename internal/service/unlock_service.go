package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
)

type formResponseStore interface {
	Create(ctx context.Context, fr *models.FormResponse) error
	GetByApplicationAndType(ctx context.Context, applicationID string, formType models.FormType) (*models.FormResponse, error)
	Update(ctx context.Context, fr *models.FormResponse) error
}

// notifier dispatches workflow notification events.
type notifier interface {
	Notify(ctx context.Context, userID string, t models.NotificationType, applicationID string, data map[string]string) error
}

type unlockCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// materializedTypes are the slots the resolver may create as generated
// placeholders. Upload slots (BLI-02, BLI-03 hardcopy) and the online BLI-03
// marker are created by their own submission paths.
var materializedTypes = []models.DocumentType{
	models.DocTypeBLI01,
	models.DocTypeSLI03,
	models.DocTypeDLI01,
	models.DocTypeBLI04,
}

// UnlockService computes which document slots an application has earned and
// materializes missing generated placeholders.
//
// The predicate table is fixed. BLI-02's condition is self-referential: its
// own uploaded slot being SIGNED unlocks its download.
type UnlockService struct {
	apps     applicationStore
	docs     documentStore
	forms    formResponseStore
	cache    unlockCache
	notify   notifier
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewUnlockService constructs the resolver. cache and notify may be nil.
func NewUnlockService(apps applicationStore, docs documentStore, forms formResponseStore, cache unlockCache, notify notifier, cacheTTL time.Duration, logger *zap.Logger) *UnlockService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &UnlockService{
		apps:     apps,
		docs:     docs,
		forms:    forms,
		cache:    cache,
		notify:   notify,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

func unlockCacheKey(applicationID string) string {
	return fmt.Sprintf("unlock:%s", applicationID)
}

// ResolveUnlocks returns the unlock state for every document type.
func (s *UnlockService) ResolveUnlocks(ctx context.Context, applicationID string) (map[models.DocumentType]bool, error) {
	if s.cache != nil {
		cached := make(map[models.DocumentType]bool)
		if err := s.cache.Get(ctx, unlockCacheKey(applicationID), &cached); err == nil {
			return cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("unlock cache read failed", zap.Error(err))
		}
	}

	unlocks, err := s.computeUnlocks(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, unlockCacheKey(applicationID), unlocks, s.cacheTTL); err != nil {
			s.logger.Warn("unlock cache write failed", zap.Error(err))
		}
	}
	return unlocks, nil
}

// MaterializeUnlocked creates missing generated placeholders for every type
// whose predicate holds, returning only the rows created by this call.
// Re-running it is a no-op; the single SLI-03 "ready" event fires only when
// this call created the SLI-03 row.
func (s *UnlockService) MaterializeUnlocked(ctx context.Context, applicationID string) ([]models.Document, error) {
	unlocks, err := s.computeUnlocks(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	created := make([]models.Document, 0, len(materializedTypes))
	for _, docType := range materializedTypes {
		if !unlocks[docType] {
			continue
		}
		_, err := s.docs.GetByApplicationAndType(ctx, applicationID, docType)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check document slot")
		}
		now := time.Now().UTC()
		doc := models.Document{
			ApplicationID: applicationID,
			Type:          docType,
			Status:        models.DocumentStatusSigned,
			FileRef:       models.GeneratedFileRef(docType),
			Version:       1,
			SignedAt:      &now,
		}
		if err := s.docs.Create(ctx, &doc); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to materialize document")
		}
		created = append(created, doc)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, unlockCacheKey(applicationID)); err != nil {
			s.logger.Warn("unlock cache invalidation failed", zap.Error(err))
		}
	}

	for _, doc := range created {
		if doc.Type != models.DocTypeSLI03 {
			continue
		}
		app, err := s.apps.GetByID(ctx, applicationID)
		if err != nil {
			s.logger.Warn("failed to load application for ready notification", zap.Error(err))
			break
		}
		if s.notify != nil {
			if err := s.notify.Notify(ctx, app.StudentID, models.NotifySLI03Ready, applicationID, nil); err != nil {
				s.logger.Warn("failed to send SLI-03 ready notification", zap.Error(err))
			}
		}
		break
	}

	return created, nil
}

func (s *UnlockService) computeUnlocks(ctx context.Context, applicationID string) (map[models.DocumentType]bool, error) {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}

	docs, err := s.docs.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list documents")
	}
	byType := make(map[models.DocumentType]*models.Document, len(docs))
	for i := range docs {
		byType[docs[i].Type] = &docs[i]
	}

	bli03Form, err := s.loadForm(ctx, applicationID, models.FormTypeBLI03)
	if err != nil {
		return nil, err
	}
	bli04Form, err := s.loadForm(ctx, applicationID, models.FormTypeBLI04)
	if err != nil {
		return nil, err
	}

	approved := app.Status == models.ApplicationStatusApproved
	bli03Signed := bli03Form != nil && bli03Form.CoordinatorSignedAt != nil

	unlocks := map[models.DocumentType]bool{
		models.DocTypeBLI01:   true,
		models.DocTypeBLI02:   byType[models.DocTypeBLI02] != nil && byType[models.DocTypeBLI02].Status == models.DocumentStatusSigned,
		models.DocTypeBLI03:   approved,
		models.DocTypeBLI03HC: approved,
		models.DocTypeSLI03:   bli03Signed,
		models.DocTypeDLI01:   bli03Signed,
		models.DocTypeBLI04: (bli04Form != nil && bli04Form.VerifiedBy != nil) ||
			(byType[models.DocTypeBLI04] != nil && byType[models.DocTypeBLI04].Status == models.DocumentStatusSigned),
	}
	return unlocks, nil
}

func (s *UnlockService) loadForm(ctx context.Context, applicationID string, formType models.FormType) (*models.FormResponse, error) {
	fr, err := s.forms.GetByApplicationAndType(ctx, applicationID, formType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form response")
	}
	return fr, nil
}
