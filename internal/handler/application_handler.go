package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-li-api/internal/dto"
	"github.com/noah-isme/sma-li-api/internal/models"
	"github.com/noah-isme/sma-li-api/internal/service"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/response"
)

type applicationService interface {
	Create(ctx context.Context, studentID string, input service.CreateApplicationInput) (*models.Application, error)
	Get(ctx context.Context, id, actorID string, role models.UserRole) (*models.Application, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Application, error)
	Submit(ctx context.Context, applicationID, studentID string, sig service.SignatureInput) (*models.Application, error)
	SubmitBLI03Form(ctx context.Context, applicationID, studentID string, payload models.BLI03Payload, sig service.SignatureInput) (*models.FormResponse, error)
	SubmitBLI04Form(ctx context.Context, applicationID, studentID string, payload models.BLI04Payload, sig service.SignatureInput) (*models.FormResponse, error)
	VerifyBLI04(ctx context.Context, applicationID, coordinatorID string) (*models.FormResponse, error)
}

type unlockResolver interface {
	ResolveUnlocks(ctx context.Context, applicationID string) (map[models.DocumentType]bool, error)
}

// ApplicationHandler exposes the placement application lifecycle.
type ApplicationHandler struct {
	service  applicationService
	unlocks  unlockResolver
	validate *validator.Validate
}

// NewApplicationHandler builds a new handler.
func NewApplicationHandler(svc applicationService, unlocks unlockResolver, validate *validator.Validate) *ApplicationHandler {
	return &ApplicationHandler{service: svc, unlocks: unlocks, validate: validate}
}

// Create godoc
// @Summary Start a placement application
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}

	app, err := h.service.Create(c.Request.Context(), claims.UserID, service.CreateApplicationInput{
		SessionID:       req.SessionID,
		OrgName:         req.OrgName,
		OrgAddress:      req.OrgAddress,
		OrgCity:         req.OrgCity,
		OrgState:        req.OrgState,
		OrgPostcode:     req.OrgPostcode,
		SupervisorName:  req.SupervisorName,
		SupervisorEmail: req.SupervisorEmail,
		SupervisorPhone: req.SupervisorPhone,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// Get godoc
// @Summary Get one application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	app, err := h.service.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// ListMine godoc
// @Summary List the current student's applications
// @Tags Applications
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /applications [get]
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	apps, err := h.service.ListByStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, nil)
}

// Submit godoc
// @Summary Submit the BLI-01 application for review
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.SignatureRequest true "Student signature"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/submit [post]
func (h *ApplicationHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.SignatureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid signature payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}

	app, err := h.service.Submit(c.Request.Context(), c.Param("id"), claims.UserID, service.SignatureInput{
		Signature: req.Signature,
		Kind:      models.SignatureKind(req.Kind),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// SubmitBLI03 godoc
// @Summary Submit the BLI-03 placement-confirmation form
// @Tags Forms
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.BLI03FormRequest true "Form payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/forms/bli-03 [post]
func (h *ApplicationHandler) SubmitBLI03(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.BLI03FormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}

	payload := models.BLI03Payload{
		OrgName:          req.OrgName,
		OrgAddress:       req.OrgAddress,
		OrgCity:          req.OrgCity,
		OrgState:         req.OrgState,
		OrgPostcode:      req.OrgPostcode,
		OrgPhone:         req.OrgPhone,
		SupervisorName:   req.SupervisorName,
		SupervisorEmail:  req.SupervisorEmail,
		SupervisorPhone:  req.SupervisorPhone,
		ReportingDate:    req.ReportingDate,
		TrainingUnit:     req.TrainingUnit,
		StudentRemarks:   req.StudentRemarks,
		AllowanceMonthly: req.AllowanceMonthly,
	}
	fr, err := h.service.SubmitBLI03Form(c.Request.Context(), c.Param("id"), claims.UserID, payload, service.SignatureInput{
		Signature: req.Signature.Signature,
		Kind:      models.SignatureKind(req.Signature.Kind),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fr, nil)
}

// SubmitBLI04 godoc
// @Summary Submit the BLI-04 completion report
// @Tags Forms
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.BLI04FormRequest true "Form payload"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/forms/bli-04 [post]
func (h *ApplicationHandler) SubmitBLI04(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.BLI04FormRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid form payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}

	payload := models.BLI04Payload{
		CompletionDate:   req.CompletionDate,
		AttendanceDays:   req.AttendanceDays,
		AbsenceDays:      req.AbsenceDays,
		TaskSummary:      req.TaskSummary,
		SupervisorRating: req.SupervisorRating,
		StudentRemarks:   req.StudentRemarks,
	}
	fr, err := h.service.SubmitBLI04Form(c.Request.Context(), c.Param("id"), claims.UserID, payload, service.SignatureInput{
		Signature: req.Signature.Signature,
		Kind:      models.SignatureKind(req.Signature.Kind),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fr, nil)
}

// VerifyBLI04 godoc
// @Summary Verify the BLI-04 completion report
// @Tags Forms
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/forms/bli-04/verify [post]
func (h *ApplicationHandler) VerifyBLI04(c *gin.Context) {
	claims := claimsFromContext(c)
	fr, err := h.service.VerifyBLI04(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fr, nil)
}

// Unlocks godoc
// @Summary Report which document slots are unlocked
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/unlocks [get]
func (h *ApplicationHandler) Unlocks(c *gin.Context) {
	claims := claimsFromContext(c)
	id := c.Param("id")

	// Ownership check runs through the application load.
	if _, err := h.service.Get(c.Request.Context(), id, claims.UserID, claims.Role); err != nil {
		response.Error(c, err)
		return
	}

	unlocked, err := h.unlocks.ResolveUnlocks(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.UnlockState{ApplicationID: id, Unlocked: unlocked}, nil)
}
