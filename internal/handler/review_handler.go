package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/sma-li-api/internal/dto"
	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/response"
)

type reviewService interface {
	Review(ctx context.Context, documentID, reviewerID string, decision models.ReviewDecision, comments string) (*models.Review, error)
	ApproveBLI03(ctx context.Context, applicationID, reviewerID string, decision models.ReviewDecision, comments string) (*models.Review, error)
	ListByApplication(ctx context.Context, applicationID, actorID string, role models.UserRole) ([]models.Review, error)
}

// ReviewHandler exposes coordinator review decisions.
type ReviewHandler struct {
	service  reviewService
	validate *validator.Validate
}

// NewReviewHandler builds a new handler.
func NewReviewHandler(svc reviewService, validate *validator.Validate) *ReviewHandler {
	return &ReviewHandler{service: svc, validate: validate}
}

// ReviewDocument godoc
// @Summary Record a decision on a document
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.ReviewRequest true "Decision payload"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/review [post]
func (h *ReviewHandler) ReviewDocument(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}

	review, err := h.service.Review(c.Request.Context(), c.Param("id"), claims.UserID, models.ReviewDecision(req.Decision), req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// ReviewBLI03 godoc
// @Summary Record a decision on the BLI-03 online form
// @Tags Reviews
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.ReviewRequest true "Decision payload"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/forms/bli-03/review [post]
func (h *ReviewHandler) ReviewBLI03(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}

	review, err := h.service.ApproveBLI03(c.Request.Context(), c.Param("id"), claims.UserID, models.ReviewDecision(req.Decision), req.Comments)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, review)
}

// List godoc
// @Summary List review history for an application
// @Tags Reviews
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/reviews [get]
func (h *ReviewHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	reviews, err := h.service.ListByApplication(c.Request.Context(), c.Param("id"), claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reviews, nil)
}
