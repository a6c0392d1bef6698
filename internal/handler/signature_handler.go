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

type signatureService interface {
	Issue(ctx context.Context, applicationID string, formType models.FormType, actorID string, supervisorEmail, supervisorName string) (*models.SupervisorToken, string, error)
	Verify(ctx context.Context, value string) (*models.SupervisorToken, error)
	Consume(ctx context.Context, value string, input service.ConsumeInput) (*models.FormResponse, error)
}

// SignatureHandler exposes signing-link issuance plus the public supervisor
// endpoints. The public routes carry no JWT; the token is the credential.
type SignatureHandler struct {
	service  signatureService
	validate *validator.Validate
}

// NewSignatureHandler builds a new handler.
func NewSignatureHandler(svc signatureService, validate *validator.Validate) *SignatureHandler {
	return &SignatureHandler{service: svc, validate: validate}
}

// Issue godoc
// @Summary Issue a supervisor signing link
// @Tags Signatures
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.IssueLinkRequest true "Link payload"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/signing-links [post]
func (h *SignatureHandler) Issue(c *gin.Context) {
	claims := claimsFromContext(c)
	var req dto.IssueLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid link payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}

	token, link, err := h.service.Issue(c.Request.Context(), c.Param("id"), models.FormType(req.FormType), claims.UserID, req.SupervisorEmail, req.SupervisorName)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, dto.IssueLinkResponse{Link: link, ExpiresAt: token.ExpiresAt})
}

// Verify godoc
// @Summary Check a signing link (public)
// @Tags Signatures
// @Produce json
// @Param token path string true "Signing token"
// @Success 200 {object} response.Envelope
// @Router /sign/{token} [get]
func (h *SignatureHandler) Verify(c *gin.Context) {
	token, err := h.service.Verify(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.VerifyLinkResponse{
		ApplicationID:  token.ApplicationID,
		FormType:       string(token.FormType),
		SupervisorName: token.SupervisorName,
		ExpiresAt:      token.ExpiresAt,
	}, nil)
}

// Sign godoc
// @Summary Consume a signing link with the supervisor's signature (public)
// @Tags Signatures
// @Accept json
// @Produce json
// @Param token path string true "Signing token"
// @Param payload body dto.SignRequest true "Signature payload"
// @Success 200 {object} response.Envelope
// @Router /sign/{token} [post]
func (h *SignatureHandler) Sign(c *gin.Context) {
	var req dto.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid signature payload"))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "validation failed"))
		return
	}

	fr, err := h.service.Consume(c.Request.Context(), c.Param("token"), service.ConsumeInput{
		Kind:    models.SignatureKind(req.Kind),
		Payload: req.Signature,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, fr, nil)
}
