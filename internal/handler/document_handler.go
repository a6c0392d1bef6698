package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-li-api/internal/dto"
	"github.com/noah-isme/sma-li-api/internal/models"
	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/response"
)

type documentService interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.Document, error)
	Upload(ctx context.Context, applicationID string, docType models.DocumentType, filename, contentType string, data []byte) (*models.Document, error)
	DownloadURL(ctx context.Context, doc *models.Document) (string, error)
}

type pdfRenderer interface {
	Render(ctx context.Context, applicationID string, docType models.DocumentType) ([]byte, error)
}

// DocumentHandler exposes document slots: listing, hardcopy upload, and
// download of stored or generated files.
type DocumentHandler struct {
	service documentService
	apps    applicationService
	pdfs    pdfRenderer
}

// NewDocumentHandler builds a new handler.
func NewDocumentHandler(svc documentService, apps applicationService, pdfs pdfRenderer) *DocumentHandler {
	return &DocumentHandler{service: svc, apps: apps, pdfs: pdfs}
}

// List godoc
// @Summary List document slots for an application
// @Tags Documents
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /applications/{id}/documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	id := c.Param("id")

	if _, err := h.apps.Get(c.Request.Context(), id, claims.UserID, claims.Role); err != nil {
		response.Error(c, err)
		return
	}

	docs, err := h.service.ListByApplication(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.DocumentItem, 0, len(docs))
	for i := range docs {
		item := dto.DocumentItem{Document: docs[i]}
		if !models.IsMarkerRef(docs[i].FileRef) {
			if url, err := h.service.DownloadURL(c.Request.Context(), &docs[i]); err == nil {
				item.DownloadURL = url
			}
		}
		items = append(items, item)
	}
	response.JSON(c, http.StatusOK, items, nil)
}

// Upload godoc
// @Summary Upload a hardcopy document (BLI-02, BLI-03-HARDCOPY)
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Application ID"
// @Param type path string true "Document type"
// @Param file formData file true "PDF file"
// @Success 201 {object} response.Envelope
// @Router /applications/{id}/documents/{type} [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	id := c.Param("id")
	docType := models.DocumentType(strings.ToUpper(c.Param("type")))

	app, err := h.apps.Get(c.Request.Context(), id, claims.UserID, claims.Role)
	if err != nil {
		response.Error(c, err)
		return
	}
	if app.StudentID != claims.UserID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "unreadable upload"))
		return
	}

	doc, err := h.service.Upload(c.Request.Context(), id, docType, fileHeader.Filename, fileHeader.Header.Get("Content-Type"), data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Download godoc
// @Summary Download a document's file
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	claims := claimsFromContext(c)

	doc, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if _, err := h.apps.Get(c.Request.Context(), doc.ApplicationID, claims.UserID, claims.Role); err != nil {
		response.Error(c, err)
		return
	}

	// Generated slots are rendered on demand; there is no stored file.
	if strings.HasPrefix(doc.FileRef, "generate://") {
		data, err := h.pdfs.Render(c.Request.Context(), doc.ApplicationID, doc.Type)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+string(doc.Type)+`.pdf"`)
		c.Data(http.StatusOK, "application/pdf", data)
		return
	}

	url, err := h.service.DownloadURL(c.Request.Context(), doc)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"url": url}, nil)
}
