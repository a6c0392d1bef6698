package handler

import (
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/sma-li-api/pkg/errors"
	"github.com/noah-isme/sma-li-api/pkg/response"
	"github.com/noah-isme/sma-li-api/pkg/storage"
)

// FileHandler serves stored document files behind HMAC-signed URLs. The
// signed token is the only credential; no JWT is required.
type FileHandler struct {
	signer *storage.URLSigner
	blob   storage.Blob
}

// NewFileHandler builds a new handler.
func NewFileHandler(signer *storage.URLSigner, blob storage.Blob) *FileHandler {
	return &FileHandler{signer: signer, blob: blob}
}

// Serve godoc
// @Summary Download a file via its signed token (public)
// @Tags Files
// @Produce application/octet-stream
// @Param token path string true "Signed file token"
// @Success 200 {file} binary
// @Router /files/{token} [get]
func (h *FileHandler) Serve(c *gin.Context) {
	relPath, _, err := h.signer.Parse(c.Param("token"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired file link"))
		return
	}

	data, err := h.blob.Download(c.Request.Context(), relPath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+filepath.Base(relPath)+`"`)
	c.Data(http.StatusOK, "application/octet-stream", data)
}
