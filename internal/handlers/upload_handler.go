package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"milestone-escrow-backend/internal/storage"
)

type UploadHandler struct {
	blobs *storage.BlobStore
}

func NewUploadHandler(blobs *storage.BlobStore) *UploadHandler {
	return &UploadHandler{blobs: blobs}
}

// Upload accepts one multipart file and returns its opaque reference.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer src.Close()

	ref, err := h.blobs.Upload(c.Request.Context(), file.Filename, src, file.Size, file.Header.Get("Content-Type"))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"file": ref})
}
