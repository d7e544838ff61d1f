package handlers

import (
	"net/http"

	"heartchat-service/internal/adapters/storage"

	"github.com/gin-gonic/gin"
)

type UploadHandler struct {
	store *storage.MinIOClient
}

func NewUploadHandler(store *storage.MinIOClient) *UploadHandler {
	return &UploadHandler{store: store}
}

// Upload stores an attachment and returns the URL to reference from a
// message.
func (h *UploadHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}

	url, err := h.store.UploadAttachment(c.Request.Context(), file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"url": url})
}
