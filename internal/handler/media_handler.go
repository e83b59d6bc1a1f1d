package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-authoring/internal/middleware"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/response"
	"github.com/stemsi/exstem-authoring/internal/service"
)

// MediaHandler handles question media uploads.
type MediaHandler struct {
	mediaService *service.MediaService
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(mediaService *service.MediaService) *MediaHandler {
	return &MediaHandler{mediaService: mediaService}
}

// UploadImage godoc
// POST /api/v1/admin/questions/:id/upload-image
// Stores an image for the question and returns its URL with the updated question.
func (h *MediaHandler) UploadImage(c *gin.Context) {
	h.upload(c, model.MediaImage)
}

// UploadAudio godoc
// POST /api/v1/admin/questions/:id/upload-audio
// Stores an audio file for the question and returns its URL with the updated question.
func (h *MediaHandler) UploadAudio(c *gin.Context) {
	h.upload(c, model.MediaAudio)
}

func (h *MediaHandler) upload(c *gin.Context, kind model.MediaKind) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	// Leave headroom for the multipart framing around the file.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.mediaService.MaxBytes(kind)+1<<20)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Fail(c, http.StatusBadRequest, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	upload, err := h.mediaService.Upload(c.Request.Context(), claims.UserID, id, kind, file, header.Size)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, upload)
}
