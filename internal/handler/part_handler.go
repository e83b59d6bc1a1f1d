package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-authoring/internal/middleware"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/response"
	"github.com/stemsi/exstem-authoring/internal/service"
	"github.com/stemsi/exstem-authoring/internal/validator"
)

// PartHandler handles exam part endpoints.
type PartHandler struct {
	partService *service.PartService
}

// NewPartHandler creates a new PartHandler.
func NewPartHandler(partService *service.PartService) *PartHandler {
	return &PartHandler{partService: partService}
}

// CreatePart godoc
// POST /api/v1/admin/exams/:id/parts
// Inserts a part at part_number, or appends it when part_number is 0.
func (h *PartHandler) CreatePart(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	examID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.PartRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	part := partFromRequest(req)
	part.ExamID = examID
	if err := h.partService.Create(c.Request.Context(), claims.UserID, part); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"part": part})
}

// UpdatePart godoc
// PUT /api/v1/admin/parts/:id
// Replaces a part's fields and moves it when part_number changes.
func (h *PartHandler) UpdatePart(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req model.PartRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	part := partFromRequest(req)
	part.ID = id
	if err := h.partService.Update(c.Request.Context(), claims.UserID, part); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"part": part})
}

// DeletePart godoc
// DELETE /api/v1/admin/parts/:id
// Deletes a part with its questions and renumbers the remaining parts.
func (h *PartHandler) DeletePart(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.partService.Delete(c.Request.Context(), claims.UserID, id); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "part deleted"})
}

func partFromRequest(req model.PartRequest) *model.Part {
	return &model.Part{
		PartNumber:       req.PartNumber,
		Title:            req.Title,
		Description:      req.Description,
		Instructions:     req.Instructions,
		TimeLimitMinutes: req.TimeLimitMinutes,
	}
}
