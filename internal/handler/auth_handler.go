package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stemsi/exstem-authoring/internal/middleware"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/response"
	"github.com/stemsi/exstem-authoring/internal/service"
	"github.com/stemsi/exstem-authoring/internal/validator"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService  *service.AuthService
	adminService *service.AdminService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, adminService *service.AdminService) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		adminService: adminService,
	}
}

// GetAdminProfile godoc
// GET /api/v1/auth/admin/me
// Returns the profile of the currently authenticated admin.
func (h *AuthHandler) GetAdminProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	admin, err := h.adminService.GetByID(c.Request.Context(), claims.UserID)
	if err != nil {
		failWith(c, err)
		return
	}

	permissions, err := h.adminService.GetPermissions(c.Request.Context(), admin.RoleID)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"admin":       admin,
		"permissions": permissions,
	})
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Validates email + password, returns JWT with permissions. Repeated
// failures lock the email out for a while.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.AdminLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	ctx := c.Request.Context()

	if err := h.authService.CheckLoginAllowed(ctx, req.Email); err != nil {
		if errors.Is(err, service.ErrTooManyAttempts) {
			response.Fail(c, http.StatusTooManyRequests, response.ErrTooManyAttempts)
			return
		}
		failWith(c, err)
		return
	}

	admin, err := h.adminService.GetByEmail(ctx, req.Email)
	if err == nil {
		err = h.authService.CheckPassword(admin.PasswordHash, req.Password)
	}
	if err != nil {
		if rerr := h.authService.RecordLoginFailure(ctx, req.Email); rerr != nil {
			log.Warn().Err(rerr).Msg("Failed to record login failure")
		}
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
		return
	}

	permissions, err := h.adminService.GetPermissions(ctx, admin.RoleID)
	if err != nil {
		failWith(c, err)
		return
	}

	token, err := h.authService.GenerateAdminToken(admin.ID, admin.RoleID, permissions)
	if err != nil {
		failWith(c, err)
		return
	}

	if err := h.authService.ResetLoginAttempts(ctx, req.Email); err != nil {
		log.Warn().Err(err).Msg("Failed to reset login attempts")
	}

	response.Success(c, http.StatusOK, model.AdminLoginResponse{
		Token:       token,
		Admin:       *admin,
		Permissions: permissions,
	})
}
