package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/exstem-authoring/internal/model"
	"github.com/stemsi/exstem-authoring/internal/response"
)

// RequirePermission checks that the admin JWT carries every listed permission.
func RequirePermission(perms ...model.Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, p := range perms {
			if !slices.Contains(claims.Permissions, string(p)) {
				response.AbortFail(c, http.StatusForbidden, response.ErrPermissionDenied)
				return
			}
		}
		c.Next()
	}
}
