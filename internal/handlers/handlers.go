// Package handlers translates HTTP requests into service calls.
package handlers

import (
	"github.com/gin-gonic/gin"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/middleware"
	"medvision-server/internal/models"
	"medvision-server/internal/utils"
)

// requirePrincipal returns the authenticated caller or writes a 401.
func requirePrincipal(c *gin.Context) (models.Principal, bool) {
	principal, ok := middleware.GetPrincipal(c)
	if !ok {
		utils.HandleError(c, apperrors.New(apperrors.KindUnauthorized, "authentication required"))
	}
	return principal, ok
}
