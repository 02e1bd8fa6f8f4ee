package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"medvision-server/internal/apperrors"
	"medvision-server/internal/models"
	"medvision-server/internal/utils"
)

// SessionCookie holds the signed access token for browser clients.
const SessionCookie = "token"

const principalKey = "principal"

// AuthMiddleware creates a middleware for JWT authentication. The access
// token is read from the session cookie, then from a Bearer header.
func AuthMiddleware(tokens *utils.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			utils.Abort(c, apperrors.New(apperrors.KindUnauthorized, "authentication required"))
			return
		}

		claims, err := tokens.ValidateAccessToken(tokenString)
		if err != nil {
			utils.RequestLogger(c).WithError(err).Debug("access token rejected")
			utils.Abort(c, apperrors.New(apperrors.KindUnauthorized, "invalid or expired token"))
			return
		}

		principal := claims.Principal()
		c.Set(principalKey, principal)
		c.Set(utils.LoggerKey, utils.RequestLogger(c).WithField("principal_id", principal.ID))
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
		return cookie
	}
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// RequireRoles creates a middleware for role-based authorization.
// It should be used *after* AuthMiddleware.
func RequireRoles(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			utils.Abort(c, apperrors.New(apperrors.KindUnauthorized, "authentication required"))
			return
		}
		for _, role := range allowedRoles {
			if principal.Role == role {
				c.Next()
				return
			}
		}
		utils.Abort(c, apperrors.Forbidden("you do not have permission to access this resource"))
	}
}

// GetPrincipal returns the authenticated caller set by AuthMiddleware.
func GetPrincipal(c *gin.Context) (models.Principal, bool) {
	v, exists := c.Get(principalKey)
	if !exists {
		return models.Principal{}, false
	}
	principal, ok := v.(models.Principal)
	return principal, ok
}
