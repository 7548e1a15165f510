package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/tcm-knowledge-backend/internal/http/response"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/authz"
	"github.com/yungbote/tcm-knowledge-backend/internal/platform/logger"
	"github.com/yungbote/tcm-knowledge-backend/internal/services"
)

type AuthMiddleware struct {
	log      *logger.Logger
	verifier services.TokenVerifier
	roles    authz.RoleChecker
}

func NewAuthMiddleware(log *logger.Logger, verifier services.TokenVerifier, roles authz.RoleChecker) *AuthMiddleware {
	return &AuthMiddleware{log: log.With("middleware", "AuthMiddleware"), verifier: verifier, roles: roles}
}

// RequireAuth attaches the caller's RequestData or aborts with 401.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, err := am.verifier.SetContextFromToken(c.Request.Context(), bearerToken(c))
		if err != nil {
			am.log.Debug("Rejected bearer token", "path", c.FullPath(), "error", err)
			response.AbortError(c, http.StatusUnauthorized, "unauthorized", err)
			return
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAdmin must run after RequireAuth.
func (am *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := services.RequireAdmin(c.Request.Context(), am.roles); err != nil {
			response.RespondErr(c, err)
			c.Abort()
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// FlatErrors switches the route group to {"error": message} bodies.
func FlatErrors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(response.FlatErrorsKey, true)
		c.Next()
	}
}
