package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avess/gallery-bed/api/common"
	"github.com/avess/gallery-bed/internal/auth"
)

const contextIdentityKey = "identity"

// JWTAuth verifies the Bearer token and stores the caller's identity in the
// request context.
func JWTAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			common.RespondError(c, http.StatusUnauthorized, "No Authorization request header")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			common.RespondError(c, http.StatusUnauthorized, "Authorization field format error")
			c.Abort()
			return
		}

		identity, err := jwtService.ParseToken(parts[1])
		if err != nil {
			common.RespondError(c, http.StatusUnauthorized, err.Error())
			c.Abort()
			return
		}

		c.Set(contextIdentityKey, identity)
		c.Next()
	}
}

// IdentityFrom extracts the authenticated identity placed by JWTAuth.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(contextIdentityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// RequireRole rejects requests whose identity does not carry the role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || id.Role != role {
			common.RespondError(c, http.StatusForbidden, "Access denied.")
			c.Abort()
			return
		}
		c.Next()
	}
}
