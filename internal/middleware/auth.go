package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"restaurant-chat/internal/apperr"
	"restaurant-chat/internal/auth"
	"restaurant-chat/internal/models"
)

// IdentityKey is the gin context key holding the authenticated models.Identity.
const IdentityKey = "identity"

// AuthMiddleware validates the bearer token with the configured verifier.
func AuthMiddleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := auth.TokenFromHeader(c.GetHeader("Authorization"))
		if err != nil {
			msg := "invalid authorization header"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "missing authorization"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg, "kind": apperr.KindAuthentication})
			return
		}

		identity, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "kind": apperr.KindAuthentication})
			return
		}

		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// RequireRoles lets only the listed roles through.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		identity, ok := IdentityFromContext(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not authenticated", "kind": apperr.KindAuthentication})
			return
		}
		if _, ok := allowed[identity.Role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied", "kind": apperr.KindAuthorization})
			return
		}
		c.Next()
	}
}

func IdentityFromContext(c *gin.Context) (models.Identity, bool) {
	val, ok := c.Get(IdentityKey)
	if !ok {
		return models.Identity{}, false
	}
	identity, ok := val.(models.Identity)
	return identity, ok
}
