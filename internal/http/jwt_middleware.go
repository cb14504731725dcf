package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shop-api/internal/domain"
)

const (
	authIdentityKey = "auth_identity"
	authTokenKey    = "auth_token"
)

// SessionVerifier valida credenciales de sesion.
type SessionVerifier interface {
	VerifySessionCredential(ctx context.Context, token string) (domain.SessionIdentity, error)
}

// AuthGuard exige un bearer token valido y guarda la identidad en el contexto.
func AuthGuard(verifier SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
			return
		}

		token := bearerToken(c)
		identity, err := verifier.VerifySessionCredential(c.Request.Context(), token)
		if err != nil {
			status, body := errorResponse(err)
			c.AbortWithStatusJSON(status, body)
			return
		}

		c.Set(authIdentityKey, identity)
		c.Set(authTokenKey, token)
		c.Next()
	}
}

// AdminGuard se monta despues de AuthGuard y rechaza identidades sin rol admin.
func AdminGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := GetSessionIdentity(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "reason": domain.ReasonMissing})
			return
		}
		if !identity.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}
		c.Next()
	}
}

// GetSessionIdentity obtiene la identidad verificada desde el contexto.
func GetSessionIdentity(c *gin.Context) (domain.SessionIdentity, bool) {
	val, ok := c.Get(authIdentityKey)
	if !ok {
		return domain.SessionIdentity{}, false
	}
	identity, ok := val.(domain.SessionIdentity)
	return identity, ok
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) < len("Bearer ") || !strings.EqualFold(header[:len("Bearer ")], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[len("Bearer "):])
}
