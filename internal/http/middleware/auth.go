package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/service"
)

// Context ключи для gin.Context.
const (
	ContextIdentifierKey = "identifier"
	ContextFlowIDKey     = "signupFlowID"
)

// AuthMiddleware проверяет JWT access токен и кладёт email владельца в контекст.
func AuthMiddleware(tokens *service.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
			AbortWithError(c, apperror.ErrUnauthorized)
			return
		}

		raw := strings.TrimPrefix(auth, "Bearer ")
		claims, err := tokens.ValidateAccess(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if claims.Subject == "" {
			AbortWithError(c, apperror.ErrTokenMalformed)
			return
		}

		c.Set(ContextIdentifierKey, claims.Subject)
		c.Next()
	}
}
