package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
)

// Cookie и заголовок, в которых клиент возвращает flow_id регистрации.
const (
	SignupFlowCookie = "nova_signup_flow"
	SignupFlowHeader = "X-Signup-Flow"
)

// SignupFlow достаёт flow_id регистрации из cookie или заголовка.
// Без валидного UUID запрос отклоняется с NO_ACTIVE_SESSION.
func SignupFlow() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(SignupFlowCookie)
		if err != nil || raw == "" {
			raw = c.GetHeader(SignupFlowHeader)
		}
		if raw == "" {
			AbortWithError(c, apperror.ErrNoActiveSession)
			return
		}

		flowID, err := uuid.Parse(raw)
		if err != nil {
			AbortWithError(c, apperror.ErrNoActiveSession)
			return
		}

		c.Set(ContextFlowIDKey, flowID)
		c.Next()
	}
}
