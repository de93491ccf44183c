package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ignatzorin/nova-auth/internal/http/handlers/common"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/service"
	"github.com/ignatzorin/nova-auth/internal/ws"
)

// WSHandler отвечает за установку WebSocket соединений для событий безопасности.
type WSHandler struct {
	hub          *ws.Hub
	tokenManager *service.TokenManager
	upgrader     websocket.Upgrader
}

// NewWSHandler создаёт новый хэндлер. Пустой allowedOrigins разрешает любой origin.
func NewWSHandler(hub *ws.Hub, tokens *service.TokenManager, allowedOrigins []string) *WSHandler {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = struct{}{}
	}

	return &WSHandler{
		hub:          hub,
		tokenManager: tokens,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowed) == 0 || origin == "" {
					return true
				}
				_, ok := allowed[origin]
				return ok
			},
		},
	}
}

// Handle обслуживает GET /api/ws?token=...
func (h *WSHandler) Handle(c *gin.Context) {
	rawToken := c.Query("token")
	if rawToken == "" {
		common.RespondError(c, apperror.ErrUnauthorized)
		return
	}

	claims, err := h.tokenManager.ValidateAccess(c.Request.Context(), rawToken)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	// Upgrade сам отвечает клиенту при ошибке
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := ws.NewClient(conn, h.hub, claims.Subject)
	h.hub.Register(client)

	client.Run(c.Request.Context())
}
