package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/nova-auth/internal/dto"
	"github.com/ignatzorin/nova-auth/internal/http/handlers/common"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/service"
)

// AuthHandler предоставляет HTTP слой для входа, выхода и обмена токенов.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler создаёт хэндлер.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// Login обрабатывает POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	pair, err := h.auth.Login(c.Request.Context(), req.Value(), req.Password)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.NewTokenResponse("Вход выполнен", pair))
}

// Logout обрабатывает POST /auth/logout. Отвечает 200 даже без refresh токена в теле.
func (h *AuthHandler) Logout(c *gin.Context) {
	identifier, err := common.CurrentIdentifier(c)
	if err != nil {
		common.RespondError(c, apperror.ErrUnauthorized)
		return
	}

	var req dto.RefreshRequest
	// Тело необязательно
	_ = c.ShouldBindJSON(&req)

	h.auth.Logout(c.Request.Context(), identifier, req.RefreshToken)
	common.RespondJSON(c, http.StatusOK, dto.MessageResponse{Message: "Выход выполнен"})
}

// Refresh обрабатывает POST /auth/token/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}
	if req.RefreshToken == "" {
		common.RespondError(c, apperror.New(apperror.ErrCodeValidation, "refresh_token обязателен"))
		return
	}

	pair, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.NewTokenResponse("", pair))
}

// Token обрабатывает GET /auth/token: новая пара для текущего пользователя.
func (h *AuthHandler) Token(c *gin.Context) {
	identifier, err := common.CurrentIdentifier(c)
	if err != nil {
		common.RespondError(c, apperror.ErrUnauthorized)
		return
	}

	pair, err := h.auth.IssueForSubject(c.Request.Context(), identifier)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.NewTokenResponse("", pair))
}
