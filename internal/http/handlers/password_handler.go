package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/nova-auth/internal/dto"
	"github.com/ignatzorin/nova-auth/internal/http/handlers/common"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/service"
)

// PasswordHandler обслуживает сброс и смену пароля.
type PasswordHandler struct {
	auth *service.AuthService
}

// NewPasswordHandler создаёт хэндлер.
func NewPasswordHandler(auth *service.AuthService) *PasswordHandler {
	return &PasswordHandler{auth: auth}
}

// RequestOTP обрабатывает POST /auth/password/request-otp.
func (h *PasswordHandler) RequestOTP(c *gin.Context) {
	var req dto.SendOTPRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	if _, err := h.auth.StartReset(c.Request.Context(), req.Value()); err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.MessageResponse{Message: "OTP отправлен на email"})
}

// VerifyOTP обрабатывает POST /auth/password/verify-otp.
func (h *PasswordHandler) VerifyOTP(c *gin.Context) {
	var req dto.VerifyOTPRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	token, err := h.auth.VerifyReset(c.Request.Context(), req.Value(), req.OTP)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.ResetSessionResponse{
		Message:      "OTP подтверждён",
		SessionToken: token.String(),
	})
}

// Reset обрабатывает POST /auth/password/reset.
func (h *PasswordHandler) Reset(c *gin.Context) {
	var req dto.ResetPasswordRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	token, err := uuid.Parse(req.SessionToken)
	if err != nil {
		common.RespondError(c, apperror.ErrTokenMismatch)
		return
	}

	if err := h.auth.ResetPassword(c.Request.Context(), req.Value(), req.NewPassword, token); err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.MessageResponse{Message: "Пароль успешно сброшен"})
}

// Change обрабатывает POST /auth/password/change. Требует Bearer токен.
func (h *PasswordHandler) Change(c *gin.Context) {
	identifier, err := common.CurrentIdentifier(c)
	if err != nil {
		common.RespondError(c, apperror.ErrUnauthorized)
		return
	}

	var req dto.ChangePasswordRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), identifier, req.OldPassword, req.NewPassword); err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.MessageResponse{Message: "Пароль обновлён"})
}
