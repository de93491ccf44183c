package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/nova-auth/internal/dto"
	"github.com/ignatzorin/nova-auth/internal/http/handlers/common"
	"github.com/ignatzorin/nova-auth/internal/http/middleware"
	"github.com/ignatzorin/nova-auth/internal/service"
)

const signupFlowPath = "/api/auth/otp"

// OTPHandler обслуживает регистрацию по email: отправка кода, проверка, установка пароля.
type OTPHandler struct {
	auth         *service.AuthService
	flowMaxAge   time.Duration
	secureCookie bool
}

// NewOTPHandler создаёт хэндлер. flowMaxAge задаёт срок жизни cookie flow_id.
func NewOTPHandler(auth *service.AuthService, flowMaxAge time.Duration, secureCookie bool) *OTPHandler {
	return &OTPHandler{auth: auth, flowMaxAge: flowMaxAge, secureCookie: secureCookie}
}

// Send обрабатывает POST /auth/otp/send.
func (h *OTPHandler) Send(c *gin.Context) {
	var req dto.SendOTPRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	start, err := h.auth.StartSignup(c.Request.Context(), req.Value())
	if err != nil {
		common.RespondError(c, err)
		return
	}

	h.setFlowCookie(c, start.FlowID.String(), int(h.flowMaxAge/time.Second))
	common.RespondJSON(c, http.StatusOK, dto.SignupStartResponse{
		Message: "OTP отправлен на email",
		FlowID:  start.FlowID.String(),
	})
}

// Verify обрабатывает POST /auth/otp/verify.
func (h *OTPHandler) Verify(c *gin.Context) {
	var req dto.VerifyOTPRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	if err := h.auth.VerifySignup(c.Request.Context(), req.Value(), req.OTP); err != nil {
		common.RespondError(c, err)
		return
	}

	common.RespondJSON(c, http.StatusOK, dto.MessageResponse{
		Message: "OTP подтверждён, теперь можно задать пароль",
	})
}

// SetPassword обрабатывает POST /auth/otp/set-password.
// flow_id приходит из cookie или заголовка X-Signup-Flow (middleware.SignupFlow).
func (h *OTPHandler) SetPassword(c *gin.Context) {
	flowID, err := common.CurrentFlowID(c)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	var req dto.SetPasswordRequest
	if err := common.BindAndValidate(c, &req); err != nil {
		common.RespondError(c, err)
		return
	}

	pair, err := h.auth.CompleteSignup(c.Request.Context(), flowID, req.Password)
	if err != nil {
		common.RespondError(c, err)
		return
	}

	h.setFlowCookie(c, "", -1)
	common.RespondJSON(c, http.StatusOK, dto.NewTokenResponse("Регистрация завершена", pair))
}

func (h *OTPHandler) setFlowCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SignupFlowCookie, value, maxAge, signupFlowPath, "", h.secureCookie, true)
}
