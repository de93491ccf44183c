package dto

import (
	"time"

	"github.com/ignatzorin/nova-auth/internal/service"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// MessageResponse represents a response carrying only a message
type MessageResponse struct {
	Message string `json:"message"`
}

// SignupStartResponse возвращается после отправки кода регистрации.
type SignupStartResponse struct {
	Message string `json:"message"`
	FlowID  string `json:"flow_id"`
}

// ResetSessionResponse возвращается после подтверждения кода сброса пароля.
type ResetSessionResponse struct {
	Message      string `json:"message"`
	SessionToken string `json:"session_token"`
}

// TokenResponse содержит пару токенов. ExpiresIn в секундах.
type TokenResponse struct {
	Message      string `json:"message,omitempty"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// NewTokenResponse собирает ответ из пары токенов.
func NewTokenResponse(message string, pair *service.TokenPair) TokenResponse {
	return TokenResponse{
		Message:      message,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(pair.ExpiresIn / time.Second),
	}
}
