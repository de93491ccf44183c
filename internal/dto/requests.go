package dto

// Identifier принимает email как в поле "email", так и в поле "identifier".
type Identifier struct {
	Email      string `json:"email"`
	Identifier string `json:"identifier"`
}

// Value возвращает переданный идентификатор. "email" имеет приоритет.
func (i Identifier) Value() string {
	if i.Email != "" {
		return i.Email
	}
	return i.Identifier
}

// SendOTPRequest описывает тело POST /auth/otp/send и /auth/password/request-otp.
type SendOTPRequest struct {
	Identifier
}

// VerifyOTPRequest описывает тело POST /auth/otp/verify и /auth/password/verify-otp.
type VerifyOTPRequest struct {
	Identifier
	OTP string `json:"otp" binding:"required"`
}

// SetPasswordRequest описывает тело POST /auth/otp/set-password.
type SetPasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// ResetPasswordRequest описывает тело POST /auth/password/reset.
type ResetPasswordRequest struct {
	Identifier
	NewPassword  string `json:"new_password" binding:"required"`
	SessionToken string `json:"session_token" binding:"required"`
}

// ChangePasswordRequest описывает тело POST /auth/password/change.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// LoginRequest описывает тело POST /auth/login.
type LoginRequest struct {
	Identifier
	Password string `json:"password" binding:"required"`
}

// RefreshRequest описывает тело POST /auth/token/refresh и /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}
