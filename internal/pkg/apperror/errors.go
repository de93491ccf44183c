package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeExpired         ErrorCode = "EXPIRED"
	ErrCodeMismatch        ErrorCode = "MISMATCH"
	ErrCodeTokenMismatch   ErrorCode = "TOKEN_MISMATCH"
	ErrCodeNotVerified     ErrorCode = "NOT_VERIFIED"
	ErrCodeNoActiveSession ErrorCode = "NO_ACTIVE_SESSION"
	ErrCodeWrongPassword   ErrorCode = "WRONG_PASSWORD"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimited     ErrorCode = "RATE_LIMITED"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// AppError описывает бизнес-ошибку с машинно-читаемым кодом и HTTP статусом.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// Validation создаёт ошибку валидации из произвольной причины.
func Validation(err error) *AppError {
	return Wrap(err, ErrCodeValidation, err.Error())
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeNotVerified, ErrCodeNoActiveSession:
		return http.StatusForbidden
	case ErrCodeValidation, ErrCodeExpired, ErrCodeMismatch, ErrCodeTokenMismatch, ErrCodeWrongPassword:
		return http.StatusBadRequest
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// As извлекает AppError из цепочки ошибок.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// CodeOf возвращает код ошибки или INTERNAL_ERROR для инфраструктурных сбоев.
func CodeOf(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternal
}

func IsNotFound(err error) bool {
	return CodeOf(err) == ErrCodeNotFound
}

func IsValidation(err error) bool {
	return CodeOf(err) == ErrCodeValidation
}

// Ошибки OTP.
var (
	ErrOTPNotFound = New(ErrCodeNotFound, "OTP не найден, запросите новый код")
	ErrOTPExpired  = New(ErrCodeExpired, "срок действия OTP истёк, запросите новый код")
	ErrOTPMismatch = New(ErrCodeMismatch, "неверный OTP")
)

// Ошибки сессии подтверждения.
var (
	ErrNoActiveSession = New(ErrCodeNoActiveSession, "сессия подтверждения не найдена, начните заново")
	ErrNotVerified     = New(ErrCodeNotVerified, "доступ запрещён, сначала подтвердите OTP")
	ErrTokenMismatch   = New(ErrCodeTokenMismatch, "неверная сессия сброса пароля")
)

// Ошибки учётных данных.
var (
	ErrUserNotFound       = New(ErrCodeNotFound, "пользователь не найден")
	ErrWrongPassword      = New(ErrCodeWrongPassword, "неверный текущий пароль")
	ErrInvalidCredentials = New(ErrCodeUnauthorized, "неверный email или пароль")
)

// Ошибки токенов.
var (
	ErrUnauthorized   = New(ErrCodeUnauthorized, "требуется авторизация")
	ErrTokenExpired   = New(ErrCodeUnauthorized, "срок действия токена истёк")
	ErrTokenMalformed = New(ErrCodeUnauthorized, "токен невалиден")
	ErrTokenRevoked   = New(ErrCodeUnauthorized, "токен отозван")
)

var ErrRateLimited = New(ErrCodeRateLimited, "слишком много запросов, попробуйте позже")
