package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrCodeValidation:      http.StatusBadRequest,
		ErrCodeNotFound:        http.StatusNotFound,
		ErrCodeExpired:         http.StatusBadRequest,
		ErrCodeMismatch:        http.StatusBadRequest,
		ErrCodeTokenMismatch:   http.StatusBadRequest,
		ErrCodeNotVerified:     http.StatusForbidden,
		ErrCodeNoActiveSession: http.StatusForbidden,
		ErrCodeWrongPassword:   http.StatusBadRequest,
		ErrCodeUnauthorized:    http.StatusUnauthorized,
		ErrCodeRateLimited:     http.StatusTooManyRequests,
		ErrCodeInternal:        http.StatusInternalServerError,
	}

	for code, status := range cases {
		assert.Equal(t, status, New(code, "x").HTTPStatus, "code %s", code)
	}
}

func TestSentinelsSurviveWrapping(t *testing.T) {
	err := fmt.Errorf("otp service: verify: %w", ErrOTPExpired)

	assert.True(t, errors.Is(err, ErrOTPExpired))
	assert.False(t, errors.Is(err, ErrOTPMismatch))
	assert.Equal(t, ErrCodeExpired, CodeOf(err))

	appErr, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
}

func TestCodeOf_InfrastructureError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("sql: connection refused")))
	assert.False(t, IsNotFound(errors.New("boom")))
	assert.True(t, IsNotFound(ErrUserNotFound))
}

func TestValidation(t *testing.T) {
	err := Validation(errors.New("email обязателен"))

	assert.True(t, IsValidation(err))
	assert.Equal(t, "email обязателен", err.Message)
}
