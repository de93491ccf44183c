package common

import (
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/nova-auth/internal/http/middleware"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
)

var (
	// ErrIdentifierNotFound is returned when the authenticated identifier is missing in context
	ErrIdentifierNotFound = errors.New("идентификатор пользователя не найден в контексте")
)

// CurrentIdentifier extracts the authenticated email from Gin context
func CurrentIdentifier(c *gin.Context) (string, error) {
	raw, exists := c.Get(middleware.ContextIdentifierKey)
	if !exists {
		return "", ErrIdentifierNotFound
	}

	identifier, ok := raw.(string)
	if !ok || identifier == "" {
		return "", ErrIdentifierNotFound
	}

	return identifier, nil
}

// CurrentFlowID extracts the signup flow id put by middleware.SignupFlow
func CurrentFlowID(c *gin.Context) (uuid.UUID, error) {
	raw, exists := c.Get(middleware.ContextFlowIDKey)
	if !exists {
		return uuid.Nil, apperror.ErrNoActiveSession
	}

	flowID, ok := raw.(uuid.UUID)
	if !ok {
		return uuid.Nil, apperror.ErrNoActiveSession
	}

	return flowID, nil
}

// BindAndValidate binds JSON request and returns a VALIDATION_ERROR on failure
func BindAndValidate(c *gin.Context, req interface{}) error {
	if err := c.ShouldBindJSON(req); err != nil {
		return apperror.Wrap(err, apperror.ErrCodeValidation, fmt.Sprintf("ошибка валидации запроса: %v", err))
	}
	return nil
}

// RespondError sends {error, code} for any error: AppError keeps its status, the rest is a masked 500
func RespondError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// RespondJSON sends a JSON response with the given status code and data
func RespondJSON(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, data)
}
