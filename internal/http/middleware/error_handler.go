package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/nova-auth/internal/logger"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
)

const internalErrorMessage = "внутренняя ошибка сервера"

// ErrorHandler обрабатывает ошибки централизованно.
// Хэндлеры и middleware кладут ошибку в c.Error, ответ пишется здесь.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем, не был ли уже отправлен ответ
		if c.Writer.Written() {
			return
		}

		if len(c.Errors) > 0 {
			writeError(c, c.Errors.Last().Err)
		}
	}
}

// AbortWithError прерывает цепочку и сразу отвечает ошибкой.
// Бизнес-ошибки отдаются с их кодом и статусом, остальные маскируются как 500.
func AbortWithError(c *gin.Context, err error) {
	writeError(c, err)
	c.Abort()
}

func writeError(c *gin.Context, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		logger.Log.WithFields(logrus.Fields{
			"error":  err.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("Request error")

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": internalErrorMessage,
			"code":  string(apperror.ErrCodeInternal),
		})
		return
	}

	if appErr.Code == apperror.ErrCodeInternal {
		logger.Log.WithFields(logrus.Fields{
			"error":  appErr.Error(),
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
		}).Error("Request error")
	}

	c.JSON(appErr.HTTPStatus, gin.H{
		"error": appErr.Message,
		"code":  string(appErr.Code),
	})
}
