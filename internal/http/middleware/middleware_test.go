package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"

	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/service"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler())
	return r
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestErrorHandler_AppError(t *testing.T) {
	r := newEngine()
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("otp service: %w", apperror.ErrOTPExpired))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, "EXPIRED", body["code"])
	assert.Equal(t, apperror.ErrOTPExpired.Message, body["error"])
}

func TestErrorHandler_MasksInfrastructureErrors(t *testing.T) {
	r := newEngine()
	r.GET("/x", func(c *gin.Context) {
		_ = c.Error(errors.New("sql: connection refused on 10.0.0.5"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
	assert.Equal(t, "внутренняя ошибка сервера", body["error"])
	assert.NotContains(t, w.Body.String(), "10.0.0.5")
}

func TestErrorHandler_SkipsWrittenResponse(t *testing.T) {
	r := newEngine()
	r.GET("/x", func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
		_ = c.Error(errors.New("late"))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	tokens := service.NewTokenManager("access", "refresh", time.Minute, time.Hour, nil)
	pair, err := tokens.Issue("user@nova.io")
	require.NoError(t, err)

	r := newEngine()
	r.GET("/me", AuthMiddleware(tokens), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextIdentifierKey))
	})

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"без заголовка", "", http.StatusUnauthorized},
		{"не bearer", "Basic abc", http.StatusUnauthorized},
		{"мусор", "Bearer abc.def.ghi", http.StatusUnauthorized},
		{"refresh вместо access", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"валидный", "Bearer " + pair.AccessToken, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, "user@nova.io", w.Body.String())
			} else {
				assert.Equal(t, "UNAUTHORIZED", errorBody(t, w)["code"])
			}
		})
	}
}

func TestSignupFlow(t *testing.T) {
	flowID := uuid.New()

	r := newEngine()
	r.POST("/set", SignupFlow(), func(c *gin.Context) {
		v, _ := c.Get(ContextFlowIDKey)
		c.String(http.StatusOK, v.(uuid.UUID).String())
	})

	t.Run("cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/set", nil)
		req.AddCookie(&http.Cookie{Name: SignupFlowCookie, Value: flowID.String()})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, flowID.String(), w.Body.String())
	})

	t.Run("заголовок", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/set", nil)
		req.Header.Set(SignupFlowHeader, flowID.String())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("нет flow", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/set", nil))

		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, "NO_ACTIVE_SESSION", errorBody(t, w)["code"])
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newEngine()
	r.GET("/x", RateLimitMiddleware(memory.NewStore(), 2, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", errorBody(t, w)["code"])
}

func TestCORSMiddleware(t *testing.T) {
	r := newEngine()
	r.Use(CORSMiddleware([]string{"https://nova.io"}))
	r.POST("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://nova.io")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://nova.io", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), SignupFlowHeader)

	req = httptest.NewRequest(http.MethodPost, "/x", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
