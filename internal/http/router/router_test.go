package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/nova-auth/internal/config"
	"github.com/ignatzorin/nova-auth/internal/dto"
	"github.com/ignatzorin/nova-auth/internal/http/handlers"
	"github.com/ignatzorin/nova-auth/internal/http/middleware"
	"github.com/ignatzorin/nova-auth/internal/lock"
	"github.com/ignatzorin/nova-auth/internal/mail"
	"github.com/ignatzorin/nova-auth/internal/repository/memrepo"
	"github.com/ignatzorin/nova-auth/internal/service"
)

type codeSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *codeSender) Send(_ context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[msg.To] = strings.TrimPrefix(msg.Body, "Your OTP is: ")
	return nil
}

func (s *codeSender) code(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

type testServer struct {
	engine *gin.Engine
	sender *codeSender
}

func newTestServer(t *testing.T) *testServer {
	return newLimitedTestServer(t, 1000)
}

func newLimitedTestServer(t *testing.T, rateLimit int64) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Env:             "test",
		RateLimitLimit:  rateLimit,
		RateLimitPeriod: time.Minute,
	}

	sender := &codeSender{codes: make(map[string]string)}
	users := memrepo.NewUsers()
	locker := lock.NewKeyedMutex()

	otps := service.NewOTPService(memrepo.NewOTPs(), sender, locker, service.DefaultOTPTTL)
	sessions := service.NewVerificationService(memrepo.NewSessions())
	tokens := service.NewTokenManager("test-access-secret", "test-refresh-secret", 15*time.Minute, 24*time.Hour, memrepo.NewRevocations())
	hasher := service.NewPasswordHasher(bcrypt.MinCost, 4)
	creds := service.NewCredentialService(users, users, hasher, sessions, otps, tokens)
	auth := service.NewAuthService(otps, sessions, creds, tokens, locker, nil, nil)

	engine := SetupRouter(
		cfg,
		handlers.NewOTPHandler(auth, time.Hour, false),
		handlers.NewPasswordHandler(auth),
		handlers.NewAuthHandler(auth),
		nil,
		nil,
		tokens,
		memory.NewStore(),
		nil,
	)

	return &testServer{engine: engine, sender: sender}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func assertError(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	assert.Equal(t, status, w.Code, w.Body.String())
	body := decode[dto.ErrorResponse](t, w)
	assert.Equal(t, code, body.Code)
	assert.NotEmpty(t, body.Error)
}

// signup проходит регистрацию целиком и возвращает выданную пару.
func (s *testServer) signup(t *testing.T, email, password string) dto.TokenResponse {
	t.Helper()

	w := s.do(t, http.MethodPost, "/api/auth/otp/send", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	start := decode[dto.SignupStartResponse](t, w)

	w = s.do(t, http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": email, "otp": s.sender.code(email)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/otp/set-password", map[string]string{"password": password}, func(r *http.Request) {
		r.Header.Set(middleware.SignupFlowHeader, start.FlowID)
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[dto.TokenResponse](t, w)
}

func wrongCode(code string) string {
	if strings.HasPrefix(code, "0") {
		return "1" + code[1:]
	}
	return "0" + code[1:]
}

func TestSignupFlow_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	email := "new.user@nova.io"

	w := s.do(t, http.MethodPost, "/api/auth/otp/send", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	start := decode[dto.SignupStartResponse](t, w)
	assert.NotEmpty(t, start.FlowID)

	var flowCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SignupFlowCookie {
			flowCookie = c
		}
	}
	require.NotNil(t, flowCookie)
	assert.Equal(t, start.FlowID, flowCookie.Value)
	assert.True(t, flowCookie.HttpOnly)

	code := s.sender.code(email)
	require.Len(t, code, 6)

	w = s.do(t, http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": email, "otp": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/otp/set-password", map[string]string{"password": "Secret1"}, func(r *http.Request) {
		r.AddCookie(flowCookie)
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	signup := decode[dto.TokenResponse](t, w)
	assert.NotEmpty(t, signup.AccessToken)
	assert.NotEmpty(t, signup.RefreshToken)
	assert.Equal(t, "Bearer", signup.TokenType)
	assert.Equal(t, int64(15*60), signup.ExpiresIn)

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "Secret1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[dto.TokenResponse](t, w)
	assert.NotEqual(t, signup.AccessToken, login.AccessToken)
	assert.NotEqual(t, signup.RefreshToken, login.RefreshToken)
}

func TestSignupFlow_AcceptsIdentifierField(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/otp/send", map[string]string{"identifier": "Alias@Nova.io"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, s.sender.code("alias@nova.io"))
}

func TestSendOTP_InvalidEmail(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/otp/send", map[string]string{"email": "not-an-email"})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestSetPassword_WithoutFlow(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/otp/set-password", map[string]string{"password": "Secret1"})
	assertError(t, w, http.StatusForbidden, "NO_ACTIVE_SESSION")

	w = s.do(t, http.MethodPost, "/api/auth/otp/set-password", map[string]string{"password": "Secret1"}, func(r *http.Request) {
		r.Header.Set(middleware.SignupFlowHeader, "not-a-uuid")
	})
	assertError(t, w, http.StatusForbidden, "NO_ACTIVE_SESSION")
}

func TestSetPassword_BeforeVerify(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/otp/send", map[string]string{"email": "early@nova.io"})
	require.Equal(t, http.StatusOK, w.Code)
	start := decode[dto.SignupStartResponse](t, w)

	w = s.do(t, http.MethodPost, "/api/auth/otp/set-password", map[string]string{"password": "Secret1"}, func(r *http.Request) {
		r.Header.Set(middleware.SignupFlowHeader, start.FlowID)
	})
	assertError(t, w, http.StatusForbidden, "NOT_VERIFIED")
}

func TestVerifyOTP_Errors(t *testing.T) {
	s := newTestServer(t)
	email := "verify@nova.io"

	w := s.do(t, http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": email, "otp": "123456"})
	assertError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = s.do(t, http.MethodPost, "/api/auth/otp/send", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": email, "otp": wrongCode(s.sender.code(email))})
	assertError(t, w, http.StatusBadRequest, "MISMATCH")

	w = s.do(t, http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": email})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestVerifyOTP_RepeatedBeforeSetPassword(t *testing.T) {
	s := newTestServer(t)
	email := "twice@nova.io"

	w := s.do(t, http.MethodPost, "/api/auth/otp/send", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, w.Code)
	start := decode[dto.SignupStartResponse](t, w)
	code := s.sender.code(email)

	for i := 0; i < 2; i++ {
		w = s.do(t, http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": email, "otp": code})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodPost, "/api/auth/otp/set-password", map[string]string{"password": "Secret1"}, func(r *http.Request) {
		r.Header.Set(middleware.SignupFlowHeader, start.FlowID)
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[dto.TokenResponse](t, w).AccessToken)
}

func TestVerifyOTP_MalformedCodeIsMismatch(t *testing.T) {
	s := newTestServer(t)
	email := "short@nova.io"

	w := s.do(t, http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": email, "otp": "12"})
	assertError(t, w, http.StatusNotFound, "NOT_FOUND")

	w = s.do(t, http.MethodPost, "/api/auth/otp/send", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/otp/verify", map[string]string{"email": email, "otp": "12"})
	assertError(t, w, http.StatusBadRequest, "MISMATCH")
}

func TestResetFlow_VerifyTwiceKeepsToken(t *testing.T) {
	s := newTestServer(t)
	email := "reverify@nova.io"
	s.signup(t, email, "Secret1")

	w := s.do(t, http.MethodPost, "/api/auth/password/request-otp", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, w.Code)
	code := s.sender.code(email)

	w = s.do(t, http.MethodPost, "/api/auth/password/verify-otp", map[string]string{"email": email, "otp": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decode[dto.ResetSessionResponse](t, w)

	w = s.do(t, http.MethodPost, "/api/auth/password/verify-otp", map[string]string{"email": email, "otp": code})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	second := decode[dto.ResetSessionResponse](t, w)
	assert.Equal(t, first.SessionToken, second.SessionToken)

	w = s.do(t, http.MethodPost, "/api/auth/password/reset", map[string]string{
		"email":         email,
		"new_password":  "Better2",
		"session_token": second.SessionToken,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestResetFlow_EndToEnd(t *testing.T) {
	s := newTestServer(t)
	email := "reset@nova.io"
	s.signup(t, email, "Secret1")

	w := s.do(t, http.MethodPost, "/api/auth/password/request-otp", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/password/verify-otp", map[string]string{"email": email, "otp": s.sender.code(email)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	session := decode[dto.ResetSessionResponse](t, w)
	require.NotEmpty(t, session.SessionToken)

	reset := map[string]string{"email": email, "new_password": "Better2", "session_token": session.SessionToken}
	w = s.do(t, http.MethodPost, "/api/auth/password/reset", reset)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/password/reset", reset)
	assertError(t, w, http.StatusForbidden, "NOT_VERIFIED")

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "Secret1"})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "Better2"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestResetFlow_WrongSessionToken(t *testing.T) {
	s := newTestServer(t)
	email := "mismatch@nova.io"
	s.signup(t, email, "Secret1")

	w := s.do(t, http.MethodPost, "/api/auth/password/request-otp", map[string]string{"email": email})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/api/auth/password/verify-otp", map[string]string{"email": email, "otp": s.sender.code(email)})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/password/reset", map[string]string{
		"email":         email,
		"new_password":  "Better2",
		"session_token": "00000000-0000-0000-0000-000000000001",
	})
	assertError(t, w, http.StatusBadRequest, "TOKEN_MISMATCH")
}

func TestRequestPasswordOTP_UnknownEmail(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/password/request-otp", map[string]string{"email": "ghost@nova.io"})
	assertError(t, w, http.StatusNotFound, "NOT_FOUND")
	assert.Empty(t, s.sender.code("ghost@nova.io"))
}

func TestChangePassword(t *testing.T) {
	s := newTestServer(t)
	email := "change@nova.io"
	pair := s.signup(t, email, "Secret1")

	w := s.do(t, http.MethodPost, "/api/auth/password/change", map[string]string{"old_password": "Secret1", "new_password": "Better2"})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")

	w = s.do(t, http.MethodPost, "/api/auth/password/change", map[string]string{"old_password": "nope123", "new_password": "Better2"}, bearer(pair.AccessToken))
	assertError(t, w, http.StatusBadRequest, "WRONG_PASSWORD")

	w = s.do(t, http.MethodPost, "/api/auth/password/change", map[string]string{"old_password": "Secret1", "new_password": "short"}, bearer(pair.AccessToken))
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")

	w = s.do(t, http.MethodPost, "/api/auth/password/change", map[string]string{"old_password": "Secret1", "new_password": "Better2"}, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": "Better2"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestChangePassword_RateLimited(t *testing.T) {
	// Регистрация тратит три запроса из пяти.
	s := newLimitedTestServer(t, 5)
	pair := s.signup(t, "guess@nova.io", "Secret1")

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/auth/password/change", map[string]string{"old_password": "guess12", "new_password": "Better2"}, bearer(pair.AccessToken))
		assertError(t, w, http.StatusBadRequest, "WRONG_PASSWORD")
	}

	w := s.do(t, http.MethodPost, "/api/auth/password/change", map[string]string{"old_password": "Secret1", "new_password": "Better2"}, bearer(pair.AccessToken))
	assertError(t, w, http.StatusTooManyRequests, "RATE_LIMITED")
}

func TestLogout_RevokesRefreshToken(t *testing.T) {
	s := newTestServer(t)
	pair := s.signup(t, "logout@nova.io", "Secret1")

	w := s.do(t, http.MethodPost, "/api/auth/logout", map[string]string{"refresh_token": pair.RefreshToken})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")

	w = s.do(t, http.MethodPost, "/api/auth/logout", map[string]string{"refresh_token": pair.RefreshToken}, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Повторный выход и мусорный токен тоже 200
	w = s.do(t, http.MethodPost, "/api/auth/logout", map[string]string{"refresh_token": "garbage"}, bearer(pair.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(t, http.MethodPost, "/api/auth/logout", nil, bearer(pair.AccessToken))
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/auth/token/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestRefresh_RotatesToken(t *testing.T) {
	s := newTestServer(t)
	pair := s.signup(t, "rotate@nova.io", "Secret1")

	w := s.do(t, http.MethodPost, "/api/auth/token/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rotated := decode[dto.TokenResponse](t, w)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	w = s.do(t, http.MethodPost, "/api/auth/token/refresh", map[string]string{"refresh_token": pair.RefreshToken})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")

	w = s.do(t, http.MethodPost, "/api/auth/token/refresh", map[string]string{})
	assertError(t, w, http.StatusBadRequest, "VALIDATION_ERROR")
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	s := newTestServer(t)
	pair := s.signup(t, "typ@nova.io", "Secret1")

	w := s.do(t, http.MethodPost, "/api/auth/token/refresh", map[string]string{"refresh_token": pair.AccessToken})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestGetToken(t *testing.T) {
	s := newTestServer(t)
	pair := s.signup(t, "mint@nova.io", "Secret1")

	w := s.do(t, http.MethodGet, "/api/auth/token", nil, bearer(pair.AccessToken))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	minted := decode[dto.TokenResponse](t, w)
	assert.NotEqual(t, pair.AccessToken, minted.AccessToken)

	w = s.do(t, http.MethodGet, "/api/auth/token", nil, bearer(pair.RefreshToken))
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestLogin_UnknownEmail(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "nobody@nova.io", "password": "Secret1"})
	assertError(t, w, http.StatusUnauthorized, "UNAUTHORIZED")
}
