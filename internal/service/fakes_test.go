package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/nova-auth/internal/lock"
	"github.com/ignatzorin/nova-auth/internal/mail"
	"github.com/ignatzorin/nova-auth/internal/repository/memrepo"
)

// fakeClock даёт управляемое время для проверки сроков действия.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// captureSender запоминает последний отправленный код для каждого email.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
	err   error
}

func newCaptureSender() *captureSender {
	return &captureSender{codes: make(map[string]string)}
}

func (s *captureSender) Send(ctx context.Context, msg mail.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.codes[msg.To] = strings.TrimPrefix(msg.Body, "Your OTP is: ")
	return nil
}

func (s *captureSender) lastCode(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyIdentifier(identifier, event string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, identifier+":"+event)
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// testEnv собирает сервисы поверх in-memory хранилищ.
type testEnv struct {
	clock       *fakeClock
	otpRepo     *memrepo.OTPs
	sessionRepo *memrepo.Sessions
	users       *memrepo.Users
	revocations *memrepo.Revocations
	sender      *captureSender
	notifier    *recordingNotifier

	otps     *OTPService
	sessions *VerificationService
	creds    *CredentialService
	tokens   *TokenManager
	auth     *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:       newFakeClock(),
		otpRepo:     memrepo.NewOTPs(),
		sessionRepo: memrepo.NewSessions(),
		users:       memrepo.NewUsers(),
		revocations: memrepo.NewRevocations(),
		sender:      newCaptureSender(),
		notifier:    &recordingNotifier{},
	}

	locker := lock.NewKeyedMutex()

	env.otps = NewOTPService(env.otpRepo, env.sender, locker, DefaultOTPTTL)
	env.otps.now = env.clock.Now

	env.sessions = NewVerificationService(env.sessionRepo)
	env.sessions.now = env.clock.Now

	env.tokens = NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour, env.revocations)
	env.tokens.now = env.clock.Now

	hasher := NewPasswordHasher(bcrypt.MinCost, 4)
	env.creds = NewCredentialService(env.users, env.users, hasher, env.sessions, env.otps, env.tokens)

	env.auth = NewAuthService(env.otps, env.sessions, env.creds, env.tokens, locker, nil, env.notifier)
	return env
}
