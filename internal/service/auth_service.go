package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignatzorin/nova-auth/internal/lock"
	"github.com/ignatzorin/nova-auth/internal/logger"
	"github.com/ignatzorin/nova-auth/internal/metrics"
	"github.com/ignatzorin/nova-auth/internal/models"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/validation"
)

// События безопасности, которые рассылаются открытым вебсокет-соединениям пользователя.
const (
	EventPasswordChanged = "password_changed"
	EventPasswordReset   = "password_reset"
	EventLoggedOut       = "logged_out"
)

// SecurityNotifier доставляет событие всем активным клиентам пользователя.
type SecurityNotifier interface {
	NotifyIdentifier(identifier, event string)
}

// AuthService связывает коды, сессии подтверждения, учётные данные и токены
// в сценарии регистрации, сброса пароля и входа. Все изменяющие сценарии
// одного email выполняются под блокировкой "flow:<email>".
type AuthService struct {
	otps     *OTPService
	sessions *VerificationService
	creds    *CredentialService
	tokens   *TokenManager
	locker   lock.Locker
	throttle *OTPThrottle
	notifier SecurityNotifier
}

// SignupStart возвращается после отправки кода регистрации.
type SignupStart struct {
	FlowID    uuid.UUID
	Delivered bool
}

// NewAuthService создаёт сервис аутентификации. throttle и notifier могут быть nil.
func NewAuthService(
	otps *OTPService,
	sessions *VerificationService,
	creds *CredentialService,
	tokens *TokenManager,
	locker lock.Locker,
	throttle *OTPThrottle,
	notifier SecurityNotifier,
) *AuthService {
	return &AuthService{
		otps:     otps,
		sessions: sessions,
		creds:    creds,
		tokens:   tokens,
		locker:   locker,
		throttle: throttle,
		notifier: notifier,
	}
}

// StartSignup открывает сценарий регистрации и отправляет код на email.
func (s *AuthService) StartSignup(ctx context.Context, email string) (*SignupStart, error) {
	identifier, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if err := s.throttle.Allow(ctx, identifier); err != nil {
		return nil, err
	}

	var out *SignupStart
	err = s.withFlowLock(ctx, identifier, func() error {
		session, err := s.sessions.Open(ctx, identifier, models.PurposeSignup)
		if err != nil {
			return err
		}

		issued, err := s.otps.Issue(ctx, identifier)
		if err != nil {
			return err
		}

		out = &SignupStart{FlowID: session.FlowID, Delivered: issued.Delivered}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordOTPIssued(string(models.PurposeSignup))
	return out, nil
}

// VerifySignup проверяет код регистрации и подтверждает сессию.
// Повторная проверка того же кода до задания пароля тоже успешна.
func (s *AuthService) VerifySignup(ctx context.Context, email, code string) error {
	identifier, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if err := validation.ValidateNonEmpty("otp", code); err != nil {
		return apperror.Validation(err)
	}

	return s.withFlowLock(ctx, identifier, func() error {
		if err := s.otps.Verify(ctx, identifier, code); err != nil {
			return err
		}
		_, err := s.sessions.Confirm(ctx, identifier, models.PurposeSignup)
		return err
	})
}

// CompleteSignup задаёт пароль в сценарии, адресованном flowID, и выдаёт токены.
func (s *AuthService) CompleteSignup(ctx context.Context, flowID uuid.UUID, password string) (*TokenPair, error) {
	identifier, err := s.sessions.ResolveFlow(ctx, flowID, models.PurposeSignup)
	if err != nil {
		return nil, err
	}

	var pair *TokenPair
	err = s.withFlowLock(ctx, identifier, func() error {
		// Пока ждали блокировку, сценарий могли начать заново с новым flow id.
		current, err := s.sessions.ResolveFlow(ctx, flowID, models.PurposeSignup)
		if err != nil {
			return err
		}
		if current != identifier {
			return apperror.ErrNoActiveSession
		}

		pair, err = s.creds.FinalizeSignup(ctx, identifier, password)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordTokensIssued("signup")
	return pair, nil
}

// StartReset отправляет код сброса пароля зарегистрированному пользователю.
func (s *AuthService) StartReset(ctx context.Context, email string) (bool, error) {
	identifier, err := normalizeEmail(email)
	if err != nil {
		return false, err
	}

	exists, err := s.creds.Exists(ctx, identifier)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, apperror.ErrUserNotFound
	}

	if err := s.throttle.Allow(ctx, identifier); err != nil {
		return false, err
	}

	var delivered bool
	err = s.withFlowLock(ctx, identifier, func() error {
		if _, err := s.sessions.Open(ctx, identifier, models.PurposePasswordReset); err != nil {
			return err
		}

		issued, err := s.otps.Issue(ctx, identifier)
		if err != nil {
			return err
		}
		delivered = issued.Delivered
		return nil
	})
	if err != nil {
		return false, err
	}

	metrics.RecordOTPIssued(string(models.PurposePasswordReset))
	return delivered, nil
}

// VerifyReset проверяет код сброса и возвращает токен сессии сброса.
// При повторной проверке возвращается тот же токен.
func (s *AuthService) VerifyReset(ctx context.Context, email, code string) (uuid.UUID, error) {
	identifier, err := normalizeEmail(email)
	if err != nil {
		return uuid.Nil, err
	}
	if err := validation.ValidateNonEmpty("otp", code); err != nil {
		return uuid.Nil, apperror.Validation(err)
	}

	var token uuid.UUID
	err = s.withFlowLock(ctx, identifier, func() error {
		if err := s.otps.Verify(ctx, identifier, code); err != nil {
			return err
		}
		t, err := s.sessions.Confirm(ctx, identifier, models.PurposePasswordReset)
		if err != nil {
			return err
		}
		token = *t
		return nil
	})
	return token, err
}

// ResetPassword задаёт новый пароль по токену сессии сброса.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string, sessionToken uuid.UUID) error {
	identifier, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	err = s.withFlowLock(ctx, identifier, func() error {
		return s.creds.FinalizeReset(ctx, identifier, newPassword, sessionToken)
	})
	if err != nil {
		return err
	}

	s.notify(identifier, EventPasswordReset)
	return nil
}

// ChangePassword меняет пароль авторизованного пользователя.
func (s *AuthService) ChangePassword(ctx context.Context, identifier, oldPassword, newPassword string) error {
	err := s.withFlowLock(ctx, identifier, func() error {
		return s.creds.ChangePassword(ctx, identifier, oldPassword, newPassword)
	})
	if err != nil {
		return err
	}

	s.notify(identifier, EventPasswordChanged)
	return nil
}

// Login проверяет email и пароль и выдаёт новую пару токенов.
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	identifier, err := normalizeEmail(email)
	if err != nil {
		return nil, apperror.ErrInvalidCredentials
	}

	if _, err := s.creds.Authenticate(ctx, identifier, password); err != nil {
		return nil, err
	}

	pair, err := s.tokens.Issue(identifier)
	if err != nil {
		return nil, err
	}

	metrics.RecordTokensIssued("login")
	return pair, nil
}

// Logout отзывает refresh токен. Всегда успешен: ошибки только логируются.
func (s *AuthService) Logout(ctx context.Context, identifier, refreshToken string) {
	log := logger.ForIdentifier(identifier)

	if refreshToken == "" {
		log.Debug("auth service: выход без refresh токена")
	} else if err := s.tokens.Revoke(ctx, refreshToken); err != nil {
		log.WithError(err).Warn("auth service: не удалось отозвать refresh токен при выходе")
	} else {
		metrics.RecordTokenRevoked()
	}

	s.notify(identifier, EventLoggedOut)
}

// Refresh обменивает refresh токен на новую пару, старый токен отзывается.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.tokens.ValidateRefresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, "refresh:"+claims.ID)
	if err != nil {
		return nil, fmt.Errorf("auth service: lock: %w", err)
	}
	defer unlock()

	// Повторная проверка под блокировкой: параллельный обмен того же токена
	// должен получить ErrTokenRevoked.
	if _, err := s.tokens.ValidateRefresh(ctx, refreshToken); err != nil {
		return nil, err
	}

	exists, err := s.creds.Exists(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.ErrUnauthorized
	}

	if err := s.tokens.revokeClaims(ctx, claims); err != nil {
		return nil, err
	}
	metrics.RecordTokenRevoked()

	pair, err := s.tokens.Issue(claims.Subject)
	if err != nil {
		return nil, err
	}

	metrics.RecordTokensIssued("refresh")
	return pair, nil
}

// IssueForSubject выдаёт новую пару токенов уже авторизованному пользователю.
func (s *AuthService) IssueForSubject(ctx context.Context, identifier string) (*TokenPair, error) {
	exists, err := s.creds.Exists(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperror.ErrUserNotFound
	}

	pair, err := s.tokens.Issue(identifier)
	if err != nil {
		return nil, err
	}

	metrics.RecordTokensIssued("self")
	return pair, nil
}

func (s *AuthService) withFlowLock(ctx context.Context, identifier string, fn func() error) error {
	unlock, err := s.locker.Lock(ctx, "flow:"+identifier)
	if err != nil {
		return fmt.Errorf("auth service: lock: %w", err)
	}
	defer unlock()

	return fn()
}

func (s *AuthService) notify(identifier, event string) {
	if s.notifier != nil {
		s.notifier.NotifyIdentifier(identifier, event)
	}
}

func normalizeEmail(email string) (string, error) {
	if err := validation.ValidateEmail(email); err != nil {
		return "", apperror.Validation(err)
	}
	return validation.NormalizeIdentifier(email), nil
}
