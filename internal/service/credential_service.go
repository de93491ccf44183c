package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/ignatzorin/nova-auth/internal/logger"
	"github.com/ignatzorin/nova-auth/internal/models"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/repository"
	"github.com/ignatzorin/nova-auth/internal/validation"
)

// CredentialRepository описывает хранилище учётных данных.
type CredentialRepository interface {
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)
	Upsert(ctx context.Context, user *models.Credential) (bool, error)
	SetPasswordHash(ctx context.Context, email, hash string) error
}

// ProfileStore создаёт профиль по умолчанию.
type ProfileStore interface {
	EnsureProfile(ctx context.Context, profile *models.Profile) error
}

// CredentialService завершает сценарии регистрации и сброса пароля и меняет пароли.
type CredentialService struct {
	users    CredentialRepository
	profiles ProfileStore
	hasher   *PasswordHasher
	sessions *VerificationService
	otps     *OTPService
	tokens   *TokenManager

	// dummyHash сравнивается при входе с неизвестным email, чтобы время ответа не выдавало,
	// зарегистрирован ли адрес.
	dummyOnce sync.Once
	dummyHash string
}

// NewCredentialService создаёт сервис учётных данных.
func NewCredentialService(
	users CredentialRepository,
	profiles ProfileStore,
	hasher *PasswordHasher,
	sessions *VerificationService,
	otps *OTPService,
	tokens *TokenManager,
) *CredentialService {
	return &CredentialService{
		users:    users,
		profiles: profiles,
		hasher:   hasher,
		sessions: sessions,
		otps:     otps,
		tokens:   tokens,
	}
}

// FinalizeSignup создаёт учётную запись после подтверждения email и выдаёт токены.
// Повторная регистрация того же email перезаписывает пароль.
func (s *CredentialService) FinalizeSignup(ctx context.Context, identifier, rawPassword string) (*TokenPair, error) {
	if err := validation.ValidatePassword(rawPassword); err != nil {
		return nil, apperror.Validation(err)
	}

	if err := s.sessions.RequireVerified(ctx, identifier, models.PurposeSignup, nil); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(ctx, rawPassword)
	if err != nil {
		return nil, err
	}

	user := &models.Credential{Email: identifier, PasswordHash: hash}
	created, err := s.users.Upsert(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("credential service: finalize signup: %w", err)
	}

	s.ensureProfile(ctx, user)

	if err := s.sessions.Close(ctx, identifier, models.PurposeSignup); err != nil {
		return nil, err
	}
	if err := s.otps.Consume(ctx, identifier); err != nil {
		return nil, err
	}

	logger.ForIdentifier(identifier).WithField("created", created).Info("credential service: регистрация завершена")

	return s.tokens.Issue(identifier)
}

// FinalizeReset меняет пароль по подтверждённой сессии сброса и закрывает её.
func (s *CredentialService) FinalizeReset(ctx context.Context, identifier, newPassword string, sessionToken uuid.UUID) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return apperror.Validation(err)
	}

	if err := s.sessions.RequireVerified(ctx, identifier, models.PurposePasswordReset, &sessionToken); err != nil {
		return err
	}

	if err := s.setPassword(ctx, identifier, newPassword); err != nil {
		return err
	}

	if err := s.sessions.Close(ctx, identifier, models.PurposePasswordReset); err != nil {
		return err
	}
	return s.otps.Consume(ctx, identifier)
}

// ChangePassword меняет пароль авторизованного пользователя. Сессии подтверждения не затрагиваются.
func (s *CredentialService) ChangePassword(ctx context.Context, identifier, oldPassword, newPassword string) error {
	if err := validation.ValidatePassword(newPassword); err != nil {
		return apperror.Validation(err)
	}

	user, err := s.lookup(ctx, identifier)
	if err != nil {
		return err
	}

	ok, err := s.hasher.Compare(ctx, user.PasswordHash, oldPassword)
	if err != nil {
		return err
	}
	if !ok {
		return apperror.ErrWrongPassword
	}

	return s.setPassword(ctx, identifier, newPassword)
}

// Authenticate проверяет email и пароль. Неизвестный email и неверный пароль
// неразличимы для клиента.
func (s *CredentialService) Authenticate(ctx context.Context, identifier, password string) (*models.Credential, error) {
	user, err := s.lookup(ctx, identifier)
	if errors.Is(err, apperror.ErrUserNotFound) {
		_, _ = s.hasher.Compare(ctx, s.fakeHash(ctx), password)
		return nil, apperror.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Compare(ctx, user.PasswordHash, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.ErrInvalidCredentials
	}

	s.ensureProfile(ctx, user)
	return user, nil
}

// Exists сообщает, зарегистрирован ли email.
func (s *CredentialService) Exists(ctx context.Context, identifier string) (bool, error) {
	_, err := s.lookup(ctx, identifier)
	if errors.Is(err, apperror.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *CredentialService) lookup(ctx context.Context, identifier string) (*models.Credential, error) {
	user, err := s.users.GetByEmail(ctx, identifier)
	if errors.Is(err, repository.ErrUserNotFound) {
		return nil, apperror.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("credential service: lookup: %w", err)
	}
	return user, nil
}

func (s *CredentialService) setPassword(ctx context.Context, identifier, password string) error {
	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return err
	}

	err = s.users.SetPasswordHash(ctx, identifier, hash)
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperror.ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("credential service: set password: %w", err)
	}
	return nil
}

// ensureProfile создаёт профиль по умолчанию. Ошибка только логируется:
// учётная запись уже сохранена и откатывать её не нужно.
func (s *CredentialService) ensureProfile(ctx context.Context, user *models.Credential) {
	profile := &models.Profile{
		UserID:   user.ID,
		Nickname: defaultNickname(user.Email),
	}
	if err := s.profiles.EnsureProfile(ctx, profile); err != nil {
		logger.ForIdentifier(user.Email).WithError(err).Warn("credential service: не удалось создать профиль")
	}
}

func (s *CredentialService) fakeHash(ctx context.Context) string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(context.WithoutCancel(ctx), uuid.NewString())
		if err != nil {
			logger.Log.WithError(err).Warn("credential service: не удалось подготовить фиктивный хеш")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

// defaultNickname возвращает локальную часть email, обрезанную до MaxNicknameLength символов.
func defaultNickname(email string) string {
	nickname := email
	if at := strings.Index(email, "@"); at > 0 {
		nickname = email[:at]
	}
	if runes := []rune(nickname); len(runes) > models.MaxNicknameLength {
		nickname = string(runes[:models.MaxNicknameLength])
	}
	return nickname
}
