package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/nova-auth/internal/models"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/repository"
)

// VerificationRepository описывает хранилище сессий подтверждения.
type VerificationRepository interface {
	Upsert(ctx context.Context, s *models.VerificationSession) error
	Get(ctx context.Context, identifier string, purpose models.VerificationPurpose) (*models.VerificationSession, error)
	GetByFlowID(ctx context.Context, flowID uuid.UUID, purpose models.VerificationPurpose) (*models.VerificationSession, error)
	Transition(ctx context.Context, identifier string, purpose models.VerificationPurpose, from, to models.VerificationState, token *uuid.UUID, at time.Time) error
	Delete(ctx context.Context, identifier string, purpose models.VerificationPurpose) error
}

// VerificationService ведёт сессию подтверждения: pending -> verified -> закрыта.
// На пару (identifier, purpose) существует не более одной сессии.
type VerificationService struct {
	repo VerificationRepository
	now  func() time.Time
}

// NewVerificationService создаёт сервис сессий подтверждения.
func NewVerificationService(repo VerificationRepository) *VerificationService {
	return &VerificationService{repo: repo, now: time.Now}
}

// Open начинает сценарий заново: прежняя сессия для пары перезаписывается,
// её flow id и токен сброса перестают действовать.
func (s *VerificationService) Open(ctx context.Context, identifier string, purpose models.VerificationPurpose) (*models.VerificationSession, error) {
	now := s.now().UTC()
	session := &models.VerificationSession{
		Identifier: identifier,
		Purpose:    purpose,
		State:      models.StatePending,
		FlowID:     uuid.New(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("verification service: open: %w", err)
	}
	return session, nil
}

// MarkVerified переводит pending сессию в verified. Для сброса пароля выпускает
// токен сессии и возвращает его, для регистрации возвращает nil.
func (s *VerificationService) MarkVerified(ctx context.Context, identifier string, purpose models.VerificationPurpose) (*uuid.UUID, error) {
	var token *uuid.UUID
	if purpose == models.PurposePasswordReset {
		t := uuid.New()
		token = &t
	}

	err := s.repo.Transition(ctx, identifier, purpose, models.StatePending, models.StateVerified, token, s.now().UTC())
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperror.ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("verification service: mark verified: %w", err)
	}

	return token, nil
}

// Confirm подтверждает сессию после успешной проверки кода. Уже подтверждённая
// сессия остаётся как есть, для сброса пароля возвращается прежний токен.
func (s *VerificationService) Confirm(ctx context.Context, identifier string, purpose models.VerificationPurpose) (*uuid.UUID, error) {
	session, err := s.repo.Get(ctx, identifier, purpose)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return nil, apperror.ErrNoActiveSession
	}
	if err != nil {
		return nil, fmt.Errorf("verification service: confirm: %w", err)
	}

	if session.IsVerified() && (purpose != models.PurposePasswordReset || session.SessionToken != nil) {
		return session.SessionToken, nil
	}

	return s.MarkVerified(ctx, identifier, purpose)
}

// RequireVerified проверяет, что сессия подтверждена. Для сброса пароля
// дополнительно сверяет предъявленный токен.
func (s *VerificationService) RequireVerified(ctx context.Context, identifier string, purpose models.VerificationPurpose, token *uuid.UUID) error {
	session, err := s.repo.Get(ctx, identifier, purpose)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return apperror.ErrNotVerified
	}
	if err != nil {
		return fmt.Errorf("verification service: require verified: %w", err)
	}

	if !session.IsVerified() {
		return apperror.ErrNotVerified
	}

	if purpose == models.PurposePasswordReset {
		if token == nil || session.SessionToken == nil || *token != *session.SessionToken {
			return apperror.ErrTokenMismatch
		}
	}

	return nil
}

// Close удаляет сессию. Отсутствие сессии не ошибка.
func (s *VerificationService) Close(ctx context.Context, identifier string, purpose models.VerificationPurpose) error {
	if err := s.repo.Delete(ctx, identifier, purpose); err != nil {
		return fmt.Errorf("verification service: close: %w", err)
	}
	return nil
}

// ResolveFlow находит identifier по flow id, который клиент получил при старте сценария.
func (s *VerificationService) ResolveFlow(ctx context.Context, flowID uuid.UUID, purpose models.VerificationPurpose) (string, error) {
	session, err := s.repo.GetByFlowID(ctx, flowID, purpose)
	if errors.Is(err, repository.ErrSessionNotFound) {
		return "", apperror.ErrNoActiveSession
	}
	if err != nil {
		return "", fmt.Errorf("verification service: resolve flow: %w", err)
	}
	return session.Identifier, nil
}
