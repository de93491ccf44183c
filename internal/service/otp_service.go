package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ignatzorin/nova-auth/internal/lock"
	"github.com/ignatzorin/nova-auth/internal/logger"
	"github.com/ignatzorin/nova-auth/internal/mail"
	"github.com/ignatzorin/nova-auth/internal/metrics"
	"github.com/ignatzorin/nova-auth/internal/models"
	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
	"github.com/ignatzorin/nova-auth/internal/repository"
)

// DefaultOTPTTL задаёт срок действия одноразового кода.
const DefaultOTPTTL = 10 * time.Minute

// OTPRepository описывает хранилище одноразовых кодов.
type OTPRepository interface {
	Create(ctx context.Context, rec *models.OTPRecord) error
	Latest(ctx context.Context, identifier string) (*models.OTPRecord, error)
	DeleteByIdentifier(ctx context.Context, identifier string) (int64, error)
}

// IssueResult содержит выпущенный код и признак того, что письмо принято к отправке.
type IssueResult struct {
	Record    *models.OTPRecord
	Delivered bool
}

// OTPService выпускает, проверяет и гасит одноразовые коды.
// Действителен только последний выпущенный код.
type OTPService struct {
	repo    OTPRepository
	sender  mail.Sender
	locker  lock.Locker
	ttl     time.Duration
	now     func() time.Time
	newCode func() (string, error)
}

// NewOTPService создаёт сервис одноразовых кодов.
func NewOTPService(repo OTPRepository, sender mail.Sender, locker lock.Locker, ttl time.Duration) *OTPService {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPService{
		repo:    repo,
		sender:  sender,
		locker:  locker,
		ttl:     ttl,
		now:     time.Now,
		newCode: generateCode,
	}
}

// Issue сохраняет новый код и отправляет его письмом. Предыдущие коды не удаляются,
// но перестают действовать. Ошибка отправки не прерывает выпуск.
func (s *OTPService) Issue(ctx context.Context, identifier string) (*IssueResult, error) {
	unlock, err := s.locker.Lock(ctx, "otp:"+identifier)
	if err != nil {
		return nil, fmt.Errorf("otp service: lock: %w", err)
	}
	defer unlock()

	code, err := s.newCode()
	if err != nil {
		return nil, fmt.Errorf("otp service: генерация кода: %w", err)
	}

	rec := &models.OTPRecord{
		ID:         ulid.Make().String(),
		Identifier: identifier,
		Code:       code,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("otp service: issue: %w", err)
	}

	res := &IssueResult{Record: rec, Delivered: true}
	if err := s.sender.Send(ctx, mail.OTPMessage(identifier, code)); err != nil {
		res.Delivered = false
		metrics.RecordMailDelivery("dropped")
		logger.ForIdentifier(identifier).WithError(err).Warn("otp service: письмо с кодом не отправлено")
	}

	return res, nil
}

// Verify сверяет код с последним выпущенным. Код не гасится.
func (s *OTPService) Verify(ctx context.Context, identifier, code string) error {
	rec, err := s.repo.Latest(ctx, identifier)
	if errors.Is(err, repository.ErrOTPNotFound) {
		metrics.RecordOTPVerification("not_found")
		return apperror.ErrOTPNotFound
	}
	if err != nil {
		return fmt.Errorf("otp service: verify: %w", err)
	}

	if rec.IsExpired(s.now(), s.ttl) {
		metrics.RecordOTPVerification("expired")
		return apperror.ErrOTPExpired
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		metrics.RecordOTPVerification("mismatch")
		return apperror.ErrOTPMismatch
	}

	metrics.RecordOTPVerification(metrics.ResultOK)
	return nil
}

// Consume удаляет все коды пользователя.
func (s *OTPService) Consume(ctx context.Context, identifier string) error {
	if _, err := s.repo.DeleteByIdentifier(ctx, identifier); err != nil {
		return fmt.Errorf("otp service: consume: %w", err)
	}
	return nil
}

var codeUpperBound = big.NewInt(1_000_000)

// generateCode возвращает равномерно распределённый шестизначный код с ведущими нулями.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeUpperBound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
