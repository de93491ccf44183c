package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/nova-auth/internal/metrics"
)

// PasswordHasher хеширует пароли bcrypt, ограничивая число одновременных вычислений.
type PasswordHasher struct {
	cost int
	sem  chan struct{}
}

// NewPasswordHasher создаёт хешер. concurrency <= 0 означает один слот.
func NewPasswordHasher(cost, concurrency int) *PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &PasswordHasher{
		cost: cost,
		sem:  make(chan struct{}, concurrency),
	}
}

// Hash возвращает bcrypt хеш пароля.
func (h *PasswordHasher) Hash(ctx context.Context, password string) (string, error) {
	start := time.Now()
	if err := h.acquire(ctx); err != nil {
		return "", err
	}
	defer h.release()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	metrics.RecordPasswordHash("hash", time.Since(start))
	if err != nil {
		return "", fmt.Errorf("password hasher: не удалось захешировать пароль: %w", err)
	}
	return string(hash), nil
}

// Compare сообщает, соответствует ли пароль хешу. Несовпадение не является ошибкой.
func (h *PasswordHasher) Compare(ctx context.Context, hash, password string) (bool, error) {
	start := time.Now()
	if err := h.acquire(ctx); err != nil {
		return false, err
	}
	defer h.release()

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	metrics.RecordPasswordHash("compare", time.Since(start))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("password hasher: некорректный хеш: %w", err)
	}
}

func (h *PasswordHasher) acquire(ctx context.Context) error {
	select {
	case h.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *PasswordHasher) release() {
	<-h.sem
}
