package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/nova-auth/internal/models"
)

// ErrUserNotFound возвращается, когда запись пользователя не найдена.
var ErrUserNotFound = errors.New("user not found")

// UserRepository отвечает за таблицы users и profiles.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository создаёт экземпляр репозитория.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByEmail возвращает пользователя по email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	var user models.Credential
	query := `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("user repository: get by email %w", err)
	}

	return &user, nil
}

// Upsert создаёт пользователя или обновляет хеш пароля существующего.
// Возвращает true, если запись была создана.
func (r *UserRepository) Upsert(ctx context.Context, user *models.Credential) (bool, error) {
	query := `
		INSERT INTO users (email, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (email) DO UPDATE
		SET password_hash = EXCLUDED.password_hash,
			updated_at = NOW()
		RETURNING id, created_at, updated_at, (xmax = 0) AS inserted
	`

	var inserted bool
	if err := r.db.QueryRowxContext(ctx, query, user.Email, user.PasswordHash).Scan(
		&user.ID, &user.CreatedAt, &user.UpdatedAt, &inserted,
	); err != nil {
		return false, fmt.Errorf("user repository: upsert %w", err)
	}

	return inserted, nil
}

// SetPasswordHash обновляет хеш пароля.
func (r *UserRepository) SetPasswordHash(ctx context.Context, email, hash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE email = $1`, email, hash)
	if err != nil {
		return fmt.Errorf("user repository: set password hash %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("user repository: set password hash rows affected %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// EnsureProfile создаёт профиль, если его ещё нет.
func (r *UserRepository) EnsureProfile(ctx context.Context, profile *models.Profile) error {
	query := `
		INSERT INTO profiles (user_id, nickname)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, profile.UserID, profile.Nickname); err != nil {
		return fmt.Errorf("user repository: ensure profile %w", err)
	}
	return nil
}
