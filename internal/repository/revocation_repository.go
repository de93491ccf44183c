package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// RevocationRepository хранит отозванные refresh токены в таблице revoked_tokens.
// Используется, когда Redis не настроен.
type RevocationRepository struct {
	db *sqlx.DB
}

func NewRevocationRepository(db *sqlx.DB) *RevocationRepository {
	return &RevocationRepository{db: db}
}

// Revoke добавляет jti в чёрный список. Повторный вызов ничего не меняет.
func (r *RevocationRepository) Revoke(ctx context.Context, jti, subject string, expiresAt time.Time) error {
	query := `
		INSERT INTO revoked_tokens (jti, subject, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (jti) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, jti, subject, expiresAt); err != nil {
		return fmt.Errorf("revocation repository: revoke %w", err)
	}
	return nil
}

// IsRevoked проверяет, находится ли jti в чёрном списке.
func (r *RevocationRepository) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM revoked_tokens WHERE jti = $1)`, jti); err != nil {
		return false, fmt.Errorf("revocation repository: is revoked %w", err)
	}
	return exists, nil
}

// DeleteExpired удаляет записи о токенах, срок которых уже истёк сам по себе.
func (r *RevocationRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM revoked_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("revocation repository: delete expired %w", err)
	}
	return res.RowsAffected()
}
