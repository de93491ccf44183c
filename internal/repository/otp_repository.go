package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/nova-auth/internal/models"
	"github.com/ignatzorin/nova-auth/internal/repository/common"
)

// ErrOTPNotFound возвращается, когда для email нет ни одного кода.
var ErrOTPNotFound = errors.New("otp not found")

// OTPRepository отвечает за таблицу otp_codes.
type OTPRepository struct {
	db *sqlx.DB
}

// NewOTPRepository создаёт экземпляр репозитория.
func NewOTPRepository(db *sqlx.DB) *OTPRepository {
	return &OTPRepository{db: db}
}

// Create сохраняет новый код. Предыдущие коды не удаляются.
// Вставка сериализуется advisory-блокировкой по email, поэтому порядок seq
// совпадает с порядком завершения выдачи даже при нескольких инстансах.
func (r *OTPRepository) Create(ctx context.Context, rec *models.OTPRecord) error {
	return common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		if err := common.LockIdentifier(ctx, tx, "otp:"+rec.Identifier); err != nil {
			return fmt.Errorf("otp repository: create %w", err)
		}

		query := `
			INSERT INTO otp_codes (id, identifier, code, created_at)
			VALUES ($1, $2, $3, $4)
		`
		if _, err := tx.ExecContext(ctx, query, rec.ID, rec.Identifier, rec.Code, rec.CreatedAt); err != nil {
			return fmt.Errorf("otp repository: create %w", err)
		}
		return nil
	})
}

// Latest возвращает самый свежий код для email.
func (r *OTPRepository) Latest(ctx context.Context, identifier string) (*models.OTPRecord, error) {
	var rec models.OTPRecord
	query := `
		SELECT id, identifier, code, created_at
		FROM otp_codes
		WHERE identifier = $1
		ORDER BY seq DESC
		LIMIT 1
	`
	if err := r.db.GetContext(ctx, &rec, query, identifier); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("otp repository: latest %w", err)
	}

	return &rec, nil
}

// DeleteByIdentifier удаляет все коды для email.
func (r *OTPRepository) DeleteByIdentifier(ctx context.Context, identifier string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE identifier = $1`, identifier)
	if err != nil {
		return 0, fmt.Errorf("otp repository: delete by identifier %w", err)
	}
	return res.RowsAffected()
}

// DeleteCreatedBefore удаляет коды, созданные раньше cutoff.
func (r *OTPRepository) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM otp_codes WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("otp repository: delete created before %w", err)
	}
	return res.RowsAffected()
}
