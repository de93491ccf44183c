package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/nova-auth/internal/models"
)

// ErrSessionNotFound возвращается, когда сессии подтверждения нет.
var ErrSessionNotFound = errors.New("verification session not found")

const sessionColumns = `identifier, purpose, state, flow_id, session_token, created_at, updated_at`

// VerificationRepository отвечает за таблицу verification_sessions.
// Первичный ключ (identifier, purpose), поэтому активная сессия всегда одна.
type VerificationRepository struct {
	db *sqlx.DB
}

func NewVerificationRepository(db *sqlx.DB) *VerificationRepository {
	return &VerificationRepository{db: db}
}

// Upsert создаёт или перезаписывает сессию для пары (identifier, purpose).
func (r *VerificationRepository) Upsert(ctx context.Context, s *models.VerificationSession) error {
	query := `
		INSERT INTO verification_sessions (identifier, purpose, state, flow_id, session_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (identifier, purpose) DO UPDATE
		SET state = EXCLUDED.state,
			flow_id = EXCLUDED.flow_id,
			session_token = EXCLUDED.session_token,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		s.Identifier, s.Purpose, s.State, s.FlowID, s.SessionToken, s.CreatedAt,
	); err != nil {
		return fmt.Errorf("verification repository: upsert %w", err)
	}

	s.UpdatedAt = s.CreatedAt
	return nil
}

// Get возвращает сессию по паре (identifier, purpose).
func (r *VerificationRepository) Get(ctx context.Context, identifier string, purpose models.VerificationPurpose) (*models.VerificationSession, error) {
	var s models.VerificationSession
	query := `SELECT ` + sessionColumns + ` FROM verification_sessions WHERE identifier = $1 AND purpose = $2`
	if err := r.db.GetContext(ctx, &s, query, identifier, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("verification repository: get %w", err)
	}
	return &s, nil
}

// GetByFlowID возвращает сессию по идентификатору сценария, который хранит клиент.
func (r *VerificationRepository) GetByFlowID(ctx context.Context, flowID uuid.UUID, purpose models.VerificationPurpose) (*models.VerificationSession, error) {
	var s models.VerificationSession
	query := `SELECT ` + sessionColumns + ` FROM verification_sessions WHERE flow_id = $1 AND purpose = $2`
	if err := r.db.GetContext(ctx, &s, query, flowID, purpose); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("verification repository: get by flow id %w", err)
	}
	return &s, nil
}

// Transition атомарно переводит сессию из состояния from в to.
// Возвращает ErrSessionNotFound, если сессии нет или она не в состоянии from.
func (r *VerificationRepository) Transition(ctx context.Context, identifier string, purpose models.VerificationPurpose, from, to models.VerificationState, token *uuid.UUID, at time.Time) error {
	query := `
		UPDATE verification_sessions
		SET state = $4, session_token = $5, updated_at = $6
		WHERE identifier = $1 AND purpose = $2 AND state = $3
	`
	res, err := r.db.ExecContext(ctx, query, identifier, purpose, from, to, token, at)
	if err != nil {
		return fmt.Errorf("verification repository: transition %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verification repository: transition rows affected %w", err)
	}
	if rows == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Delete удаляет сессию. Отсутствие сессии ошибкой не считается.
func (r *VerificationRepository) Delete(ctx context.Context, identifier string, purpose models.VerificationPurpose) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM verification_sessions WHERE identifier = $1 AND purpose = $2`, identifier, purpose); err != nil {
		return fmt.Errorf("verification repository: delete %w", err)
	}
	return nil
}

// DeleteUpdatedBefore удаляет давно заброшенные сессии.
func (r *VerificationRepository) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verification_sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("verification repository: delete updated before %w", err)
	}
	return res.RowsAffected()
}
