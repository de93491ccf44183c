package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationPurpose определяет сценарий, в рамках которого подтверждается email.
type VerificationPurpose string

const (
	PurposeSignup        VerificationPurpose = "signup"
	PurposePasswordReset VerificationPurpose = "password_reset"
)

// Valid проверяет, что назначение известно.
func (p VerificationPurpose) Valid() bool {
	return p == PurposeSignup || p == PurposePasswordReset
}

// VerificationState обозначает шаг многошагового сценария.
type VerificationState string

const (
	StatePending  VerificationState = "pending"
	StateVerified VerificationState = "verified"
)

// VerificationSession хранит прогресс сценария для пары (identifier, purpose).
type VerificationSession struct {
	Identifier   string              `db:"identifier" json:"identifier"`
	Purpose      VerificationPurpose `db:"purpose" json:"purpose"`
	State        VerificationState   `db:"state" json:"state"`
	FlowID       uuid.UUID           `db:"flow_id" json:"flow_id"`
	SessionToken *uuid.UUID          `db:"session_token" json:"-"`
	CreatedAt    time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at" json:"updated_at"`
}

// IsVerified сообщает, пройден ли шаг подтверждения.
func (s *VerificationSession) IsVerified() bool {
	return s.State == StateVerified
}
