package models

import (
	"time"

	"github.com/google/uuid"
)

// Credential хранит учётные данные пользователя. Email уникален и уже нормализован.
type Credential struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// MaxNicknameLength совпадает с profiles.nickname VARCHAR(64).
const MaxNicknameLength = 64

// Profile описывает минимальный профиль, который создаётся сразу после регистрации.
type Profile struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Nickname  string    `db:"nickname" json:"nickname"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
