package models

import "time"

// OTPRecord хранит одноразовый код, выданный на email.
// Срок жизни не хранится: он вычисляется при чтении от CreatedAt.
type OTPRecord struct {
	ID         string    `db:"id" json:"id"`
	Identifier string    `db:"identifier" json:"identifier"`
	Code       string    `db:"code" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ExpiresAt возвращает момент, после которого код считается просроченным.
func (r *OTPRecord) ExpiresAt(ttl time.Duration) time.Time {
	return r.CreatedAt.Add(ttl)
}

// IsExpired сообщает, истёк ли код к моменту now. Ровно на границе код ещё действителен.
func (r *OTPRecord) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.After(r.ExpiresAt(ttl))
}
