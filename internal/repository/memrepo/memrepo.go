// Package memrepo содержит in-memory реализации репозиториев для тестов
// сервисов и HTTP слоя. Семантика совпадает с Postgres версиями в repository.
package memrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/nova-auth/internal/models"
	"github.com/ignatzorin/nova-auth/internal/repository"
)

// OTPs хранит коды в порядке вставки, как seq в Postgres.
type OTPs struct {
	mu      sync.Mutex
	records []models.OTPRecord
}

func NewOTPs() *OTPs {
	return &OTPs{}
}

func (r *OTPs) Create(ctx context.Context, rec *models.OTPRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, *rec)
	return nil
}

func (r *OTPs) Latest(ctx context.Context, identifier string) (*models.OTPRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.records) - 1; i >= 0; i-- {
		if r.records[i].Identifier == identifier {
			rec := r.records[i]
			return &rec, nil
		}
	}
	return nil, repository.ErrOTPNotFound
}

func (r *OTPs) DeleteByIdentifier(ctx context.Context, identifier string) (int64, error) {
	return r.deleteWhere(func(rec models.OTPRecord) bool { return rec.Identifier == identifier }), nil
}

func (r *OTPs) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.deleteWhere(func(rec models.OTPRecord) bool { return rec.CreatedAt.Before(cutoff) }), nil
}

// Count возвращает число хранимых кодов для email.
func (r *OTPs) Count(identifier string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Identifier == identifier {
			n++
		}
	}
	return n
}

func (r *OTPs) deleteWhere(match func(models.OTPRecord) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.records[:0]
	var n int64
	for _, rec := range r.records {
		if match(rec) {
			n++
			continue
		}
		kept = append(kept, rec)
	}
	r.records = kept
	return n
}

type sessionKey struct {
	identifier string
	purpose    models.VerificationPurpose
}

// Sessions хранит не более одной сессии подтверждения на (email, purpose).
type Sessions struct {
	mu       sync.Mutex
	sessions map[sessionKey]models.VerificationSession
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[sessionKey]models.VerificationSession)}
}

func (r *Sessions) Upsert(ctx context.Context, s *models.VerificationSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionKey{s.Identifier, s.Purpose}] = *s
	return nil
}

func (r *Sessions) Get(ctx context.Context, identifier string, purpose models.VerificationPurpose) (*models.VerificationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionKey{identifier, purpose}]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	return &s, nil
}

func (r *Sessions) GetByFlowID(ctx context.Context, flowID uuid.UUID, purpose models.VerificationPurpose) (*models.VerificationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.sessions {
		if s.FlowID == flowID && s.Purpose == purpose {
			found := s
			return &found, nil
		}
	}
	return nil, repository.ErrSessionNotFound
}

func (r *Sessions) Transition(ctx context.Context, identifier string, purpose models.VerificationPurpose, from, to models.VerificationState, token *uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := sessionKey{identifier, purpose}
	s, ok := r.sessions[key]
	if !ok || s.State != from {
		return repository.ErrSessionNotFound
	}
	s.State = to
	s.SessionToken = token
	s.UpdatedAt = at
	r.sessions[key] = s
	return nil
}

func (r *Sessions) Delete(ctx context.Context, identifier string, purpose models.VerificationPurpose) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey{identifier, purpose})
	return nil
}

func (r *Sessions) DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for key, s := range r.sessions {
		if s.UpdatedAt.Before(cutoff) {
			delete(r.sessions, key)
			n++
		}
	}
	return n, nil
}

// Users хранит учётные данные и профили.
type Users struct {
	mu         sync.Mutex
	users      map[string]models.Credential
	profiles   map[uuid.UUID]models.Profile
	profileErr error
}

func NewUsers() *Users {
	return &Users{
		users:    make(map[string]models.Credential),
		profiles: make(map[uuid.UUID]models.Profile),
	}
}

func (r *Users) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

func (r *Users) Upsert(ctx context.Context, user *models.Credential) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	if existing, ok := r.users[user.Email]; ok {
		existing.PasswordHash = user.PasswordHash
		existing.UpdatedAt = now
		r.users[user.Email] = existing
		*user = existing
		return false, nil
	}
	user.ID = uuid.New()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.Email] = *user
	return true, nil
}

func (r *Users) SetPasswordHash(ctx context.Context, email, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[email]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.PasswordHash = hash
	r.users[email] = u
	return nil
}

func (r *Users) EnsureProfile(ctx context.Context, profile *models.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.profileErr != nil {
		return r.profileErr
	}
	if _, ok := r.profiles[profile.UserID]; !ok {
		r.profiles[profile.UserID] = *profile
	}
	return nil
}

// FailProfiles заставляет EnsureProfile возвращать err.
func (r *Users) FailProfiles(err error) {
	r.mu.Lock()
	r.profileErr = err
	r.mu.Unlock()
}

func (r *Users) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}

func (r *Users) Profiles() []models.Profile {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		out = append(out, p)
	}
	return out
}

// Revocations хранит чёрный список jti.
type Revocations struct {
	mu  sync.Mutex
	jti map[string]time.Time
}

func NewRevocations() *Revocations {
	return &Revocations{jti: make(map[string]time.Time)}
}

func (r *Revocations) Revoke(ctx context.Context, jti, subject string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jti[jti]; !ok {
		r.jti[jti] = expiresAt
	}
	return nil
}

func (r *Revocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jti[jti]
	return ok, nil
}

func (r *Revocations) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for jti, exp := range r.jti {
		if exp.Before(now) {
			delete(r.jti, jti)
			n++
		}
	}
	return n, nil
}

func (r *Revocations) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jti)
}
