package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ignatzorin/nova-auth/internal/pkg/apperror"
)

// TokenType различает access и refresh токены (claim "typ").
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// TokenPair хранит пару access/refresh токенов.
type TokenPair struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
	ExpiresIn    time.Duration `json:"expires_in"`
	Subject      string        `json:"-"`
}

// Claims описывает содержимое наших JWT. Subject содержит нормализованный email.
type Claims struct {
	Type TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// RevocationStore хранит чёрный список jti отозванных refresh токенов.
// Реализации: repository.RevocationRepository (Postgres) и storage.RedisRevocationStore.
type RevocationStore interface {
	Revoke(ctx context.Context, jti, subject string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// TokenManager отвечает за выпуск и проверку JWT.
type TokenManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	revoked       RevocationStore
	now           func() time.Time
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, revoked RevocationStore) *TokenManager {
	return &TokenManager{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		revoked:       revoked,
		now:           time.Now,
	}
}

// Issue выпускает новую пару токенов для identifier.
func (m *TokenManager) Issue(identifier string) (*TokenPair, error) {
	now := m.now()

	accessToken, err := m.sign(identifier, TokenTypeAccess, now, now.Add(m.accessTTL))
	if err != nil {
		return nil, fmt.Errorf("token manager: access: %w", err)
	}

	refreshToken, err := m.sign(identifier, TokenTypeRefresh, now, now.Add(m.refreshTTL))
	if err != nil {
		return nil, fmt.Errorf("token manager: refresh: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    m.accessTTL,
		Subject:      identifier,
	}, nil
}

// ValidateAccess проверяет access токен.
func (m *TokenManager) ValidateAccess(ctx context.Context, raw string) (*Claims, error) {
	return m.Validate(ctx, raw, TokenTypeAccess)
}

// ValidateRefresh проверяет refresh токен, включая чёрный список.
func (m *TokenManager) ValidateRefresh(ctx context.Context, raw string) (*Claims, error) {
	return m.Validate(ctx, raw, TokenTypeRefresh)
}

// Validate разбирает токен ожидаемого типа. Ошибки: ErrTokenExpired,
// ErrTokenMalformed, ErrTokenRevoked (только для refresh).
func (m *TokenManager) Validate(ctx context.Context, raw string, typ TokenType) (*Claims, error) {
	claims, err := m.parse(raw, typ, jwt.WithExpirationRequired(), jwt.WithTimeFunc(m.now))
	if err != nil {
		return nil, err
	}

	if typ == TokenTypeRefresh {
		revoked, err := m.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("token manager: проверка отзыва: %w", err)
		}
		if revoked {
			return nil, apperror.ErrTokenRevoked
		}
	}

	return claims, nil
}

// Revoke заносит refresh токен в чёрный список до истечения его срока.
// Повторный отзыв и отзыв уже истёкшего токена не считаются ошибкой.
func (m *TokenManager) Revoke(ctx context.Context, refreshToken string) error {
	claims, err := m.parse(refreshToken, TokenTypeRefresh, jwt.WithoutClaimsValidation())
	if err != nil {
		return err
	}
	return m.revokeClaims(ctx, claims)
}

func (m *TokenManager) revokeClaims(ctx context.Context, claims *Claims) error {
	if claims.ExpiresAt == nil || !claims.ExpiresAt.Time.After(m.now()) {
		return nil
	}
	if err := m.revoked.Revoke(ctx, claims.ID, claims.Subject, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("token manager: revoke: %w", err)
	}
	return nil
}

func (m *TokenManager) parse(raw string, typ TokenType, opts ...jwt.ParserOption) (*Claims, error) {
	secret := m.accessSecret
	if typ == TokenTypeRefresh {
		secret = m.refreshSecret
	}

	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.ErrTokenExpired
		}
		return nil, apperror.ErrTokenMalformed
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Type != typ || claims.Subject == "" || claims.ID == "" {
		return nil, apperror.ErrTokenMalformed
	}

	return claims, nil
}

// sign формирует токен со случайным jti.
func (m *TokenManager) sign(identifier string, typ TokenType, now, exp time.Time) (string, error) {
	secret := m.accessSecret
	if typ == TokenTypeRefresh {
		secret = m.refreshSecret
	}

	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identifier,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}
