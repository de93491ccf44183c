package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisRevocationStore хранит отозванные jti в Redis. Ключ живёт ровно до
// истечения самого токена, поэтому чистка не нужна.
type RedisRevocationStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRedisRevocationStore(client redis.UniversalClient) *RedisRevocationStore {
	return &RedisRevocationStore{
		client: client,
		prefix: "nova:revoked:",
		now:    time.Now,
	}
}

// Revoke добавляет jti в чёрный список. Уже истёкшие токены не записываются.
func (s *RedisRevocationStore) Revoke(ctx context.Context, jti, subject string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.client.SetNX(ctx, s.prefix+jti, subject, ttl).Err(); err != nil {
		return fmt.Errorf("revocation store: revoke %w", err)
	}
	return nil
}

// IsRevoked проверяет наличие jti в чёрном списке.
func (s *RedisRevocationStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	err := s.client.Get(ctx, s.prefix+jti).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("revocation store: is revoked %w", err)
	}
	return true, nil
}

// DeleteExpired ничего не делает: Redis удаляет ключи по TTL.
func (s *RedisRevocationStore) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}
