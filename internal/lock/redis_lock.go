package lock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/ignatzorin/nova-auth/internal/logger"
)

var errLockBusy = errors.New("lock: ключ занят")

// releaseScript удаляет ключ только если он всё ещё принадлежит владельцу.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript продлевает ключ только для его владельца.
var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker реализует распределённую блокировку для нескольких инстансов сервиса.
// TTL ограничивает время удержания, если процесс упадёт, не сняв блокировку.
// Пока блокировка удерживается, она продлевается каждые TTL/3.
type RedisLocker struct {
	client    redis.UniversalClient
	prefix    string
	ttl       time.Duration
	pollEvery time.Duration
}

// NewRedisLocker создаёт блокировщик поверх Redis.
func NewRedisLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisLocker {
	prefix = strings.TrimSuffix(prefix, ":")
	if prefix == "" {
		prefix = "nova:lock"
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{
		client:    client,
		prefix:    prefix,
		ttl:       ttl,
		pollEvery: 20 * time.Millisecond,
	}
}

// Lock ждёт освобождения ключа, опрашивая Redis, пока не истечёт ctx.
func (l *RedisLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	redisKey := l.prefix + ":" + key
	owner := uuid.NewString()

	backoff := retry.WithCappedDuration(200*time.Millisecond, retry.NewExponential(l.pollEvery))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := l.client.SetNX(ctx, redisKey, owner, l.ttl).Result()
		if err != nil {
			return err
		}
		if !ok {
			return retry.RetryableError(errLockBusy)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("lock: не удалось захватить %q: %w", key, err)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(redisKey, owner, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done

			// Снимаем блокировку даже если контекст запроса уже отменён.
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			released, err := releaseScript.Run(releaseCtx, l.client, []string{redisKey}, owner).Int()
			if err != nil {
				logger.Log.WithField("key", redisKey).WithError(err).Warn("lock: не удалось снять блокировку")
				return
			}
			if released == 0 {
				logger.Log.WithField("key", redisKey).Warn("lock: блокировка истекла и перехвачена до снятия")
			}
		})
	}, nil
}

func (l *RedisLocker) keepAlive(redisKey, owner string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			extended, err := extendScript.Run(ctx, l.client, []string{redisKey}, owner, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				logger.Log.WithField("key", redisKey).WithError(err).Warn("lock: не удалось продлить блокировку")
				continue
			}
			if extended == 0 {
				logger.Log.WithField("key", redisKey).Warn("lock: блокировка потеряна до снятия")
				return
			}
		}
	}
}
