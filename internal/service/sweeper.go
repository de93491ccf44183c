package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ignatzorin/nova-auth/internal/logger"
	"github.com/ignatzorin/nova-auth/internal/metrics"
)

// Интерфейсы чистки реализуют репозитории Postgres и хранилище отзывов в Redis.
type (
	OTPSweeper interface {
		DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
	SessionSweeper interface {
		DeleteUpdatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	}
	RevocationSweeper interface {
		DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	}
)

// SweepStats показывает, сколько строк удалено за один проход.
type SweepStats struct {
	OTPs        int64
	Sessions    int64
	Revocations int64
}

// Sweeper удаляет старые коды, заброшенные сессии и истёкшие записи об отзыве.
// Корректность сервиса от него не зависит, он только освобождает место.
type Sweeper struct {
	otps        OTPSweeper
	sessions    SessionSweeper
	revocations RevocationSweeper
	retention   time.Duration
	now         func() time.Time
}

// NewSweeper создаёт чистильщик. retention задаёт срок хранения кодов и сессий.
func NewSweeper(otps OTPSweeper, sessions SessionSweeper, revocations RevocationSweeper, retention time.Duration) *Sweeper {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Sweeper{
		otps:        otps,
		sessions:    sessions,
		revocations: revocations,
		retention:   retention,
		now:         time.Now,
	}
}

// SweepOnce выполняет один проход.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats
	now := s.now().UTC()
	cutoff := now.Add(-s.retention)

	n, err := s.otps.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("sweeper: otp codes: %w", err)
	}
	stats.OTPs = n
	metrics.RecordSwept("otp_codes", n)

	n, err = s.sessions.DeleteUpdatedBefore(ctx, cutoff)
	if err != nil {
		return stats, fmt.Errorf("sweeper: verification sessions: %w", err)
	}
	stats.Sessions = n
	metrics.RecordSwept("verification_sessions", n)

	n, err = s.revocations.DeleteExpired(ctx, now)
	if err != nil {
		return stats, fmt.Errorf("sweeper: revoked tokens: %w", err)
	}
	stats.Revocations = n
	metrics.RecordSwept("revoked_tokens", n)

	return stats, nil
}

// Run запускает проходы с интервалом interval до отмены ctx.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := s.SweepOnce(ctx)
			if err != nil {
				logger.Log.WithError(err).Warn("sweeper: проход завершился с ошибкой")
				continue
			}
			logger.Log.WithField("otps", stats.OTPs).
				WithField("sessions", stats.Sessions).
				WithField("revocations", stats.Revocations).
				Debug("sweeper: проход завершён")
		}
	}
}
