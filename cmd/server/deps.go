package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"

	"github.com/ignatzorin/nova-auth/internal/config"
	"github.com/ignatzorin/nova-auth/internal/db"
	"github.com/ignatzorin/nova-auth/internal/lock"
	"github.com/ignatzorin/nova-auth/internal/logger"
	"github.com/ignatzorin/nova-auth/internal/mail"
	"github.com/ignatzorin/nova-auth/internal/metrics"
	"github.com/ignatzorin/nova-auth/internal/repository"
	"github.com/ignatzorin/nova-auth/internal/service"
	"github.com/ignatzorin/nova-auth/internal/storage"
	"github.com/ignatzorin/nova-auth/internal/ws"
)

const redisLockTTL = 30 * time.Second

// deps хранит всё, что собирается из конфигурации перед запуском команд.
type deps struct {
	cfg   *config.Config
	db    *sqlx.DB
	redis *redis.Client

	registry     *prometheus.Registry
	limiterStore limiter.Store
	mailer       *mail.Dispatcher
	hub          *ws.Hub

	tokens  *service.TokenManager
	auth    *service.AuthService
	sweeper *service.Sweeper
}

// connect открывает Postgres и, если задан REDIS_URL, Redis.
func connect(ctx context.Context, cfg *config.Config) (*sqlx.DB, *redis.Client, error) {
	conn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("ошибка подключения к базе: %w", err)
	}

	if cfg.RedisURL == "" {
		return conn, nil, nil
	}

	client, err := storage.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}
	return conn, client, nil
}

// newDeps собирает репозитории, хранилища и сервисы.
// С Redis блокировки, чёрный список токенов и счётчики лимитов общие для всех реплик.
func newDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	conn, redisClient, err := connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	d := &deps{cfg: cfg, db: conn, redis: redisClient}

	d.registry = prometheus.NewRegistry()
	d.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.RegisterMetrics(d.registry)

	otpRepo := repository.NewOTPRepository(conn)
	sessionRepo := repository.NewVerificationRepository(conn)
	userRepo := repository.NewUserRepository(conn)

	var (
		locker      lock.Locker
		revocations service.RevocationStore
		revSweeper  service.RevocationSweeper
	)
	if redisClient != nil {
		locker = lock.NewRedisLocker(redisClient, "nova:lock", redisLockTTL)
		store := storage.NewRedisRevocationStore(redisClient)
		revocations, revSweeper = store, store
	} else {
		locker = lock.NewKeyedMutex()
		repo := repository.NewRevocationRepository(conn)
		revocations, revSweeper = repo, repo
	}

	d.limiterStore, err = storage.NewLimiterStore(redisClient, "nova:ratelimit:")
	if err != nil {
		d.Close()
		return nil, err
	}
	otpStore, err := storage.NewLimiterStore(redisClient, "nova:otp-send:")
	if err != nil {
		d.Close()
		return nil, err
	}

	var transport mail.Sender = mail.LogSender{}
	if cfg.SMTP.Host != "" {
		transport = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			From:     cfg.SMTP.From,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
		})
	} else {
		logger.Log.Warn("SMTP_HOST не задан, письма с кодами пишутся в лог")
	}
	d.mailer = mail.NewDispatcher(transport, mail.DispatcherOptions{
		Workers:    cfg.Mail.Workers,
		RatePerSec: cfg.Mail.RatePerSec,
		MaxRetries: cfg.Mail.MaxRetries,
	})

	d.hub = ws.NewHub()

	d.tokens = service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, revocations)
	otps := service.NewOTPService(otpRepo, d.mailer, locker, cfg.OTPTTL)
	sessions := service.NewVerificationService(sessionRepo)
	hasher := service.NewPasswordHasher(cfg.BcryptCost, cfg.HashConcurrency)
	creds := service.NewCredentialService(userRepo, userRepo, hasher, sessions, otps, d.tokens)
	throttle := service.NewOTPThrottle(otpStore, cfg.OTPSendLimit, cfg.OTPSendPeriod)

	d.auth = service.NewAuthService(otps, sessions, creds, d.tokens, locker, throttle, d.hub)
	d.sweeper = service.NewSweeper(otpRepo, sessionRepo, revSweeper, cfg.SessionRetention)

	return d, nil
}

// Close закрывает соединения.
func (d *deps) Close() {
	if d.redis != nil {
		if err := d.redis.Close(); err != nil {
			logger.Log.WithError(err).Warn("ошибка закрытия redis")
		}
	}
	if err := d.db.Close(); err != nil {
		logger.Log.WithError(err).Warn("ошибка закрытия базы")
	}
}
