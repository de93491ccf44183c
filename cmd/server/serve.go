package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/nova-auth/internal/db"
	"github.com/ignatzorin/nova-auth/internal/goroutine"
	httpHandlers "github.com/ignatzorin/nova-auth/internal/http/handlers"
	httpRouter "github.com/ignatzorin/nova-auth/internal/http/router"
	"github.com/ignatzorin/nova-auth/internal/logger"
	"github.com/ignatzorin/nova-auth/internal/mail"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd создаёт команду запуска HTTP сервера.
func NewServeCmd() *cobra.Command {
	var skipMigrations bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP сервер",
		Long: `Применяет миграции, запускает HTTP сервер /api/auth, отправку писем,
вебсокет-хаб и периодическую чистку устаревших кодов и сессий.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), skipMigrations)
		},
	}

	cmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "не применять миграции при старте")
	return cmd
}

func runServe(parent context.Context, skipMigrations bool) error {
	if parent == nil {
		parent = context.Background()
	}
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	d, err := newDeps(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	if !skipMigrations {
		applied, err := db.RunMigrations(ctx, d.db, db.MigrationsFS(cfg.MigrationsPath))
		if err != nil {
			return fmt.Errorf("ошибка миграций: %w", err)
		}
		for _, name := range applied {
			logger.Log.WithField("migration", name).Info("миграция применена")
		}
	}

	var background sync.WaitGroup
	background.Add(2)
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		defer background.Done()
		d.hub.Run(ctx)
	})
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		defer background.Done()
		d.sweeper.Run(ctx, cfg.SweepInterval)
	})
	d.mailer.Start(ctx)

	// HTTP хэндлеры.
	otpHandler := httpHandlers.NewOTPHandler(d.auth, cfg.SessionRetention, cfg.IsProduction())
	passwordHandler := httpHandlers.NewPasswordHandler(d.auth)
	authHandler := httpHandlers.NewAuthHandler(d.auth)
	wsHandler := httpHandlers.NewWSHandler(d.hub, d.tokens, cfg.AllowedOrigins)
	var healthHandler *httpHandlers.HealthHandler
	if d.redis != nil {
		healthHandler = httpHandlers.NewHealthHandler(d.db, d.redis)
	} else {
		healthHandler = httpHandlers.NewHealthHandler(d.db, nil)
	}

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, otpHandler, passwordHandler, authHandler, wsHandler, healthHandler, d.tokens, d.limiterStore, d.registry)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	goroutine.SafeGo(func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Log.WithError(err).Error("ошибка остановки http сервера")
		}
	})

	logger.Log.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		background.Wait()
		drainMail(d.mailer)
		return fmt.Errorf("сервер завершился с ошибкой: %w", err)
	}

	background.Wait()
	drainMail(d.mailer)
	logger.Log.Info("сервер остановлен")
	return nil
}

// drainMail даёт очереди писем не больше shutdownTimeout.
func drainMail(mailer *mail.Dispatcher) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	mailer.Close(ctx)
}
