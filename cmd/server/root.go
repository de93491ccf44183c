package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/nova-auth/internal/config"
	"github.com/ignatzorin/nova-auth/internal/logger"
)

// NewRootCmd создаёт корневую команду nova-auth.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nova-auth",
		Short: "NOVA auth - регистрация по email, сброс пароля и выдача JWT",
		Long: `nova-auth обслуживает /api/auth: подтверждение email одноразовым кодом,
установку и сброс пароля, вход, выход и обмен refresh токенов.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSweepCmd())

	return cmd
}

// loadConfig читает конфигурацию и настраивает логгер.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	level := cfg.LogLevel
	if cfg.Env == "development" && level == "info" {
		level = "debug"
	}
	logger.Init(level)
	if !cfg.IsProduction() {
		logger.SetTextFormatter()
	}

	return cfg, nil
}
