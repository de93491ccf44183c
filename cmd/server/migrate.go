package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/nova-auth/internal/db"
)

// NewMigrateCmd создаёт команду применения миграций.
func NewMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции базы данных",
		Long: `Применяет все неприменённые миграции. По умолчанию используются миграции,
встроенные в бинарник, MIGRATIONS_PATH переопределяет каталог.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, statusOnly)
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "только показать неприменённые миграции")
	return cmd
}

func runMigrate(cmd *cobra.Command, statusOnly bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cmd.Println("Подключение к базе...")
	conn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("ошибка подключения к базе: %w", err)
	}
	defer conn.Close()

	fsys := db.MigrationsFS(cfg.MigrationsPath)

	if statusOnly {
		pending, err := db.PendingMigrations(ctx, conn, fsys)
		if err != nil {
			return fmt.Errorf("ошибка чтения статуса миграций: %w", err)
		}
		printMigrations(cmd, "Неприменённые миграции", pending)
		return nil
	}

	applied, err := db.RunMigrations(ctx, conn, fsys)
	if err != nil {
		return fmt.Errorf("ошибка миграций: %w", err)
	}
	printMigrations(cmd, "Применены миграции", applied)
	return nil
}

func printMigrations(cmd *cobra.Command, title string, names []string) {
	if len(names) == 0 {
		cmd.Println(title + ": нет")
		return
	}
	cmd.Printf("%s (%d):\n", title, len(names))
	for _, name := range names {
		cmd.Println("  " + name)
	}
}
