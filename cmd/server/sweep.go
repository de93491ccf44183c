package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// NewSweepCmd создаёт команду разовой чистки устаревших записей.
func NewSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Удалить устаревшие коды, сессии подтверждения и отозванные токены",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			d, err := newDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer d.Close()

			stats, err := d.sweeper.SweepOnce(ctx)
			if err != nil {
				return fmt.Errorf("ошибка чистки: %w", err)
			}

			cmd.Printf("Удалено: кодов %d, сессий %d, отозванных токенов %d\n", stats.OTPs, stats.Sessions, stats.Revocations)
			return nil
		},
	}
}
