package main

import (
	"github.com/spf13/cobra"

	"github.com/ignatzorin/bounty-backend/internal/db"
	"github.com/ignatzorin/bounty-backend/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Применить миграции базы данных",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		conn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
		if err != nil {
			return err
		}
		defer conn.Close()

		applied, err := db.RunMigrations(ctx, conn, cfg.MigrationsPath)
		if err != nil {
			return err
		}

		logger.WithComponent("migrate").WithField("applied", len(applied)).Info("migrations completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
