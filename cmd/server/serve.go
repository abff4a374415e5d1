package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/bounty-backend/internal/db"
	"github.com/ignatzorin/bounty-backend/internal/goroutine"
	"github.com/ignatzorin/bounty-backend/internal/http/handlers"
	"github.com/ignatzorin/bounty-backend/internal/http/router"
	"github.com/ignatzorin/bounty-backend/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Запустить HTTP API, хаб вебсокетов и свипер",
	RunE:  runServe,
}

var skipMigrations bool

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "не применять миграции при старте")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.WithComponent("main")

	if !skipMigrations {
		if _, err := db.RunMigrations(ctx, a.db, cfg.MigrationsPath); err != nil {
			return err
		}
	}

	goroutine.SafeGoWithContext(ctx, a.hub.Run)
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		a.sweeper.Run(ctx, cfg.SweepInterval)
	})

	engine := router.SetupRouter(cfg, router.Handlers{
		Auth:     handlers.NewAuthHandler(a.auth),
		Bounty:   handlers.NewBountyHandler(a.bounties),
		Boost:    handlers.NewBoostHandler(a.boosts),
		Points:   handlers.NewPointsHandler(a.points),
		Wallet:   handlers.NewWalletHandler(a.wallets),
		Activity: handlers.NewActivityHandler(a.activity),
		Webhook:  handlers.NewWebhookHandler(a.reconciler),
		Admin:    handlers.NewAdminHandler(a.sweeper),
		Health:   handlers.NewHealthHandler(a.db, a.redis),
		WS:       handlers.NewWSHandler(a.hub, a.tokens, cfg.AllowedOrigins),
	}, a.tokens)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("ошибка остановки http сервера")
		}
	}()

	log.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("HTTP сервер остановлен")
	return nil
}
