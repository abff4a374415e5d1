package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/bounty-backend/internal/cache"
	"github.com/ignatzorin/bounty-backend/internal/config"
	"github.com/ignatzorin/bounty-backend/internal/db"
	"github.com/ignatzorin/bounty-backend/internal/logger"
	"github.com/ignatzorin/bounty-backend/internal/payment"
	"github.com/ignatzorin/bounty-backend/internal/payment/sandbox"
	"github.com/ignatzorin/bounty-backend/internal/payment/stripe"
	"github.com/ignatzorin/bounty-backend/internal/pkg/retry"
	"github.com/ignatzorin/bounty-backend/internal/repository"
	"github.com/ignatzorin/bounty-backend/internal/service"
	"github.com/ignatzorin/bounty-backend/internal/ws"
)

// app держит инфраструктуру и сервисы, общие для всех команд.
type app struct {
	cfg    *config.Config
	db     *sqlx.DB
	redis  *redis.Client
	store  cache.Store
	hub    *ws.Hub
	tokens *service.TokenManager

	users      *repository.UserRepository
	bounty     *repository.BountyRepository
	auth       *service.AuthService
	bounties   *service.BountyService
	boosts     *service.BoostService
	points     *service.PointsService
	wallets    *service.WalletService
	activity   *service.ActivityService
	reconciler *service.Reconciler
	sweeper    *service.Sweeper
}

// loadConfig читает конфигурацию и настраивает логгер.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации: %w", err)
	}

	if cfg.Env == "development" {
		logger.Init("debug")
		logger.SetTextFormatter()
	} else {
		logger.Init("info")
	}
	return cfg, nil
}

// newApp подключается к базе и кэшу и собирает сервисы.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log := logger.WithComponent("main")

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("подключение к базе: %w", err)
	}

	a := &app{cfg: cfg, db: dbConn}

	// Без Redis дедупликация и блокировка свипера работают в пределах процесса.
	if cfg.RedisAddr != "" {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			_ = dbConn.Close()
			return nil, fmt.Errorf("подключение к redis: %w", err)
		}
		a.redis = client
		a.store = cache.NewRedisStore(client)
	} else {
		log.Warn("REDIS_ADDR не задан, используется кэш в памяти")
		mem := cache.NewMemoryStore()
		go mem.Cleanup(ctx, time.Minute)
		a.store = mem
	}

	policy := retry.Policy{
		Timeout:  cfg.ExternalCallTimeout,
		Attempts: cfg.ExternalCallAttempts,
		Backoff:  cfg.ExternalCallBackoff,
	}

	var provider payment.Provider
	if cfg.StripeSecretKey != "" {
		provider = stripe.New(stripe.Config{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookSecret,
			Currency:      cfg.PaymentCurrency,
		}, policy)
	} else {
		log.Warn("STRIPE_SECRET_KEY не задан, используется песочница платежей")
		provider = sandbox.New(cfg.StripeWebhookSecret)
	}

	a.tokens = service.NewTokenManager(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	// Репозитории.
	a.users = repository.NewUserRepository(dbConn)
	a.bounty = repository.NewBountyRepository(dbConn, policy)
	ledgerRepo := repository.NewLedgerRepository(dbConn, policy)
	pointsRepo := repository.NewPointsRepository(dbConn, policy)
	activityRepo := repository.NewActivityRepository(dbConn)
	eventRepo := repository.NewEventRepository(dbConn)

	// Лента активности сохраняется и рассылается через хаб.
	a.activity = service.NewActivityService(activityRepo)
	a.hub = ws.NewHub()
	a.hub.SetActivitySaver(a.activity)

	// Сервисы.
	a.auth = service.NewAuthService(a.users, a.tokens, a.hub)
	a.bounties = service.NewBountyService(ledgerRepo, a.bounty, a.hub)
	a.boosts = service.NewBoostService(ledgerRepo, a.bounty, a.hub)
	a.points = service.NewPointsService(pointsRepo, a.users, provider, a.hub)
	a.wallets = service.NewWalletService(ledgerRepo, a.users)
	a.reconciler = service.NewReconciler(provider, a.points, eventRepo, a.store, a.hub)

	sweepCfg := service.DefaultSweeperConfig()
	sweepCfg.Concurrency = cfg.SweepConcurrency
	a.sweeper = service.NewSweeper(a.bounty, a.bounties, a.boosts, a.store, sweepCfg)
	a.bounties.SetListingHook(a.sweeper.Trigger)

	return a, nil
}

// Close освобождает соединения.
func (a *app) Close() {
	log := logger.WithComponent("main")
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			log.WithError(err).Warn("ошибка закрытия redis")
		}
	}
	if err := a.db.Close(); err != nil {
		log.WithError(err).Warn("ошибка закрытия базы")
	}
}
