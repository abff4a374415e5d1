package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ignatzorin/bounty-backend/internal/config"
	"github.com/ignatzorin/bounty-backend/internal/http/handlers"
	"github.com/ignatzorin/bounty-backend/internal/http/middleware"
	"github.com/ignatzorin/bounty-backend/internal/models"
)

// Handlers собирает все HTTP хэндлеры приложения.
type Handlers struct {
	Auth     *handlers.AuthHandler
	Bounty   *handlers.BountyHandler
	Boost    *handlers.BoostHandler
	Points   *handlers.PointsHandler
	Wallet   *handlers.WalletHandler
	Activity *handlers.ActivityHandler
	Webhook  *handlers.WebhookHandler
	Admin    *handlers.AdminHandler
	Health   *handlers.HealthHandler
	WS       *handlers.WSHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokens middleware.AccessParser) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		authGroup.POST("/register", h.Auth.Register)
		authGroup.POST("/login", h.Auth.Login)
		authGroup.POST("/refresh", h.Auth.Refresh)
	}

	// Вебхук аутентифицируется подписью, а не токеном.
	api.POST("/webhooks/stripe", h.Webhook.Stripe)

	// Публичные маршруты
	api.GET("/bounties", h.Bounty.List)
	api.GET("/bounties/:id", middleware.UUIDValidator("id"), h.Bounty.Get)
	api.GET("/points/packages", h.Points.Packages)
	api.GET("/boosts/tiers", h.Boost.Tiers)
	api.GET("/ws", h.WS.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokens))
	{
		protected.GET("/auth/me", h.Auth.Me)

		protected.POST("/bounties", h.Bounty.Post)
		protected.GET("/bounties/my", h.Bounty.ListMine)
		protected.POST("/bounties/:id/complete", middleware.UUIDValidator("id"), h.Bounty.Complete)
		protected.DELETE("/bounties/:id", middleware.UUIDValidator("id"), h.Bounty.Delete)
		protected.POST("/bounties/:id/boost", middleware.UUIDValidator("id"), h.Boost.Boost)
		protected.POST("/bounties/:id/applications", middleware.UUIDValidator("id"), h.Bounty.Apply)
		protected.GET("/bounties/:id/applications", middleware.UUIDValidator("id"), h.Bounty.ListApplications)
		protected.PUT("/applications/:id/status", middleware.UUIDValidator("id"), h.Bounty.DecideApplication)

		protected.GET("/wallet", h.Wallet.Get)
		protected.GET("/wallet/transactions", h.Wallet.Transactions)
		protected.POST("/wallet/withdraw", h.Wallet.Withdraw)

		// Операции с провайдером ограничены отдельно от остального API.
		payments := protected.Group("/")
		payments.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
		{
			payments.POST("/wallet/deposit", h.Points.Deposit)
			payments.POST("/points/purchase", h.Points.Purchase)
			payments.POST("/payments/confirm", h.Points.Confirm)
			payments.POST("/points/purchases/:id/refund", middleware.UUIDValidator("id"), h.Points.Refund)
		}
		protected.GET("/points/purchases", h.Points.Purchases)

		protected.GET("/activity", h.Activity.List)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokens), middleware.RequireRole(models.RoleAdmin))
	{
		admin.POST("/bounties/:id/expire", middleware.UUIDValidator("id"), h.Bounty.Expire)
		admin.GET("/bounties/:id/conservation", middleware.UUIDValidator("id"), h.Bounty.Conservation)
		admin.POST("/sweep", h.Admin.Sweep)
	}

	return r
}
