package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/welldanyogia/infinimail-threads/internal/api/handlers"
	"github.com/welldanyogia/infinimail-threads/internal/api/middleware"
	"github.com/welldanyogia/infinimail-threads/internal/logger"
	"github.com/welldanyogia/infinimail-threads/internal/repository"
	"github.com/welldanyogia/infinimail-threads/internal/services"
	"github.com/welldanyogia/infinimail-threads/internal/websocket"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// RouterConfig holds dependencies for the router
type RouterConfig struct {
	DB     *gorm.DB
	Logger *slog.Logger

	Threads    services.ThreadService
	Lookup     services.ThreadLookup
	Reconciler services.Reconciler
	Ingestor   services.Ingestor
	Messages   repository.MessageRepository
	Domains    repository.DomainRepository
	Hub        *websocket.Hub

	HealthChecks []handlers.HealthCheck

	// Security configuration
	APIKey         string   // API key for authentication (empty = disabled)
	AllowedOrigins []string // Allowed CORS and websocket origins
	RateLimit      float64  // Requests per second per organization
	RateBurst      int      // Burst size for rate limiter
	RateLimiter    *middleware.KeyedRateLimiter
}

// NewRouter creates and configures the Echo router with all routes
func NewRouter(cfg *RouterConfig) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	security := logger.NewSecurityLoggerFrom(log)

	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = middleware.NewKeyedRateLimiter(ratePerSecond(cfg.RateLimit), cfg.RateBurst)
	}

	e.Use(middleware.Recover(log))
	e.Use(middleware.SecureHeaders())
	e.Use(middleware.SecureCORS(cfg.AllowedOrigins))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.HealthChecks...)
	threadHandler := handlers.NewThreadHandler(cfg.Threads, cfg.Lookup, cfg.Reconciler, log)
	messageHandler := handlers.NewMessageHandler(cfg.Ingestor, cfg.Threads, log)
	webhookHandler := handlers.NewWebhookHandler(cfg.Messages, notifier(cfg.Hub), log)
	domainHandler := handlers.NewDomainHandler(cfg.Domains, log)

	// Health routes (no auth, no tenant)
	e.GET("/health", healthHandler.Health)
	e.GET("/ready", healthHandler.Ready)

	// Tenant-scoped routes. Auth runs first so unauthenticated callers
	// never reach tenant validation or spend a tenant's rate budget.
	scoped := []echo.MiddlewareFunc{
		middleware.APIKeyAuth(cfg.APIKey, security),
		middleware.Tenant(security),
		middleware.RateLimiterWithLimiter(limiter, security),
		middleware.RequestLogger(log),
	}

	api := e.Group("/api", scoped...)

	threads := api.Group("/threads")
	threads.POST("/match", threadHandler.Match)
	threads.POST("/resolve", threadHandler.Resolve)
	threads.GET("", threadHandler.List)
	threads.GET("/:id", threadHandler.Get)
	threads.GET("/:id/messages", threadHandler.Messages)
	threads.PATCH("/:id/read", threadHandler.MarkAsRead)
	threads.PUT("/:id/analysis", threadHandler.UpdateAnalysis)
	threads.PATCH("/:id/status", threadHandler.UpdateStatus)
	threads.PATCH("/:id/priority", threadHandler.UpdatePriority)
	threads.PUT("/:id/assignment", threadHandler.Assign)
	threads.GET("/:id/assignments", threadHandler.Assignments)

	api.GET("/workload", threadHandler.Workload)

	messages := api.Group("/messages")
	messages.POST("", messageHandler.Create)
	messages.PATCH("/:id/read", messageHandler.MarkAsRead)

	api.POST("/webhooks/inbound", webhookHandler.Inbound)

	domains := api.Group("/domains")
	domains.GET("", domainHandler.List)
	domains.POST("", domainHandler.Create)
	domains.DELETE("/:id", domainHandler.Delete)

	if cfg.Hub != nil {
		wsHandler := handlers.NewWebSocketHandler(cfg.Hub, websocket.NewSecureUpgrader(cfg.AllowedOrigins, security), log)
		e.GET("/ws", wsHandler.Connect, scoped...)
	}

	return e
}

func notifier(hub *websocket.Hub) services.Notifier {
	if hub == nil {
		return nil
	}
	return hub
}

func ratePerSecond(requests float64) rate.Limit {
	if requests <= 0 {
		return rate.Inf
	}
	return rate.Limit(requests)
}
