package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"github.com/welldanyogia/infinimail-threads/internal/api"
	"github.com/welldanyogia/infinimail-threads/internal/api/handlers"
	"github.com/welldanyogia/infinimail-threads/internal/api/middleware"
	"github.com/welldanyogia/infinimail-threads/internal/config"
	"github.com/welldanyogia/infinimail-threads/internal/database"
	"github.com/welldanyogia/infinimail-threads/internal/lock"
	"github.com/welldanyogia/infinimail-threads/internal/logger"
	"github.com/welldanyogia/infinimail-threads/internal/services"
	"github.com/welldanyogia/infinimail-threads/internal/smtp"
	"github.com/welldanyogia/infinimail-threads/internal/websocket"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	shutdownTimeout    = 15 * time.Second
	limiterIdleTimeout = 10 * time.Minute
	limiterSweepEvery  = time.Minute
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadWithValidation()
	if err != nil {
		return err
	}

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting infinimail threading server")
	cfg.LogConfig(log)

	db, err := database.Connect(cfg.DatabaseURL, database.WithLogger(log))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	var (
		locker       lock.Locker = lock.NewLocalLocker()
		healthChecks []handlers.HealthCheck
	)
	if cfg.RedisURL != "" {
		redisLocker, err := lock.NewRedisLocker(cfg.RedisURL, log)
		if err != nil {
			return err
		}
		defer redisLocker.Close()
		locker = redisLocker
		healthChecks = append(healthChecks, handlers.HealthCheck{Name: "redis", Ping: redisLocker.Ping})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := websocket.NewHub(log)
	engine := services.NewEngine(db, services.EngineConfig{
		Locker:                locker,
		LockTTL:               cfg.ResolverLockTTL,
		SubjectCandidateLimit: cfg.SubjectCandidateLimit,
		ReferenceLookupLimit:  cfg.ReferenceLookupLimit,
		MaxActivityRetries:    cfg.MaxActivityRetries,
		Notifier:              hub,
		Logger:                log,
	})

	limit := rate.Inf
	if cfg.RateLimitRequests > 0 {
		limit = rate.Limit(cfg.RateLimitRequests)
	}
	limiter := middleware.NewKeyedRateLimiter(limit, cfg.RateLimitBurst)
	router := api.NewRouter(&api.RouterConfig{
		DB:             db,
		Logger:         log,
		Threads:        engine.Service,
		Lookup:         engine.Matcher,
		Reconciler:     engine.Resolver,
		Ingestor:       engine.Ingestor,
		Messages:       engine.Messages,
		Domains:        engine.Domains,
		Hub:            hub,
		HealthChecks:   healthChecks,
		APIKey:         cfg.APIKey,
		AllowedOrigins: middleware.ParseOrigins(cfg.AllowedOrigins, cfg.AppEnv),
		RateLimiter:    limiter,
	})

	var smtpServer *gosmtp.Server
	if cfg.SMTPEnabled {
		tlsConfig, err := smtp.LoadTLSConfig(cfg.SMTPTLSCert, cfg.SMTPTLSKey)
		if err != nil {
			return err
		}
		backend := smtp.NewBackend(&smtp.BackendConfig{
			Domains:  engine.Domains,
			Ingestor: engine.Ingestor,
			Hostname: cfg.SMTPHostname,
			Logger:   log,
		})
		smtpServer = smtp.NewSecureServer(backend, &smtp.ServerConfig{
			Addr:      fmt.Sprintf(":%d", cfg.SMTPPort),
			Domain:    cfg.SMTPHostname,
			TLSConfig: tlsConfig,
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(limiterSweepEvery)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := limiter.CleanupIdle(limiterIdleTimeout); n > 0 {
					log.Debug("evicted idle rate limiters", slog.Int("count", n))
				}
			}
		}
	})

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", cfg.APIPort)
		log.Info("HTTP server listening", slog.String("addr", addr))
		if err := router.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if smtpServer != nil {
		g.Go(func() error {
			log.Info("SMTP server listening", slog.String("addr", smtpServer.Addr))
			if err := smtpServer.ListenAndServe(); err != nil && !errors.Is(err, gosmtp.ErrServerClosed) {
				return fmt.Errorf("smtp server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := router.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", slog.Any("error", err))
		}
		if smtpServer != nil {
			if err := smtpServer.Shutdown(shutdownCtx); err != nil {
				log.Error("smtp shutdown failed", slog.Any("error", err))
			}
		}
		return nil
	})

	err = g.Wait()
	log.Info("server stopped")
	return err
}
