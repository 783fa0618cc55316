package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const checkTimeout = 5 * time.Second

// HealthCheck pings one dependency besides the database
type HealthCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// HealthHandler serves liveness and readiness checks
type HealthHandler struct {
	database HealthCheck
	checks   []HealthCheck
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db *gorm.DB, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		database: HealthCheck{Name: "database", Ping: pingDatabase(db)},
		checks:   checks,
	}
}

func pingDatabase(db *gorm.DB) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}

// Health handles GET /health. Every check runs concurrently and any failure
// makes the whole service unhealthy.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	all := append([]HealthCheck{h.database}, h.checks...)
	services := make(map[string]string, len(all))
	var mu sync.Mutex

	var g errgroup.Group
	for _, check := range all {
		g.Go(func() error {
			state := "healthy"
			if err := check.Ping(ctx); err != nil {
				state = "unhealthy"
			}
			mu.Lock()
			services[check.Name] = state
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	resp := HealthResponse{Status: "healthy", Services: services}
	for _, state := range services {
		if state != "healthy" {
			resp.Status = "unhealthy"
			return c.JSON(http.StatusServiceUnavailable, resp)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// Ready handles GET /ready. Only the database gates readiness.
func (h *HealthHandler) Ready(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), checkTimeout)
	defer cancel()

	if err := h.database.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}
