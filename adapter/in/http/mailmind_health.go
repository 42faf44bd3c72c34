package http

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"mailmind_server/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthCheckerFunc adapts a plain function to HealthChecker.
type HealthCheckerFunc func(ctx context.Context) error

func (f HealthCheckerFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	checks map[string]HealthChecker
	db     *sql.DB
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{checks: make(map[string]HealthChecker)}
}

// WithCheck adds a named dependency to the readiness probe.
func (h *HealthHandler) WithCheck(name string, checker HealthChecker) *HealthHandler {
	h.checks[name] = checker
	return h
}

// WithDBPool reports connection pool pressure in the readiness probe.
func (h *HealthHandler) WithDBPool(db *sql.DB) *HealthHandler {
	h.db = db
	return h
}

func (h *HealthHandler) Register(app *fiber.App) {
	app.Get("/health", h.Health)
	app.Get("/ready", h.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]string, len(names))
	allHealthy := true
	for _, name := range names {
		if err := h.checks[name].Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			allHealthy = false
		} else {
			checks[name] = "healthy"
		}
	}

	body := fiber.Map{
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if h.db != nil {
		stats := metrics.GetDBPoolStats(h.db)
		health := metrics.AssessDBPoolHealth(stats)
		body["db_pool"] = fiber.Map{"stats": stats, "health": health}
	}

	status := "ready"
	statusCode := fiber.StatusOK
	if !allHealthy {
		status = "not ready"
		statusCode = fiber.StatusServiceUnavailable
	}
	body["status"] = status

	return c.Status(statusCode).JSON(body)
}
