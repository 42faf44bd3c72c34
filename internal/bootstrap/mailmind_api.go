package bootstrap

import (
	"context"
	"strings"
	"time"

	"mailmind_server/adapter/in/http"
	"mailmind_server/infra/middleware"
	"mailmind_server/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewAPI builds the fiber application on top of deps.
func NewAPI(deps *Dependencies) *fiber.App {
	cfg := deps.Config

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		AppName:               "mailmind",

		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,

		BodyLimit:          10 * 1024 * 1024,
		ReadBufferSize:     16384,
		DisableDefaultDate: true,
	})

	// Global middleware stack (order matters)
	app.Use(recover.New(recover.Config{EnableStackTrace: cfg.IsDevelopment()}))
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	// Health check (no auth required)
	health := http.NewHealthHandler().
		WithCheck("database", http.HealthCheckerFunc(deps.Store.Ping)).
		WithDBPool(deps.Store.DB.DB)
	if deps.Redis != nil {
		health.WithCheck("redis", http.HealthCheckerFunc(func(ctx context.Context) error {
			return deps.Redis.Ping(ctx).Err()
		}))
	}
	if deps.Mongo != nil {
		health.WithCheck("mongodb", http.HealthCheckerFunc(func(ctx context.Context) error {
			return deps.Mongo.Ping(ctx, nil)
		}))
	}
	if deps.Neo4j != nil {
		health.WithCheck("neo4j", http.HealthCheckerFunc(deps.Neo4j.VerifyConnectivity))
	}
	health.Register(app)

	api := app.Group("/api/v1")
	if cfg.JWTSecret != "" {
		api.Use(middleware.JWTAuth(cfg.JWTSecret))
	} else {
		logger.Warn("JWT_SECRET not set, /api/v1 is unauthenticated")
	}

	if cfg.AgentRateLimit > 0 {
		api.Use("/agents", middleware.NewRateLimiter(cfg.AgentRateLimit, time.Minute).Handler())
	}

	http.NewSkillHandler(deps.SkillService).Register(api)
	http.NewEmailHandler(deps.EmailService, deps.ReplyService, deps.JobService).Register(api)
	http.NewAgentHandler(
		deps.ExecutionAgent,
		deps.EvolutionAgent,
		deps.LearningAgent,
		deps.SkillService,
		deps.JobService,
	).Register(api)
	http.NewJobHandler(deps.JobService).Register(api)

	return app
}
