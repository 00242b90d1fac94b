package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/birbparty/jira-nest/internal/telemetry"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler, cfg *Config) {
	jira := app.Group("/api/jira")

	if cfg.RateLimit > 0 {
		jira.Use(RateLimiter(cfg.RateLimit))
	}
	if cfg.APIKey != "" {
		jira.Use(ValidateAPIKey(cfg.APIKey))
	}

	issues := jira.Group("/issues")
	issues.Get("/yesterday/:issueType", handler.FetchYesterday)
	issues.Post("/sync/:issueType", handler.SyncIssueType)
	issues.Get("/stored/:issueType", handler.StoredIssues)
	issues.Get("/search", handler.Search)
	issues.Get("/key/:issueKey", handler.IssueByKey)

	jira.Get("/stats", handler.Stats)
	jira.Get("/fields", handler.Fields)
	jira.Get("/fields/custom", handler.CustomFields)
	jira.Get("/connection", handler.Connection)

	// Health and metrics endpoints (no auth required)
	app.Get("/health", handler.Health)
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	app.Get(metricsPath, adaptor.HTTPHandler(telemetry.PrometheusHandler()))

	app.Get("/", handler.Root)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Endpoint not found", ErrCodeNotFound),
		)
	})
}

// NewApp creates a fiber app with middleware and routes installed
func NewApp(handler *Handler, cfg *Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ErrorHandler:          ErrorHandler,
		ReadTimeout:           time.Duration(cfg.RequestTimeout) * time.Second,
		WriteTimeout:          time.Duration(cfg.RequestTimeout) * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
	})

	SetupMiddleware(app, cfg)
	SetupRoutes(app, handler, cfg)
	return app
}
