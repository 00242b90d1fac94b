package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/birbparty/jira-nest/internal/telemetry"
)

// SetupMiddleware configures all middleware for the application
func SetupMiddleware(app *fiber.App, cfg *Config) {
	app.Use(requestid.New())

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key",
	}))

	if cfg.TelemetryEnabled {
		app.Use(telemetry.FiberMetricsMiddleware())
	}
	app.Use(telemetry.FiberLoggingMiddleware())

	app.Use(errorHandler())
	app.Use(timingMiddleware())
}

// ErrorHandler is the app-level fiber error handler
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(NewErrorResponse(message, errorCode(code)))
}

// errorHandler turns errors returned by handlers into JSON responses
func errorHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()
		if err == nil {
			return nil
		}

		telemetry.WithContext(c.UserContext()).
			WithError(err).
			WithField("path", c.Path()).
			WithField("method", c.Method()).
			Error("Unhandled request error")

		return ErrorHandler(c, err)
	}
}

func errorCode(status int) string {
	switch status {
	case fiber.StatusNotFound:
		return ErrCodeNotFound
	case fiber.StatusBadRequest:
		return ErrCodeInvalidRequest
	case fiber.StatusRequestTimeout, fiber.StatusGatewayTimeout:
		return ErrCodeTimeout
	case fiber.StatusTooManyRequests:
		return ErrCodeRateLimited
	case fiber.StatusUnauthorized:
		return ErrCodeUnauthorized
	}
	return ErrCodeInternalError
}

// timingMiddleware adds request timing headers
func timingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		c.Set("X-Response-Time", fmt.Sprintf("%d ms", time.Since(start).Milliseconds()))
		return err
	}
}

// ValidateAPIKey checks X-API-Key or a bearer token against apiKey
func ValidateAPIKey(apiKey string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if apiKey == "" {
			return c.Next()
		}

		key := c.Get("X-API-Key")
		if key == "" {
			if auth := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key != apiKey {
			return c.Status(fiber.StatusUnauthorized).JSON(
				NewErrorResponse("Invalid or missing API key", ErrCodeUnauthorized),
			)
		}
		return c.Next()
	}
}

// RateLimiter limits each client IP to requestsPerMinute
func RateLimiter(requestsPerMinute int) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        requestsPerMinute,
		Expiration: time.Minute,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(
				NewErrorResponse("Rate limit exceeded", ErrCodeRateLimited),
			)
		},
	})
}
