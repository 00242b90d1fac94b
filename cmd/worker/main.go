package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/birbparty/jira-nest/internal/database"
	"github.com/birbparty/jira-nest/internal/queue"
	"github.com/birbparty/jira-nest/internal/storage"
	"github.com/birbparty/jira-nest/internal/telemetry"
	"github.com/birbparty/jira-nest/internal/worker"
)

func main() {
	telemetryConfig := telemetry.NewConfigFromEnv().ForService("jira-nest-worker")
	if err := telemetry.Init(telemetryConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	log := telemetry.Entry().WithField("component", "worker")
	log.Info("🐦 Jira Nest archive worker starting...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	workerConfig, err := worker.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load worker config")
	}

	dbConfig, err := database.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load database config")
	}

	queueConfig, err := queue.NewConfigFromEnv()
	if err != nil {
		log.WithError(err).Fatal("Failed to load queue config")
	}

	spaces, err := storage.NewSpacesClient(storage.NewSpacesConfigFromEnv())
	if err != nil {
		log.WithError(err).Fatal("Spaces is required for archiving")
	}

	db, err := database.NewDB(ctx, dbConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()
	log.Info("✅ Connected to PostgreSQL")

	queueClient, err := queue.NewClient(queueConfig)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to NATS")
	}
	defer queueClient.Close()
	log.Info("✅ Connected to NATS JetStream")

	metrics := worker.NewMetrics()
	archiver := worker.NewArchiver(workerConfig, database.NewStagingRepository(db), spaces, metrics)

	health := healthApp(metrics, func() error {
		if err := queueClient.Health(); err != nil {
			return err
		}
		hctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.Health(hctx)
	})
	go func() {
		addr := fmt.Sprintf(":%d", workerConfig.HealthCheckPort)
		log.WithField("addr", addr).Info("🏥 Health check server listening")
		if err := health.Listen(addr); err != nil {
			log.WithError(err).Error("Health server error")
		}
	}()

	if err := archiver.Start(ctx, queueClient); err != nil {
		log.WithError(err).Error("Archiver error")
	}

	log.Info("🛑 Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := health.ShutdownWithContext(shutdownCtx); err != nil {
		log.WithError(err).Warn("Health server forced to shutdown")
	}
	if err := telemetry.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Telemetry shutdown failed")
	}
	log.Info("✅ Worker shutdown complete")
}

func healthApp(metrics *worker.Metrics, check func() error) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.StatusOK
		body := fiber.Map{"status": "healthy", "service": "jira-nest-worker"}
		if err := check(); err != nil || !metrics.IsHealthy() {
			status = fiber.StatusServiceUnavailable
			body["status"] = "unhealthy"
			if err != nil {
				body["error"] = err.Error()
			}
		}
		return c.Status(status).JSON(body)
	})
	app.Get("/stats", func(c *fiber.Ctx) error {
		return c.JSON(metrics.GetStats())
	})
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.PrometheusHandler()))

	return app
}
