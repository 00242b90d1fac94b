package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/birbparty/jira-nest/internal/api"
	"github.com/birbparty/jira-nest/internal/database"
	"github.com/birbparty/jira-nest/internal/ingest"
	"github.com/birbparty/jira-nest/internal/queue"
	"github.com/birbparty/jira-nest/internal/scheduler"
	"github.com/birbparty/jira-nest/internal/telemetry"
	"github.com/birbparty/jira-nest/sdk"
)

func main() {
	cfg, err := api.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	telemetryConfig := telemetry.NewConfigFromEnv().ForService("jira-nest-api")
	telemetryConfig.EnableMetrics = telemetryConfig.EnableMetrics && cfg.TelemetryEnabled
	if err := telemetry.Init(telemetryConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize telemetry: %v\n", err)
		os.Exit(1)
	}
	log := telemetry.Entry().WithField("component", "main")
	log.Info("🐦 Jira Nest API starting...")

	ctx := context.Background()
	checks := make(map[string]api.HealthCheck)

	var (
		store      ingest.StagingStore
		issueStore api.IssueStore
		db         *database.DB
	)
	if database.Configured() {
		dbConfig, err := database.NewConfigFromEnv()
		if err != nil {
			log.WithError(err).Fatal("Failed to load database configuration")
		}
		db, err = database.NewDB(ctx, dbConfig)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to PostgreSQL")
		}
		defer db.Close()

		if err := database.EnsureSchema(ctx, db, database.DefaultLoaderTable); err != nil {
			log.WithError(err).Fatal("Failed to prepare schema")
		}
		repo := database.NewStagingRepository(db)
		store, issueStore = repo, repo
		checks["database"] = func(ctx context.Context) error {
			telemetry.UpdateDatabaseConnections(int(db.Stats().TotalConns()))
			return db.Health(ctx)
		}
		log.Info("✅ Connected to PostgreSQL")
	} else {
		log.Warn("⚠️ No database configured; sync results will not be stored")
	}

	var publisher queue.Publisher
	if queue.Enabled() {
		queueConfig, err := queue.NewConfigFromEnv()
		if err != nil {
			log.WithError(err).Fatal("Failed to load queue configuration")
		}
		queueClient, err := queue.NewClient(queueConfig)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to NATS")
		}
		defer queueClient.Close()
		publisher = queueClient
		checks["nats"] = func(context.Context) error { return queueClient.Health() }
		log.Info("✅ Connected to NATS JetStream")
	}

	observer := telemetry.NewSDKObserver(telemetry.Entry().WithField("component", "jira"))
	jira, err := sdk.NewClient(cfg.Jira.SDKConfig(observer))
	if err != nil {
		log.WithError(err).Fatal("Failed to create Jira client")
	}
	defer jira.Close()
	log.WithField("proxy", jira.Proxy().String()).Info("✅ Jira client ready")

	ingestConfig := ingest.NewConfigFromEnv()
	service := ingest.NewService(jira, store, publisher, ingestConfig)

	schedulerConfig := scheduler.NewConfigFromEnv(ingestConfig)
	var sched *scheduler.Scheduler
	if schedulerConfig.Enabled && store != nil {
		sched, err = scheduler.New(service, schedulerConfig)
		if err != nil {
			log.WithError(err).Fatal("Failed to create scheduler")
		}
		sched.Start()
		log.WithField("next", sched.Next()).Info("⏰ Scheduler started")
	}

	handler := api.NewHandler(jira, service, issueStore, checks)
	app := api.NewApp(handler, cfg)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info("🛑 Shutting down gracefully...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeout)*time.Second)
		defer cancel()

		if sched != nil {
			sched.Stop()
		}
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			log.WithError(err).Warn("Server forced to shutdown")
		}
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Telemetry shutdown failed")
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	log.WithField("addr", addr).Info("🚀 Jira Nest API listening")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}
