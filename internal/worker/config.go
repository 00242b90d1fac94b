package worker

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds worker configuration
type Config struct {
	WorkerID     string
	ConsumerName string

	// ExportWindow is how far back from the event the staged issues are read
	ExportWindow time.Duration
	// HandlerTimeout bounds one event's export
	HandlerTimeout time.Duration

	MetricsInterval time.Duration
	HealthCheckPort int
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() (*Config, error) {
	window, err := time.ParseDuration(getEnvOrDefault("WORKER_EXPORT_WINDOW", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_EXPORT_WINDOW: %w", err)
	}

	handlerTimeout, err := time.ParseDuration(getEnvOrDefault("WORKER_HANDLER_TIMEOUT", "2m"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_HANDLER_TIMEOUT: %w", err)
	}

	metricsInterval, err := time.ParseDuration(getEnvOrDefault("WORKER_METRICS_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_METRICS_INTERVAL: %w", err)
	}

	healthCheckPort, err := strconv.Atoi(getEnvOrDefault("WORKER_HEALTH_PORT", "8081"))
	if err != nil {
		return nil, fmt.Errorf("invalid WORKER_HEALTH_PORT: %w", err)
	}

	workerID := getEnvOrDefault("WORKER_ID", generateWorkerID())

	return &Config{
		WorkerID:        workerID,
		ConsumerName:    getEnvOrDefault("WORKER_CONSUMER", "jira-archiver"),
		ExportWindow:    window,
		HandlerTimeout:  handlerTimeout,
		MetricsInterval: metricsInterval,
		HealthCheckPort: healthCheckPort,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func generateWorkerID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("%s-%d", hostname, time.Now().Unix())
}
