package queue

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds queue configuration
type Config struct {
	// NATS connection settings
	URL      string
	Name     string
	User     string
	Password string

	// JetStream settings
	StreamName      string
	StreamMaxAge    time.Duration
	StreamMaxBytes  int64
	StreamMaxMsgs   int64
	StreamReplicas  int
	DuplicateWindow time.Duration
	PublishTimeout  time.Duration
	ConnectTimeout  time.Duration

	// RedeliveryDelay is the wait before a failed event is redelivered;
	// it doubles with each further attempt up to MaxRedeliveryDelay
	RedeliveryDelay    time.Duration
	MaxRedeliveryDelay time.Duration
}

// Enabled reports whether the environment names a NATS server
func Enabled() bool {
	return os.Getenv("NATS_URL") != ""
}

// NewConfigFromEnv creates a new Config from environment variables
func NewConfigFromEnv() (*Config, error) {
	streamMaxBytes, err := strconv.ParseInt(getEnvOrDefault("NATS_STREAM_MAX_BYTES", "268435456"), 10, 64) // 256MB
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_MAX_BYTES: %w", err)
	}

	streamMaxMsgs, err := strconv.ParseInt(getEnvOrDefault("NATS_STREAM_MAX_MSGS", "100000"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_MAX_MSGS: %w", err)
	}

	streamReplicas, err := strconv.Atoi(getEnvOrDefault("NATS_STREAM_REPLICAS", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_REPLICAS: %w", err)
	}

	maxAge, err := time.ParseDuration(getEnvOrDefault("NATS_STREAM_MAX_AGE", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_STREAM_MAX_AGE: %w", err)
	}

	publishTimeout, err := time.ParseDuration(getEnvOrDefault("NATS_PUBLISH_TIMEOUT", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_PUBLISH_TIMEOUT: %w", err)
	}

	redeliveryDelay, err := time.ParseDuration(getEnvOrDefault("NATS_REDELIVERY_DELAY", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_REDELIVERY_DELAY: %w", err)
	}

	maxRedeliveryDelay, err := time.ParseDuration(getEnvOrDefault("NATS_MAX_REDELIVERY_DELAY", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid NATS_MAX_REDELIVERY_DELAY: %w", err)
	}

	return &Config{
		URL:             getEnvOrDefault("NATS_URL", "nats://localhost:4222"),
		Name:            getEnvOrDefault("NATS_NAME", "jira-nest"),
		User:            os.Getenv("NATS_USER"),
		Password:        os.Getenv("NATS_PASSWORD"),
		StreamName:      getEnvOrDefault("NATS_STREAM_NAME", DefaultStreamName),
		StreamMaxAge:    maxAge,
		StreamMaxBytes:  streamMaxBytes,
		StreamMaxMsgs:   streamMaxMsgs,
		StreamReplicas:  streamReplicas,
		DuplicateWindow: 5 * time.Minute,
		PublishTimeout:  publishTimeout,
		ConnectTimeout:  5 * time.Second,

		RedeliveryDelay:    redeliveryDelay,
		MaxRedeliveryDelay: maxRedeliveryDelay,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
