package api

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/birbparty/jira-nest/sdk"
)

// Config holds the API configuration
type Config struct {
	// Server configuration
	Host string
	Port int

	// API configuration
	APIKey          string
	RequestTimeout  int
	ShutdownTimeout int
	// RateLimit is requests per minute per client IP; zero disables it
	RateLimit int

	// Jira connection
	Jira JiraConfig

	// Telemetry configuration
	TelemetryEnabled bool
	MetricsPath      string
}

// JiraConfig holds the Jira site and credentials
type JiraConfig struct {
	URL      string
	Email    string
	APIToken string
	// ProxyURL, when set, is used for both http and https
	ProxyURL   string
	Timeout    time.Duration
	MaxRetries int
	// RequestsPerSecond paces outgoing calls; zero means unpaced
	RequestsPerSecond float64
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	requestTimeout, err := strconv.Atoi(getEnvOrDefault("REQUEST_TIMEOUT", "300"))
	if err != nil {
		return nil, fmt.Errorf("invalid REQUEST_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := strconv.Atoi(getEnvOrDefault("SHUTDOWN_TIMEOUT", "30"))
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	rateLimit, err := strconv.Atoi(getEnvOrDefault("RATE_LIMIT", "100"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT: %w", err)
	}

	jiraTimeout, err := time.ParseDuration(getEnvOrDefault("JIRA_TIMEOUT", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid JIRA_TIMEOUT: %w", err)
	}

	maxRetries, err := strconv.Atoi(getEnvOrDefault("JIRA_MAX_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid JIRA_MAX_RETRIES: %w", err)
	}

	rps, err := strconv.ParseFloat(getEnvOrDefault("JIRA_RATE_LIMIT", "0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JIRA_RATE_LIMIT: %w", err)
	}

	return &Config{
		Host:            getEnvOrDefault("HOST", "0.0.0.0"),
		Port:            port,
		APIKey:          os.Getenv("API_KEY"),
		RequestTimeout:  requestTimeout,
		ShutdownTimeout: shutdownTimeout,
		RateLimit:       rateLimit,
		Jira: JiraConfig{
			URL:               os.Getenv("JIRA_URL"),
			Email:             os.Getenv("JIRA_EMAIL"),
			APIToken:          os.Getenv("JIRA_API_TOKEN"),
			ProxyURL:          os.Getenv("JIRA_PROXY_URL"),
			Timeout:           jiraTimeout,
			MaxRetries:        maxRetries,
			RequestsPerSecond: rps,
		},
		TelemetryEnabled: getEnvOrDefault("TELEMETRY_ENABLED", "true") == "true",
		MetricsPath:      getEnvOrDefault("METRICS_PATH", "/metrics"),
	}, nil
}

// SDKConfig builds the Jira client configuration. Without ProxyURL the
// proxy is read from HTTP_PROXY/HTTPS_PROXY.
func (j JiraConfig) SDKConfig(observer sdk.Observer) *sdk.Config {
	cfg := sdk.DefaultConfig().
		WithBaseURL(j.URL).
		WithCredentials(j.Email, j.APIToken)

	if j.ProxyURL != "" {
		cfg.WithProxy(sdk.ExplicitProxy(sdk.ProxyConfig{"http": j.ProxyURL, "https": j.ProxyURL}))
	}
	if j.Timeout > 0 {
		cfg.WithTimeout(j.Timeout)
	}
	if j.MaxRetries > 0 {
		cfg.WithRetries(j.MaxRetries)
	}
	if j.RequestsPerSecond > 0 {
		cfg.WithRateLimit(j.RequestsPerSecond, 1)
	}
	if observer != nil {
		cfg.WithObserver(observer)
	}
	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
