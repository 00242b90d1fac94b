package telemetry

import (
	"os"
	"strconv"
	"time"
)

// Config drives the logger, the Prometheus/OTLP metrics and tracing.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	LogLevel  string
	LogFormat string // "json" or "text"

	// OTLPEndpoint receives both metrics and traces over gRPC
	OTLPEndpoint    string
	MetricsInterval time.Duration
	// SamplingRate is clamped to [0, 1]
	SamplingRate float64

	EnableTracing bool
	EnableMetrics bool
}

// NewConfigFromEnv reads the telemetry settings. OTLP metric export is on
// and tracing off unless the environment says otherwise.
func NewConfigFromEnv() *Config {
	return &Config{
		ServiceName:     getEnv("OTEL_SERVICE_NAME", "jira-nest"),
		ServiceVersion:  getEnv("SERVICE_VERSION", "unknown"),
		Environment:     getEnv("ENVIRONMENT", "development"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "json"),
		OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		MetricsInterval: time.Duration(getEnvInt("METRICS_INTERVAL", 10)) * time.Second,
		SamplingRate:    clamp(getEnvFloat("OTEL_SAMPLING_RATE", 1.0)),
		EnableTracing:   getEnvBool("ENABLE_TRACING", false),
		EnableMetrics:   getEnvBool("ENABLE_METRICS", true),
	}
}

// ForService returns a copy of c reporting as name, unless
// OTEL_SERVICE_NAME pins the name.
func (c *Config) ForService(name string) *Config {
	out := *c
	if os.Getenv("OTEL_SERVICE_NAME") == "" {
		out.ServiceName = name
	}
	return &out
}

func clamp(rate float64) float64 {
	switch {
	case rate < 0:
		return 0
	case rate > 1:
		return 1
	}
	return rate
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvFloat(key string, defaultValue float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return f
}

func getEnvInt(key string, defaultValue int) int {
	i, err := strconv.Atoi(os.Getenv(key))
	if err != nil || i <= 0 {
		return defaultValue
	}
	return i
}
