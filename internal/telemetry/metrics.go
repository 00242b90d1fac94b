package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var (
	meterProvider   *sdkmetric.MeterProvider
	meterProviderMu sync.Mutex
)

// Jira client metrics
var (
	jiraRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_requests_total",
		Help: "Total number of Jira API requests by final status",
	}, []string{"method", "endpoint", "status"})

	jiraRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jira_request_duration_seconds",
		Help:    "Duration of Jira API requests including retries",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"method", "endpoint"})

	jiraRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_retries_total",
		Help: "Total number of Jira API retry waits",
	}, []string{"method", "endpoint"})
)

// API metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})
)

// Sync metrics
var (
	syncRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_sync_runs_total",
		Help: "Total number of sync runs per issue type",
	}, []string{"issue_type", "status"})

	syncIssuesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_sync_issues_total",
		Help: "Issues handled by sync runs",
	}, []string{"issue_type", "outcome"})

	syncDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "jira_sync_duration_seconds",
		Help:    "Duration of sync runs in seconds",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"issue_type"})

	eventsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jira_sync_events_published_total",
		Help: "Sync events published to NATS",
	}, []string{"subject", "status"})

	cleanupDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jira_staging_rows_deleted_total",
		Help: "Staging rows removed by retention cleanup",
	})

	schedulerHeartbeat = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "jira_scheduler_heartbeat_timestamp_seconds",
		Help: "Unix time of the last scheduler heartbeat",
	})
)

// System metrics
var (
	serviceUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "service_up",
		Help: "Whether the service is up (1) or down (0)",
	})

	databaseConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "database_connections_active",
		Help: "Number of acquired database connections",
	})
)

// InitMetrics starts the OTLP metric exporter when enabled and marks the
// service as up. Prometheus collectors are registered at package load.
func InitMetrics(cfg *Config) error {
	serviceUp.Set(1)
	if !cfg.EnableMetrics {
		return nil
	}
	return initOTELMetrics(cfg)
}

func initOTELMetrics(cfg *Config) error {
	ctx := context.Background()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("failed to create metrics exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(cfg.MetricsInterval),
			),
		),
	)

	meterProviderMu.Lock()
	meterProvider = provider
	meterProviderMu.Unlock()

	otel.SetMeterProvider(provider)
	return nil
}

// CloseMetrics flushes and stops the OTLP metric exporter.
func CloseMetrics(ctx context.Context) error {
	serviceUp.Set(0)
	meterProviderMu.Lock()
	defer meterProviderMu.Unlock()
	if meterProvider == nil {
		return nil
	}
	err := meterProvider.Shutdown(ctx)
	meterProvider = nil
	return err
}

// RecordJiraRequest records one Execute call of the Jira client
func RecordJiraRequest(method, endpoint string, statusCode int, duration time.Duration) {
	status := "error"
	if statusCode > 0 {
		status = strconv.Itoa(statusCode)
	}
	jiraRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	jiraRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordJiraRetry records a backoff wait of the Jira client
func RecordJiraRetry(method, endpoint string) {
	jiraRetriesTotal.WithLabelValues(method, endpoint).Inc()
}

// RecordHTTPRequest records an HTTP request
func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSync records the outcome of a sync run
func RecordSync(issueType, status string, fetched, inserted, updated int, duration time.Duration) {
	syncRunsTotal.WithLabelValues(issueType, status).Inc()
	syncIssuesTotal.WithLabelValues(issueType, "fetched").Add(float64(fetched))
	syncIssuesTotal.WithLabelValues(issueType, "inserted").Add(float64(inserted))
	syncIssuesTotal.WithLabelValues(issueType, "updated").Add(float64(updated))
	syncDuration.WithLabelValues(issueType).Observe(duration.Seconds())
}

// RecordEventPublished records a sync event publish attempt
func RecordEventPublished(subject, status string) {
	eventsPublishedTotal.WithLabelValues(subject, status).Inc()
}

// RecordCleanup records rows removed by retention cleanup
func RecordCleanup(deleted int64) {
	cleanupDeletedTotal.Add(float64(deleted))
}

// RecordHeartbeat stamps the scheduler heartbeat gauge
func RecordHeartbeat(at time.Time) {
	schedulerHeartbeat.Set(float64(at.Unix()))
}

// UpdateDatabaseConnections updates the database connections metric
func UpdateDatabaseConnections(count int) {
	databaseConnectionsActive.Set(float64(count))
}
