package worker

import (
	"sync"
	"time"
)

// Metrics holds worker counters
type Metrics struct {
	mu sync.RWMutex

	eventsProcessed  int64
	exportsSucceeded int64
	exportsFailed    int64
	eventsSkipped    int64
	rowsExported     int64
	recordsDropped   int64

	errorCounts map[string]int64

	startTime       time.Time
	lastProcessedAt time.Time
	isHealthy       bool
}

// NewMetrics creates a new metrics instance
func NewMetrics() *Metrics {
	return &Metrics{
		errorCounts: make(map[string]int64),
		startTime:   time.Now(),
		isHealthy:   true,
	}
}

// RecordExport records an uploaded export of rows issues
func (m *Metrics) RecordExport(rows, dropped int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventsProcessed++
	m.exportsSucceeded++
	m.rowsExported += int64(rows)
	m.recordsDropped += int64(dropped)
	m.lastProcessedAt = time.Now()
}

// RecordSkip records an event that needed no export
func (m *Metrics) RecordSkip() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventsProcessed++
	m.eventsSkipped++
	m.lastProcessedAt = time.Now()
}

// RecordError records a failed export
func (m *Metrics) RecordError(errorType string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.eventsProcessed++
	m.exportsFailed++
	m.errorCounts[errorType]++
}

// GetStats returns current metrics
func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sinceLast := time.Duration(0)
	if !m.lastProcessedAt.IsZero() {
		sinceLast = time.Since(m.lastProcessedAt)
	}

	errorCounts := make(map[string]int64, len(m.errorCounts))
	for k, v := range m.errorCounts {
		errorCounts[k] = v
	}

	return map[string]interface{}{
		"uptime_seconds":        time.Since(m.startTime).Seconds(),
		"events_processed":      m.eventsProcessed,
		"exports_succeeded":     m.exportsSucceeded,
		"exports_failed":        m.exportsFailed,
		"events_skipped":        m.eventsSkipped,
		"rows_exported":         m.rowsExported,
		"records_dropped":       m.recordsDropped,
		"error_counts":          errorCounts,
		"last_processed_ago_ms": sinceLast.Milliseconds(),
		"is_healthy":            m.isHealthy,
	}
}

// SetHealthy sets the health status
func (m *Metrics) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.isHealthy = healthy
}

// IsHealthy returns the health status
func (m *Metrics) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isHealthy
}
