package sdk

import (
	"sync"
	"time"
)

// Observer provides hooks for monitoring client operations.
//
// The client calls observer methods around every Execute. Implementations
// must be safe for concurrent use and should not block.
//
// Example implementation:
//
//	type LogObserver struct {
//	    logger *logrus.Logger
//	}
//
//	func (o *LogObserver) OnRequestStart(method, path string) {
//	    o.logger.Debugf("start %s %s", method, path)
//	}
//
//	func (o *LogObserver) OnRequestEnd(method, path string, status int, duration time.Duration, err error) {
//	    o.logger.WithError(err).Infof("%s %s -> %d (%v)", method, path, status, duration)
//	}
//
//	func (o *LogObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {}
type Observer interface {
	// OnRequestStart is called once per Execute, before the first attempt.
	OnRequestStart(method, path string)

	// OnRequestEnd is called once per Execute after the retry machine stops.
	//
	// Parameters:
	//   - statusCode: final HTTP status, 0 when no response was received
	//   - duration: total time including backoff waits
	//   - err: nil on success
	OnRequestEnd(method, path string, statusCode int, duration time.Duration, err error)

	// OnRetryAttempt is called before each backoff wait.
	//
	// Parameters:
	//   - attempt: the number of the attempt that failed (1, 2, ...)
	//   - delay: the wait before the next attempt
	//   - err: the retryable error that triggered the wait
	OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error)
}

// NoopObserver is the default observer and does nothing.
type NoopObserver struct{}

// OnRequestStart does nothing
func (n *NoopObserver) OnRequestStart(method, path string) {}

// OnRequestEnd does nothing
func (n *NoopObserver) OnRequestEnd(method, path string, statusCode int, duration time.Duration, err error) {
}

// OnRetryAttempt does nothing
func (n *NoopObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
}

// MetricsCollector is an in-memory Observer intended for debugging and tests.
//
// Example:
//
//	metrics := sdk.NewMetricsCollector()
//	client, _ := sdk.NewClient(sdk.DefaultConfig().WithObserver(metrics))
//	// ...
//	snapshot := metrics.GetMetrics()
//	fmt.Println(snapshot["retries"])
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount map[string]int64
	latencies    map[string][]time.Duration
	errorCount   map[string]int64
	retryCount   map[string]int64
	retryDelays  []time.Duration
	statusCount  map[int]int64
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		requestCount: make(map[string]int64),
		latencies:    make(map[string][]time.Duration),
		errorCount:   make(map[string]int64),
		retryCount:   make(map[string]int64),
		statusCount:  make(map[int]int64),
	}
}

// OnRequestStart increments request count
func (m *MetricsCollector) OnRequestStart(method, path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[method+" "+path]++
}

// OnRequestEnd records request duration, status and errors
func (m *MetricsCollector) OnRequestEnd(method, path string, statusCode int, duration time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := method + " " + path
	m.latencies[key] = append(m.latencies[key], duration)
	m.statusCount[statusCode]++
	if err != nil {
		m.errorCount[key]++
	}
}

// OnRetryAttempt increments retry count and records the wait
func (m *MetricsCollector) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.retryCount[method+" "+path]++
	m.retryDelays = append(m.retryDelays, delay)
}

// GetMetrics returns a snapshot of current metrics.
//
// The metrics include:
//   - "requests": map of endpoint to request count
//   - "latencies": map of endpoint to latency measurements
//   - "errors": map of endpoint to error count
//   - "retries": map of endpoint to retry count
//   - "retry_delays": every backoff wait in order
//   - "statuses": map of final status code to count
func (m *MetricsCollector) GetMetrics() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	requestsCopy := make(map[string]int64, len(m.requestCount))
	for k, v := range m.requestCount {
		requestsCopy[k] = v
	}

	latenciesCopy := make(map[string][]time.Duration, len(m.latencies))
	for k, v := range m.latencies {
		latenciesCopy[k] = append([]time.Duration(nil), v...)
	}

	errorsCopy := make(map[string]int64, len(m.errorCount))
	for k, v := range m.errorCount {
		errorsCopy[k] = v
	}

	retriesCopy := make(map[string]int64, len(m.retryCount))
	for k, v := range m.retryCount {
		retriesCopy[k] = v
	}

	statusCopy := make(map[int]int64, len(m.statusCount))
	for k, v := range m.statusCount {
		statusCopy[k] = v
	}

	return map[string]interface{}{
		"requests":     requestsCopy,
		"latencies":    latenciesCopy,
		"errors":       errorsCopy,
		"retries":      retriesCopy,
		"retry_delays": append([]time.Duration(nil), m.retryDelays...),
		"statuses":     statusCopy,
	}
}

// CompositeObserver fans every notification out to several observers.
// A panicking observer does not affect the others.
//
// Example:
//
//	observer := sdk.NewCompositeObserver(
//	    sdk.NewMetricsCollector(),
//	    telemetry.NewSDKObserver(logger),
//	)
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an observer that delegates to observers.
func NewCompositeObserver(observers ...Observer) Observer {
	return &CompositeObserver{observers: observers}
}

// OnRequestStart calls OnRequestStart on all observers
func (c *CompositeObserver) OnRequestStart(method, path string) {
	for _, obs := range c.observers {
		c.safeCall(func() { obs.OnRequestStart(method, path) })
	}
}

// OnRequestEnd calls OnRequestEnd on all observers
func (c *CompositeObserver) OnRequestEnd(method, path string, statusCode int, duration time.Duration, err error) {
	for _, obs := range c.observers {
		c.safeCall(func() { obs.OnRequestEnd(method, path, statusCode, duration, err) })
	}
}

// OnRetryAttempt calls OnRetryAttempt on all observers
func (c *CompositeObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	for _, obs := range c.observers {
		c.safeCall(func() { obs.OnRetryAttempt(method, path, attempt, delay, err) })
	}
}

func (c *CompositeObserver) safeCall(fn func()) {
	defer func() {
		_ = recover()
	}()
	fn()
}
