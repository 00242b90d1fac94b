package telemetry

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/birbparty/jira-nest/sdk"
)

// SDKObserver feeds Jira client activity into Prometheus and the logger.
type SDKObserver struct {
	log *logrus.Entry
}

var _ sdk.Observer = (*SDKObserver)(nil)

// NewSDKObserver creates an observer that logs through entry, or the
// package logger when entry is nil.
func NewSDKObserver(entry *logrus.Entry) *SDKObserver {
	if entry == nil {
		entry = Entry()
	}
	return &SDKObserver{log: entry.WithField("component", "jira-client")}
}

// OnRequestStart logs at debug level
func (o *SDKObserver) OnRequestStart(method, path string) {
	o.log.WithFields(logrus.Fields{"method": method, "path": path}).Debug("Jira request started")
}

// OnRequestEnd records the request and logs failures
func (o *SDKObserver) OnRequestEnd(method, path string, statusCode int, duration time.Duration, err error) {
	RecordJiraRequest(method, path, statusCode, duration)

	entry := o.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     path,
		"status":   statusCode,
		"duration": duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).Warn("Jira request failed")
		return
	}
	entry.Debug("Jira request completed")
}

// OnRetryAttempt records and logs a backoff wait
func (o *SDKObserver) OnRetryAttempt(method, path string, attempt int, delay time.Duration, err error) {
	RecordJiraRetry(method, path)
	o.log.WithFields(logrus.Fields{
		"method":  method,
		"path":    path,
		"attempt": attempt,
		"delay":   delay.String(),
	}).WithError(err).Warn("Retrying Jira request")
}
