package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/jira-nest/internal/etl"
	"github.com/birbparty/jira-nest/internal/queue"
	"github.com/birbparty/jira-nest/internal/telemetry"
	"github.com/birbparty/jira-nest/sdk"
)

// RecordFinder reads back the staged issues a sync wrote
type RecordFinder interface {
	FindModifiedBetween(ctx context.Context, issueType string, from, to time.Time) ([]*etl.StagingRecord, error)
}

// ExportUploader stores CSV exports
type ExportUploader interface {
	UploadExport(ctx context.Context, name string, body io.Reader, contentType string) (string, error)
}

// Subscriber delivers sync events until ctx ends
type Subscriber interface {
	Subscribe(ctx context.Context, consumerName string, handler func(*queue.SyncEvent) error) error
}

// Archiver turns completed sync runs into CSV exports
type Archiver struct {
	config  *Config
	records RecordFinder
	exports ExportUploader
	metrics *Metrics
	log     *logrus.Entry
}

// NewArchiver creates an archiver
func NewArchiver(config *Config, records RecordFinder, exports ExportUploader, metrics *Metrics) *Archiver {
	if metrics == nil {
		metrics = NewMetrics()
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = 2 * time.Minute
	}
	if config.MetricsInterval <= 0 {
		config.MetricsInterval = 30 * time.Second
	}
	return &Archiver{
		config:  config,
		records: records,
		exports: exports,
		metrics: metrics,
		log:     telemetry.Entry().WithField("component", "archiver").WithField("worker_id", config.WorkerID),
	}
}

// Metrics returns the archiver's counters
func (a *Archiver) Metrics() *Metrics {
	return a.metrics
}

// Start subscribes and blocks until ctx is done.
func (a *Archiver) Start(ctx context.Context, sub Subscriber) error {
	a.log.WithField("consumer", a.config.ConsumerName).Info("Archiver starting")

	if err := sub.Subscribe(ctx, a.config.ConsumerName, func(ev *queue.SyncEvent) error {
		hctx, cancel := context.WithTimeout(ctx, a.config.HandlerTimeout)
		defer cancel()
		_, err := a.HandleEvent(hctx, ev)
		return err
	}); err != nil {
		a.metrics.SetHealthy(false)
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ticker := time.NewTicker(a.config.MetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info("Archiver stopped")
			return nil
		case <-ticker.C:
			a.log.WithFields(a.metrics.GetStats()).Debug("Archiver stats")
		}
	}
}

// HandleEvent exports the staged issues of a completed run. Failed runs and
// runs that fetched nothing are acknowledged without an export. An error
// makes the event redeliver.
func (a *Archiver) HandleEvent(ctx context.Context, ev *queue.SyncEvent) (key string, err error) {
	span, ctx := tracer.StartSpanFromContext(ctx, "nats.consume",
		tracer.ServiceName("jira-nest-worker"),
		tracer.ResourceName("consume "+ev.Subject()),
		tracer.SpanType("queue"),
		tracer.Tag("messaging.system", "nats"),
		tracer.Tag("messaging.destination", ev.Subject()),
		tracer.Tag("jira.issue_type", ev.IssueType),
	)
	defer func() { span.Finish(tracer.WithError(err)) }()

	log := a.log.WithFields(logrus.Fields{
		"event_id":   ev.ID,
		"issue_type": ev.IssueType,
	})

	if ev.Type != queue.EventSyncCompleted || ev.Fetched == 0 {
		a.metrics.RecordSkip()
		log.WithField("type", ev.Type).Debug("Nothing to archive")
		return "", nil
	}

	to := ev.Timestamp
	from := to.Add(-a.config.ExportWindow)
	// last_modified_date moves on every upsert, so re-synced issues count too
	records, err := a.records.FindModifiedBetween(ctx, ev.IssueType, from, to)
	if err != nil {
		a.metrics.RecordError("find")
		return "", fmt.Errorf("failed to read staged issues: %w", err)
	}

	rows, dropped := recordRows(records)
	if len(rows) == 0 {
		a.metrics.RecordSkip()
		log.Debug("No staged issues in the export window")
		return "", nil
	}

	var buf bytes.Buffer
	if err := etl.WriteCSV(&buf, rows); err != nil {
		a.metrics.RecordError("csv")
		return "", err
	}

	key, err = a.exports.UploadExport(ctx, ExportName(ev), &buf, "text/csv")
	if err != nil {
		a.metrics.RecordError("upload")
		return "", fmt.Errorf("failed to upload export: %w", err)
	}

	a.metrics.RecordExport(len(rows), dropped)
	log.WithFields(logrus.Fields{
		"key":     key,
		"rows":    len(rows),
		"dropped": dropped,
	}).Info("Archived sync run")
	return key, nil
}

// ExportName names the CSV for an event
func ExportName(ev *queue.SyncEvent) string {
	issueType := strings.ToLower(strings.ReplaceAll(ev.IssueType, " ", "_"))
	if issueType == "" {
		issueType = "issues"
	}
	return fmt.Sprintf("%s-%s-%s.csv", issueType, ev.Timestamp.UTC().Format("150405"), ev.ID)
}

// recordRows rebuilds flattened rows from the issues' raw JSON. Records
// without usable JSON are counted as dropped.
func recordRows(records []*etl.StagingRecord) ([]*etl.Row, int) {
	rows := make([]*etl.Row, 0, len(records))
	dropped := 0
	for _, rec := range records {
		issue, err := rawIssue(rec.RawJSON)
		if err != nil {
			dropped++
			continue
		}
		rows = append(rows, etl.Flatten(issue))
	}
	return rows, dropped
}

var errNoRawJSON = errors.New("record has no raw issue")

func rawIssue(raw json.RawMessage) (sdk.Issue, error) {
	var issue sdk.Issue
	if len(raw) == 0 || string(raw) == "null" {
		return issue, errNoRawJSON
	}
	if err := json.Unmarshal(raw, &issue); err != nil {
		return issue, err
	}
	if issue.Key == "" {
		return issue, errNoRawJSON
	}
	return issue, nil
}
