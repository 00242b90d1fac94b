// Package ingest moves Jira issues into the staging table and announces
// each sync run on the event stream.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/birbparty/jira-nest/internal/etl"
	"github.com/birbparty/jira-nest/internal/queue"
	"github.com/birbparty/jira-nest/internal/telemetry"
	"github.com/birbparty/jira-nest/sdk"
)

// IssueSearcher is the part of sdk.Client the service needs
type IssueSearcher interface {
	SearchAllIssues(ctx context.Context, jql string, opts *sdk.SearchOptions) ([]sdk.Issue, error)
}

// StagingStore persists staged issues
type StagingStore interface {
	Upsert(ctx context.Context, records []*etl.StagingRecord) (inserted, updated int, err error)
	FindByIssueType(ctx context.Context, issueType string, from, to time.Time) ([]*etl.StagingRecord, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ErrStorageDisabled is returned when an operation needs the database and
// none is configured
var ErrStorageDisabled = errors.New("staging storage is not configured")

// SyncResult summarizes one sync run
type SyncResult struct {
	IssueType  string        `json:"issue_type"`
	JQL        string        `json:"jql"`
	Fetched    int           `json:"fetched"`
	Inserted   int           `json:"inserted"`
	Updated    int           `json:"updated"`
	Duration   time.Duration `json:"-"`
	DurationMS int64         `json:"duration_ms"`
	Error      string        `json:"error,omitempty"`
}

// SearchResult is returned by Search
type SearchResult struct {
	JQL      string      `json:"jql"`
	Issues   []sdk.Issue `json:"issues"`
	Saved    bool        `json:"saved"`
	Inserted int         `json:"inserted"`
	Updated  int         `json:"updated"`
}

// Service syncs Jira issues into staging
type Service struct {
	jira      IssueSearcher
	store     StagingStore
	publisher queue.Publisher
	config    *Config
	now       func() time.Time
}

// NewService creates a sync service. store and publisher may be nil: without
// a store nothing is persisted, without a publisher no events are sent.
func NewService(jira IssueSearcher, store StagingStore, publisher queue.Publisher, config *Config) *Service {
	if config == nil {
		config = &Config{}
	}
	if config.PageSize <= 0 {
		config.PageSize = sdk.DefaultPageSize
	}
	if len(config.IssueTypes) == 0 {
		config.IssueTypes = DefaultIssueTypes
	}
	if config.RetentionDays <= 0 {
		config.RetentionDays = 30
	}

	return &Service{
		jira:      jira,
		store:     store,
		publisher: publisher,
		config:    config,
		now:       time.Now,
	}
}

// Config returns the service configuration
func (s *Service) Config() *Config {
	return s.config
}

// FetchUpdatedYesterday returns the issues of issueType updated during the
// previous UTC day.
func (s *Service) FetchUpdatedYesterday(ctx context.Context, issueType string) ([]sdk.Issue, error) {
	return s.fetch(ctx, s.yesterdayJQL(s.now(), issueType))
}

// yesterdayJQL pins the day boundary to UTC whatever the host zone is.
func (s *Service) yesterdayJQL(now time.Time, issueType string) string {
	return etl.YesterdayJQL(now.UTC(), issueType, s.config.Project)
}

// SyncIssueType fetches yesterday's issues of one type, stages them and
// publishes the outcome. A failed publish is logged and does not fail the run.
func (s *Service) SyncIssueType(ctx context.Context, issueType string) (*SyncResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ingest.SyncIssueType",
		trace.WithAttributes(attribute.String("jira.issue_type", issueType)))
	defer span.End()

	start := s.now()
	result := &SyncResult{
		IssueType: issueType,
		JQL:       s.yesterdayJQL(start, issueType),
	}

	log := telemetry.WithContext(ctx).WithField("issue_type", issueType)
	log.WithField("jql", result.JQL).Info("Starting Jira sync")

	err := s.syncInto(ctx, result, issueType, start)
	result.Duration = s.now().Sub(start)
	result.DurationMS = result.Duration.Milliseconds()

	status := "success"
	if err != nil {
		status = "failed"
		result.Error = err.Error()
		telemetry.RecordError(ctx, err)
		telemetry.SetErrorStatus(ctx, "sync failed")
		log.WithError(err).Error("Jira sync failed")
	} else {
		telemetry.SetOKStatus(ctx)
		log.WithField("fetched", result.Fetched).
			WithField("inserted", result.Inserted).
			WithField("updated", result.Updated).
			Info("Jira sync completed")
	}
	telemetry.RecordSync(issueType, status, result.Fetched, result.Inserted, result.Updated, result.Duration)

	s.publish(ctx, queue.NewSyncEvent(issueType, result.JQL,
		result.Fetched, result.Inserted, result.Updated, result.Duration, err))

	return result, err
}

func (s *Service) syncInto(ctx context.Context, result *SyncResult, issueType string, fetchedAt time.Time) error {
	issues, err := s.fetch(ctx, result.JQL)
	result.Fetched = len(issues)
	if err != nil {
		return fmt.Errorf("failed to fetch issues: %w", err)
	}

	if s.store == nil {
		return nil
	}

	inserted, updated, err := s.stage(ctx, issues, issueType, fetchedAt)
	result.Inserted, result.Updated = inserted, updated
	return err
}

// SyncAll syncs every issue type in turn. A failing type does not stop the
// others; the errors are joined.
func (s *Service) SyncAll(ctx context.Context, issueTypes []string) ([]*SyncResult, error) {
	if len(issueTypes) == 0 {
		issueTypes = s.config.IssueTypes
	}

	var (
		results []*SyncResult
		errs    []error
	)
	for _, issueType := range issueTypes {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		result, err := s.SyncIssueType(ctx, issueType)
		results = append(results, result)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", issueType, err))
		}
	}

	return results, errors.Join(errs...)
}

// Search runs an arbitrary JQL query. With saveToDB the results are staged
// under CustomSearchType unless they carry their own issue type.
func (s *Service) Search(ctx context.Context, jql string, saveToDB bool) (_ *SearchResult, err error) {
	ctx, done := telemetry.TimeOperation(ctx, "jira.search")
	defer func() {
		if err != nil {
			done("error")
			return
		}
		done("success")
	}()

	issues, err := s.fetch(ctx, jql)
	if err != nil {
		return nil, err
	}

	result := &SearchResult{JQL: jql, Issues: issues}
	if !saveToDB || len(issues) == 0 {
		return result, nil
	}
	if s.store == nil {
		return result, ErrStorageDisabled
	}

	inserted, updated, err := s.stage(ctx, issues, CustomSearchType, s.now())
	result.Saved = err == nil
	result.Inserted, result.Updated = inserted, updated
	return result, err
}

// Stored returns the staged issues of issueType fetched in the last hours.
func (s *Service) Stored(ctx context.Context, issueType string, hours int) ([]*etl.StagingRecord, error) {
	if s.store == nil {
		return nil, ErrStorageDisabled
	}
	if hours <= 0 {
		hours = 24
	}

	to := s.now()
	from := to.Add(-time.Duration(hours) * time.Hour)
	return s.store.FindByIssueType(ctx, issueType, from, to)
}

// Cleanup deletes staged issues fetched more than retentionDays ago.
// A non-positive retentionDays uses the configured retention.
func (s *Service) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if s.store == nil {
		return 0, ErrStorageDisabled
	}
	if retentionDays <= 0 {
		retentionDays = s.config.RetentionDays
	}

	ctx, span := telemetry.StartSpanWithAttributes(ctx, "staging.cleanup", map[string]string{
		"retention_days": strconv.Itoa(retentionDays),
	})
	defer span.End()

	cutoff := s.now().AddDate(0, 0, -retentionDays)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return 0, fmt.Errorf("failed to clean up staging: %w", err)
	}

	telemetry.RecordCleanup(deleted)
	telemetry.WithContext(ctx).
		WithField("deleted", deleted).
		WithField("cutoff", cutoff.Format(time.RFC3339)).
		Info("Staging cleanup completed")

	return deleted, nil
}

func (s *Service) fetch(ctx context.Context, jql string) ([]sdk.Issue, error) {
	return s.jira.SearchAllIssues(ctx, jql, &sdk.SearchOptions{PageSize: s.config.PageSize})
}

// stage converts and upserts issues. Issues that cannot be converted are
// skipped and reported with the upsert error.
func (s *Service) stage(ctx context.Context, issues []sdk.Issue, issueType string, fetchedAt time.Time) (int, int, error) {
	var (
		records []*etl.StagingRecord
		errs    []error
	)
	for _, issue := range issues {
		rec, err := etl.ToStagingRecord(issue, issueType, fetchedAt)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to convert issue %s: %w", issue.Key, err))
			continue
		}
		records = append(records, rec)
	}

	inserted, updated, err := s.store.Upsert(ctx, records)
	if err != nil {
		errs = append(errs, err)
	}
	return inserted, updated, errors.Join(errs...)
}

func (s *Service) publish(ctx context.Context, event *queue.SyncEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		telemetry.WithContext(ctx).
			WithError(err).
			WithField("event_id", event.ID).
			WithField("subject", event.Subject()).
			Warn("Failed to publish sync event")
	}
}
