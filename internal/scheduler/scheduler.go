// Package scheduler runs the recurring sync, cleanup and heartbeat jobs.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/jira-nest/internal/ingest"
	"github.com/birbparty/jira-nest/internal/telemetry"
)

// Schedules use the six field cron format, seconds first.
const (
	DefaultSyncSchedule      = "0 0 1 * * ?"
	DefaultCleanupSchedule   = "0 0 3 * * ?"
	DefaultHeartbeatSchedule = "@every 5m"
)

// Jobs is the work the scheduler triggers
type Jobs interface {
	SyncAll(ctx context.Context, issueTypes []string) ([]*ingest.SyncResult, error)
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// Config controls which jobs run and when
type Config struct {
	Enabled           bool
	SyncSchedule      string
	CleanupSchedule   string
	HeartbeatSchedule string
	IssueTypes        []string
	RetentionDays     int
	// JobTimeout bounds a single sync or cleanup run
	JobTimeout time.Duration
}

// NewConfigFromEnv reads SCHEDULER_* variables. Issue types and retention
// come from the ingest configuration.
func NewConfigFromEnv(ingestCfg *ingest.Config) *Config {
	return &Config{
		Enabled:           os.Getenv("SCHEDULER_ENABLED") != "false",
		SyncSchedule:      getEnvOrDefault("SCHEDULER_SYNC_CRON", DefaultSyncSchedule),
		CleanupSchedule:   getEnvOrDefault("SCHEDULER_CLEANUP_CRON", DefaultCleanupSchedule),
		HeartbeatSchedule: getEnvOrDefault("SCHEDULER_HEARTBEAT_CRON", DefaultHeartbeatSchedule),
		IssueTypes:        ingestCfg.IssueTypes,
		RetentionDays:     ingestCfg.RetentionDays,
		JobTimeout:        time.Hour,
	}
}

// Scheduler wraps a cron runner
type Scheduler struct {
	cron   *cron.Cron
	jobs   Jobs
	config *Config
	log    *logrus.Entry
	now    func() time.Time

	// ctx is canceled by Stop so running jobs give up
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	running bool
}

// New validates the schedules and registers the jobs
func New(jobs Jobs, config *Config) (*Scheduler, error) {
	if config.SyncSchedule == "" {
		config.SyncSchedule = DefaultSyncSchedule
	}
	if config.CleanupSchedule == "" {
		config.CleanupSchedule = DefaultCleanupSchedule
	}
	if config.HeartbeatSchedule == "" {
		config.HeartbeatSchedule = DefaultHeartbeatSchedule
	}
	if config.JobTimeout <= 0 {
		config.JobTimeout = time.Hour
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:   cron.NewWithLocation(time.Local),
		jobs:   jobs,
		config: config,
		log:    telemetry.Entry().WithField("component", "scheduler"),
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}

	entries := []struct {
		name string
		spec string
		fn   func()
	}{
		{"sync", config.SyncSchedule, s.RunSync},
		{"cleanup", config.CleanupSchedule, s.RunCleanup},
		{"heartbeat", config.HeartbeatSchedule, s.Heartbeat},
	}
	for _, e := range entries {
		if err := s.cron.AddFunc(e.spec, e.fn); err != nil {
			cancel()
			return nil, fmt.Errorf("invalid %s schedule %q: %w", e.name, e.spec, err)
		}
	}

	return s, nil
}

// Start runs the cron loop in the background
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.cron.Start()

	s.log.WithFields(logrus.Fields{
		"sync":      s.config.SyncSchedule,
		"cleanup":   s.config.CleanupSchedule,
		"heartbeat": s.config.HeartbeatSchedule,
	}).Info("Scheduler started")
}

// Stop halts the cron loop and cancels running jobs
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cron.Stop()
	s.cancel()
	s.log.Info("Scheduler stopped")
}

// Next returns when each job runs next. Before Start the times are zero.
func (s *Scheduler) Next() []time.Time {
	var next []time.Time
	for _, e := range s.cron.Entries() {
		next = append(next, e.Next)
	}
	return next
}

// RunSync syncs yesterday's issues of every configured type
func (s *Scheduler) RunSync() {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.JobTimeout)
	defer cancel()

	s.log.WithField("issue_types", s.config.IssueTypes).Info("Scheduled sync starting")

	results, err := s.jobs.SyncAll(ctx, s.config.IssueTypes)
	fetched := 0
	for _, r := range results {
		fetched += r.Fetched
	}

	entry := s.log.WithField("types", len(results)).WithField("fetched", fetched)
	if err != nil {
		entry.WithError(err).Error("Scheduled sync finished with errors")
		return
	}
	entry.Info("Scheduled sync finished")
}

// RunCleanup removes staged issues past retention
func (s *Scheduler) RunCleanup() {
	ctx, cancel := context.WithTimeout(s.ctx, s.config.JobTimeout)
	defer cancel()

	deleted, err := s.jobs.Cleanup(ctx, s.config.RetentionDays)
	if err != nil {
		s.log.WithError(err).Error("Scheduled cleanup failed")
		return
	}
	s.log.WithField("deleted", deleted).Info("Scheduled cleanup finished")
}

// Heartbeat records that the scheduler is alive
func (s *Scheduler) Heartbeat() {
	now := s.now()
	telemetry.RecordHeartbeat(now)
	s.log.WithField("at", now.Format(time.RFC3339)).Debug("Scheduler heartbeat")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
