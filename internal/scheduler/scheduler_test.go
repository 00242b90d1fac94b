package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/jira-nest/internal/ingest"
)

type mockJobs struct {
	mock.Mock
}

func (m *mockJobs) SyncAll(ctx context.Context, issueTypes []string) ([]*ingest.SyncResult, error) {
	args := m.Called(ctx, issueTypes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ingest.SyncResult), args.Error(1)
}

func (m *mockJobs) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	args := m.Called(ctx, retentionDays)
	return args.Get(0).(int64), args.Error(1)
}

func testConfig() *Config {
	return &Config{
		Enabled:       true,
		IssueTypes:    []string{"Bug", "Story"},
		RetentionDays: 14,
	}
}

func TestNew_Defaults(t *testing.T) {
	cfg := testConfig()
	s, err := New(&mockJobs{}, cfg)
	require.NoError(t, err)

	assert.Equal(t, DefaultSyncSchedule, cfg.SyncSchedule)
	assert.Equal(t, DefaultCleanupSchedule, cfg.CleanupSchedule)
	assert.Equal(t, DefaultHeartbeatSchedule, cfg.HeartbeatSchedule)
	assert.Equal(t, time.Hour, cfg.JobTimeout)
	assert.Len(t, s.Next(), 3)
}

func TestNew_InvalidSchedule(t *testing.T) {
	cfg := testConfig()
	cfg.SyncSchedule = "every day at one"

	_, err := New(&mockJobs{}, cfg)
	assert.ErrorContains(t, err, "invalid sync schedule")
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New(&mockJobs{}, testConfig())
	require.NoError(t, err)

	s.Start()
	s.Start()

	for _, next := range s.Next() {
		assert.False(t, next.IsZero())
		assert.True(t, next.After(time.Now().Add(-time.Second)))
	}

	s.Stop()
	s.Stop()
	assert.Error(t, s.ctx.Err())
}

func TestScheduler_RunSync(t *testing.T) {
	jobs := &mockJobs{}
	jobs.On("SyncAll", mock.Anything, []string{"Bug", "Story"}).Return([]*ingest.SyncResult{
		{IssueType: "Bug", Fetched: 3},
		{IssueType: "Story", Fetched: 1},
	}, nil).Once()
	jobs.On("SyncAll", mock.Anything, []string{"Bug", "Story"}).Return([]*ingest.SyncResult{
		{IssueType: "Bug", Error: "boom"},
	}, errors.New("Bug: boom")).Once()

	s, err := New(jobs, testConfig())
	require.NoError(t, err)

	s.RunSync()
	s.RunSync()
	jobs.AssertNumberOfCalls(t, "SyncAll", 2)
}

func TestScheduler_RunSync_DeadlineApplied(t *testing.T) {
	jobs := &mockJobs{}
	jobs.On("SyncAll", mock.MatchedBy(func(ctx context.Context) bool {
		_, ok := ctx.Deadline()
		return ok
	}), mock.Anything).Return(nil, nil)

	cfg := testConfig()
	cfg.JobTimeout = time.Minute
	s, err := New(jobs, cfg)
	require.NoError(t, err)

	s.RunSync()
	jobs.AssertExpectations(t)
}

func TestScheduler_RunCleanup(t *testing.T) {
	jobs := &mockJobs{}
	jobs.On("Cleanup", mock.Anything, 14).Return(int64(5), nil).Once()
	jobs.On("Cleanup", mock.Anything, 14).Return(int64(0), errors.New("db down")).Once()

	s, err := New(jobs, testConfig())
	require.NoError(t, err)

	s.RunCleanup()
	s.RunCleanup()
	jobs.AssertExpectations(t)
}

func TestScheduler_Heartbeat(t *testing.T) {
	s, err := New(&mockJobs{}, testConfig())
	require.NoError(t, err)

	s.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	assert.NotPanics(t, s.Heartbeat)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("SCHEDULER_ENABLED", "false")
	t.Setenv("SCHEDULER_SYNC_CRON", "0 30 2 * * ?")

	cfg := NewConfigFromEnv(&ingest.Config{IssueTypes: []string{"Epic"}, RetentionDays: 10})
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "0 30 2 * * ?", cfg.SyncSchedule)
	assert.Equal(t, DefaultCleanupSchedule, cfg.CleanupSchedule)
	assert.Equal(t, []string{"Epic"}, cfg.IssueTypes)
	assert.Equal(t, 10, cfg.RetentionDays)
}
