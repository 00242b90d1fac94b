package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/jira-nest/internal/etl"
	"github.com/birbparty/jira-nest/internal/queue"
	"github.com/birbparty/jira-nest/sdk"
	"github.com/birbparty/jira-nest/sdk/testdata"
)

type mockFinder struct{ mock.Mock }

func (m *mockFinder) FindModifiedBetween(ctx context.Context, issueType string, from, to time.Time) ([]*etl.StagingRecord, error) {
	args := m.Called(ctx, issueType, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*etl.StagingRecord), args.Error(1)
}

type mockUploader struct {
	mock.Mock
	body string
}

func (m *mockUploader) UploadExport(ctx context.Context, name string, body io.Reader, contentType string) (string, error) {
	data, _ := io.ReadAll(body)
	m.body = string(data)
	args := m.Called(ctx, name, contentType)
	return args.String(0), args.Error(1)
}

type fakeSubscriber struct {
	events []*queue.SyncEvent
	errs   []error
	err    error
}

func (s *fakeSubscriber) Subscribe(_ context.Context, _ string, handler func(*queue.SyncEvent) error) error {
	if s.err != nil {
		return s.err
	}
	for _, ev := range s.events {
		s.errs = append(s.errs, handler(ev))
	}
	return nil
}

var eventTime = time.Date(2024, 3, 2, 1, 0, 5, 0, time.UTC)

func testConfig() *Config {
	return &Config{
		WorkerID:        "w1",
		ConsumerName:    "jira-archiver",
		ExportWindow:    24 * time.Hour,
		HandlerTimeout:  time.Second,
		MetricsInterval: time.Hour,
	}
}

func completedEvent() *queue.SyncEvent {
	ev := queue.NewSyncEvent("Bug", "issueType = 'Bug'", 2, 2, 0, time.Second, nil)
	ev.ID = "evt-1"
	ev.Timestamp = eventTime
	return ev
}

func stagedRecords(t *testing.T, n int) []*etl.StagingRecord {
	t.Helper()
	var out []*etl.StagingRecord
	for i := 1; i <= n; i++ {
		var issue sdk.Issue
		require.NoError(t, json.Unmarshal(testdata.IssueJSON(i), &issue))
		rec, err := etl.ToStagingRecord(issue, "", eventTime)
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestHandleEvent_ExportsStagedIssues(t *testing.T) {
	finder := &mockFinder{}
	uploader := &mockUploader{}
	records := append(stagedRecords(t, 2), &etl.StagingRecord{IssueKey: "ABC-99"})

	finder.On("FindModifiedBetween", mock.Anything, "Bug", eventTime.Add(-24*time.Hour), eventTime).Return(records, nil)
	uploader.On("UploadExport", mock.Anything, "bug-010005-evt-1.csv", "text/csv").
		Return("jira-exports/2024-03-02/bug-010005-evt-1.csv", nil)

	a := NewArchiver(testConfig(), finder, uploader, nil)
	key, err := a.HandleEvent(context.Background(), completedEvent())
	require.NoError(t, err)
	assert.Equal(t, "jira-exports/2024-03-02/bug-010005-evt-1.csv", key)

	lines := strings.Split(strings.TrimSpace(uploader.body), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "issue_key,issue_id,summary"))
	assert.True(t, strings.HasPrefix(lines[1], "ABC-1,10001,"))

	stats := a.Metrics().GetStats()
	assert.Equal(t, int64(1), stats["exports_succeeded"])
	assert.Equal(t, int64(2), stats["rows_exported"])
	assert.Equal(t, int64(1), stats["records_dropped"])
	finder.AssertExpectations(t)
	uploader.AssertExpectations(t)
}

func TestHandleEvent_SkipsFailedAndEmptyRuns(t *testing.T) {
	finder := &mockFinder{}
	uploader := &mockUploader{}
	a := NewArchiver(testConfig(), finder, uploader, nil)

	failed := queue.NewSyncEvent("Bug", "jql", 0, 0, 0, time.Second, errors.New("boom"))
	key, err := a.HandleEvent(context.Background(), failed)
	require.NoError(t, err)
	assert.Empty(t, key)

	empty := queue.NewSyncEvent("Bug", "jql", 0, 0, 0, time.Second, nil)
	_, err = a.HandleEvent(context.Background(), empty)
	require.NoError(t, err)

	finder.On("FindModifiedBetween", mock.Anything, "Bug", mock.Anything, mock.Anything).Return([]*etl.StagingRecord{}, nil)
	_, err = a.HandleEvent(context.Background(), completedEvent())
	require.NoError(t, err)

	assert.Equal(t, int64(3), a.Metrics().GetStats()["events_skipped"])
	uploader.AssertNotCalled(t, "UploadExport", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEvent_Errors(t *testing.T) {
	t.Run("find", func(t *testing.T) {
		finder := &mockFinder{}
		finder.On("FindModifiedBetween", mock.Anything, "Bug", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))
		a := NewArchiver(testConfig(), finder, &mockUploader{}, nil)

		_, err := a.HandleEvent(context.Background(), completedEvent())
		assert.ErrorContains(t, err, "failed to read staged issues")
		assert.Equal(t, map[string]int64{"find": 1}, a.Metrics().GetStats()["error_counts"])
	})

	t.Run("upload", func(t *testing.T) {
		finder := &mockFinder{}
		finder.On("FindModifiedBetween", mock.Anything, "Bug", mock.Anything, mock.Anything).Return(stagedRecords(t, 1), nil)
		uploader := &mockUploader{}
		uploader.On("UploadExport", mock.Anything, mock.Anything, "text/csv").Return("", errors.New("denied"))
		a := NewArchiver(testConfig(), finder, uploader, nil)

		_, err := a.HandleEvent(context.Background(), completedEvent())
		assert.ErrorContains(t, err, "failed to upload export")
		assert.Equal(t, int64(1), a.Metrics().GetStats()["exports_failed"])
	})
}

func TestStart_DeliversEventsUntilCanceled(t *testing.T) {
	finder := &mockFinder{}
	finder.On("FindModifiedBetween", mock.Anything, "Bug", mock.Anything, mock.Anything).Return(stagedRecords(t, 1), nil)
	uploader := &mockUploader{}
	uploader.On("UploadExport", mock.Anything, mock.Anything, "text/csv").Return("k", nil)

	a := NewArchiver(testConfig(), finder, uploader, nil)
	sub := &fakeSubscriber{events: []*queue.SyncEvent{completedEvent()}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, a.Start(ctx, sub))
	assert.Equal(t, []error{nil}, sub.errs)
	assert.True(t, a.Metrics().IsHealthy())
}

func TestStart_SubscribeFailure(t *testing.T) {
	a := NewArchiver(testConfig(), &mockFinder{}, &mockUploader{}, nil)

	err := a.Start(context.Background(), &fakeSubscriber{err: errors.New("no stream")})
	assert.ErrorContains(t, err, "failed to subscribe")
	assert.False(t, a.Metrics().IsHealthy())
}

func TestExportName(t *testing.T) {
	ev := completedEvent()
	ev.IssueType = "Sub Task"
	assert.Equal(t, "sub_task-010005-evt-1.csv", ExportName(ev))

	ev.IssueType = ""
	assert.Equal(t, "issues-010005-evt-1.csv", ExportName(ev))
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("WORKER_ID", "w-7")
	t.Setenv("WORKER_EXPORT_WINDOW", "2h")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "w-7", cfg.WorkerID)
	assert.Equal(t, "jira-archiver", cfg.ConsumerName)
	assert.Equal(t, 2*time.Hour, cfg.ExportWindow)
	assert.Equal(t, 8081, cfg.HealthCheckPort)

	t.Setenv("WORKER_HEALTH_PORT", "abc")
	_, err = NewConfigFromEnv()
	assert.ErrorContains(t, err, "invalid WORKER_HEALTH_PORT")
}
