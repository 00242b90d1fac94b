package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSyncEvent_Completed(t *testing.T) {
	ev := NewSyncEvent("Bug", "issueType = 'Bug'", 12, 10, 2, 1500*time.Millisecond, nil)

	_, err := uuid.Parse(ev.ID)
	require.NoError(t, err)
	assert.Equal(t, EventSyncCompleted, ev.Type)
	assert.Equal(t, SubjectSyncCompleted, ev.Subject())
	assert.Equal(t, int64(1500), ev.DurationMS)
	assert.Empty(t, ev.Error)
	assert.WithinDuration(t, time.Now(), ev.Timestamp, time.Minute)
}

func TestNewSyncEvent_Failed(t *testing.T) {
	ev := NewSyncEvent("Epic", "jql", 0, 0, 0, time.Second, errors.New("jira unreachable"))

	assert.Equal(t, EventSyncFailed, ev.Type)
	assert.Equal(t, SubjectSyncFailed, ev.Subject())
	assert.Equal(t, "jira unreachable", ev.Error)
}

func TestSyncEvent_RoundTrip(t *testing.T) {
	ev := NewSyncEvent("Story", "jql", 3, 1, 2, 42*time.Millisecond, nil)

	data, err := ev.Marshal()
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"error"`)

	got, err := UnmarshalSyncEvent(data)
	require.NoError(t, err)
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Inserted, got.Inserted)
	assert.True(t, ev.Timestamp.Equal(got.Timestamp))

	_, err = UnmarshalSyncEvent([]byte("{"))
	assert.Error(t, err)
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("NATS_URL", "nats://queue:4222")
	t.Setenv("NATS_STREAM_MAX_AGE", "24h")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "nats://queue:4222", cfg.URL)
	assert.Equal(t, DefaultStreamName, cfg.StreamName)
	assert.Equal(t, 24*time.Hour, cfg.StreamMaxAge)
	assert.True(t, Enabled())

	assert.Equal(t, 30*time.Second, cfg.RedeliveryDelay)
	assert.Equal(t, 10*time.Minute, cfg.MaxRedeliveryDelay)

	t.Setenv("NATS_REDELIVERY_DELAY", "soon")
	_, err = NewConfigFromEnv()
	assert.ErrorContains(t, err, "invalid NATS_REDELIVERY_DELAY")
	t.Setenv("NATS_REDELIVERY_DELAY", "")

	t.Setenv("NATS_STREAM_REPLICAS", "three")
	_, err = NewConfigFromEnv()
	assert.ErrorContains(t, err, "invalid NATS_STREAM_REPLICAS")
}

func TestRedeliveryDelay(t *testing.T) {
	tests := []struct {
		name      string
		base, max time.Duration
		delivered uint64
		want      time.Duration
	}{
		{"first failure waits base", time.Second, time.Minute, 1, time.Second},
		{"doubles per delivery", time.Second, time.Minute, 3, 4 * time.Second},
		{"capped at max", time.Second, 10 * time.Second, 10, 10 * time.Second},
		{"zero base uses default", 0, 0, 1, defaultRedeliveryDelay},
		{"unknown count treated as first", 2 * time.Second, time.Minute, 0, 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redeliveryDelay(tt.base, tt.max, tt.delivered)
			assert.Equal(t, tt.want, got)
			assert.Greater(t, got, time.Duration(0))
		})
	}
}
