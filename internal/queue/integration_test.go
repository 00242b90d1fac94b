//go:build integration

package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birbparty/jira-nest/internal/testutil"
)

func TestIntegration_PublishAndSubscribe(t *testing.T) {
	ctx := context.Background()

	container, natsURL, err := testutil.StartNATS(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	cfg.URL = natsURL

	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Health())

	ev := NewSyncEvent("Bug", "jql", 2, 2, 0, time.Second, nil)
	require.NoError(t, client.Publish(ctx, ev))
	// same ID is deduplicated by the stream
	require.NoError(t, client.Publish(ctx, ev))

	info, err := client.StreamInfo()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), info.State.Msgs)

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	received := make(chan *SyncEvent, 1)
	require.NoError(t, client.Subscribe(subCtx, "test-consumer", func(e *SyncEvent) error {
		received <- e
		return nil
	}))

	select {
	case got := <-received:
		assert.Equal(t, ev.ID, got.ID)
		assert.Equal(t, 2, got.Inserted)
	case <-time.After(10 * time.Second):
		t.Fatal("sync event not delivered")
	}
}

func TestIntegration_FailedEventRedeliveredAfterDelay(t *testing.T) {
	ctx := context.Background()

	container, natsURL, err := testutil.StartNATS(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	cfg.URL = natsURL
	cfg.RedeliveryDelay = 500 * time.Millisecond

	client, err := NewClient(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.NoError(t, client.Publish(ctx, NewSyncEvent("Bug", "jql", 1, 1, 0, time.Second, nil)))

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var calls atomic.Int32
	attempts := make(chan time.Time, 4)
	require.NoError(t, client.Subscribe(subCtx, "retry-consumer", func(e *SyncEvent) error {
		attempts <- time.Now()
		if calls.Add(1) == 1 {
			return assert.AnError
		}
		return nil
	}))

	var first, second time.Time
	select {
	case first = <-attempts:
	case <-time.After(10 * time.Second):
		t.Fatal("sync event not delivered")
	}
	select {
	case second = <-attempts:
	case <-time.After(10 * time.Second):
		t.Fatal("failed sync event not redelivered")
	}
	assert.GreaterOrEqual(t, second.Sub(first), cfg.RedeliveryDelay)
}
