package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/birbparty/jira-nest/internal/telemetry"
)

// Publisher is what the sync service needs from the queue
type Publisher interface {
	Publish(ctx context.Context, event *SyncEvent) error
}

// Client represents a NATS JetStream client
type Client struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config *Config
	log    *logrus.Entry
}

var _ Publisher = (*Client)(nil)

// NewClient connects to NATS and makes sure the sync stream exists
func NewClient(config *Config) (*Client, error) {
	log := telemetry.Entry().WithField("component", "nats")

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.WithError(err).Error("NATS error")
		}),
	}
	if config.ConnectTimeout > 0 {
		opts = append(opts, nats.Timeout(config.ConnectTimeout))
	}

	if config.User != "" && config.Password != "" {
		opts = append(opts, nats.UserInfo(config.User, config.Password))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	client := &Client{
		nc:     nc,
		js:     js,
		config: config,
		log:    log,
	}

	if err := client.initializeStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to initialize stream: %w", err)
	}

	return client, nil
}

func (c *Client) initializeStream() error {
	streamConfig := &nats.StreamConfig{
		Name:        c.config.StreamName,
		Description: "Jira sync run events",
		Subjects:    []string{SubjectSyncCompleted, SubjectSyncFailed},
		Retention:   nats.LimitsPolicy,
		MaxAge:      c.config.StreamMaxAge,
		MaxBytes:    c.config.StreamMaxBytes,
		MaxMsgs:     c.config.StreamMaxMsgs,
		Replicas:    c.config.StreamReplicas,
		Duplicates:  c.config.DuplicateWindow,
		Storage:     nats.FileStorage,
	}

	if _, err := c.js.AddStream(streamConfig); err != nil {
		if _, err = c.js.UpdateStream(streamConfig); err != nil {
			return fmt.Errorf("failed to create/update stream: %w", err)
		}
	}
	return nil
}

// Publish sends a sync event and waits for the stream to acknowledge it.
// The event ID is the deduplication key.
func (c *Client) Publish(ctx context.Context, event *SyncEvent) error {
	data, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	subject := event.Subject()
	pubAck, err := c.js.PublishAsync(subject, data, nats.MsgId(event.ID))
	if err != nil {
		telemetry.RecordEventPublished(subject, "error")
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	var timeout <-chan time.Time
	if c.config.PublishTimeout > 0 {
		timer := time.NewTimer(c.config.PublishTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-pubAck.Ok():
		telemetry.RecordEventPublished(subject, "ok")
		return nil
	case err := <-pubAck.Err():
		telemetry.RecordEventPublished(subject, "error")
		return fmt.Errorf("sync event publish failed: %w", err)
	case <-timeout:
		telemetry.RecordEventPublished(subject, "timeout")
		return fmt.Errorf("sync event publish timed out after %s", c.config.PublishTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe delivers events from the stream to handler until ctx ends.
// Each message is acknowledged after handler returns nil.
func (c *Client) Subscribe(ctx context.Context, consumerName string, handler func(*SyncEvent) error) error {
	sub, err := c.js.PullSubscribe(
		SubjectWildcard,
		consumerName,
		nats.ManualAck(),
		nats.BindStream(c.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("failed to create subscription: %w", err)
	}

	go func() {
		defer func() { _ = sub.Unsubscribe() }()
		for ctx.Err() == nil {
			msgs, err := sub.Fetch(10, nats.MaxWait(time.Second))
			if err != nil {
				if !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, context.DeadlineExceeded) {
					c.log.WithError(err).Warn("Error fetching sync events")
				}
				if errors.Is(err, nats.ErrConnectionClosed) {
					return
				}
				continue
			}

			for _, msg := range msgs {
				event, err := UnmarshalSyncEvent(msg.Data)
				if err != nil {
					c.log.WithError(err).Warn("Dropping malformed sync event")
					_ = msg.Term()
					continue
				}
				if err := handler(event); err != nil {
					var delivered uint64 = 1
					if meta, metaErr := msg.Metadata(); metaErr == nil {
						delivered = meta.NumDelivered
					}
					delay := redeliveryDelay(c.config.RedeliveryDelay, c.config.MaxRedeliveryDelay, delivered)
					c.log.WithError(err).
						WithField("event_id", event.ID).
						WithField("delivered", delivered).
						WithField("retry_in", delay).
						Warn("Sync event handler failed")
					_ = msg.NakWithDelay(delay)
					continue
				}
				_ = msg.Ack()
			}
		}
	}()

	return nil
}

const defaultRedeliveryDelay = 30 * time.Second

// redeliveryDelay doubles base for every delivery after the first, capped
// at limit.
func redeliveryDelay(base, limit time.Duration, delivered uint64) time.Duration {
	if base <= 0 {
		base = defaultRedeliveryDelay
	}
	if limit < base {
		limit = base
	}
	delay := base
	for i := uint64(1); i < delivered && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		delay = limit
	}
	return delay
}

// Health checks the NATS connection health
func (c *Client) Health() error {
	if !c.nc.IsConnected() {
		return fmt.Errorf("NATS is not connected")
	}

	if _, err := c.js.AccountInfo(); err != nil {
		return fmt.Errorf("JetStream health check failed: %w", err)
	}

	return nil
}

// StreamInfo returns information about the sync stream
func (c *Client) StreamInfo() (*nats.StreamInfo, error) {
	return c.js.StreamInfo(c.config.StreamName)
}

// Close drains and closes the NATS connection
func (c *Client) Close() error {
	if c.nc == nil {
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}
