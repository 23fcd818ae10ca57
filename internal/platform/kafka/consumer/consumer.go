// Package consumer runs a franz-go consumer group loop and hands each record
// to a Handler.
package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Message is a consumed Kafka record.
type Message struct {
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Value     []byte
	Headers   map[string][]byte
	Timestamp time.Time
}

// Header returns the value of header key, or nil.
func (m *Message) Header(key string) []byte {
	if m == nil {
		return nil
	}
	return m.Headers[key]
}

// Handler processes one message. Returning nil commits it.
type Handler interface {
	Handle(ctx context.Context, msg *Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg *Message) error { return f(ctx, msg) }

// Config configures the consumer group.
type Config struct {
	Brokers  []string
	Group    string
	Topics   []string
	Attempts int           // handler attempts per record (default 3)
	Backoff  time.Duration // wait between attempts (default 200ms)
}

// Consumer polls, handles and commits records.
type Consumer struct {
	client   *kgo.Client
	handler  Handler
	logger   *slog.Logger
	attempts int
	backoff  time.Duration
}

func New(cfg Config, handler Handler, logger *slog.Logger, opts ...kgo.Opt) (*Consumer, error) {
	base := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.Group),
		kgo.ConsumeTopics(cfg.Topics...),
		kgo.DisableAutoCommit(),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	c := &Consumer{
		client:   client,
		handler:  handler,
		logger:   logger,
		attempts: cfg.Attempts,
		backoff:  cfg.Backoff,
	}
	if c.attempts <= 0 {
		c.attempts = 3
	}
	if c.backoff <= 0 {
		c.backoff = 200 * time.Millisecond
	}
	return c, nil
}

// Run consumes until ctx is cancelled or the client is closed.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return nil
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			c.logger.Error("kafka fetch error", "topic", topic, "partition", partition, "error", err)
		})

		fetches.EachRecord(func(r *kgo.Record) {
			c.handle(ctx, FromRecord(r))
		})

		if err := c.client.CommitUncommittedOffsets(ctx); err != nil && ctx.Err() == nil {
			c.logger.Error("kafka commit failed", "error", err)
		}
	}
}

// handle retries the handler, then logs and skips the record so one poison
// message cannot stall the partition.
func (c *Consumer) handle(ctx context.Context, msg *Message) {
	var err error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		if err = c.handler.Handle(ctx, msg); err == nil {
			return
		}
		if attempt < c.attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.backoff):
			}
		}
	}
	c.logger.Error("dropping kafka record after retries",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"attempts", c.attempts,
		"error", err,
	)
}

// Close leaves the group and closes the client.
func (c *Consumer) Close() {
	c.client.Close()
}

// FromRecord converts a franz-go record.
func FromRecord(r *kgo.Record) *Message {
	headers := make(map[string][]byte, len(r.Headers))
	for _, h := range r.Headers {
		headers[h.Key] = h.Value
	}
	return &Message{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       r.Key,
		Value:     r.Value,
		Headers:   headers,
		Timestamp: r.Timestamp,
	}
}
