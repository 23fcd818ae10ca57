// Package redisstream appends audit records to a capped Redis stream.
package redisstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/redis/go-redis/v9"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
)

const (
	DefaultStream = "warden:audit"
	DefaultMaxLen = 100_000
)

// Sink writes each record as one stream entry. Entry fields: operation,
// entity_type, entity_key, actor and record (the full JSON encoding).
type Sink struct {
	client redis.Cmdable
	stream string
	maxLen int64
}

// Option configures the Sink.
type Option func(*Sink)

// WithStream sets the stream key.
func WithStream(name string) Option {
	return func(s *Sink) {
		if name != "" {
			s.stream = name
		}
	}
}

// WithMaxLen caps the stream length (approximate trimming). Zero disables trimming.
func WithMaxLen(n int64) Option {
	return func(s *Sink) {
		s.maxLen = n
	}
}

func New(client redis.Cmdable, opts ...Option) *Sink {
	s := &Sink{client: client, stream: DefaultStream, maxLen: DefaultMaxLen}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Sink) Stream() string { return s.stream }

func (s *Sink) Record(ctx context.Context, rec audit.Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"operation":   string(rec.Operation),
			"entity_type": rec.EntityType,
			"entity_key":  rec.EntityKey(),
			"actor":       rec.ActorSubject(),
			"record":      payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, classify(err))
	}
	return nil
}

// Read returns up to count records from the start of the stream, oldest
// first. A count <= 0 reads everything.
func (s *Sink) Read(ctx context.Context, count int64) ([]audit.Record, error) {
	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = s.client.XRangeN(ctx, s.stream, "-", "+", count).Result()
	} else {
		msgs, err = s.client.XRange(ctx, s.stream, "-", "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", s.stream, classify(err))
	}

	records := make([]audit.Record, 0, len(msgs))
	for _, msg := range msgs {
		raw, ok := msg.Values["record"].(string)
		if !ok {
			return nil, fmt.Errorf("stream entry %s has no record field", msg.ID)
		}
		var rec audit.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// Len reports the stream length.
func (s *Sink) Len(ctx context.Context) (int64, error) {
	n, err := s.client.XLen(ctx, s.stream).Result()
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

func classify(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("%w: %w", sentinel.ErrClosed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
