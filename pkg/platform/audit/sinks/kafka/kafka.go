// Package kafka publishes audit records to a Kafka topic with franz-go.
//
// Records are produced synchronously, keyed by entity ("Type:id") so every
// change to one entity lands on the same partition in order. The message key
// is not the record id; the id travels in the "audit-record-id" header so the
// materializing consumer can insert idempotently.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "warden/pkg/platform/audit"
	"warden/pkg/platform/sentinel"
)

const (
	DefaultTopic   = "warden.audit.records"
	HeaderRecordID = "audit-record-id"
	HeaderOp       = "audit-operation"
)

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Sink produces one message per audit record.
type Sink struct {
	producer Producer
	topic    string
}

func New(producer Producer, topic string) *Sink {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Sink{producer: producer, topic: topic}
}

func (s *Sink) Topic() string { return s.topic }

func (s *Sink) Record(ctx context.Context, rec audit.Record) error {
	msg, err := Encode(s.topic, rec)
	if err != nil {
		return err
	}
	if err := s.producer.ProduceSync(ctx, msg).FirstErr(); err != nil {
		return fmt.Errorf("produce audit record to %s: %w", s.topic, classify(err))
	}
	return nil
}

// Encode builds the Kafka message for rec.
func Encode(topic string, rec audit.Record) (*kgo.Record, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("marshal audit record: %w", err)
	}
	return &kgo.Record{
		Topic: topic,
		Key:   []byte(rec.EntityKey()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: HeaderRecordID, Value: []byte(rec.ID.String())},
			{Key: HeaderOp, Value: []byte(rec.Operation)},
		},
	}, nil
}

func classify(err error) error {
	if errors.Is(err, kgo.ErrClientClosed) {
		return fmt.Errorf("%w: %w", sentinel.ErrClosed, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) ||
		errors.Is(err, kerr.LeaderNotAvailable) ||
		errors.Is(err, kerr.NotLeaderForPartition) ||
		errors.Is(err, kerr.UnknownTopicOrPartition) ||
		errors.Is(err, kerr.BrokerNotAvailable) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
