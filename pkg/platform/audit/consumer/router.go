package consumer

import (
	"context"
	"log/slog"
	"slices"
	"sync/atomic"

	"warden/internal/platform/kafka/consumer"
	auditkafka "warden/pkg/platform/audit/sinks/kafka"
)

// TopicHandler handles the records of one audit topic.
type TopicHandler = consumer.Handler

// Router is the consumer group's handler. It sends each message to the
// handler registered for its topic. Messages on a topic nobody registered
// go to the fallback, or are committed and counted as skipped.
type Router struct {
	routes   map[string]TopicHandler
	fallback TopicHandler
	logger   *slog.Logger
	skipped  atomic.Int64
}

var _ consumer.Handler = (*Router)(nil)

func NewRouter(logger *slog.Logger, fallback TopicHandler) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		routes:   make(map[string]TopicHandler),
		fallback: fallback,
		logger:   logger,
	}
}

// Register routes topic to handler. Register before the consumer starts;
// the route table is not guarded.
func (r *Router) Register(topic string, handler TopicHandler) {
	r.routes[topic] = handler
}

// Topics is the sorted subscription list for the consumer group.
func (r *Router) Topics() []string {
	topics := make([]string, 0, len(r.routes))
	for topic := range r.routes {
		topics = append(topics, topic)
	}
	slices.Sort(topics)
	return topics
}

// Skipped counts messages committed without a handler.
func (r *Router) Skipped() int64 {
	return r.skipped.Load()
}

func (r *Router) Handle(ctx context.Context, msg *consumer.Message) error {
	if h, ok := r.routes[msg.Topic]; ok {
		return h.Handle(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Handle(ctx, msg)
	}

	r.skipped.Add(1)
	r.logger.WarnContext(ctx, "audit message on unrouted topic skipped",
		"topic", msg.Topic,
		"partition", msg.Partition,
		"offset", msg.Offset,
		"record_id", string(msg.Header(auditkafka.HeaderRecordID)),
	)
	return nil
}
