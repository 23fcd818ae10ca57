package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"warden/internal/platform/kafka/consumer"
	audit "warden/pkg/platform/audit"
	auditkafka "warden/pkg/platform/audit/sinks/kafka"
)

// Materializer stores replayed records idempotently.
type Materializer interface {
	AppendWithID(ctx context.Context, rec audit.Record) error
}

// RecordHandler materializes audit records published by the Kafka sink into
// a queryable store. Malformed messages are logged and committed; storage
// failures are returned so the consumer retries them.
type RecordHandler struct {
	store  Materializer
	logger *slog.Logger
}

func NewRecordHandler(store Materializer, logger *slog.Logger) *RecordHandler {
	return &RecordHandler{store: store, logger: logger}
}

func (h *RecordHandler) Handle(ctx context.Context, msg *consumer.Message) error {
	var rec audit.Record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		h.logger.Error("failed to unmarshal audit record",
			"key", string(msg.Key),
			"offset", msg.Offset,
			"error", err,
		)
		return nil
	}

	if rec.ID == uuid.Nil {
		id, err := uuid.ParseBytes(msg.Header(auditkafka.HeaderRecordID))
		if err != nil {
			h.logger.Error("audit record has no id",
				"key", string(msg.Key),
				"offset", msg.Offset,
			)
			return nil
		}
		rec.ID = id
	}

	if err := rec.Validate(); err != nil {
		h.logger.Error("invalid audit record",
			"record_id", rec.ID,
			"error", err,
		)
		return nil
	}

	if err := h.store.AppendWithID(ctx, rec); err != nil {
		h.logger.Error("failed to store audit record",
			"record_id", rec.ID,
			"entity", rec.EntityKey(),
			"error", err,
		)
		return fmt.Errorf("store audit record: %w", err)
	}

	h.logger.Debug("materialized audit record",
		"record_id", rec.ID,
		"operation", rec.Operation,
		"entity", rec.EntityKey(),
	)
	return nil
}
