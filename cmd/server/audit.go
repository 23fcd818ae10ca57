package main

import (
	"context"
	"fmt"
	"log/slog"

	"warden/internal/platform/config"
	"warden/internal/platform/kafka/consumer"
	"warden/internal/platform/metrics"
	audit "warden/pkg/platform/audit"
	auditconsumer "warden/pkg/platform/audit/consumer"
	"warden/pkg/platform/audit/publisher"
	"warden/pkg/platform/audit/sinks/breaker"
	"warden/pkg/platform/audit/sinks/fanout"
	"warden/pkg/platform/audit/sinks/file"
	kafkasink "warden/pkg/platform/audit/sinks/kafka"
	"warden/pkg/platform/audit/sinks/redisstream"
	"warden/pkg/platform/audit/store/memory"
	pgstore "warden/pkg/platform/audit/store/postgres"
	"warden/pkg/platform/circuit"
)

// auditTrail is the assembled sink chain plus the store the read API queries.
type auditTrail struct {
	sink    audit.Sink
	store   audit.Store
	closers []func()
}

func (t *auditTrail) close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		t.closers[i]()
	}
}

// buildAuditTrail creates one sink per AUDIT_SINKS entry, guards each with a
// circuit breaker, fans out to all of them and optionally buffers the result.
func buildAuditTrail(ctx context.Context, cfg config.Server, in *infra, m *metrics.Metrics, log *slog.Logger) (*auditTrail, error) {
	trail := &auditTrail{}
	breakerMetrics := breaker.NewMetrics(m.Registry)

	var pg *pgstore.Store
	if in.db != nil {
		pg = pgstore.New(in.db)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("audit schema: %w", err)
		}
	}
	mem := memory.NewInMemoryStore()

	var targets []fanout.Named
	for _, kind := range cfg.Audit.Sinks {
		var sink audit.Sink
		switch kind {
		case config.SinkMemory:
			sink = mem
		case config.SinkPostgres:
			sink = pg
		case config.SinkFile:
			fs, err := file.New(file.DefaultConfig(cfg.Audit.FilePath))
			if err != nil {
				trail.close()
				return nil, err
			}
			trail.closers = append(trail.closers, func() {
				if err := fs.Close(); err != nil {
					log.Error("closing audit file sink", "error", err)
				}
			})
			sink = fs
		case config.SinkRedis:
			sink = redisstream.New(in.redis, redisstream.WithStream(cfg.Audit.RedisStream))
		case config.SinkKafka:
			sink = kafkasink.New(in.kafka, cfg.Kafka.AuditTopic)
		default:
			trail.close()
			return nil, fmt.Errorf("unknown audit sink %q", kind)
		}
		targets = append(targets, fanout.Named{Name: kind, Sink: guard(kind, sink, cfg.Audit, breakerMetrics, log)})
	}

	trail.sink = fanout.New(targets...)
	if cfg.Audit.AsyncBuffer > 0 {
		pub := publisher.NewPublisher(trail.sink,
			publisher.WithAsyncBuffer(cfg.Audit.AsyncBuffer),
			publisher.WithWriteTimeout(cfg.Audit.SinkTimeout),
			publisher.WithLogger(log),
		)
		trail.closers = append(trail.closers, pub.Close)
		trail.sink = pub
	}

	trail.store = mem
	if pg != nil && (cfg.Audit.HasSink(config.SinkPostgres) || cfg.Kafka.Materialize) {
		trail.store = pg
	}
	log.Info("audit trail configured",
		"sinks", cfg.Audit.Sinks,
		"async_buffer", cfg.Audit.AsyncBuffer,
	)
	return trail, nil
}

func guard(name string, sink audit.Sink, cfg config.AuditConfig, m *breaker.Metrics, log *slog.Logger) audit.Sink {
	if cfg.BreakerThreshold <= 0 {
		return sink
	}
	cb := circuit.New("audit-"+name,
		circuit.WithFailureThreshold(cfg.BreakerThreshold),
		circuit.WithCooldown(cfg.BreakerCooldown),
	)
	return breaker.New(sink, cb, breaker.WithLogger(log), breaker.WithMetrics(m))
}

// newMaterializer consumes the audit topic into Postgres.
func newMaterializer(cfg config.Server, in *infra, log *slog.Logger) (*consumer.Consumer, error) {
	store := pgstore.New(in.db)
	router := auditconsumer.NewRouter(log, nil)
	router.Register(cfg.Kafka.AuditTopic, auditconsumer.NewRecordHandler(store, log))

	return consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		Group:   cfg.Kafka.ConsumerGroup,
		Topics:  router.Topics(),
	}, router, log)
}
