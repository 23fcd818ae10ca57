package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"warden/internal/platform/config"
	"warden/internal/platform/kafka"
	"warden/internal/platform/postgres"
	"warden/internal/platform/redis"
	httptransport "warden/internal/transport/http"
)

// infra holds the optional backing services. Each is nil when unconfigured.
type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

func openInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	in := &infra{}
	var err error

	if in.db, err = postgres.Open(ctx, cfg.Database); err != nil {
		return nil, err
	}
	if in.db != nil {
		log.Info("postgres connected")
	}

	if in.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		in.close(log)
		return nil, err
	}
	if in.redis != nil {
		log.Info("redis connected")
	}

	if in.kafka, err = kafka.NewClient(cfg.Kafka); err != nil {
		in.close(log)
		return nil, err
	}
	if in.kafka != nil {
		if err := kafka.EnsureTopic(ctx, in.kafka, cfg.Kafka.AuditTopic, 3, 1); err != nil {
			in.close(log)
			return nil, err
		}
		log.Info("kafka connected", "topic", cfg.Kafka.AuditTopic)
	}
	return in, nil
}

func (in *infra) healthChecks() map[string]httptransport.HealthCheck {
	checks := make(map[string]httptransport.HealthCheck)
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		client := in.kafka
		checks["kafka"] = func(ctx context.Context) error { return kafka.Health(ctx, client) }
	}
	return checks
}

func (in *infra) close(log *slog.Logger) {
	if in.kafka != nil {
		in.kafka.Close()
	}
	var errs []error
	if in.redis != nil {
		errs = append(errs, in.redis.Close())
	}
	if in.db != nil {
		errs = append(errs, in.db.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Error("closing backing services", "error", err)
	}
}
