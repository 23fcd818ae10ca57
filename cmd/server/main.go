package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	auditsvc "warden/internal/audit"
	audithandler "warden/internal/audit/handler"
	jwttoken "warden/internal/jwt_token"
	"warden/internal/platform/config"
	"warden/internal/platform/httpserver"
	"warden/internal/platform/kafka/consumer"
	"warden/internal/platform/logger"
	"warden/internal/platform/metrics"
	recordshandler "warden/internal/records/handler"
	"warden/internal/records/service"
	"warden/internal/records/store"
	httptransport "warden/internal/transport/http"
	"warden/pkg/platform/audit/recorder"
	"warden/pkg/platform/lifecycle"
	"warden/pkg/platform/middleware/auth"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration:\n%v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("warden exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	m := metrics.New()

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close(log)

	// The recorder is registered with the engine before any sink exists and
	// bound once the sink chain is assembled.
	recMetrics := recorder.NewMetrics(m.Registry)
	rec := recorder.New(
		recorder.WithLogger(log),
		recorder.WithMetrics(recMetrics),
		recorder.WithSinkTimeout(cfg.Audit.SinkTimeout),
	)
	hooks := &lifecycle.Hooks{}
	hooks.Register(rec)
	engine := store.NewEngine(hooks)

	trail, err := buildAuditTrail(ctx, cfg, in, m, log)
	if err != nil {
		return err
	}
	defer trail.close()
	rec.Sink().Bind(trail.sink)

	opts := []service.Option{service.WithMetrics(m), service.WithLogger(log)}
	if in.db != nil {
		opts = append(opts, service.WithTxRunner(newRecordsPostgresTx(in.db, log, recMetrics)))
	}
	records := service.New(engine, opts...)

	jwt := jwttoken.NewJWTService(cfg.Auth.SigningKey, jwttoken.WithIssuer(cfg.Auth.Issuer))
	router := httptransport.NewRouter(httptransport.Deps{
		Logger:      log,
		Verifier:    jwttoken.NewJWTServiceAdapter(jwt),
		ExemptPaths: cfg.Auth.ExemptPaths,
		AuthMetrics: auth.NewMetrics(m.Registry),
		Metrics:     m,
		Health:      in.healthChecks(),
		Handlers: []httptransport.Registrar{
			recordshandler.New(records, log),
			audithandler.New(auditsvc.NewService(trail.store), log),
		},
	})
	srv := httpserver.New(cfg.Addr, router, httpserver.WithErrorLog(log))

	var materializer *consumer.Consumer
	if cfg.Kafka.Materialize {
		if materializer, err = newMaterializer(cfg, in, log); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting warden", "addr", cfg.Addr, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if materializer != nil {
		defer materializer.Close()
		g.Go(func() error {
			log.Info("audit materializer started", "topic", cfg.Kafka.AuditTopic, "group", cfg.Kafka.ConsumerGroup)
			return materializer.Run(gctx)
		})
	}

	return g.Wait()
}
