package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/internal/order/domain"
	ordergrpc "github.com/dmehra2102/tableflow/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/tableflow/internal/order/infrastructure/http"
	orderkafka "github.com/dmehra2102/tableflow/internal/order/infrastructure/kafka"
	orderpg "github.com/dmehra2102/tableflow/internal/order/infrastructure/postgres"
	orderredis "github.com/dmehra2102/tableflow/internal/order/infrastructure/redis"
	payapp "github.com/dmehra2102/tableflow/internal/payment/application"
	"github.com/dmehra2102/tableflow/internal/payment/infrastructure/provider"
	"github.com/dmehra2102/tableflow/pkg/config"
	"github.com/dmehra2102/tableflow/pkg/idempotency"
	"github.com/dmehra2102/tableflow/pkg/logging"
	"github.com/dmehra2102/tableflow/pkg/outbox"
	"github.com/dmehra2102/tableflow/pkg/shutdown"
	"github.com/dmehra2102/tableflow/pkg/tracing"
)

func main() {
	cfg, err := config.Load("order-service", os.Args[1:])
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, "order-service", cfg.Tracing.Endpoint)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	// Postgres Setup
	pgCfg, err := pgxpool.ParseConfig(cfg.Postgres.URL)
	if err != nil {
		log.Error("pg config invalid", "err", err)
		os.Exit(1)
	}
	if cfg.Postgres.MaxConns > 0 {
		pgCfg.MaxConns = cfg.Postgres.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pgCfg)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := orderpg.Migrate(ctx, pool); err != nil {
		log.Error("migration failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()

	// Kafka producer
	writer := orderkafka.NewWriter(cfg.Kafka.Brokers)
	defer writer.Close()

	outboxStore := orderpg.NewOutboxStore(log, pool)
	dispatch := outbox.NewDispatcher(log, writer, cfg.Kafka.Topic)
	relay := outbox.NewRelay(log, outboxStore, dispatch, "order-service-relay", outbox.Options{
		BatchSize:  cfg.Outbox.BatchSize,
		Interval:   cfg.Outbox.Interval,
		Lease:      cfg.Outbox.Lease,
		MaxRetries: cfg.Outbox.MaxRetries,
	})

	var prov payapp.Provider
	switch cfg.Payment.Provider {
	case "gateway":
		prov = provider.NewGateway(log, cfg.Payment.URL, cfg.Payment.APIKey, cfg.Payment.Timeout)
	default:
		prov = provider.NewMock(cfg.Payment.MockLimit)
	}
	payments := payapp.NewService(log, prov)

	policy, err := domain.ParseRemovalPolicy(cfg.Engine.RemovalPolicy)
	if err != nil {
		log.Error("invalid removal policy", "err", err)
		os.Exit(1)
	}
	store := orderpg.NewStore(log, pool, orderpg.Options{
		StatementTimeout: cfg.Postgres.StatementTimeout,
		Attempts:         cfg.Postgres.Retry.Attempts,
		BaseDelay:        cfg.Postgres.Retry.BaseDelay,
	})
	svc := application.NewService(log, store, orderpg.NewMenuResolver(log, pool), payments,
		orderredis.NewTableLocker(rdb), application.Options{
			RemovalPolicy: policy,
			PointRate:     cfg.Engine.PointRate,
			LockTTL:       cfg.Engine.LockTTL,
		})
	handler := orderhttp.NewHandler(log, svc, idempotency.NewStore(rdb, cfg.Idempotency.TTL))

	// HTTP server
	r := chi.NewRouter()
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// gRPC health
	gs, hs, err := ordergrpc.Run(cfg.GRPC.Addr)
	if err != nil {
		log.Error("grpc server failed", "err", err)
		os.Exit(1)
	}

	// Run relay
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	// Run HTTP
	go func() {
		log.Info("http listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	err = shutdown.Run(log, cfg.HTTP.ShutdownTimeout,
		shutdown.Step{Name: "health", Stop: func(context.Context) error {
			hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
			hs.SetServingStatus(ordergrpc.Service, healthpb.HealthCheckResponse_NOT_SERVING)
			return nil
		}},
		shutdown.Step{Name: "http", Stop: srv.Shutdown},
		shutdown.Step{Name: "grpc", Stop: func(context.Context) error {
			gs.GracefulStop()
			return nil
		}},
		shutdown.Step{Name: "tracing", Stop: shutdownTracing},
	)
	if err != nil {
		log.Error("order-service shutdown incomplete", "err", err)
		os.Exit(1)
	}
	log.Info("order-service shutdown complete")
}
