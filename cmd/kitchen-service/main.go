package main

import (
	"context"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/tableflow/internal/kitchen/application"
	kitchenkafka "github.com/dmehra2102/tableflow/internal/kitchen/infrastructure/kafka"
	kitchennats "github.com/dmehra2102/tableflow/internal/kitchen/infrastructure/nats"
	"github.com/dmehra2102/tableflow/pkg/config"
	"github.com/dmehra2102/tableflow/pkg/idempotency"
	"github.com/dmehra2102/tableflow/pkg/logging"
	"github.com/dmehra2102/tableflow/pkg/shutdown"
	"github.com/dmehra2102/tableflow/pkg/tracing"
)

func main() {
	cfg, err := config.Load("kitchen-service", os.Args[1:])
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Log.Level)

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, "kitchen-service", cfg.Tracing.Endpoint)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	defer rdb.Close()
	idem := idempotency.NewStore(rdb, cfg.Idempotency.TTL)

	pub, err := kitchennats.NewPublisher(cfg.NATS.URL, cfg.NATS.SubjectPrefix)
	if err != nil {
		log.Error("nats connect failed", "err", err)
		os.Exit(1)
	}

	svc := application.NewService(log, pub)
	consumer := kitchenkafka.NewConsumer(log, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, svc, idem)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Run(ctx); err != nil {
			log.Error("consumer stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	err = shutdown.Run(log, cfg.HTTP.ShutdownTimeout,
		shutdown.Step{Name: "consumer", Stop: func(ctx context.Context) error {
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}},
		shutdown.Step{Name: "nats", Stop: func(context.Context) error { return pub.Close() }},
		shutdown.Step{Name: "tracing", Stop: shutdownTracing},
	)
	if err != nil {
		log.Error("kitchen-service shutdown incomplete", "err", err)
		os.Exit(1)
	}
	log.Info("kitchen-service shutdown complete")
}
