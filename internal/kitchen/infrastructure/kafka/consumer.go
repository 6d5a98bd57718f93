package kafka

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/tableflow/internal/kitchen/application"
	orderdomain "github.com/dmehra2102/tableflow/internal/order/domain"
	"github.com/dmehra2102/tableflow/pkg/tracing"
)

type Handler interface {
	HandleDelta(ctx context.Context, payload []byte) error
}

// Claims deduplicates deliveries per topic, partition and offset.
type Claims interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer commits a message only once it has been handled or can never be.
// Transient failures are retried in place so no later offset is committed
// past an unhandled one.
type Consumer struct {
	log       *slog.Logger
	reader    reader
	svc       Handler
	idem      Claims
	tracer    trace.Tracer
	retryBase time.Duration
	retryMax  time.Duration
}

func NewConsumer(log *slog.Logger, brokers []string, topic, group string, svc Handler, idem Claims) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
	return newConsumer(log, r, svc, idem)
}

func newConsumer(log *slog.Logger, r reader, svc Handler, idem Claims) *Consumer {
	return &Consumer{
		log:       log,
		reader:    r,
		svc:       svc,
		idem:      idem,
		tracer:    otel.Tracer("kitchen-consumer"),
		retryBase: 200 * time.Millisecond,
		retryMax:  10 * time.Second,
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

// process returns nil when msg may be committed. It only fails when ctx ends
// before the message was handled.
func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	if headerValue(msg.Headers, "event_type") != orderdomain.EventOrderDelta {
		return nil
	}

	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	var seen bool
	err := c.retry(ctx, "idempotency check", func() error {
		var err error
		seen, err = c.idem.Seen(ctx, key)
		return err
	})
	if err != nil {
		return err
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return nil
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderDelta")
	defer span.End()

	err = c.retry(ctx, "delta handling", func() error {
		err := c.svc.HandleDelta(msgCtx, msg.Value)
		if errors.Is(err, application.ErrMalformed) {
			span.RecordError(err)
			c.log.Error("malformed delta dropped", "order_id", string(msg.Key), "err", err)
			return nil
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		// The message stays uncommitted; drop the claim so its redelivery runs.
		_ = c.idem.Forget(context.WithoutCancel(ctx), key)
		return err
	}
	c.log.Info("delta processed", "order_id", string(msg.Key))
	return nil
}

// retry calls fn with capped exponential backoff until it succeeds or ctx
// ends, in which case ctx's error is returned.
func (c *Consumer) retry(ctx context.Context, what string, fn func() error) error {
	delay := c.retryBase
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		c.log.Warn(what+" failed", "attempt", attempt, "retry_in", delay, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > c.retryMax {
			delay = c.retryMax
		}
	}
}

func headerValue(h []kafka.Header, key string) string {
	for _, hh := range h {
		if hh.Key == key {
			return string(hh.Value)
		}
	}
	return ""
}
