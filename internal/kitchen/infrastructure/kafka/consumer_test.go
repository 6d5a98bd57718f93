package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/tableflow/internal/kitchen/application"
	"github.com/dmehra2102/tableflow/internal/kitchen/domain"
	orderdomain "github.com/dmehra2102/tableflow/internal/order/domain"
)

func TestHeaderValue(t *testing.T) {
	headers := []kafka.Header{
		{Key: "event_type", Value: []byte("order.delta")},
		{Key: "traceparent", Value: []byte("00-abc-def-01")},
	}
	tests := []struct {
		name string
		key  string
		want string
	}{
		{"eventType", "event_type", "order.delta"},
		{"traceparent", "traceparent", "00-abc-def-01"},
		{"missing", "x-unknown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := headerValue(headers, tt.key); got != tt.want {
				t.Fatalf("headerValue(%q) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

type fakeReader struct {
	msgs      chan kafka.Message
	committed chan kafka.Message
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs)), committed: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed <- m
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type memClaims struct {
	mu        sync.Mutex
	claimed   map[string]bool
	forgotten []string
	failures  int
}

func newMemClaims() *memClaims { return &memClaims{claimed: map[string]bool{}} }

func (c *memClaims) Key(topic string, partition int, offset int64) string {
	return fmt.Sprintf("%s:%d:%d", topic, partition, offset)
}

func (c *memClaims) Seen(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failures > 0 {
		c.failures--
		return false, errors.New("redis: connection refused")
	}
	seen := c.claimed[key]
	c.claimed[key] = true
	return seen, nil
}

func (c *memClaims) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claimed, key)
	c.forgotten = append(c.forgotten, key)
	return nil
}

// flakyPublisher fails its first failures calls.
type flakyPublisher struct {
	mu        sync.Mutex
	failures  int
	calls     int
	published []domain.DisplayUpdate
}

func (p *flakyPublisher) Publish(_ context.Context, u domain.DisplayUpdate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failures != 0 {
		if p.failures > 0 {
			p.failures--
		}
		return errors.New("nats: connection closed")
	}
	p.published = append(p.published, u)
	return nil
}

func (p *flakyPublisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func deltaMessage(t *testing.T, offset int64) kafka.Message {
	t.Helper()
	order := &orderdomain.Order{ID: uuid.New(), TableID: uuid.New()}
	d := orderdomain.NewDelta(order, orderdomain.DeltaNewTicket, orderdomain.ChannelTerminal)
	d.Added = []orderdomain.ItemChange{{ItemID: uuid.New(), Quantity: 1, CookStation: "hot"}}
	b, err := json.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	return kafka.Message{
		Topic:   "dining.deltas",
		Offset:  offset,
		Key:     []byte(order.ID.String()),
		Value:   b,
		Headers: []kafka.Header{{Key: "event_type", Value: []byte(orderdomain.EventOrderDelta)}},
	}
}

type testConsumer struct {
	reader *fakeReader
	claims *memClaims
	cancel context.CancelFunc
	done   chan error
}

func startConsumer(t *testing.T, pub application.Publisher, claims *memClaims, msgs ...kafka.Message) *testConsumer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := newFakeReader(msgs...)
	c := newConsumer(log, r, application.NewService(log, pub), claims)
	c.retryBase, c.retryMax = time.Millisecond, 5*time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	tc := &testConsumer{reader: r, claims: claims, cancel: cancel, done: done}
	t.Cleanup(tc.stop)
	return tc
}

func (tc *testConsumer) stop() {
	tc.cancel()
	<-tc.done
	tc.done <- nil
}

func (tc *testConsumer) waitCommit(t *testing.T) kafka.Message {
	t.Helper()
	select {
	case m := <-tc.reader.committed:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no commit")
	}
	return kafka.Message{}
}

func TestConsumerRun(t *testing.T) {
	t.Run("transientFailureRetriedBeforeCommit", func(t *testing.T) {
		pub := &flakyPublisher{failures: 2}
		tc := startConsumer(t, pub, newMemClaims(), deltaMessage(t, 7))

		if m := tc.waitCommit(t); m.Offset != 7 {
			t.Fatalf("committed offset %d", m.Offset)
		}
		tc.stop()
		if pub.calls != 3 || len(pub.published) != 1 {
			t.Fatalf("calls %d published %d", pub.calls, len(pub.published))
		}
	})

	t.Run("failingPublisherNeverCommits", func(t *testing.T) {
		pub := &flakyPublisher{failures: -1}
		claims := newMemClaims()
		tc := startConsumer(t, pub, claims, deltaMessage(t, 3), deltaMessage(t, 4))

		deadline := time.Now().Add(2 * time.Second)
		for pub.callCount() < 3 {
			if time.Now().After(deadline) {
				t.Fatal("publisher not retried")
			}
			time.Sleep(time.Millisecond)
		}
		tc.stop()

		if n := len(tc.reader.committed); n != 0 {
			t.Fatalf("expected no commit, got %d", n)
		}
		if len(claims.forgotten) != 1 || claims.forgotten[0] != "dining.deltas:0:3" {
			t.Fatalf("claim not released: %v", claims.forgotten)
		}
	})

	t.Run("claimErrorRetried", func(t *testing.T) {
		claims := newMemClaims()
		claims.failures = 2
		pub := &flakyPublisher{}
		tc := startConsumer(t, pub, claims, deltaMessage(t, 1))

		tc.waitCommit(t)
		tc.stop()
		if len(pub.published) != 1 {
			t.Fatalf("published %d", len(pub.published))
		}
	})

	t.Run("malformedCommitted", func(t *testing.T) {
		msg := deltaMessage(t, 2)
		msg.Value = []byte("{not json")
		pub := &flakyPublisher{}
		tc := startConsumer(t, pub, newMemClaims(), msg)

		tc.waitCommit(t)
		tc.stop()
		if pub.calls != 0 {
			t.Fatalf("malformed delta reached the publisher %d times", pub.calls)
		}
	})

	t.Run("duplicateCommittedWithoutHandling", func(t *testing.T) {
		claims := newMemClaims()
		claims.claimed["dining.deltas:0:5"] = true
		pub := &flakyPublisher{}
		tc := startConsumer(t, pub, claims, deltaMessage(t, 5))

		tc.waitCommit(t)
		tc.stop()
		if pub.calls != 0 {
			t.Fatalf("duplicate handled %d times", pub.calls)
		}
	})

	t.Run("otherEventTypesCommitted", func(t *testing.T) {
		msg := deltaMessage(t, 6)
		msg.Headers = []kafka.Header{{Key: "event_type", Value: []byte("payment.completed")}}
		pub := &flakyPublisher{}
		tc := startConsumer(t, pub, newMemClaims(), msg)

		tc.waitCommit(t)
		tc.stop()
		if pub.calls != 0 {
			t.Fatalf("publisher called %d times", pub.calls)
		}
	})
}
