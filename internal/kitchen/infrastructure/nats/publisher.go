package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/dmehra2102/tableflow/internal/kitchen/domain"
)

// Publisher sends display updates to <prefix>.<station>.
type Publisher struct {
	conn   *nats.Conn
	prefix string
}

func NewPublisher(url, prefix string) (*Publisher, error) {
	conn, err := nats.Connect(url, nats.Name("tableflow-kitchen"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{conn: conn, prefix: prefix}, nil
}

func Subject(prefix, station string) string {
	return prefix + "." + station
}

func (p *Publisher) Publish(ctx context.Context, update domain.DisplayUpdate) error {
	data, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return p.conn.Publish(Subject(p.prefix, update.Station), data)
}

func (p *Publisher) Close() error {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
		return err
	}
	return nil
}
