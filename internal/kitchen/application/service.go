package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/tableflow/internal/kitchen/domain"
	orderdomain "github.com/dmehra2102/tableflow/internal/order/domain"
)

// ErrMalformed marks a delta that can never be processed.
var ErrMalformed = errors.New("malformed delta")

type Service struct {
	log    *slog.Logger
	pub    Publisher
	tracer trace.Tracer
}

func NewService(log *slog.Logger, pub Publisher) *Service {
	return &Service{log: log, pub: pub, tracer: otel.Tracer("kitchen-service")}
}

// HandleDelta decodes an order delta and pushes one update per station.
func (s *Service) HandleDelta(ctx context.Context, payload []byte) error {
	ctx, span := s.tracer.Start(ctx, "HandleDelta")
	defer span.End()

	var d orderdomain.Delta
	if err := json.Unmarshal(payload, &d); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	span.SetAttributes(attribute.String("order.id", d.OrderID.String()), attribute.String("delta.kind", string(d.Kind)))

	var errs []error
	for _, u := range domain.Split(d) {
		if err := s.pub.Publish(ctx, u); err != nil {
			s.log.Error("display publish failed", "order_id", d.OrderID, "station", u.Station, "err", err)
			errs = append(errs, err)
			continue
		}
		s.log.Debug("display updated", "order_id", d.OrderID, "station", u.Station,
			"added", len(u.Added), "removed", len(u.Removed))
	}
	return errors.Join(errs...)
}
