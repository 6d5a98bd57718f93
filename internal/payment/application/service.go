package application

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/tableflow/internal/payment/domain"
)

type Service struct {
	log      *slog.Logger
	provider Provider
	tracer   trace.Tracer
}

func NewService(log *slog.Logger, provider Provider) *Service {
	return &Service{log: log, provider: provider, tracer: otel.Tracer("payment-authorizer")}
}

// Authorize charges the provider for methods that need it. Offline methods
// are approved locally without a provider round trip.
func (s *Service) Authorize(ctx context.Context, charge domain.Charge) (domain.Authorization, error) {
	if charge.Amount <= 0 {
		return domain.Authorization{}, fmt.Errorf("charge amount must be positive, got %d", charge.Amount)
	}
	if !charge.Method.RequiresAuthorization() {
		return domain.Authorization{OK: true, ProviderRef: "offline:" + string(charge.Method)}, nil
	}

	ctx, span := s.tracer.Start(ctx, "AuthorizeCharge")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.reference", charge.Reference),
		attribute.Int64("payment.amount", charge.Amount),
		attribute.String("payment.method", string(charge.Method)),
	)

	auth, err := s.provider.Authorize(ctx, charge)
	if err != nil {
		span.RecordError(err)
		s.log.Error("payment provider failed", "reference", charge.Reference, "err", err)
		return domain.Authorization{}, err
	}
	if !auth.OK {
		s.log.Info("payment declined", "reference", charge.Reference, "reason", auth.Reason)
	}
	return auth, nil
}
