package application

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/tableflow/internal/order/domain"
)

const aggregateOrder = "order"

type Options struct {
	RemovalPolicy domain.RemovalPolicy
	// PointRate is the share of a settled amount credited as loyalty points.
	PointRate float64
	LockTTL   time.Duration
}

func DefaultOptions() Options {
	return Options{
		RemovalPolicy: domain.RemovalCap,
		PointRate:     0.01,
		LockTTL:       2 * time.Minute,
	}
}

type Service struct {
	log      *slog.Logger
	store    Store
	menu     MenuResolver
	payments Authorizer
	locker   TableLocker
	opts     Options
	tracer   trace.Tracer
}

func NewService(log *slog.Logger, store Store, menu MenuResolver, payments Authorizer, locker TableLocker, opts Options) *Service {
	if opts.RemovalPolicy == "" {
		opts.RemovalPolicy = domain.RemovalCap
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = DefaultOptions().LockTTL
	}
	return &Service{
		log:      log,
		store:    store,
		menu:     menu,
		payments: payments,
		locker:   locker,
		opts:     opts,
		tracer:   otel.Tracer("order-service"),
	}
}

// run wraps one public operation in a span and a transaction.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context, tx Tx) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()

	err := s.store.WithinTx(ctx, fn)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if domain.KindOf(err) == domain.KindPersist {
			s.log.Error("operation failed", "op", op, "err", err)
		} else {
			s.log.Info("operation rejected", "op", op, "err", err)
		}
	}
	return err
}

// lockOrder takes the table lock before the order lock so that every
// operation acquires row locks in the same order.
func lockOrder(ctx context.Context, tx Tx, orderID uuid.UUID) (*domain.Table, *domain.Order, error) {
	tableID, err := tx.Orders().OrderTable(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	table, err := tx.Tables().LockTable(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}
	order, err := tx.Orders().LockOrder(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	return table, order, nil
}

// cascadeCancel collapses an order without active items and frees its slot.
func cascadeCancel(ctx context.Context, tx Tx, table *domain.Table, order *domain.Order) error {
	tickets, err := order.Cancel()
	if err != nil {
		return err
	}
	for _, t := range tickets {
		if err := tx.Orders().SaveTicket(ctx, t); err != nil {
			return err
		}
	}
	if _, changed := table.Release(order.ID); changed {
		if err := tx.Tables().SaveTable(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordDelta(ctx context.Context, tx Tx, delta domain.Delta) error {
	return tx.Outbox().Record(ctx, aggregateOrder, delta.OrderID.String(), domain.EventOrderDelta, delta)
}

func (s *Service) points(amount int64) int64 {
	if s.opts.PointRate <= 0 || amount <= 0 {
		return 0
	}
	return int64(math.Floor(float64(amount) * s.opts.PointRate))
}

// GetOrder returns the order with its tickets and items.
func (s *Service) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	var order *domain.Order
	err := s.run(ctx, "GetOrder", func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		order = o
		return nil
	})
	return order, err
}
