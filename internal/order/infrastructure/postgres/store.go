package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/internal/order/domain"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Options struct {
	StatementTimeout time.Duration
	Attempts         int
	BaseDelay        time.Duration
}

// Store runs application transactions on a pgx pool at READ COMMITTED,
// relying on explicit row locks for isolation.
type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
	opts Options
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool, opts Options) *Store {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 20 * time.Millisecond
	}
	return &Store{log: log, pool: pool, opts: opts}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	delay := s.opts.BaseDelay
	for attempt := 1; ; attempt++ {
		err := s.attempt(ctx, fn)
		if err == nil {
			return nil
		}
		if attempt >= s.opts.Attempts || !retryable(err) {
			return domain.Persistence(err)
		}
		s.log.Warn("retrying transaction", "attempt", attempt, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return domain.Persistence(ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (s *Store) attempt(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if s.opts.StatementTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL statement_timeout = %d", s.opts.StatementTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	if err := fn(ctx, &txScope{q: tx, log: s.log}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// retryable reports transient database faults. Domain errors never retry.
func retryable(err error) bool {
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindPersist {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	return pgconn.SafeToRetry(err)
}

type txScope struct {
	q   querier
	log *slog.Logger
}

func (t *txScope) Tables() application.TableRepository     { return &tableRepo{q: t.q} }
func (t *txScope) Orders() application.OrderRepository     { return &orderRepo{q: t.q} }
func (t *txScope) Payments() application.PaymentRepository { return &paymentRepo{q: t.q} }
func (t *txScope) Loyalty() application.LoyaltyLedger      { return &loyaltyLedger{q: t.q} }
func (t *txScope) Outbox() application.EventRecorder       { return &outboxRecorder{q: t.q} }
func (t *txScope) Menu() application.MenuResolver          { return &MenuResolver{log: t.log, q: t.q} }
