package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

type Store interface {
	// LockBatch claims pending events and events whose lease expired.
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	// MarkFailed returns the event to pending until maxRetries is reached.
	MarkFailed(ctx context.Context, id int64, errMsg string, maxRetries int, permanent bool) error
	ExtendLease(ctx context.Context, relayID string, ids []int64, lease time.Duration) error
}

type Options struct {
	BatchSize  int
	Interval   time.Duration
	Lease      time.Duration
	MaxRetries int
}

func DefaultOptions() Options {
	return Options{
		BatchSize:  100,
		Interval:   500 * time.Millisecond,
		Lease:      5 * time.Second,
		MaxRetries: 10,
	}
}

type Relay struct {
	log      *slog.Logger
	store    Store
	dispatch *Dispatcher
	relayID  string
	opts     Options
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts Options) *Relay {
	def := DefaultOptions()
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.Lease <= 0 {
		opts.Lease = def.Lease
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = def.MaxRetries
	}
	return &Relay{
		log:      log,
		store:    store,
		dispatch: dispatch,
		relayID:  relayID,
		opts:     opts,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.opts.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.Tick(ctx); err != nil {
				r.log.Error("relay lock batch error", "err", err)
			}
		}
	}
}

// Tick dispatches one batch and reports how many events were sent.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.opts.BatchSize, r.opts.Lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	pending := make([]int64, 0, len(events))
	for _, e := range events {
		pending = append(pending, e.ID)
	}
	deadline := time.Now().Add(r.opts.Lease / 2)

	ids := make([]int64, 0, len(events))
	for i, e := range events {
		if time.Now().After(deadline) {
			if err := r.store.ExtendLease(ctx, r.relayID, pending[i:], r.opts.Lease); err != nil {
				r.log.Error("relay extend lease error", "err", err)
			}
			deadline = time.Now().Add(r.opts.Lease / 2)
		}
		if err := r.dispatch.Dispatch(ctx, e); err != nil {
			permanent := errors.Is(err, ErrPermanent)
			if mErr := r.store.MarkFailed(ctx, e.ID, err.Error(), r.opts.MaxRetries, permanent); mErr != nil {
				r.log.Error("relay mark failed error", "event_id", e.ID, "err", mErr)
			}
			continue
		}
		ids = append(ids, e.ID)
	}
	if len(ids) > 0 {
		if err := r.store.MarkSent(ctx, ids); err != nil {
			r.log.Error("relay mark sent error", "err", err)
			return 0, err
		}
	}
	return len(ids), nil
}
