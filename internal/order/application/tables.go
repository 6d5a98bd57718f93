package application

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/domain"
)

type OpenSessionRequest struct {
	TableID    uuid.UUID
	Channel    domain.Channel
	CustomerID *uuid.UUID
}

type OpenSessionResult struct {
	OrderID uuid.UUID   `json:"order_id"`
	TableID uuid.UUID   `json:"table_id"`
	Slot    domain.Slot `json:"slot"`
}

// OpenSession starts an empty session for a channel and occupies a slot.
func (s *Service) OpenSession(ctx context.Context, req OpenSessionRequest) (OpenSessionResult, error) {
	if !req.Channel.Valid() {
		return OpenSessionResult{}, domain.ErrInvalidRequest.Withf("unknown channel %q", req.Channel)
	}
	var res OpenSessionResult
	err := s.run(ctx, "OpenSession", func(ctx context.Context, tx Tx) error {
		table, err := tx.Tables().LockTable(ctx, req.TableID)
		if err != nil {
			return err
		}
		order, slot, err := occupyNew(ctx, tx, table, req.Channel, req.CustomerID)
		if err != nil {
			return err
		}
		res = OpenSessionResult{OrderID: order.ID, TableID: table.ID, Slot: slot}
		return nil
	})
	return res, err
}

// occupyNew creates an open order for channel and places it in a free slot.
func occupyNew(ctx context.Context, tx Tx, table *domain.Table, channel domain.Channel, customerID *uuid.UUID) (*domain.Order, domain.Slot, error) {
	order := domain.NewOrder(table.StoreID, table.ID, channel, customerID)
	slot, err := table.Occupy(order.ID)
	if err != nil {
		return nil, domain.SlotNone, err
	}
	if err := tx.Orders().CreateOrder(ctx, order); err != nil {
		return nil, domain.SlotNone, err
	}
	if err := tx.Tables().SaveTable(ctx, table); err != nil {
		return nil, domain.SlotNone, err
	}
	return order, slot, nil
}

type TableState struct {
	Table   *domain.Table       `json:"-"`
	Session domain.SessionState `json:"session"`
}

func (s *Service) TableStatus(ctx context.Context, tableID uuid.UUID) (TableState, error) {
	var st TableState
	err := s.run(ctx, "TableStatus", func(ctx context.Context, tx Tx) error {
		table, err := tx.Tables().GetTable(ctx, tableID)
		if err != nil {
			return err
		}
		st = TableState{Table: table, Session: table.Session()}
		return nil
	})
	return st, err
}

// AcquireLock takes the advisory edit lock of a table for holder.
func (s *Service) AcquireLock(ctx context.Context, tableID uuid.UUID, holder string) (Lease, error) {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return Lease{}, domain.ErrInvalidRequest.Withf("lock holder is required")
	}
	if _, err := s.TableStatus(ctx, tableID); err != nil {
		return Lease{}, err
	}
	lease, err := s.locker.Acquire(ctx, tableID, holder, s.opts.LockTTL)
	if err != nil {
		return Lease{}, err
	}
	s.log.Info("table lock acquired", "table_id", tableID, "holder", holder, "expires_at", lease.ExpiresAt)
	return lease, nil
}

func (s *Service) ReleaseLock(ctx context.Context, tableID uuid.UUID, holder string) error {
	holder = strings.TrimSpace(holder)
	if holder == "" {
		return domain.ErrInvalidRequest.Withf("lock holder is required")
	}
	return s.locker.Release(ctx, tableID, holder)
}

// checkLock fails when someone other than holder owns the table's soft lock.
// Requests without a holder are not subject to the advisory lock.
func (s *Service) checkLock(ctx context.Context, tableID uuid.UUID, holder string) error {
	if holder == "" || s.locker == nil {
		return nil
	}
	lease, held, err := s.locker.Current(ctx, tableID)
	if err != nil {
		s.log.Error("table lock lookup failed", "table_id", tableID, "err", err)
		return nil
	}
	if held && lease.Holder != holder {
		return &domain.LockedError{TableID: tableID, Holder: lease.Holder, ExpiresAt: lease.ExpiresAt}
	}
	return nil
}
