package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/domain"
)

type BatchRequest struct {
	TableID    uuid.UUID
	Channel    domain.Channel
	OrderID    *uuid.UUID
	CustomerID *uuid.UUID
	// Holder identifies the editor; empty skips the soft-lock check.
	Holder string
	Add    map[uuid.UUID]int
	Remove map[uuid.UUID]int
}

type BatchResult struct {
	OrderID       uuid.UUID           `json:"order_id"`
	TicketID      *uuid.UUID          `json:"ticket_id,omitempty"`
	Added         []domain.ItemChange `json:"added_items"`
	Removed       []domain.ItemChange `json:"removed_items"`
	TotalPrice    int64               `json:"total_price"`
	OrderCanceled bool                `json:"order_canceled"`
}

func (r BatchRequest) validate() error {
	if !r.Channel.Valid() {
		return domain.ErrInvalidRequest.Withf("unknown channel %q", r.Channel)
	}
	if len(r.Add) == 0 && len(r.Remove) == 0 {
		return domain.ErrInvalidRequest.Withf("batch has neither additions nor removals")
	}
	for id, qty := range r.Add {
		if qty <= 0 {
			return domain.ErrInvalidRequest.Withf("quantity for %s must be positive", id)
		}
	}
	for id, qty := range r.Remove {
		if qty <= 0 {
			return domain.ErrInvalidRequest.Withf("removal quantity for %s must be positive", id)
		}
	}
	return nil
}

// ModifyBatch applies one batch of additions and removals for a channel.
func (s *Service) ModifyBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	if err := req.validate(); err != nil {
		return BatchResult{}, err
	}
	if err := s.checkLock(ctx, req.TableID, req.Holder); err != nil {
		return BatchResult{}, err
	}

	var res BatchResult
	err := s.run(ctx, "ModifyBatch", func(ctx context.Context, tx Tx) error {
		res = BatchResult{}
		table, err := tx.Tables().LockTable(ctx, req.TableID)
		if err != nil {
			return err
		}
		menu, err := s.resolveMenu(ctx, tx, req.Add)
		if err != nil {
			return err
		}
		order, err := activeOrder(ctx, tx, table, req.Channel, req.OrderID)
		if err != nil {
			return err
		}
		if order == nil {
			if len(req.Add) == 0 {
				return domain.ErrNoActiveSession.Withf("no open session for channel %s on table %s", req.Channel, table.ID)
			}
			if order, _, err = occupyNew(ctx, tx, table, req.Channel, req.CustomerID); err != nil {
				return err
			}
		}
		if order.CustomerID == nil && req.CustomerID != nil {
			order.CustomerID = req.CustomerID
		}

		delta := domain.NewDelta(order, domain.DeltaCanceled, req.Channel)
		if len(req.Add) > 0 {
			ticket, err := order.AddTicket(req.Channel, req.Add, menu)
			if err != nil {
				return err
			}
			if err := tx.Orders().CreateTicket(ctx, ticket); err != nil {
				return err
			}
			res.TicketID = &ticket.ID
			delta.Kind = domain.DeltaNewTicket
			delta.Added = domain.AddedChanges(ticket)
		}
		if len(req.Remove) > 0 {
			removal, err := order.RemoveLIFO(req.Channel, req.Remove, s.opts.RemovalPolicy)
			if err != nil {
				return err
			}
			for _, it := range removal.TouchedItems {
				if err := tx.Orders().SaveItem(ctx, it); err != nil {
					return err
				}
			}
			for _, t := range removal.CanceledTickets {
				if err := tx.Orders().SaveTicket(ctx, t); err != nil {
					return err
				}
			}
			if removal.Changes != nil {
				delta.Removed = removal.Changes
			}
		}

		if err := s.finishMutation(ctx, tx, table, order, &delta); err != nil {
			return err
		}
		res.OrderID = order.ID
		res.Added = delta.Added
		res.Removed = delta.Removed
		res.TotalPrice = order.TotalPrice
		res.OrderCanceled = delta.OrderCanceled
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}
	s.log.Info("batch applied", "order_id", res.OrderID, "table_id", req.TableID, "channel", req.Channel,
		"added", len(res.Added), "removed", len(res.Removed), "total", res.TotalPrice, "canceled", res.OrderCanceled)
	return res, nil
}

// finishMutation recomputes the total, cascades an emptied order and records
// the delta for kitchen displays. The total may never drop below what the
// order has already been paid.
func (s *Service) finishMutation(ctx context.Context, tx Tx, table *domain.Table, order *domain.Order, delta *domain.Delta) error {
	order.Recompute()
	totals, err := tx.Payments().Totals(ctx, order.ID)
	if err != nil {
		return err
	}
	if paid := totals.Sum(); order.TotalPrice < paid {
		return domain.ErrTotalBelowPaid.Withf("total %d would fall below the %d already paid", order.TotalPrice, paid)
	}
	if !order.HasActiveItems() && len(order.Tickets) > 0 {
		if err := cascadeCancel(ctx, tx, table, order); err != nil {
			return err
		}
		delta.OrderCanceled = true
	}
	if err := tx.Orders().SaveOrder(ctx, order); err != nil {
		return err
	}
	delta.TotalPrice = order.TotalPrice
	return s.recordDelta(ctx, tx, *delta)
}

// resolveMenu prices every added line, through tx when it can read the menu.
func (s *Service) resolveMenu(ctx context.Context, tx Tx, lines map[uuid.UUID]int) (map[uuid.UUID]domain.MenuEntry, error) {
	resolver := s.menu
	if r, ok := tx.(MenuReader); ok {
		resolver = r.Menu()
	}
	menu := make(map[uuid.UUID]domain.MenuEntry, len(lines))
	for id := range lines {
		entry, err := resolver.Resolve(ctx, id)
		if err != nil {
			return nil, err
		}
		menu[id] = entry
	}
	return menu, nil
}

// activeOrder finds the open order a channel edits on a table. A nil order
// with a nil error means the channel has no session there yet.
func activeOrder(ctx context.Context, tx Tx, table *domain.Table, channel domain.Channel, explicit *uuid.UUID) (*domain.Order, error) {
	if explicit != nil {
		order, err := tx.Orders().LockOrder(ctx, *explicit)
		if err != nil {
			return nil, err
		}
		if order.TableID != table.ID {
			return nil, domain.ErrOrderNotFound.Withf("order %s is not on table %s", order.ID, table.ID)
		}
		if !order.IsOpen() || !table.Holds(order.ID) {
			return nil, domain.ErrOrderClosed.Withf("order %s is %s", order.ID, order.SessionStatus)
		}
		return order, nil
	}

	var open []*domain.Order
	for _, id := range table.OrderIDs() {
		order, err := tx.Orders().LockOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if order.IsOpen() {
			open = append(open, order)
		}
	}
	for _, o := range open {
		if o.IsMixed && table.IsSharedBy(o.ID) {
			return o, nil
		}
	}
	for _, o := range open {
		if o.OriginChannel == channel {
			return o, nil
		}
	}
	for _, o := range open {
		if o.HasTicketFrom(channel) {
			return o, nil
		}
	}
	return nil, nil
}

// CancelItem takes one item off the bill entirely. An empty channel skips
// the ownership check.
func (s *Service) CancelItem(ctx context.Context, itemID uuid.UUID, channel domain.Channel) (BatchResult, error) {
	if channel != "" && !channel.Valid() {
		return BatchResult{}, domain.ErrInvalidRequest.Withf("unknown channel %q", channel)
	}
	var res BatchResult
	err := s.run(ctx, "CancelItem", func(ctx context.Context, tx Tx) error {
		res = BatchResult{}
		orderID, err := tx.Orders().ItemOrder(ctx, itemID)
		if err != nil {
			return err
		}
		table, order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.IsOpen() {
			return domain.ErrOrderClosed.Withf("order %s is %s", order.ID, order.SessionStatus)
		}
		if t, _ := order.FindItem(itemID); t != nil && channel != "" && t.SourceChannel != channel {
			return domain.ErrInvalidRequest.Withf("item %s belongs to channel %s", itemID, t.SourceChannel)
		}
		change, canceledTicket, err := order.CancelItem(itemID)
		if err != nil {
			return err
		}
		t, it := order.FindItem(itemID)
		if err := tx.Orders().SaveItem(ctx, it); err != nil {
			return err
		}
		if canceledTicket != nil {
			if err := tx.Orders().SaveTicket(ctx, canceledTicket); err != nil {
				return err
			}
		}

		delta := domain.NewDelta(order, domain.DeltaCanceled, t.SourceChannel)
		delta.Removed = []domain.ItemChange{change}
		if err := s.finishMutation(ctx, tx, table, order, &delta); err != nil {
			return err
		}
		res = BatchResult{
			OrderID:       order.ID,
			Added:         delta.Added,
			Removed:       delta.Removed,
			TotalPrice:    order.TotalPrice,
			OrderCanceled: delta.OrderCanceled,
		}
		return nil
	})
	return res, err
}

// AdvanceItem moves an item forward in the kitchen. Cancellation goes
// through CancelItem.
func (s *Service) AdvanceItem(ctx context.Context, itemID uuid.UUID, next domain.ItemStatus) (*domain.Item, error) {
	switch next {
	case domain.ItemCooking, domain.ItemReady, domain.ItemServed:
	default:
		return nil, domain.ErrInvalidRequest.Withf("cannot advance item to %q", next)
	}
	var out *domain.Item
	err := s.run(ctx, "AdvanceItem", func(ctx context.Context, tx Tx) error {
		orderID, err := tx.Orders().ItemOrder(ctx, itemID)
		if err != nil {
			return err
		}
		_, order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !order.IsOpen() {
			return domain.ErrOrderClosed.Withf("order %s is %s", order.ID, order.SessionStatus)
		}
		_, it := order.FindItem(itemID)
		if it == nil {
			return domain.ErrItemNotFound
		}
		if err := it.Transition(next); err != nil {
			return err
		}
		if err := tx.Orders().SaveItem(ctx, it); err != nil {
			return err
		}
		copied := *it
		out = &copied
		return nil
	})
	return out, err
}
