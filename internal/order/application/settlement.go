package application

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/domain"
	paydomain "github.com/dmehra2102/tableflow/internal/payment/domain"
)

type SettlementResult struct {
	OrderID       uuid.UUID
	Payment       *paydomain.Payment
	PaymentStatus domain.PaymentStatus
	Remaining     int64
	Closed        bool
	PointsEarned  int64
}

// SettleAmount records an amount-based payment and closes the session once
// the order is fully paid. A zero amount closes an order whose balance was
// already covered by prepayments.
func (s *Service) SettleAmount(ctx context.Context, orderID uuid.UUID, method paydomain.Method, amount int64) (SettlementResult, error) {
	if !method.Valid() {
		return SettlementResult{}, domain.ErrInvalidRequest.Withf("unknown payment method %q", method)
	}
	if amount < 0 {
		return SettlementResult{}, domain.ErrInvalidRequest.Withf("amount must not be negative")
	}
	// The id is fixed across retries so the provider sees one reference.
	draft := paydomain.NewPayment(orderID, method, paydomain.ModeAmount, amount)

	var (
		res      SettlementResult
		declined bool
	)
	err := s.run(ctx, "SettleAmount", func(ctx context.Context, tx Tx) error {
		res, declined = SettlementResult{OrderID: orderID}, false
		table, order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := settleable(order); err != nil {
			return err
		}
		totals, err := tx.Payments().Totals(ctx, order.ID)
		if err != nil {
			return err
		}
		remaining := order.TotalPrice - totals.Sum()
		if amount > remaining {
			return domain.ErrAmountExceedsBalance.Withf("amount %d exceeds remaining %d", amount, remaining)
		}

		if amount == 0 {
			if remaining != 0 || order.TotalPrice == 0 {
				return domain.ErrInvalidRequest.Withf("amount must be positive while %d remains", remaining)
			}
			if err := s.closeSession(ctx, tx, table, order, nil); err != nil {
				return err
			}
			res.Closed = true
			res.PaymentStatus = order.PaymentStatus
			res.PointsEarned, err = s.creditLoyalty(ctx, tx, order, order.TotalPrice)
			return err
		}

		p := draft
		p.Details = nil
		ok, err := s.authorize(ctx, tx, &p)
		if err != nil {
			return err
		}
		if !ok {
			declined = true
			res.Payment = &p
			res.PaymentStatus = order.PaymentStatus
			res.Remaining = remaining
			return nil
		}

		closing := totals.Sum()+amount >= order.TotalPrice
		if closing {
			if err := s.closeSession(ctx, tx, table, order, &p); err != nil {
				return err
			}
		} else {
			if err := order.SetPaymentStatus(domain.PaymentPartial); err != nil {
				return err
			}
			if err := tx.Orders().SaveOrder(ctx, order); err != nil {
				return err
			}
		}
		if err := tx.Payments().Create(ctx, &p); err != nil {
			return err
		}
		if err := s.recordPayment(ctx, tx, &p, closing); err != nil {
			return err
		}
		res.Payment = &p
		res.PaymentStatus = order.PaymentStatus
		res.Remaining = remaining - amount
		res.Closed = closing
		if closing {
			res.PointsEarned, err = s.creditLoyalty(ctx, tx, order, order.TotalPrice)
		}
		return err
	})
	if err != nil {
		return SettlementResult{}, err
	}
	if declined {
		return res, domain.ErrPaymentDeclined.Withf("payment declined: %s", res.Payment.Reason)
	}
	s.log.Info("amount settled", "order_id", orderID, "amount", amount, "method", method, "closed", res.Closed)
	return res, nil
}

// SettleChannel pays every outstanding ticket of one channel in a mixed
// session and closes the session for both channels.
func (s *Service) SettleChannel(ctx context.Context, orderID uuid.UUID, channel domain.Channel, method paydomain.Method) (SettlementResult, error) {
	if !channel.Valid() {
		return SettlementResult{}, domain.ErrInvalidRequest.Withf("unknown channel %q", channel)
	}
	if !method.Valid() {
		return SettlementResult{}, domain.ErrInvalidRequest.Withf("unknown payment method %q", method)
	}
	draftID := uuid.New()

	var res SettlementResult
	err := s.run(ctx, "SettleChannel", func(ctx context.Context, tx Tx) error {
		res = SettlementResult{OrderID: orderID}
		table, order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := settleable(order); err != nil {
			return err
		}
		if !mixedEligible(table, order, channel) {
			return domain.ErrNotEligibleForMixedSettlement.Withf("order %s cannot settle channel %s", order.ID, channel)
		}
		totals, err := tx.Payments().Totals(ctx, order.ID)
		if err != nil {
			return err
		}
		if totals.Amount > 0 {
			return domain.ErrSettlementModeConflict.Withf("order %s already received %d by amount", order.ID, totals.Amount)
		}

		p := paydomain.NewPayment(order.ID, method, paydomain.ModeTickets, 0)
		p.ID = draftID
		for _, t := range order.UnpaidTickets(channel) {
			if err := t.MarkPaid(); err != nil {
				return err
			}
			p.Amount += t.Subtotal()
			p.AddDetail(t.ID, t.Subtotal())
			if err := tx.Orders().SaveTicket(ctx, t); err != nil {
				return err
			}
		}
		if err := s.closeSession(ctx, tx, table, order, nil); err != nil {
			return err
		}
		if err := tx.Payments().Create(ctx, &p); err != nil {
			return err
		}
		if err := s.recordPayment(ctx, tx, &p, true); err != nil {
			return err
		}
		res.Payment = &p
		res.PaymentStatus = order.PaymentStatus
		res.Closed = true
		res.PointsEarned, err = s.creditLoyalty(ctx, tx, order, p.Amount)
		return err
	})
	if err != nil {
		return SettlementResult{}, err
	}
	s.log.Info("channel settled", "order_id", orderID, "channel", channel, "amount", res.Payment.Amount)
	return res, nil
}

// PrepayTickets records the external channel paying its own prepaid tickets.
// The session stays open.
func (s *Service) PrepayTickets(ctx context.Context, orderID uuid.UUID, ticketIDs []uuid.UUID, method paydomain.Method) (SettlementResult, error) {
	if len(ticketIDs) == 0 {
		return SettlementResult{}, domain.ErrInvalidRequest.Withf("no tickets to prepay")
	}
	if !method.Valid() {
		return SettlementResult{}, domain.ErrInvalidRequest.Withf("unknown payment method %q", method)
	}
	draftID := uuid.New()

	var (
		res      SettlementResult
		declined bool
	)
	err := s.run(ctx, "PrepayTickets", func(ctx context.Context, tx Tx) error {
		res, declined = SettlementResult{OrderID: orderID}, false
		_, order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := settleable(order); err != nil {
			return err
		}

		var tickets []*domain.Ticket
		seen := map[uuid.UUID]bool{}
		p := paydomain.NewPayment(order.ID, method, paydomain.ModeTickets, 0)
		p.ID = draftID
		for _, id := range ticketIDs {
			if seen[id] {
				continue
			}
			seen[id] = true
			t := order.Ticket(id)
			if t == nil {
				return domain.ErrTicketNotFound.Withf("ticket %s is not part of order %s", id, order.ID)
			}
			if t.PaymentType != domain.PaymentPrepaid {
				return domain.ErrInvalidRequest.Withf("ticket %d is %s", t.BatchNo, t.PaymentType)
			}
			if t.Status == domain.TicketCanceled {
				return domain.ErrInvalidTransition.Withf("ticket %d is canceled", t.BatchNo)
			}
			if t.PaidStatus == domain.Paid {
				return domain.ErrTicketAlreadyPaid.Withf("ticket %d already paid", t.BatchNo)
			}
			tickets = append(tickets, t)
			p.Amount += t.Subtotal()
			p.AddDetail(t.ID, t.Subtotal())
		}

		totals, err := tx.Payments().Totals(ctx, order.ID)
		if err != nil {
			return err
		}
		remaining := order.TotalPrice - totals.Sum()
		if p.Amount > remaining {
			return domain.ErrAmountExceedsBalance.Withf("tickets total %d exceeds remaining %d", p.Amount, remaining)
		}

		ok, err := s.authorize(ctx, tx, &p)
		if err != nil {
			return err
		}
		res.Payment = &p
		if !ok {
			declined = true
			res.PaymentStatus = order.PaymentStatus
			res.Remaining = remaining
			return nil
		}
		for _, t := range tickets {
			if err := t.MarkPaid(); err != nil {
				return err
			}
			if err := tx.Orders().SaveTicket(ctx, t); err != nil {
				return err
			}
		}
		if err := order.SetPaymentStatus(domain.PaymentPartial); err != nil {
			return err
		}
		if err := tx.Orders().SaveOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.Payments().Create(ctx, &p); err != nil {
			return err
		}
		if err := s.recordPayment(ctx, tx, &p, false); err != nil {
			return err
		}
		res.PaymentStatus = order.PaymentStatus
		res.Remaining = remaining - p.Amount
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}
	if declined {
		return res, domain.ErrPaymentDeclined.Withf("payment declined: %s", res.Payment.Reason)
	}
	s.log.Info("tickets prepaid", "order_id", orderID, "tickets", len(ticketIDs), "amount", res.Payment.Amount)
	return res, nil
}

// OrderPayments lists every payment attempt of an order, failed ones included.
func (s *Service) OrderPayments(ctx context.Context, orderID uuid.UUID) ([]paydomain.Payment, error) {
	var out []paydomain.Payment
	err := s.run(ctx, "OrderPayments", func(ctx context.Context, tx Tx) error {
		if _, err := tx.Orders().OrderTable(ctx, orderID); err != nil {
			return err
		}
		ps, err := tx.Payments().ListByOrder(ctx, orderID)
		if err != nil {
			return err
		}
		out = ps
		return nil
	})
	return out, err
}

func settleable(order *domain.Order) error {
	switch order.SessionStatus {
	case domain.SessionClosed:
		return domain.ErrAlreadySettled.Withf("order %s is already closed", order.ID)
	case domain.SessionCanceled:
		return domain.ErrNoActiveSession.Withf("order %s was canceled", order.ID)
	}
	return nil
}

// authorize asks the provider to approve p. A declined charge is stored as a
// failed payment so the attempt survives the commit.
func (s *Service) authorize(ctx context.Context, tx Tx, p *paydomain.Payment) (bool, error) {
	auth, err := s.payments.Authorize(ctx, paydomain.Charge{
		Reference: p.ID.String(),
		Amount:    p.Amount,
		Method:    p.Method,
	})
	if err != nil {
		return false, fmt.Errorf("authorize payment %s: %w", p.ID, err)
	}
	if auth.OK {
		p.ProviderRef = auth.ProviderRef
		return true, nil
	}
	p.Fail(auth.Reason)
	p.Details = nil
	if err := tx.Payments().Create(ctx, p); err != nil {
		return false, err
	}
	ev := paydomain.PaymentFailed{PaymentID: p.ID, OrderID: p.OrderID, Amount: p.Amount, Reason: p.Reason}
	if err := tx.Outbox().Record(ctx, aggregateOrder, p.OrderID.String(), paydomain.EventPaymentFailed, ev); err != nil {
		return false, err
	}
	return false, nil
}

func (s *Service) recordPayment(ctx context.Context, tx Tx, p *paydomain.Payment, closed bool) error {
	ev := paydomain.PaymentCompleted{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Mode:      p.Mode,
		Method:    p.Method,
		Amount:    p.Amount,
		Closed:    closed,
	}
	return tx.Outbox().Record(ctx, aggregateOrder, p.OrderID.String(), paydomain.EventPaymentCompleted, ev)
}

// closeSession ends a fully paid order. Remaining unpaid tickets are marked
// paid and attributed to p when one is given.
func (s *Service) closeSession(ctx context.Context, tx Tx, table *domain.Table, order *domain.Order, p *paydomain.Payment) error {
	for _, t := range order.Tickets {
		if t.Status == domain.TicketCanceled || t.PaidStatus == domain.Paid || p == nil {
			continue
		}
		if err := t.MarkPaid(); err != nil {
			return err
		}
		p.AddDetail(t.ID, t.Subtotal())
		if err := tx.Orders().SaveTicket(ctx, t); err != nil {
			return err
		}
	}
	served, err := order.Close()
	if err != nil {
		return err
	}
	for _, it := range served {
		if err := tx.Orders().SaveItem(ctx, it); err != nil {
			return err
		}
	}
	if _, changed := table.Release(order.ID); changed {
		if err := tx.Tables().SaveTable(ctx, table); err != nil {
			return err
		}
	}
	if err := tx.Orders().SaveOrder(ctx, order); err != nil {
		return err
	}
	return s.recordDelta(ctx, tx, domain.NewDelta(order, domain.DeltaSettled, ""))
}

func (s *Service) creditLoyalty(ctx context.Context, tx Tx, order *domain.Order, settled int64) (int64, error) {
	pts := s.points(settled)
	if order.CustomerID == nil || pts == 0 {
		return 0, nil
	}
	if err := tx.Loyalty().Credit(ctx, *order.CustomerID, order.ID, pts); err != nil {
		return 0, err
	}
	return pts, nil
}
