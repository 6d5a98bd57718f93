package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/domain"
)

// EnableMixed lets the terminal join an external session on the same table.
func (s *Service) EnableMixed(ctx context.Context, orderID uuid.UUID) (domain.SessionState, error) {
	var state domain.SessionState
	err := s.run(ctx, "EnableMixed", func(ctx context.Context, tx Tx) error {
		table, order, err := lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		switch {
		case order.OriginChannel != domain.ChannelExternal:
			return domain.ErrNotEligibleForMerge.Withf("order %s did not start externally", order.ID)
		case !order.IsOpen():
			return domain.ErrNotEligibleForMerge.Withf("order %s is %s", order.ID, order.SessionStatus)
		case order.IsMixed:
			return domain.ErrNotEligibleForMerge.Withf("order %s is already mixed", order.ID)
		}
		if err := table.Share(order.ID); err != nil {
			return err
		}
		order.IsMixed = true
		if err := tx.Tables().SaveTable(ctx, table); err != nil {
			return err
		}
		if err := tx.Orders().SaveOrder(ctx, order); err != nil {
			return err
		}
		state = table.Session()
		return nil
	})
	if err == nil {
		s.log.Info("mixed session enabled", "order_id", orderID)
	}
	return state, err
}

// ValidateMixedSettlement reports whether the terminal may settle its part of
// a mixed session.
func (s *Service) ValidateMixedSettlement(ctx context.Context, orderID uuid.UUID) (bool, error) {
	var ok bool
	err := s.run(ctx, "ValidateMixedSettlement", func(ctx context.Context, tx Tx) error {
		order, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		table, err := tx.Tables().GetTable(ctx, order.TableID)
		if err != nil {
			return err
		}
		ok = mixedEligible(table, order, domain.ChannelTerminal)
		return nil
	})
	return ok, err
}

// mixedEligible checks that order is a live mixed session in which channel
// still owes tickets and the other channel has already paid one.
func mixedEligible(table *domain.Table, order *domain.Order, channel domain.Channel) bool {
	if !table.IsSharedBy(order.ID) || !order.IsMixed || !order.IsOpen() {
		return false
	}
	if order.OriginChannel != domain.ChannelExternal {
		return false
	}
	return len(order.UnpaidTickets(channel)) > 0 && order.HasPaidTicket(channel.Other())
}

func (s *Service) ChannelView(ctx context.Context, orderID uuid.UUID) (domain.ChannelView, error) {
	var view domain.ChannelView
	err := s.run(ctx, "ChannelView", func(ctx context.Context, tx Tx) error {
		order, err := tx.Orders().GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		view = order.View()
		return nil
	})
	return view, err
}
