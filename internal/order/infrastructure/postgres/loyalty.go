package postgres

import (
	"context"

	"github.com/google/uuid"
)

type loyaltyLedger struct {
	q querier
}

// Credit adds points once per customer and order.
func (l *loyaltyLedger) Credit(ctx context.Context, customerID, orderID uuid.UUID, points int64) error {
	ct, err := l.q.Exec(ctx, `INSERT INTO loyalty_ledger (customer_id, order_id, points) VALUES ($1,$2,$3)
		ON CONFLICT (customer_id, order_id) DO NOTHING`, customerID, orderID, points)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return nil
	}
	_, err = l.q.Exec(ctx, `INSERT INTO loyalty_accounts (customer_id, points) VALUES ($1,$2)
		ON CONFLICT (customer_id) DO UPDATE SET points = loyalty_accounts.points + EXCLUDED.points`, customerID, points)
	return err
}

// LoyaltyPoints reads a customer's balance.
func LoyaltyPoints(ctx context.Context, q querier, customerID uuid.UUID) (int64, error) {
	var points int64
	err := q.QueryRow(ctx, `SELECT COALESCE((SELECT points FROM loyalty_accounts WHERE customer_id=$1), 0)`, customerID).Scan(&points)
	return points, err
}
