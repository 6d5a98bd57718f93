package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/tableflow/internal/order/application"
	paydomain "github.com/dmehra2102/tableflow/internal/payment/domain"
)

type paymentRepo struct {
	q querier
}

func (r *paymentRepo) Totals(ctx context.Context, orderID uuid.UUID) (application.PaymentTotals, error) {
	var t application.PaymentTotals
	err := r.q.QueryRow(ctx, `SELECT
			COALESCE(SUM(amount) FILTER (WHERE mode = 'amount'), 0),
			COALESCE(SUM(amount) FILTER (WHERE mode = 'tickets'), 0)
		FROM payments WHERE order_id=$1 AND status='completed'`, orderID).Scan(&t.Amount, &t.Tickets)
	return t, err
}

func (r *paymentRepo) Create(ctx context.Context, p *paydomain.Payment) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO payments (id, order_id, method, mode, amount, status, provider_ref, reason, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		p.ID, p.OrderID, p.Method, p.Mode, p.Amount, p.Status, p.ProviderRef, p.Reason, p.CreatedAt)
	for _, d := range p.Details {
		batch.Queue(`INSERT INTO payment_details (payment_id, ticket_id, amount) VALUES ($1,$2,$3)`,
			d.PaymentID, d.TicketID, d.Amount)
	}
	return r.q.SendBatch(ctx, batch).Close()
}

func (r *paymentRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]paydomain.Payment, error) {
	rows, err := r.q.Query(ctx, `SELECT id, order_id, method, mode, amount, status, provider_ref, reason, created_at
		FROM payments WHERE order_id=$1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, err
	}
	var out []paydomain.Payment
	index := map[uuid.UUID]int{}
	for rows.Next() {
		var p paydomain.Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.Method, &p.Mode, &p.Amount, &p.Status, &p.ProviderRef, &p.Reason, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		index[p.ID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	rows, err = r.q.Query(ctx, `SELECT d.payment_id, d.ticket_id, d.amount
		FROM payment_details d JOIN payments p ON p.id = d.payment_id
		WHERE p.order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d paydomain.Detail
		if err := rows.Scan(&d.PaymentID, &d.TicketID, &d.Amount); err != nil {
			return nil, err
		}
		if i, ok := index[d.PaymentID]; ok {
			out[i].Details = append(out[i].Details, d)
		}
	}
	return out, rows.Err()
}
