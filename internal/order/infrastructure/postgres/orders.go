package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/tableflow/internal/order/domain"
)

const orderColumns = `id, store_id, table_id, customer_id, origin_channel, session_status, payment_status, is_mixed, total_price, created_at, updated_at, closed_at`

type orderRepo struct {
	q querier
}

func (r *orderRepo) LockOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id)
}

func (r *orderRepo) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.load(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id)
}

func (r *orderRepo) load(ctx context.Context, sql string, id uuid.UUID) (*domain.Order, error) {
	var o domain.Order
	err := r.q.QueryRow(ctx, sql, id).Scan(&o.ID, &o.StoreID, &o.TableID, &o.CustomerID, &o.OriginChannel,
		&o.SessionStatus, &o.PaymentStatus, &o.IsMixed, &o.TotalPrice, &o.CreatedAt, &o.UpdatedAt, &o.ClosedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound.Withf("order %s not found", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.q.Query(ctx, `SELECT id, batch_no, source_channel, payment_type, paid_status, status, created_at
		FROM tickets WHERE order_id=$1 ORDER BY batch_no`, id)
	if err != nil {
		return nil, err
	}
	byID := map[uuid.UUID]*domain.Ticket{}
	for rows.Next() {
		t := &domain.Ticket{OrderID: o.ID}
		if err := rows.Scan(&t.ID, &t.BatchNo, &t.SourceChannel, &t.PaymentType, &t.PaidStatus, &t.Status, &t.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		o.Tickets = append(o.Tickets, t)
		byID[t.ID] = t
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(o.Tickets) == 0 {
		return &o, nil
	}

	rows, err = r.q.Query(ctx, `SELECT i.id, i.ticket_id, i.menu_id, i.unit_price, i.quantity, i.status, i.cook_station, i.created_at
		FROM ticket_items i JOIN tickets t ON t.id = i.ticket_id
		WHERE t.order_id=$1 ORDER BY i.created_at, i.id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it := &domain.Item{}
		if err := rows.Scan(&it.ID, &it.TicketID, &it.MenuID, &it.UnitPrice, &it.Quantity, &it.Status, &it.CookStation, &it.CreatedAt); err != nil {
			return nil, err
		}
		if t, ok := byID[it.TicketID]; ok {
			t.Items = append(t.Items, it)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	o.SortTickets()
	return &o, nil
}

func (r *orderRepo) OrderTable(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	var tableID uuid.UUID
	err := r.q.QueryRow(ctx, `SELECT table_id FROM orders WHERE id=$1`, orderID).Scan(&tableID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrOrderNotFound.Withf("order %s not found", orderID)
	}
	return tableID, err
}

func (r *orderRepo) ItemOrder(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error) {
	var orderID uuid.UUID
	err := r.q.QueryRow(ctx, `SELECT t.order_id FROM ticket_items i JOIN tickets t ON t.id = i.ticket_id WHERE i.id=$1`, itemID).
		Scan(&orderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrItemNotFound.Withf("item %s not found", itemID)
	}
	return orderID, err
}

func (r *orderRepo) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := r.q.Exec(ctx, `INSERT INTO orders (`+orderColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		o.ID, o.StoreID, o.TableID, o.CustomerID, o.OriginChannel, o.SessionStatus, o.PaymentStatus,
		o.IsMixed, o.TotalPrice, o.CreatedAt, o.UpdatedAt, o.ClosedAt)
	return err
}

func (r *orderRepo) SaveOrder(ctx context.Context, o *domain.Order) error {
	_, err := r.q.Exec(ctx, `UPDATE orders SET customer_id=$2, session_status=$3, payment_status=$4, is_mixed=$5,
		total_price=$6, updated_at=$7, closed_at=$8 WHERE id=$1`,
		o.ID, o.CustomerID, o.SessionStatus, o.PaymentStatus, o.IsMixed, o.TotalPrice, o.UpdatedAt, o.ClosedAt)
	return err
}

func (r *orderRepo) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO tickets (id, order_id, batch_no, source_channel, payment_type, paid_status, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		t.ID, t.OrderID, t.BatchNo, t.SourceChannel, t.PaymentType, t.PaidStatus, t.Status, t.CreatedAt)
	for _, it := range t.Items {
		batch.Queue(`INSERT INTO ticket_items (id, ticket_id, menu_id, unit_price, quantity, status, cook_station, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			it.ID, it.TicketID, it.MenuID, it.UnitPrice, it.Quantity, it.Status, it.CookStation, it.CreatedAt)
	}
	return r.q.SendBatch(ctx, batch).Close()
}

func (r *orderRepo) SaveTicket(ctx context.Context, t *domain.Ticket) error {
	_, err := r.q.Exec(ctx, `UPDATE tickets SET paid_status=$2, status=$3 WHERE id=$1`, t.ID, t.PaidStatus, t.Status)
	return err
}

func (r *orderRepo) SaveItem(ctx context.Context, it *domain.Item) error {
	_, err := r.q.Exec(ctx, `UPDATE ticket_items SET quantity=$2, status=$3 WHERE id=$1`, it.ID, it.Quantity, it.Status)
	return err
}
