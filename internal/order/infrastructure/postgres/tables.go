package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dmehra2102/tableflow/internal/order/domain"
)

const tableColumns = `id, store_id, label, capacity, status, main_order_id, spare_order_id, updated_at`

type tableRepo struct {
	q querier
}

func (r *tableRepo) LockTable(ctx context.Context, id uuid.UUID) (*domain.Table, error) {
	return r.get(ctx, `SELECT `+tableColumns+` FROM dining_tables WHERE id=$1 FOR UPDATE`, id)
}

func (r *tableRepo) GetTable(ctx context.Context, id uuid.UUID) (*domain.Table, error) {
	return r.get(ctx, `SELECT `+tableColumns+` FROM dining_tables WHERE id=$1`, id)
}

func (r *tableRepo) get(ctx context.Context, sql string, id uuid.UUID) (*domain.Table, error) {
	var t domain.Table
	err := r.q.QueryRow(ctx, sql, id).
		Scan(&t.ID, &t.StoreID, &t.Label, &t.Capacity, &t.Status, &t.MainOrderID, &t.SpareOrderID, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrTableNotFound.Withf("table %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *tableRepo) SaveTable(ctx context.Context, t *domain.Table) error {
	ct, err := r.q.Exec(ctx, `UPDATE dining_tables SET status=$2, main_order_id=$3, spare_order_id=$4, updated_at=$5 WHERE id=$1`,
		t.ID, t.Status, t.MainOrderID, t.SpareOrderID, t.UpdatedAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrTableNotFound.Withf("table %s not found", t.ID)
	}
	return nil
}

// CreateTable registers a dining table. It is used by seeding and tests.
func CreateTable(ctx context.Context, q querier, t *domain.Table) error {
	if t.Status == "" {
		t.Status = domain.TableAvailable
	}
	_, err := q.Exec(ctx, `INSERT INTO dining_tables (`+tableColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,now())`,
		t.ID, t.StoreID, t.Label, t.Capacity, t.Status, t.MainOrderID, t.SpareOrderID)
	return err
}
