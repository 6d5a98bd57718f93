package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/tableflow/internal/order/domain"
)

// MenuResolver reads authoritative prices from menu_items. Inside a
// transaction it is bound to the tx, see txScope.Menu.
type MenuResolver struct {
	log *slog.Logger
	q   querier
}

func NewMenuResolver(log *slog.Logger, pool *pgxpool.Pool) *MenuResolver {
	return &MenuResolver{log: log, q: pool}
}

func (m *MenuResolver) Resolve(ctx context.Context, menuID uuid.UUID) (domain.MenuEntry, error) {
	e := domain.MenuEntry{MenuID: menuID}
	var available bool
	err := m.q.QueryRow(ctx, `SELECT name, unit_price, cook_station, available FROM menu_items WHERE id=$1`, menuID).
		Scan(&e.Name, &e.UnitPrice, &e.CookStation, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MenuEntry{}, domain.ErrInvalidMenuReference.Withf("menu item %s not found", menuID)
	}
	if err != nil {
		m.log.Error("menu lookup failed", "menu_id", menuID, "err", err)
		return domain.MenuEntry{}, domain.Persistence(err)
	}
	if !available {
		return domain.MenuEntry{}, domain.ErrInvalidMenuReference.Withf("menu item %s is not available", menuID)
	}
	return e, nil
}

// CreateMenuItem registers a menu entry. It is used by seeding and tests.
func CreateMenuItem(ctx context.Context, q querier, storeID uuid.UUID, e domain.MenuEntry) error {
	_, err := q.Exec(ctx, `INSERT INTO menu_items (id, store_id, name, unit_price, cook_station) VALUES ($1,$2,$3,$4,$5)`,
		e.MenuID, storeID, e.Name, e.UnitPrice, e.CookStation)
	return err
}
