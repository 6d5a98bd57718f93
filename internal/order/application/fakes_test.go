package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/internal/order/domain"
	"github.com/dmehra2102/tableflow/internal/order/infrastructure/memstore"
	paydomain "github.com/dmehra2102/tableflow/internal/payment/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func deltas(t *testing.T, s *memstore.Store) []domain.Delta {
	t.Helper()
	var out []domain.Delta
	for _, e := range s.Events(domain.EventOrderDelta) {
		var d domain.Delta
		if err := json.Unmarshal(e.Payload, &d); err != nil {
			t.Fatalf("decode delta: %v", err)
		}
		out = append(out, d)
	}
	return out
}

type memMenu map[uuid.UUID]domain.MenuEntry

func (m memMenu) Resolve(_ context.Context, id uuid.UUID) (domain.MenuEntry, error) {
	e, ok := m[id]
	if !ok {
		return domain.MenuEntry{}, domain.ErrInvalidMenuReference
	}
	return e, nil
}

type brokenAuthorizer struct{}

func (brokenAuthorizer) Authorize(context.Context, paydomain.Charge) (paydomain.Authorization, error) {
	return paydomain.Authorization{}, errors.New("connection reset")
}

// menuStore wraps memstore with transactions that price lines themselves.
type menuStore struct {
	*memstore.Store
	menu memMenu
}

func (s menuStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx application.Tx) error {
		return fn(ctx, menuTx{Tx: tx, menu: s.menu})
	})
}

type menuTx struct {
	application.Tx
	menu memMenu
}

func (t menuTx) Menu() application.MenuResolver { return t.menu }
