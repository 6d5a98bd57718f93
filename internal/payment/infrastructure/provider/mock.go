package provider

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/payment/domain"
)

// Mock approves every charge up to Limit and declines anything above it.
// A zero Limit approves everything.
type Mock struct {
	Limit int64
}

func NewMock(limit int64) *Mock { return &Mock{Limit: limit} }

func (m *Mock) Authorize(_ context.Context, charge domain.Charge) (domain.Authorization, error) {
	if m.Limit > 0 && charge.Amount > m.Limit {
		return domain.Authorization{OK: false, Reason: fmt.Sprintf("amount %d above limit %d", charge.Amount, m.Limit)}, nil
	}
	return domain.Authorization{OK: true, ProviderRef: "mock-" + uuid.NewString()}, nil
}
