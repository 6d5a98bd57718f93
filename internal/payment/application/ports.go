package application

import (
	"context"

	"github.com/dmehra2102/tableflow/internal/payment/domain"
)

// Provider is the external payment processor. It authorizes and captures a
// charge in one call.
type Provider interface {
	Authorize(ctx context.Context, charge domain.Charge) (domain.Authorization, error)
}
