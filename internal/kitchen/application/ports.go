package application

import (
	"context"

	"github.com/dmehra2102/tableflow/internal/kitchen/domain"
)

type Publisher interface {
	Publish(ctx context.Context, update domain.DisplayUpdate) error
}
