package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeltaKind string

const (
	DeltaNewTicket DeltaKind = "new_ticket"
	DeltaCanceled  DeltaKind = "canceled"
	DeltaSettled   DeltaKind = "settled"
)

// EventOrderDelta is the outbox event type carrying a Delta.
const EventOrderDelta = "order.delta"

// Delta is emitted once per committed mutation for kitchen displays.
type Delta struct {
	OrderID       uuid.UUID    `json:"order_id"`
	TableID       uuid.UUID    `json:"table_id"`
	Kind          DeltaKind    `json:"kind"`
	Channel       Channel      `json:"channel,omitempty"`
	Added         []ItemChange `json:"added_items"`
	Removed       []ItemChange `json:"removed_items"`
	OrderCanceled bool         `json:"order_canceled"`
	TotalPrice    int64        `json:"total_price"`
	OccurredAt    time.Time    `json:"occurred_at"`
}

func NewDelta(o *Order, kind DeltaKind, channel Channel) Delta {
	return Delta{
		OrderID:    o.ID,
		TableID:    o.TableID,
		Kind:       kind,
		Channel:    channel,
		Added:      []ItemChange{},
		Removed:    []ItemChange{},
		TotalPrice: o.TotalPrice,
		OccurredAt: time.Now().UTC(),
	}
}
