package domain

import "github.com/google/uuid"

const (
	EventPaymentCompleted = "payment.completed"
	EventPaymentFailed    = "payment.failed"
)

type PaymentCompleted struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Mode      Mode      `json:"mode"`
	Method    Method    `json:"method"`
	Amount    int64     `json:"amount"`
	Closed    bool      `json:"session_closed"`
}

type PaymentFailed struct {
	PaymentID uuid.UUID `json:"payment_id"`
	OrderID   uuid.UUID `json:"order_id"`
	Amount    int64     `json:"amount"`
	Reason    string    `json:"reason"`
}
