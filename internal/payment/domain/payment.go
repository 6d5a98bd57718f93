package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Mode records which settlement path produced a payment.
type Mode string

const (
	ModeAmount  Mode = "amount"
	ModeTickets Mode = "tickets"
)

type Method string

const (
	MethodCash     Method = "cash"
	MethodCard     Method = "card"
	MethodTransfer Method = "transfer"
	MethodVoucher  Method = "voucher"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCard, MethodTransfer, MethodVoucher:
		return true
	}
	return false
}

// RequiresAuthorization reports whether the provider must approve the charge.
// Cash and other offline methods are recorded as-is.
func (m Method) RequiresAuthorization() bool {
	return m == MethodCard
}

type Payment struct {
	ID          uuid.UUID
	OrderID     uuid.UUID
	Method      Method
	Mode        Mode
	Amount      int64
	Status      Status
	ProviderRef string
	Reason      string
	CreatedAt   time.Time
	Details     []Detail
}

// Detail links a payment to one ticket it settled.
type Detail struct {
	PaymentID uuid.UUID
	TicketID  uuid.UUID
	Amount    int64
}

func NewPayment(orderID uuid.UUID, method Method, mode Mode, amount int64) Payment {
	return Payment{
		ID:        uuid.New(),
		OrderID:   orderID,
		Method:    method,
		Mode:      mode,
		Amount:    amount,
		Status:    StatusCompleted,
		CreatedAt: time.Now().UTC(),
	}
}

func (p *Payment) AddDetail(ticketID uuid.UUID, amount int64) {
	p.Details = append(p.Details, Detail{PaymentID: p.ID, TicketID: ticketID, Amount: amount})
}

func (p *Payment) Fail(reason string) {
	p.Status = StatusFailed
	p.Reason = reason
}

// Charge is what the provider is asked to authorize and capture.
type Charge struct {
	Reference string
	Amount    int64
	Method    Method
}

type Authorization struct {
	OK          bool
	ProviderRef string
	Reason      string
}
