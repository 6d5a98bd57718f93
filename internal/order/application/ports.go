package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/domain"
	paydomain "github.com/dmehra2102/tableflow/internal/payment/domain"
)

// Store runs fn inside one database transaction. fn may be invoked again
// when the transaction hits a transient fault, so it must not keep state
// across attempts.
type Store interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Tables() TableRepository
	Orders() OrderRepository
	Payments() PaymentRepository
	Loyalty() LoyaltyLedger
	Outbox() EventRecorder
}

type TableRepository interface {
	// LockTable reads the table row FOR UPDATE.
	LockTable(ctx context.Context, id uuid.UUID) (*domain.Table, error)
	GetTable(ctx context.Context, id uuid.UUID) (*domain.Table, error)
	SaveTable(ctx context.Context, t *domain.Table) error
}

type OrderRepository interface {
	// LockOrder reads the order row FOR UPDATE together with its tickets and items.
	LockOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// OrderTable returns the table an order sits on without locking.
	OrderTable(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error)
	// ItemOrder returns the order owning an item without locking.
	ItemOrder(ctx context.Context, itemID uuid.UUID) (uuid.UUID, error)
	CreateOrder(ctx context.Context, o *domain.Order) error
	SaveOrder(ctx context.Context, o *domain.Order) error
	CreateTicket(ctx context.Context, t *domain.Ticket) error
	SaveTicket(ctx context.Context, t *domain.Ticket) error
	SaveItem(ctx context.Context, it *domain.Item) error
}

type PaymentTotals struct {
	Amount  int64
	Tickets int64
}

func (t PaymentTotals) Sum() int64 { return t.Amount + t.Tickets }

type PaymentRepository interface {
	// Totals sums completed payments of an order per settlement mode.
	Totals(ctx context.Context, orderID uuid.UUID) (PaymentTotals, error)
	Create(ctx context.Context, p *paydomain.Payment) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]paydomain.Payment, error)
}

type LoyaltyLedger interface {
	Credit(ctx context.Context, customerID, orderID uuid.UUID, points int64) error
}

// EventRecorder appends an event to the transactional outbox. The event is
// published only after the surrounding transaction commits.
type EventRecorder interface {
	Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

type MenuResolver interface {
	Resolve(ctx context.Context, menuID uuid.UUID) (domain.MenuEntry, error)
}

// MenuReader is implemented by a Tx that reads menu prices inside the
// transaction itself. Without it the service's own MenuResolver is used.
type MenuReader interface {
	Menu() MenuResolver
}

type Authorizer interface {
	Authorize(ctx context.Context, charge paydomain.Charge) (paydomain.Authorization, error)
}

type Lease struct {
	TableID   uuid.UUID `json:"table_id"`
	Holder    string    `json:"holder"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TableLocker is an advisory, expiring lock per table. It never blocks:
// a held lock is reported as *domain.LockedError.
type TableLocker interface {
	Acquire(ctx context.Context, tableID uuid.UUID, holder string, ttl time.Duration) (Lease, error)
	Release(ctx context.Context, tableID uuid.UUID, holder string) error
	Current(ctx context.Context, tableID uuid.UUID) (Lease, bool, error)
}
