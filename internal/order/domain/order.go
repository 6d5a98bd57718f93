package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// Order is one dining session on a table.
type Order struct {
	ID            uuid.UUID
	StoreID       uuid.UUID
	TableID       uuid.UUID
	CustomerID    *uuid.UUID
	OriginChannel Channel
	SessionStatus SessionStatus
	PaymentStatus PaymentStatus
	IsMixed       bool
	TotalPrice    int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time

	// Tickets is loaded on demand, ordered by BatchNo ascending.
	Tickets []*Ticket
}

type Ticket struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	BatchNo       int
	SourceChannel Channel
	PaymentType   PaymentType
	PaidStatus    PaidStatus
	Status        TicketStatus
	CreatedAt     time.Time
	Items         []*Item
}

type Item struct {
	ID          uuid.UUID
	TicketID    uuid.UUID
	MenuID      uuid.UUID
	UnitPrice   int64
	Quantity    int
	Status      ItemStatus
	CookStation string
	CreatedAt   time.Time
}

// MenuEntry is the authoritative price and station for a menu item.
type MenuEntry struct {
	MenuID      uuid.UUID
	Name        string
	UnitPrice   int64
	CookStation string
}

func NewOrder(storeID, tableID uuid.UUID, channel Channel, customerID *uuid.UUID) *Order {
	now := time.Now().UTC()
	return &Order{
		ID:            uuid.New(),
		StoreID:       storeID,
		TableID:       tableID,
		CustomerID:    customerID,
		OriginChannel: channel,
		SessionStatus: SessionOpen,
		PaymentStatus: PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (o *Order) IsOpen() bool { return o.SessionStatus == SessionOpen }

// NextBatchNo is one past the highest batch ever issued, canceled ones included.
func (o *Order) NextBatchNo() int {
	next := 1
	for _, t := range o.Tickets {
		if t.BatchNo >= next {
			next = t.BatchNo + 1
		}
	}
	return next
}

// AddTicket opens a new batch for channel with one item per menu entry.
// Lines are added in a stable menu-id order so repeated requests produce
// identical tickets.
func (o *Order) AddTicket(channel Channel, lines map[uuid.UUID]int, menu map[uuid.UUID]MenuEntry) (*Ticket, error) {
	if len(lines) == 0 {
		return nil, ErrInvalidRequest.Withf("ticket needs at least one item")
	}
	now := time.Now().UTC()
	t := &Ticket{
		ID:            uuid.New(),
		OrderID:       o.ID,
		BatchNo:       o.NextBatchNo(),
		SourceChannel: channel,
		PaymentType:   channel.PaymentType(),
		PaidStatus:    Unpaid,
		Status:        TicketPending,
		CreatedAt:     now,
	}
	for _, menuID := range sortedKeys(lines) {
		qty := lines[menuID]
		if qty <= 0 {
			return nil, ErrInvalidRequest.Withf("quantity for %s must be positive", menuID)
		}
		entry, ok := menu[menuID]
		if !ok {
			return nil, ErrInvalidMenuReference.Withf("menu item %s not found", menuID)
		}
		t.Items = append(t.Items, &Item{
			ID:          uuid.New(),
			TicketID:    t.ID,
			MenuID:      menuID,
			UnitPrice:   entry.UnitPrice,
			Quantity:    qty,
			Status:      ItemPending,
			CookStation: entry.CookStation,
			CreatedAt:   now,
		})
	}
	o.Tickets = append(o.Tickets, t)
	return t, nil
}

// Recompute refreshes TotalPrice from the non-canceled items.
func (o *Order) Recompute() int64 {
	var total int64
	for _, t := range o.Tickets {
		total += t.Subtotal()
	}
	o.TotalPrice = total
	o.UpdatedAt = time.Now().UTC()
	return total
}

func (o *Order) HasActiveItems() bool {
	for _, t := range o.Tickets {
		if t.HasActiveItems() {
			return true
		}
	}
	return false
}

// Cancel collapses an order whose item set became empty. Every ticket is
// canceled and the session leaves the mixed state.
func (o *Order) Cancel() ([]*Ticket, error) {
	if !o.SessionStatus.CanTransitionTo(SessionCanceled) {
		return nil, ErrOrderClosed
	}
	var changed []*Ticket
	for _, t := range o.Tickets {
		if t.Status != TicketCanceled {
			t.Status = TicketCanceled
			changed = append(changed, t)
		}
	}
	now := time.Now().UTC()
	o.SessionStatus = SessionCanceled
	o.IsMixed = false
	o.TotalPrice = 0
	o.UpdatedAt = now
	o.ClosedAt = &now
	return changed, nil
}

// Close ends a fully settled session: remaining items are served and the
// session leaves the mixed state.
func (o *Order) Close() ([]*Item, error) {
	if !o.SessionStatus.CanTransitionTo(SessionClosed) {
		return nil, ErrOrderClosed
	}
	var served []*Item
	for _, t := range o.Tickets {
		for _, it := range t.Items {
			if it.Status == ItemCanceled || it.Status == ItemServed {
				continue
			}
			it.Status = ItemServed
			served = append(served, it)
		}
	}
	now := time.Now().UTC()
	o.SessionStatus = SessionClosed
	o.PaymentStatus = PaymentPaid
	o.IsMixed = false
	o.UpdatedAt = now
	o.ClosedAt = &now
	return served, nil
}

func (o *Order) SetPaymentStatus(next PaymentStatus) error {
	if o.PaymentStatus == next && next != PaymentPartial {
		return nil
	}
	if !o.PaymentStatus.CanTransitionTo(next) {
		return ErrInvalidTransition.Withf("payment status %s -> %s", o.PaymentStatus, next)
	}
	o.PaymentStatus = next
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (o *Order) Ticket(id uuid.UUID) *Ticket {
	for _, t := range o.Tickets {
		if t.ID == id {
			return t
		}
	}
	return nil
}

// FindItem locates an item and its ticket.
func (o *Order) FindItem(id uuid.UUID) (*Ticket, *Item) {
	for _, t := range o.Tickets {
		for _, it := range t.Items {
			if it.ID == id {
				return t, it
			}
		}
	}
	return nil, nil
}

// UnpaidTickets lists non-canceled unpaid tickets of channel.
func (o *Order) UnpaidTickets(channel Channel) []*Ticket {
	var out []*Ticket
	for _, t := range o.Tickets {
		if t.SourceChannel == channel && t.Status != TicketCanceled && t.PaidStatus == Unpaid {
			out = append(out, t)
		}
	}
	return out
}

func (o *Order) HasPaidTicket(channel Channel) bool {
	for _, t := range o.Tickets {
		if t.SourceChannel == channel && t.PaidStatus == Paid {
			return true
		}
	}
	return false
}

func (o *Order) HasTicketFrom(channel Channel) bool {
	for _, t := range o.Tickets {
		if t.SourceChannel == channel {
			return true
		}
	}
	return false
}

// SortTickets restores BatchNo ascending order after loading.
func (o *Order) SortTickets() {
	sort.SliceStable(o.Tickets, func(i, j int) bool {
		return o.Tickets[i].BatchNo < o.Tickets[j].BatchNo
	})
}

func (t *Ticket) Subtotal() int64 {
	var sum int64
	for _, it := range t.Items {
		sum += it.LineTotal()
	}
	return sum
}

func (t *Ticket) HasActiveItems() bool {
	for _, it := range t.Items {
		if it.Active() {
			return true
		}
	}
	return false
}

// MarkPaid settles an unpaid ticket.
func (t *Ticket) MarkPaid() error {
	if t.Status == TicketCanceled {
		return ErrInvalidTransition.Withf("ticket %d is canceled", t.BatchNo)
	}
	if !t.PaidStatus.CanTransitionTo(Paid) {
		return ErrTicketAlreadyPaid
	}
	t.PaidStatus = Paid
	return nil
}

// settleCancellation cancels the ticket once none of its items is active.
func (t *Ticket) settleCancellation() bool {
	if t.Status == TicketCanceled || t.HasActiveItems() {
		return false
	}
	t.Status = TicketCanceled
	return true
}

func (it *Item) Active() bool { return it.Status != ItemCanceled && it.Quantity > 0 }

func (it *Item) LineTotal() int64 {
	if !it.Active() {
		return 0
	}
	return it.UnitPrice * int64(it.Quantity)
}

// Removable reports whether the item can still be taken off the bill.
func (it *Item) Removable() bool {
	return it.Active() && it.Status.CanTransitionTo(ItemCanceled)
}

// Transition moves the item along the status table.
func (it *Item) Transition(next ItemStatus) error {
	if !it.Status.CanTransitionTo(next) {
		return ErrInvalidTransition.Withf("item status %s -> %s", it.Status, next)
	}
	it.Status = next
	return nil
}

// Reduce takes up to qty units off the item and returns how many were taken.
// Reaching zero cancels the item.
func (it *Item) Reduce(qty int) int {
	if qty <= 0 || !it.Removable() {
		return 0
	}
	taken := qty
	if taken > it.Quantity {
		taken = it.Quantity
	}
	it.Quantity -= taken
	if it.Quantity == 0 {
		it.Status = ItemCanceled
	}
	return taken
}

func sortedKeys(m map[uuid.UUID]int) []uuid.UUID {
	keys := make([]uuid.UUID, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}
