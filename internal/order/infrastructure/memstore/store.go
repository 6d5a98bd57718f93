package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/dmehra2102/tableflow/internal/order/application"
	"github.com/dmehra2102/tableflow/internal/order/domain"
	paydomain "github.com/dmehra2102/tableflow/internal/payment/domain"
)

// Event is an outbox record kept in memory.
type Event struct {
	AggregateType string
	AggregateID   string
	Type          string
	Payload       []byte
}

type state struct {
	tables   map[uuid.UUID]*domain.Table
	orders   map[uuid.UUID]*domain.Order
	payments []paydomain.Payment
	loyalty  map[uuid.UUID]int64
	events   []Event
}

// Store is a single-process application.Store for tests and local runs.
// Transactions are serialized and work on a copy of the state that is only
// kept when fn succeeds.
type Store struct {
	mu    sync.Mutex
	state *state

	// FailLoyalty, when set, is returned by every loyalty credit.
	FailLoyalty error
}

func New() *Store {
	return &Store{state: &state{
		tables:  map[uuid.UUID]*domain.Table{},
		orders:  map[uuid.UUID]*domain.Order{},
		loyalty: map[uuid.UUID]int64{},
	}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx application.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(ctx, &tx{s: work, failLoyalty: s.FailLoyalty}); err != nil {
		return domain.Persistence(err)
	}
	s.state = work
	return nil
}

// AddTable registers an empty table and returns its id.
func (s *Store) AddTable(storeID uuid.UUID, label string, capacity int) uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &domain.Table{ID: uuid.New(), StoreID: storeID, Label: label, Capacity: capacity, Status: domain.TableAvailable}
	s.state.tables[t.ID] = t
	return t.ID
}

func (s *Store) Table(id uuid.UUID) *domain.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.state.tables[id]; ok {
		return cloneTable(t)
	}
	return nil
}

func (s *Store) Order(id uuid.UUID) *domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.state.orders[id]; ok {
		return cloneOrder(o)
	}
	return nil
}

// Events returns committed outbox records of eventType, or all of them when
// eventType is empty.
func (s *Store) Events(eventType string) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.state.events {
		if eventType == "" || e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (s *Store) Points(customerID uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.loyalty[customerID]
}

func (s *state) clone() *state {
	c := &state{
		tables:   make(map[uuid.UUID]*domain.Table, len(s.tables)),
		orders:   make(map[uuid.UUID]*domain.Order, len(s.orders)),
		payments: make([]paydomain.Payment, 0, len(s.payments)),
		loyalty:  make(map[uuid.UUID]int64, len(s.loyalty)),
		events:   append([]Event(nil), s.events...),
	}
	for id, t := range s.tables {
		c.tables[id] = cloneTable(t)
	}
	for id, o := range s.orders {
		c.orders[id] = cloneOrder(o)
	}
	for _, p := range s.payments {
		p.Details = append([]paydomain.Detail(nil), p.Details...)
		c.payments = append(c.payments, p)
	}
	for k, v := range s.loyalty {
		c.loyalty[k] = v
	}
	return c
}

func cloneTable(t *domain.Table) *domain.Table {
	c := *t
	if t.MainOrderID != nil {
		id := *t.MainOrderID
		c.MainOrderID = &id
	}
	if t.SpareOrderID != nil {
		id := *t.SpareOrderID
		c.SpareOrderID = &id
	}
	return &c
}

func cloneOrder(o *domain.Order) *domain.Order {
	c := *o
	c.Tickets = make([]*domain.Ticket, 0, len(o.Tickets))
	for _, t := range o.Tickets {
		c.Tickets = append(c.Tickets, cloneTicket(t))
	}
	return &c
}

func cloneTicket(t *domain.Ticket) *domain.Ticket {
	c := *t
	c.Items = make([]*domain.Item, 0, len(t.Items))
	for _, it := range t.Items {
		ic := *it
		c.Items = append(c.Items, &ic)
	}
	return &c
}

type tx struct {
	s           *state
	failLoyalty error
}

func (t *tx) Tables() application.TableRepository     { return tables{t.s} }
func (t *tx) Orders() application.OrderRepository     { return orders{t.s} }
func (t *tx) Payments() application.PaymentRepository { return payments{t.s} }
func (t *tx) Loyalty() application.LoyaltyLedger      { return loyalty{t.s, t.failLoyalty} }
func (t *tx) Outbox() application.EventRecorder       { return outbox{t.s} }

type tables struct{ s *state }

func (r tables) LockTable(ctx context.Context, id uuid.UUID) (*domain.Table, error) {
	return r.GetTable(ctx, id)
}

func (r tables) GetTable(_ context.Context, id uuid.UUID) (*domain.Table, error) {
	t, ok := r.s.tables[id]
	if !ok {
		return nil, domain.ErrTableNotFound
	}
	return cloneTable(t), nil
}

func (r tables) SaveTable(_ context.Context, t *domain.Table) error {
	if _, ok := r.s.tables[t.ID]; !ok {
		return domain.ErrTableNotFound
	}
	r.s.tables[t.ID] = cloneTable(t)
	return nil
}

type orders struct{ s *state }

func (r orders) LockOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return r.GetOrder(ctx, id)
}

func (r orders) GetOrder(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	o, ok := r.s.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r orders) OrderTable(_ context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	o, ok := r.s.orders[orderID]
	if !ok {
		return uuid.Nil, domain.ErrOrderNotFound
	}
	return o.TableID, nil
}

func (r orders) ItemOrder(_ context.Context, itemID uuid.UUID) (uuid.UUID, error) {
	for _, o := range r.s.orders {
		if _, it := o.FindItem(itemID); it != nil {
			return o.ID, nil
		}
	}
	return uuid.Nil, domain.ErrItemNotFound
}

func (r orders) CreateOrder(_ context.Context, o *domain.Order) error {
	if _, ok := r.s.orders[o.ID]; ok {
		return errors.New("memstore: duplicate order")
	}
	r.s.orders[o.ID] = cloneOrder(o)
	return nil
}

// SaveOrder stores the order header. Tickets and items have their own writes.
func (r orders) SaveOrder(_ context.Context, o *domain.Order) error {
	cur, ok := r.s.orders[o.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	c := *o
	c.Tickets = cur.Tickets
	r.s.orders[o.ID] = &c
	return nil
}

func (r orders) CreateTicket(_ context.Context, t *domain.Ticket) error {
	o, ok := r.s.orders[t.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if o.Ticket(t.ID) != nil {
		return errors.New("memstore: duplicate ticket")
	}
	for _, cur := range o.Tickets {
		if cur.BatchNo == t.BatchNo {
			return errors.New("memstore: duplicate batch number")
		}
	}
	o.Tickets = append(o.Tickets, cloneTicket(t))
	return nil
}

func (r orders) SaveTicket(_ context.Context, t *domain.Ticket) error {
	o, ok := r.s.orders[t.OrderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	cur := o.Ticket(t.ID)
	if cur == nil {
		return domain.ErrTicketNotFound
	}
	cur.PaidStatus = t.PaidStatus
	cur.Status = t.Status
	return nil
}

func (r orders) SaveItem(_ context.Context, it *domain.Item) error {
	for _, o := range r.s.orders {
		if _, cur := o.FindItem(it.ID); cur != nil {
			cur.Quantity = it.Quantity
			cur.Status = it.Status
			return nil
		}
	}
	return domain.ErrItemNotFound
}

type payments struct{ s *state }

func (r payments) Totals(_ context.Context, orderID uuid.UUID) (application.PaymentTotals, error) {
	var t application.PaymentTotals
	for _, p := range r.s.payments {
		if p.OrderID != orderID || p.Status != paydomain.StatusCompleted {
			continue
		}
		if p.Mode == paydomain.ModeAmount {
			t.Amount += p.Amount
		} else {
			t.Tickets += p.Amount
		}
	}
	return t, nil
}

func (r payments) Create(_ context.Context, p *paydomain.Payment) error {
	c := *p
	c.Details = append([]paydomain.Detail(nil), p.Details...)
	r.s.payments = append(r.s.payments, c)
	return nil
}

func (r payments) ListByOrder(_ context.Context, orderID uuid.UUID) ([]paydomain.Payment, error) {
	var out []paydomain.Payment
	for _, p := range r.s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

type loyalty struct {
	s    *state
	fail error
}

func (l loyalty) Credit(_ context.Context, customerID, _ uuid.UUID, points int64) error {
	if l.fail != nil {
		return l.fail
	}
	l.s.loyalty[customerID] += points
	return nil
}

type outbox struct{ s *state }

func (o outbox) Record(_ context.Context, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	o.s.events = append(o.s.events, Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		Type:          eventType,
		Payload:       body,
	})
	return nil
}
