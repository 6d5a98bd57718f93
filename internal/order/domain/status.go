package domain

type Channel string

const (
	ChannelTerminal Channel = "terminal"
	ChannelExternal Channel = "external"
)

var Channels = []Channel{ChannelTerminal, ChannelExternal}

func (c Channel) Valid() bool {
	switch c {
	case ChannelTerminal, ChannelExternal:
		return true
	}
	return false
}

func (c Channel) Other() Channel {
	if c == ChannelExternal {
		return ChannelTerminal
	}
	return ChannelExternal
}

// PaymentType is the ticket payment convention of the channel that created it.
func (c Channel) PaymentType() PaymentType {
	if c == ChannelExternal {
		return PaymentPrepaid
	}
	return PaymentPostpaid
}

type TableStatus string

const (
	TableAvailable TableStatus = "available"
	TableOccupied  TableStatus = "occupied"
)

type SessionStatus string

const (
	SessionOpen     SessionStatus = "open"
	SessionClosed   SessionStatus = "closed"
	SessionCanceled SessionStatus = "canceled"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionOpen:     {SessionClosed, SessionCanceled},
	SessionClosed:   nil,
	SessionCanceled: nil,
}

func (s SessionStatus) CanTransitionTo(next SessionStatus) bool {
	return allowed(sessionTransitions[s], next)
}

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending: {PaymentPartial, PaymentPaid},
	PaymentPartial: {PaymentPartial, PaymentPaid},
	PaymentPaid:    nil,
}

func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return allowed(paymentTransitions[s], next)
}

type PaymentType string

const (
	PaymentPrepaid  PaymentType = "prepaid"
	PaymentPostpaid PaymentType = "postpaid"
)

type PaidStatus string

const (
	Unpaid PaidStatus = "unpaid"
	Paid   PaidStatus = "paid"
)

var paidTransitions = map[PaidStatus][]PaidStatus{
	Unpaid: {Paid},
	Paid:   nil,
}

func (s PaidStatus) CanTransitionTo(next PaidStatus) bool {
	return allowed(paidTransitions[s], next)
}

type TicketStatus string

const (
	TicketPending  TicketStatus = "pending"
	TicketCanceled TicketStatus = "canceled"
)

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketPending:  {TicketCanceled},
	TicketCanceled: nil,
}

func (s TicketStatus) CanTransitionTo(next TicketStatus) bool {
	return allowed(ticketTransitions[s], next)
}

type ItemStatus string

const (
	ItemPending  ItemStatus = "pending"
	ItemCooking  ItemStatus = "cooking"
	ItemReady    ItemStatus = "ready"
	ItemServed   ItemStatus = "served"
	ItemCanceled ItemStatus = "canceled"
)

// Served and canceled items are final. A served item can never be canceled.
var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:  {ItemCooking, ItemReady, ItemServed, ItemCanceled},
	ItemCooking:  {ItemReady, ItemServed, ItemCanceled},
	ItemReady:    {ItemServed, ItemCanceled},
	ItemServed:   nil,
	ItemCanceled: nil,
}

func (s ItemStatus) CanTransitionTo(next ItemStatus) bool {
	return allowed(itemTransitions[s], next)
}

func (s ItemStatus) Valid() bool {
	_, ok := itemTransitions[s]
	return ok
}

func allowed[T comparable](targets []T, next T) bool {
	for _, t := range targets {
		if t == next {
			return true
		}
	}
	return false
}
