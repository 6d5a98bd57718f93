package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
)

var (
	stew  = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	salad = uuid.MustParse("00000000-0000-0000-0000-0000000000a2")
	menu  = map[uuid.UUID]MenuEntry{
		stew:  {MenuID: stew, Name: "stew", UnitPrice: 8000, CookStation: "hot"},
		salad: {MenuID: salad, Name: "salad", UnitPrice: 5000, CookStation: "cold"},
	}
)

func newTestOrder(channel Channel) *Order {
	return NewOrder(uuid.New(), uuid.New(), channel, nil)
}

func mustAdd(t *testing.T, o *Order, channel Channel, lines map[uuid.UUID]int) *Ticket {
	t.Helper()
	tk, err := o.AddTicket(channel, lines, menu)
	if err != nil {
		t.Fatalf("add ticket: %v", err)
	}
	o.Recompute()
	return tk
}

func TestBatchScenarios(t *testing.T) {
	o := newTestOrder(ChannelTerminal)

	b1 := mustAdd(t, o, ChannelTerminal, map[uuid.UUID]int{stew: 2})
	if b1.BatchNo != 1 || b1.PaymentType != PaymentPostpaid || o.TotalPrice != 16000 {
		t.Fatalf("after first batch: batch=%d type=%s total=%d", b1.BatchNo, b1.PaymentType, o.TotalPrice)
	}

	b2 := mustAdd(t, o, ChannelTerminal, map[uuid.UUID]int{stew: 1})
	if b2.BatchNo != 2 || o.TotalPrice != 24000 {
		t.Fatalf("after second batch: batch=%d total=%d", b2.BatchNo, o.TotalPrice)
	}

	rm, err := o.RemoveLIFO(ChannelTerminal, map[uuid.UUID]int{stew: 2}, RemovalCap)
	if err != nil {
		t.Fatal(err)
	}
	o.Recompute()
	if o.TotalPrice != 8000 {
		t.Fatalf("expected 8000, got %d", o.TotalPrice)
	}
	if len(rm.Changes) != 2 || rm.Changes[0].TicketID != b2.ID || rm.Changes[1].TicketID != b1.ID {
		t.Fatalf("expected newest batch visited first, got %+v", rm.Changes)
	}
	if b2.Status != TicketCanceled || b1.Status != TicketPending || b1.Items[0].Quantity != 1 {
		t.Fatalf("unexpected tickets b1=%s/%d b2=%s", b1.Status, b1.Items[0].Quantity, b2.Status)
	}
	if len(rm.CanceledTickets) != 1 || rm.CanceledTickets[0] != b2 {
		t.Fatalf("expected b2 reported canceled, got %v", rm.CanceledTickets)
	}

	if _, err := o.RemoveLIFO(ChannelTerminal, map[uuid.UUID]int{stew: 1}, RemovalCap); err != nil {
		t.Fatal(err)
	}
	o.Recompute()
	if o.HasActiveItems() || o.TotalPrice != 0 {
		t.Fatalf("expected empty order, total=%d", o.TotalPrice)
	}
	if b1.Items[0].Status != ItemCanceled || b1.Status != TicketCanceled {
		t.Fatal("last unit removal must cancel item and ticket")
	}
	if o.NextBatchNo() != 3 {
		t.Fatalf("canceled batches keep their numbers, next=%d", o.NextBatchNo())
	}
}

func TestRemoveLIFOPolicies(t *testing.T) {
	setup := func() (*Order, *Ticket) {
		o := newTestOrder(ChannelTerminal)
		tk := mustAdd(t, o, ChannelTerminal, map[uuid.UUID]int{stew: 2, salad: 1})
		return o, tk
	}

	t.Run("capIgnoresExcess", func(t *testing.T) {
		o, tk := setup()
		rm, err := o.RemoveLIFO(ChannelTerminal, map[uuid.UUID]int{stew: 5}, RemovalCap)
		if err != nil {
			t.Fatal(err)
		}
		if len(rm.Changes) != 1 || rm.Changes[0].Quantity != 2 || !rm.Changes[0].Canceled {
			t.Fatalf("unexpected changes %+v", rm.Changes)
		}
		if tk.Status != TicketPending {
			t.Fatal("ticket with an active salad must stay pending")
		}
	})

	t.Run("strictRejectsWithoutMutation", func(t *testing.T) {
		o, tk := setup()
		_, err := o.RemoveLIFO(ChannelTerminal, map[uuid.UUID]int{stew: 1, salad: 2}, RemovalStrict)
		if !errors.Is(err, ErrRemovalExceeds) || KindOf(err) != KindValidation {
			t.Fatalf("expected validation ErrRemovalExceeds, got %v", err)
		}
		for _, it := range tk.Items {
			if it.Status != ItemPending {
				t.Fatalf("item %s mutated by a rejected removal", it.MenuID)
			}
		}
		if tk.Subtotal() != 21000 {
			t.Fatalf("expected untouched subtotal 21000, got %d", tk.Subtotal())
		}
	})

	t.Run("strictAllowsExactQuantity", func(t *testing.T) {
		o, _ := setup()
		if _, err := o.RemoveLIFO(ChannelTerminal, map[uuid.UUID]int{stew: 2}, RemovalStrict); err != nil {
			t.Fatal(err)
		}
	})
}

func TestRemoveLIFOSkipsProtectedItems(t *testing.T) {
	o := newTestOrder(ChannelExternal)
	paid := mustAdd(t, o, ChannelExternal, map[uuid.UUID]int{stew: 1})
	if err := paid.MarkPaid(); err != nil {
		t.Fatal(err)
	}
	served := mustAdd(t, o, ChannelExternal, map[uuid.UUID]int{stew: 1})
	if err := served.Items[0].Transition(ItemServed); err != nil {
		t.Fatal(err)
	}
	other := mustAdd(t, o, ChannelTerminal, map[uuid.UUID]int{stew: 1})

	if n := o.Removable(ChannelExternal, stew); n != 0 {
		t.Fatalf("paid and served items are not removable, got %d", n)
	}
	rm, err := o.RemoveLIFO(ChannelExternal, map[uuid.UUID]int{stew: 3}, RemovalCap)
	if err != nil {
		t.Fatal(err)
	}
	if len(rm.Changes) != 0 {
		t.Fatalf("expected no changes, got %+v", rm.Changes)
	}
	if other.Items[0].Quantity != 1 {
		t.Fatal("removal must not touch another channel's tickets")
	}
}

func TestCancelItem(t *testing.T) {
	o := newTestOrder(ChannelTerminal)
	tk := mustAdd(t, o, ChannelTerminal, map[uuid.UUID]int{stew: 1})
	it := tk.Items[0]

	change, canceled, err := o.CancelItem(it.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !change.Canceled || change.Quantity != 1 || canceled != tk {
		t.Fatalf("unexpected cancel result %+v %v", change, canceled)
	}

	o2 := newTestOrder(ChannelTerminal)
	tk2 := mustAdd(t, o2, ChannelTerminal, map[uuid.UUID]int{stew: 1})
	if err := tk2.Items[0].Transition(ItemServed); err != nil {
		t.Fatal(err)
	}
	if _, _, err := o2.CancelItem(tk2.Items[0].ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("served item cancel: expected ErrInvalidTransition, got %v", err)
	}
	if _, _, err := o2.CancelItem(uuid.New()); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestAddTicketValidation(t *testing.T) {
	o := newTestOrder(ChannelTerminal)
	if _, err := o.AddTicket(ChannelTerminal, map[uuid.UUID]int{}, menu); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if _, err := o.AddTicket(ChannelTerminal, map[uuid.UUID]int{uuid.New(): 1}, menu); !errors.Is(err, ErrInvalidMenuReference) {
		t.Fatalf("expected ErrInvalidMenuReference, got %v", err)
	}
	if _, err := o.AddTicket(ChannelTerminal, map[uuid.UUID]int{stew: 0}, menu); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
	if len(o.Tickets) != 0 {
		t.Fatal("rejected tickets must not be attached")
	}
}
