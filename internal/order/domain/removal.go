package domain

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// RemovalPolicy decides what happens when a removal asks for more units than
// the channel can still take back.
type RemovalPolicy string

const (
	// RemovalCap removes what exists and ignores the excess.
	RemovalCap RemovalPolicy = "cap"
	// RemovalStrict rejects the whole batch.
	RemovalStrict RemovalPolicy = "strict"
)

func ParseRemovalPolicy(s string) (RemovalPolicy, error) {
	switch RemovalPolicy(s) {
	case "", RemovalCap:
		return RemovalCap, nil
	case RemovalStrict:
		return RemovalStrict, nil
	}
	return "", fmt.Errorf("unknown removal policy %q", s)
}

// ItemChange describes the effect of a batch on one item.
type ItemChange struct {
	ItemID      uuid.UUID `json:"item_id"`
	TicketID    uuid.UUID `json:"ticket_id"`
	BatchNo     int       `json:"batch_no"`
	MenuID      uuid.UUID `json:"menu_id"`
	Quantity    int       `json:"quantity"`
	UnitPrice   int64     `json:"unit_price"`
	CookStation string    `json:"cook_station"`
	Canceled    bool      `json:"canceled"`
}

// Removal is the outcome of RemoveLIFO.
type Removal struct {
	Changes         []ItemChange
	TouchedItems    []*Item
	CanceledTickets []*Ticket
}

// RemovalCandidates lists the tickets a channel may still take items back
// from, newest batch first.
func (o *Order) RemovalCandidates(channel Channel) []*Ticket {
	var out []*Ticket
	for _, t := range o.Tickets {
		if t.SourceChannel != channel || t.Status == TicketCanceled || t.PaidStatus != Unpaid {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].BatchNo != out[j].BatchNo {
			return out[i].BatchNo > out[j].BatchNo
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Removable counts the units of menuID the channel can still remove.
func (o *Order) Removable(channel Channel, menuID uuid.UUID) int {
	n := 0
	for _, t := range o.RemovalCandidates(channel) {
		for _, it := range t.Items {
			if it.MenuID == menuID && it.Removable() {
				n += it.Quantity
			}
		}
	}
	return n
}

// RemoveLIFO takes the requested quantities back from the channel's unpaid
// tickets, visiting the most recent batch first. Under RemovalStrict nothing
// is mutated when any line asks for more than is removable.
func (o *Order) RemoveLIFO(channel Channel, lines map[uuid.UUID]int, policy RemovalPolicy) (Removal, error) {
	var res Removal
	for menuID, qty := range lines {
		if qty <= 0 {
			return res, ErrInvalidRequest.Withf("removal quantity for %s must be positive", menuID)
		}
		if policy == RemovalStrict {
			if have := o.Removable(channel, menuID); qty > have {
				return res, ErrRemovalExceeds.Withf("cannot remove %d of %s, only %d removable", qty, menuID, have)
			}
		}
	}

	touched := map[uuid.UUID]bool{}
	candidates := o.RemovalCandidates(channel)
	for _, menuID := range sortedKeys(lines) {
		left := lines[menuID]
		for _, t := range candidates {
			if left == 0 {
				break
			}
			for _, it := range t.Items {
				if left == 0 {
					break
				}
				if it.MenuID != menuID {
					continue
				}
				taken := it.Reduce(left)
				if taken == 0 {
					continue
				}
				left -= taken
				res.Changes = append(res.Changes, ItemChange{
					ItemID:      it.ID,
					TicketID:    t.ID,
					BatchNo:     t.BatchNo,
					MenuID:      it.MenuID,
					Quantity:    taken,
					UnitPrice:   it.UnitPrice,
					CookStation: it.CookStation,
					Canceled:    it.Status == ItemCanceled,
				})
				if !touched[it.ID] {
					touched[it.ID] = true
					res.TouchedItems = append(res.TouchedItems, it)
				}
			}
		}
	}

	for _, t := range candidates {
		if t.settleCancellation() {
			res.CanceledTickets = append(res.CanceledTickets, t)
		}
	}
	return res, nil
}

// CancelItem cancels one item entirely and cancels its ticket when it was
// the last active one.
func (o *Order) CancelItem(itemID uuid.UUID) (ItemChange, *Ticket, error) {
	t, it := o.FindItem(itemID)
	if it == nil {
		return ItemChange{}, nil, ErrItemNotFound
	}
	if t.PaidStatus == Paid {
		return ItemChange{}, nil, ErrTicketAlreadyPaid
	}
	qty := it.Quantity
	if err := it.Transition(ItemCanceled); err != nil {
		return ItemChange{}, nil, err
	}
	change := ItemChange{
		ItemID:      it.ID,
		TicketID:    t.ID,
		BatchNo:     t.BatchNo,
		MenuID:      it.MenuID,
		Quantity:    qty,
		UnitPrice:   it.UnitPrice,
		CookStation: it.CookStation,
		Canceled:    true,
	}
	if t.settleCancellation() {
		return change, t, nil
	}
	return change, nil, nil
}

// AddedChanges describes a freshly created ticket.
func AddedChanges(t *Ticket) []ItemChange {
	out := make([]ItemChange, 0, len(t.Items))
	for _, it := range t.Items {
		out = append(out, ItemChange{
			ItemID:      it.ID,
			TicketID:    t.ID,
			BatchNo:     t.BatchNo,
			MenuID:      it.MenuID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			CookStation: it.CookStation,
		})
	}
	return out
}
