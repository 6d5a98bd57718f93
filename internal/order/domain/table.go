package domain

import (
	"time"

	"github.com/google/uuid"
)

type Slot string

const (
	SlotNone  Slot = ""
	SlotMain  Slot = "main"
	SlotSpare Slot = "spare"
)

// Table holds at most two session references. The main slot is always
// filled before the spare one, and a lone session always sits in main.
type Table struct {
	ID           uuid.UUID
	StoreID      uuid.UUID
	Label        string
	Capacity     int
	Status       TableStatus
	MainOrderID  *uuid.UUID
	SpareOrderID *uuid.UUID
	UpdatedAt    time.Time
}

type SessionState struct {
	IsOccupied bool `json:"is_occupied"`
	IsMixed    bool `json:"is_mixed"`
}

// Occupy puts orderID into the first free slot.
func (t *Table) Occupy(orderID uuid.UUID) (Slot, error) {
	switch {
	case t.MainOrderID == nil:
		t.MainOrderID = ptr(orderID)
		t.touch()
		return SlotMain, nil
	case t.SpareOrderID == nil:
		t.SpareOrderID = ptr(orderID)
		t.touch()
		return SlotSpare, nil
	}
	return SlotNone, ErrTooManyActiveOrders
}

// Release clears every slot referencing orderID and compacts spare into main.
// It reports the first slot that held the order and whether anything changed.
func (t *Table) Release(orderID uuid.UUID) (Slot, bool) {
	released := SlotNone
	if refEquals(t.SpareOrderID, orderID) {
		t.SpareOrderID = nil
		released = SlotSpare
	}
	if refEquals(t.MainOrderID, orderID) {
		t.MainOrderID = nil
		released = SlotMain
	}
	if released == SlotNone {
		return SlotNone, false
	}
	if t.MainOrderID == nil && t.SpareOrderID != nil {
		t.MainOrderID = t.SpareOrderID
		t.SpareOrderID = nil
	}
	t.touch()
	return released, true
}

// Share points the spare slot at the order already held in main, turning it
// into a mixed session.
func (t *Table) Share(orderID uuid.UUID) error {
	if !refEquals(t.MainOrderID, orderID) || t.SpareOrderID != nil {
		return ErrNotEligibleForMerge
	}
	t.SpareOrderID = ptr(orderID)
	t.touch()
	return nil
}

func (t *Table) Session() SessionState {
	return SessionState{
		IsOccupied: t.MainOrderID != nil || t.SpareOrderID != nil,
		IsMixed:    t.MainOrderID != nil && t.SpareOrderID != nil && *t.MainOrderID == *t.SpareOrderID,
	}
}

// SlotsHeld counts non-nil slot references.
func (t *Table) SlotsHeld() int {
	n := 0
	if t.MainOrderID != nil {
		n++
	}
	if t.SpareOrderID != nil {
		n++
	}
	return n
}

// OrderIDs returns the distinct orders referenced by the slots, main first.
func (t *Table) OrderIDs() []uuid.UUID {
	var ids []uuid.UUID
	if t.MainOrderID != nil {
		ids = append(ids, *t.MainOrderID)
	}
	if t.SpareOrderID != nil && !refEquals(t.MainOrderID, *t.SpareOrderID) {
		ids = append(ids, *t.SpareOrderID)
	}
	return ids
}

func (t *Table) Holds(orderID uuid.UUID) bool {
	return refEquals(t.MainOrderID, orderID) || refEquals(t.SpareOrderID, orderID)
}

// IsSharedBy reports main == spare == orderID.
func (t *Table) IsSharedBy(orderID uuid.UUID) bool {
	return refEquals(t.MainOrderID, orderID) && refEquals(t.SpareOrderID, orderID)
}

func (t *Table) touch() {
	if t.MainOrderID == nil && t.SpareOrderID == nil {
		t.Status = TableAvailable
	} else {
		t.Status = TableOccupied
	}
	t.UpdatedAt = time.Now().UTC()
}

func refEquals(ref *uuid.UUID, id uuid.UUID) bool {
	return ref != nil && *ref == id
}

func ptr[T any](v T) *T { return &v }
