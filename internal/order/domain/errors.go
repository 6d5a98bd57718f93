package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindState      Kind = "state_violation"
	KindPersist    Kind = "persistence"
)

// Error is the engine's error shape. Two errors match under errors.Is when
// their codes are equal, so sentinels can be returned with extra detail.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Withf returns a copy of e carrying a more specific message.
func (e *Error) Withf(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

var (
	ErrInvalidRequest = &Error{Kind: KindValidation, Code: "INVALID_REQUEST", Message: "invalid request"}
	ErrRemovalExceeds = &Error{Kind: KindValidation, Code: "REMOVAL_EXCEEDS_AVAILABLE", Message: "requested removal exceeds removable quantity"}

	ErrTableNotFound        = &Error{Kind: KindNotFound, Code: "TABLE_NOT_FOUND", Message: "table not found"}
	ErrOrderNotFound        = &Error{Kind: KindNotFound, Code: "ORDER_NOT_FOUND", Message: "order not found"}
	ErrTicketNotFound       = &Error{Kind: KindNotFound, Code: "TICKET_NOT_FOUND", Message: "ticket not found"}
	ErrItemNotFound         = &Error{Kind: KindNotFound, Code: "ITEM_NOT_FOUND", Message: "item not found"}
	ErrInvalidMenuReference = &Error{Kind: KindNotFound, Code: "INVALID_MENU_REFERENCE", Message: "menu item not found"}

	ErrTooManyActiveOrders           = &Error{Kind: KindConflict, Code: "TOO_MANY_ACTIVE_ORDERS", Message: "table already holds two active orders"}
	ErrNotEligibleForMerge           = &Error{Kind: KindConflict, Code: "NOT_ELIGIBLE_FOR_MERGE", Message: "order cannot become a mixed session"}
	ErrAmountExceedsBalance          = &Error{Kind: KindConflict, Code: "AMOUNT_EXCEEDS_BALANCE", Message: "amount exceeds remaining balance"}
	ErrAlreadySettled                = &Error{Kind: KindConflict, Code: "ALREADY_SETTLED", Message: "order already settled"}
	ErrNotEligibleForMixedSettlement = &Error{Kind: KindConflict, Code: "NOT_ELIGIBLE_FOR_MIXED_SETTLEMENT", Message: "order is not eligible for channel settlement"}
	ErrSettlementModeConflict        = &Error{Kind: KindConflict, Code: "SETTLEMENT_MODE_CONFLICT", Message: "order already received amount-based payments"}
	ErrInvalidTransition             = &Error{Kind: KindConflict, Code: "INVALID_TRANSITION", Message: "status transition not allowed"}
	ErrPaymentDeclined               = &Error{Kind: KindConflict, Code: "PAYMENT_DECLINED", Message: "payment declined by provider"}
	ErrTicketAlreadyPaid             = &Error{Kind: KindConflict, Code: "TICKET_ALREADY_PAID", Message: "ticket already paid"}
	ErrTotalBelowPaid                = &Error{Kind: KindConflict, Code: "TOTAL_BELOW_PAID", Message: "order total cannot drop below the amount already paid"}
	ErrTableLocked                   = &Error{Kind: KindConflict, Code: "TABLE_LOCKED", Message: "table is locked by another holder"}

	ErrOrderClosed     = &Error{Kind: KindState, Code: "ORDER_CLOSED", Message: "order is not open"}
	ErrNoActiveSession = &Error{Kind: KindState, Code: "NO_ACTIVE_SESSION", Message: "no active session"}

	ErrPersistence = &Error{Kind: KindPersist, Code: "PERSISTENCE", Message: "storage failure"}
)

// Persistence wraps a storage failure so it surfaces with the persistence kind.
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	c := *ErrPersistence
	c.Err = err
	return &c
}

// KindOf reports the kind of err, defaulting to persistence for unknown errors.
func KindOf(err error) Kind {
	var le *LockedError
	if errors.As(err, &le) {
		return KindConflict
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindPersist
}

// LockedError is returned when a table soft lock is held by someone else.
type LockedError struct {
	TableID   uuid.UUID
	Holder    string
	ExpiresAt time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("table %s locked by %s until %s", e.TableID, e.Holder, e.ExpiresAt.Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrTableLocked
}
