package order

import (
	"fmt"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
)

const (
	GuardIllegal    = "illegal_transition"
	GuardRace       = "concurrent_transition"
	GuardNotDue     = "deadline_not_passed"
	GuardBuyer      = "buyer_only"
	GuardStaff      = "outlet_staff_only"
	GuardPickupCode = "pickup_code_mismatch"
)

// TransitionError is returned for every rejected transition. It carries the
// authoritative current status so callers can decide to retry or re-fetch.
type TransitionError struct {
	OrderID   string
	Current   Status
	Requested Status
	Guard     string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move %s -> %s (%s)", e.OrderID, e.Current, e.Requested, e.Guard)
}

func (e *TransitionError) ErrorKind() apperr.Kind { return apperr.KindConflict }

// IsRetryable is true only for lost races; an illegal move never succeeds.
func (e *TransitionError) IsRetryable() bool { return e.Guard == GuardRace }

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// GuardError is a failed guard that leaves the order where it was without a
// state conflict, e.g. a wrong pickup code. Kind and retryability come from Err.
type GuardError struct {
	OrderID string
	Guard   string
	Err     error
}

func (e *GuardError) Error() string { return fmt.Sprintf("order %s: %v", e.OrderID, e.Err) }

func (e *GuardError) Unwrap() error { return e.Err }

var (
	ErrInvalidTransition = &apperr.Error{Kind: apperr.KindConflict, Op: "order", Msg: "invalid transition"}
	ErrNotFound          = &apperr.Error{Kind: apperr.KindNotFound, Op: "order", Msg: "order not found"}
	ErrStale             = &apperr.Error{Kind: apperr.KindConflict, Op: "order", Msg: "order changed concurrently", Retryable: true}
	ErrWrongPickupCode   = &apperr.Error{Kind: apperr.KindValidation, Op: "order", Msg: "pickup code does not match", Retryable: true}
	ErrNoItems           = &apperr.Error{Kind: apperr.KindValidation, Op: "order", Msg: "order needs at least one item"}
)

func guardErr(o Order, to Status, guard string) error {
	switch guard {
	case GuardBuyer, GuardStaff:
		return &apperr.Error{Kind: apperr.KindUnauthorized, Op: "order",
			Msg: fmt.Sprintf("order %s: %s -> %s requires %s", o.ID, o.Status, to, guard)}
	}
	return &TransitionError{OrderID: o.ID, Current: o.Status, Requested: to, Guard: guard}
}
