// Package inventory owns stock totals and transient holds per sellable unit.
//
// Available = max(0, total - reserved). Every operation on a unit is a single
// indivisible step of the backing store, and expired holds are subtracted from
// the reserved aggregate lazily, inside that same step, exactly once.
package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
)

var (
	ErrInsufficientStock = &apperr.Error{Kind: apperr.KindExhausted, Op: "inventory", Msg: "insufficient stock"}
	ErrUnknownUnit       = &apperr.Error{Kind: apperr.KindValidation, Op: "inventory", Msg: "unknown unit"}
	ErrInvalidQuantity   = &apperr.Error{Kind: apperr.KindValidation, Op: "inventory", Msg: "quantity must be positive"}
)

const DefaultHoldTTL = 10 * time.Minute

type Line struct {
	UnitID string `json:"unit_id"`
	Qty    int    `json:"qty"`
}

// Store is the atomic reservation primitive set. Implementations must make
// each call indivisible per unit (and per batch for the *Batch calls).
type Store interface {
	Available(ctx context.Context, unitID string) (int, error)
	Held(ctx context.Context, unitID, holderID string) (int, error)

	// Reserve adds qty to the holder's hold; false when available < qty.
	Reserve(ctx context.Context, unitID string, qty int, holderID string) (bool, error)
	// Resize sets the holder's hold to exactly qty (0 removes it); false when
	// the growth exceeds what is available.
	Resize(ctx context.Context, unitID, holderID string, qty int) (bool, error)
	// Release drops the holder's hold and returns the amount it contributed.
	Release(ctx context.Context, unitID, holderID string) (int, error)
	// Extend pushes the holder's hold expiry to now + hold TTL.
	Extend(ctx context.Context, unitID, holderID string) error

	// Decrement commits a sale, consuming the holder's own hold on the unit.
	Decrement(ctx context.Context, unitID string, qty int, holderID string) error
	DecrementBatch(ctx context.Context, holderID string, lines []Line) error
	// Restock reverses a DecrementBatch and re-establishes the holder's hold.
	Restock(ctx context.Context, holderID string, lines []Line, ttl time.Duration) error
	// TransferBatch moves holds from one holder to another, reserving any
	// shortfall fresh. All or nothing.
	TransferBatch(ctx context.Context, fromHolder, toHolder string, lines []Line, ttl time.Duration) error

	SetStock(ctx context.Context, unitID string, total int) error
	// Seed sets the total only when the unit is unknown to the store, with
	// zero reservations. Reports whether it seeded.
	Seed(ctx context.Context, unitID string, total int) (bool, error)
}

// Merge sums duplicate units and sorts by unit id so batch calls touch
// units in a stable order.
func Merge(lines []Line) ([]Line, error) {
	byUnit := make(map[string]int, len(lines))
	for _, l := range lines {
		if l.UnitID == "" {
			return nil, ErrUnknownUnit
		}
		if l.Qty <= 0 {
			return nil, fmt.Errorf("unit %s: %w", l.UnitID, ErrInvalidQuantity)
		}
		byUnit[l.UnitID] += l.Qty
	}
	out := make([]Line, 0, len(byUnit))
	for id, q := range byUnit {
		out = append(out, Line{UnitID: id, Qty: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}

func CartHolder(buyerID string) string  { return "cart:" + buyerID }
func OrderHolder(orderID string) string { return "order:" + orderID }

func unitErr(unitID string, err error) error {
	return fmt.Errorf("unit %s: %w", unitID, err)
}
