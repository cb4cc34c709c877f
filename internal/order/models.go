package order

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/surplus-orders/internal/inventory"
)

// ReviewWindow is how long after completion a buyer may leave a review.
const ReviewWindow = 48 * time.Hour

type Item struct {
	OrderID   string          `json:"order_id"`
	UnitID    string          `json:"unit_id"`
	Qty       int             `json:"qty"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type Order struct {
	ID              string          `json:"id"`
	BuyerID         string          `json:"buyer_id"`
	OutletID        string          `json:"outlet_id"`
	Status          Status          `json:"status"`
	Version         int             `json:"version"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	Currency        string          `json:"currency"`
	PickupCode      string          `json:"-"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Items           []Item          `json:"items"`

	AcceptanceDeadline *time.Time `json:"acceptance_deadline,omitempty"`
	PickupDeadline     *time.Time `json:"pickup_deadline,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	DeclinedAt  *time.Time `json:"declined_at,omitempty"`
	PreparingAt *time.Time `json:"preparing_at,omitempty"`
	ReadyAt     *time.Time `json:"ready_at,omitempty"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	ExpiredAt   *time.Time `json:"expired_at,omitempty"`
}

func (o Order) Lines() []inventory.Line {
	out := make([]inventory.Line, len(o.Items))
	for i, it := range o.Items {
		out[i] = inventory.Line{UnitID: it.UnitID, Qty: it.Qty}
	}
	return out
}

// CanReview reports whether the buyer may still review a completed order.
func (o Order) CanReview(now time.Time) bool {
	return o.Status == StatusCompleted && o.CompletedAt != nil && now.Before(o.CompletedAt.Add(ReviewWindow))
}

// stamp records the transition time for to. Terminal stamps are set once.
func (o *Order) stamp(to Status, at time.Time) {
	t := at
	switch to {
	case StatusPendingAcceptance:
		o.SubmittedAt = &t
	case StatusPaid:
		o.AcceptedAt = &t
	case StatusDeclined:
		o.DeclinedAt = &t
	case StatusPreparing:
		o.PreparingAt = &t
	case StatusReady:
		o.ReadyAt = &t
	case StatusPickedUp:
		o.PickedUpAt = &t
	case StatusCompleted:
		o.CompletedAt = &t
	case StatusCancelled:
		o.CancelledAt = &t
	case StatusExpired:
		o.ExpiredAt = &t
	}
	o.UpdatedAt = at
}

// Totals computes subtotal, tax and total from the items; tax is rounded to
// two places so total = subtotal + tax holds exactly.
func Totals(items []Item, taxRate decimal.Decimal) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	subtotal = subtotal.Round(2)
	tax = subtotal.Mul(taxRate).Round(2)
	return subtotal, tax, subtotal.Add(tax)
}

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleStaff  Role = "staff"
	RoleSystem Role = "system"
)

// Actor is whoever requests a transition.
type Actor struct {
	ID   string
	Role Role
}

func Buyer(id string) Actor { return Actor{ID: id, Role: RoleBuyer} }
func Staff(id string) Actor { return Actor{ID: id, Role: RoleStaff} }
func System() Actor         { return Actor{ID: "system", Role: RoleSystem} }
