// Package cart keeps the buyer's pre-checkout session: pinned to one outlet,
// prices locked at add time, quantities backed by inventory holds.
package cart

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/inventory"
)

var (
	ErrOutletMismatch = &apperr.Error{Kind: apperr.KindConflict, Op: "cart", Msg: "cart is pinned to another outlet"}
	ErrEmptyCart      = &apperr.Error{Kind: apperr.KindValidation, Op: "cart", Msg: "cart is empty"}
	ErrSoldOut        = &apperr.Error{Kind: apperr.KindExhausted, Op: "cart", Msg: "every item in the cart is sold out"}
	ErrLineNotFound   = &apperr.Error{Kind: apperr.KindNotFound, Op: "cart", Msg: "unit not in cart"}
	ErrUnavailable    = &apperr.Error{Kind: apperr.KindValidation, Op: "cart", Msg: "unit is not available for sale"}
)

type Line struct {
	UnitID        string          `json:"unit_id"`
	Name          string          `json:"name"`
	Qty           int             `json:"qty"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	OriginalPrice decimal.Decimal `json:"original_price"`
}

type Cart struct {
	BuyerID   string          `json:"buyer_id"`
	OutletID  string          `json:"outlet_id,omitempty"`
	Items     map[string]Line `json:"items"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func newCart(buyerID string) Cart {
	return Cart{BuyerID: buyerID, Items: map[string]Line{}}
}

func (c Cart) Empty() bool { return len(c.Items) == 0 }

// Lines returns the items ordered by unit id.
func (c Cart) Lines() []Line {
	out := make([]Line, 0, len(c.Items))
	for _, l := range c.Items {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out
}

func (c Cart) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range c.Items {
		sum = sum.Add(l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	return sum
}

// Adjustment records a line changed during checkout validation.
type Adjustment struct {
	UnitID    string `json:"unit_id"`
	Requested int    `json:"requested"`
	Granted   int    `json:"granted"`
}

// Checkout is a validated cart ready for order creation. Its holds are owned
// by Holder until the order takes them over.
type Checkout struct {
	BuyerID     string       `json:"buyer_id"`
	OutletID    string       `json:"outlet_id"`
	Holder      string       `json:"-"`
	Lines       []Line       `json:"lines"`
	Adjustments []Adjustment `json:"adjustments,omitempty"`
}

func (c Checkout) InventoryLines() []inventory.Line {
	out := make([]inventory.Line, len(c.Lines))
	for i, l := range c.Lines {
		out[i] = inventory.Line{UnitID: l.UnitID, Qty: l.Qty}
	}
	return out
}
