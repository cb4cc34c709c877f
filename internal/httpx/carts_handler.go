package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/cart"
	"github.com/ariefcatur/surplus-orders/internal/order"
)

type CartsHandler struct {
	Carts   *cart.Service
	Machine *order.Machine
	Log     zerolog.Logger
}

type AddItemReq struct {
	UnitID string `json:"unit_id"`
	Qty    int    `json:"qty"`
}

type UpdateItemReq struct {
	Qty int `json:"qty"`
}

type CheckoutResp struct {
	Order       order.Order       `json:"order"`
	Adjustments []cart.Adjustment `json:"adjustments,omitempty"`
}

func (h *CartsHandler) Register(r chi.Router) {
	r.Get("/carts", h.get)
	r.Delete("/carts", h.clear)
	r.Post("/carts/items", h.add)
	r.Patch("/carts/items/{unitID}", h.update)
	r.Delete("/carts/items/{unitID}", h.remove)
	r.Post("/carts/checkout", h.checkout)
}

func buyer(w http.ResponseWriter, r *http.Request) (string, bool) {
	a, ok := requireActor(w, r)
	if !ok {
		return "", false
	}
	if a.Role != order.RoleBuyer {
		writeError(w, apperr.Unauthorized("cart", "carts belong to buyers"), nil)
		return "", false
	}
	return a.ID, true
}

func (h *CartsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := buyer(w, r)
	if !ok {
		return
	}
	c, err := h.Carts.Get(r.Context(), id)
	h.reply(w, c, err)
}

func (h *CartsHandler) clear(w http.ResponseWriter, r *http.Request) {
	id, ok := buyer(w, r)
	if !ok {
		return
	}
	if err := h.Carts.Clear(r.Context(), id); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartsHandler) add(w http.ResponseWriter, r *http.Request) {
	id, ok := buyer(w, r)
	if !ok {
		return
	}
	var req AddItemReq
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Carts.Add(r.Context(), id, req.UnitID, req.Qty)
	h.reply(w, c, err)
}

func (h *CartsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := buyer(w, r)
	if !ok {
		return
	}
	var req UpdateItemReq
	if !decode(w, r, &req) {
		return
	}
	c, err := h.Carts.Update(r.Context(), id, chi.URLParam(r, "unitID"), req.Qty)
	h.reply(w, c, err)
}

func (h *CartsHandler) remove(w http.ResponseWriter, r *http.Request) {
	id, ok := buyer(w, r)
	if !ok {
		return
	}
	c, err := h.Carts.Remove(r.Context(), id, chi.URLParam(r, "unitID"))
	h.reply(w, c, err)
}

// checkout validates the cart and turns it into a CREATED order that takes
// over the cart's holds at the locked prices.
func (h *CartsHandler) checkout(w http.ResponseWriter, r *http.Request) {
	id, ok := buyer(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	co, err := h.Carts.Checkout(ctx, id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	prices := make(map[string]decimal.Decimal, len(co.Lines))
	for _, l := range co.Lines {
		prices[l.UnitID] = l.UnitPrice
	}
	o, err := h.Machine.Create(ctx, order.Buyer(id), order.CreateRequest{
		OutletID: co.OutletID, Items: co.InventoryLines(), Prices: prices, HoldFrom: co.Holder,
	})
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if err := h.Carts.Complete(ctx, id); err != nil {
		h.Log.Warn().Err(err).Str("buyer_id", id).Str("order_id", o.ID).Msg("drop cart after checkout")
	}
	writeJSON(w, http.StatusCreated, CheckoutResp{Order: o, Adjustments: co.Adjustments})
}

func (h *CartsHandler) reply(w http.ResponseWriter, c cart.Cart, err error) {
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
