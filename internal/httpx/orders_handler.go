package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/surplus-orders/internal/inventory"
	"github.com/ariefcatur/surplus-orders/internal/order"
)

type OrdersHandler struct {
	Machine *order.Machine
	Log     zerolog.Logger
}

type CreateOrderReq struct {
	OutletID string           `json:"outlet_id"`
	Items    []inventory.Line `json:"items"`
}

type SubmitReq struct {
	PaymentMethodID string `json:"payment_method_id"`
}

type ReasonReq struct {
	Reason string `json:"reason"`
}

type VerifyPickupReq struct {
	Code string `json:"code"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/submit", h.submit)
	r.Post("/orders/{id}/accept", h.step(h.Machine.Accept))
	r.Post("/orders/{id}/prepare", h.step(h.Machine.Prepare))
	r.Post("/orders/{id}/ready", h.step(h.Machine.Ready))
	r.Post("/orders/{id}/complete", h.step(h.Machine.Complete))
	r.Post("/orders/{id}/decline", h.withReason(h.Machine.Decline))
	r.Post("/orders/{id}/cancel", h.withReason(h.Machine.Cancel))
	r.Post("/orders/{id}/verify-pickup", h.verifyPickup)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateOrderReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Machine.Create(ctx, actor, order.CreateRequest{OutletID: req.OutletID, Items: req.Items})
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Machine.View(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *OrdersHandler) submit(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req SubmitReq
	if !decode(w, r, &req) {
		return
	}
	// the gateway call is the slow part
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	o, err := h.Machine.Submit(ctx, actor, chi.URLParam(r, "id"), req.PaymentMethodID)
	h.reply(w, o, err)
}

func (h *OrdersHandler) verifyPickup(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req VerifyPickupReq
	if !decode(w, r, &req) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Machine.VerifyPickup(ctx, actor, chi.URLParam(r, "id"), req.Code)
	h.reply(w, o, err)
}

func (h *OrdersHandler) step(fn func(context.Context, order.Actor, string) (order.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		o, err := fn(ctx, actor, chi.URLParam(r, "id"))
		h.reply(w, o, err)
	}
}

func (h *OrdersHandler) withReason(fn func(context.Context, order.Actor, string, string) (order.Order, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var req ReasonReq
		if r.ContentLength != 0 && !decode(w, r, &req) {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()

		o, err := fn(ctx, actor, chi.URLParam(r, "id"), req.Reason)
		h.reply(w, o, err)
	}
}

func (h *OrdersHandler) reply(w http.ResponseWriter, o order.Order, err error) {
	if err != nil {
		h.Log.Debug().Err(err).Str("order_id", o.ID).Msg("transition rejected")
		writeError(w, err, &o)
		return
	}
	writeJSON(w, http.StatusOK, o)
}
