package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/order"
	"github.com/ariefcatur/surplus-orders/internal/payment"
)

type PaymentsHandler struct {
	Ledger *payment.Ledger
	Log    zerolog.Logger
}

func (h *PaymentsHandler) Register(r chi.Router) {
	r.Post("/payments/webhook", h.webhook)
	r.Get("/payments/reconciliation", h.reconciliation)
}

func (h *PaymentsHandler) webhook(w http.ResponseWriter, r *http.Request) {
	var ev payment.WebhookEvent
	if !decode(w, r, &ev) {
		return
	}
	if err := h.Ledger.HandleWebhook(r.Context(), ev); err != nil {
		writeError(w, err, nil)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *PaymentsHandler) reconciliation(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if actor.Role != order.RoleSystem {
		writeError(w, apperr.Unauthorized("payment.reconciliation", "operator access only"), nil)
		return
	}
	ps, err := h.Ledger.ListReconciliation(r.Context(), 100)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if ps == nil {
		ps = []payment.Payment{}
	}
	writeJSON(w, http.StatusOK, ps)
}
