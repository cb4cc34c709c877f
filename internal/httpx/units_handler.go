package httpx

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/directory"
	"github.com/ariefcatur/surplus-orders/internal/inventory"
	"github.com/ariefcatur/surplus-orders/internal/order"
)

type UnitsHandler struct {
	Inventory *inventory.Service
	Directory directory.Directory
	Log       zerolog.Logger
}

type SetStockReq struct {
	Total int `json:"total"`
}

type AvailabilityResp struct {
	UnitID    string `json:"unit_id"`
	Available int    `json:"available"`
}

func (h *UnitsHandler) Register(r chi.Router) {
	r.Put("/units/{id}/stock", h.setStock)
	r.Get("/units/{id}/availability", h.availability)
}

// setStock is allowed to the unit's outlet staff and the system actor.
func (h *UnitsHandler) setStock(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	unitID := chi.URLParam(r, "id")
	var req SetStockReq
	if !decode(w, r, &req) {
		return
	}
	if actor.Role != order.RoleSystem {
		unit, err := h.Directory.Unit(r.Context(), unitID)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		outlet, err := h.Directory.Outlet(r.Context(), unit.OutletID)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		if actor.Role != order.RoleStaff || !outlet.IsStaff(actor.ID) {
			writeError(w, apperr.Unauthorized("inventory.set_stock", "%s is not staff of outlet %s", actor.ID, outlet.ID), nil)
			return
		}
	}
	if err := h.Inventory.SetStock(r.Context(), unitID, req.Total); err != nil {
		writeError(w, err, nil)
		return
	}
	h.availability(w, r)
}

func (h *UnitsHandler) availability(w http.ResponseWriter, r *http.Request) {
	unitID := chi.URLParam(r, "id")
	n, err := h.Inventory.Available(r.Context(), unitID)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, AvailabilityResp{UnitID: unitID, Available: n})
}
