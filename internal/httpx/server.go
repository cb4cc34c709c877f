package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ariefcatur/surplus-orders/internal/notify"
	"github.com/ariefcatur/surplus-orders/internal/order"
)

const (
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(withActor)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

type actorKey struct{}

// withActor reads the caller identity set by the gateway in front of the
// API and tags the request so notifications carry its id.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := notify.WithTraceID(r.Context(), middleware.GetReqID(r.Context()))
		id, role := r.Header.Get(HeaderActorID), order.Role(r.Header.Get(HeaderActorRole))
		switch role {
		case order.RoleBuyer, order.RoleStaff:
			if id != "" {
				ctx = context.WithValue(ctx, actorKey{}, order.Actor{ID: id, Role: role})
			}
		case order.RoleSystem:
			ctx = context.WithValue(ctx, actorKey{}, order.System())
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFrom(ctx context.Context) (order.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(order.Actor)
	return a, ok
}

// requireActor writes 401 and reports false when the request has no actor.
func requireActor(w http.ResponseWriter, r *http.Request) (order.Actor, bool) {
	a, ok := actorFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{
			Error: "unauthenticated", Kind: "unauthorized", Message: "missing " + HeaderActorID + "/" + HeaderActorRole,
		})
	}
	return a, ok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid_json", Kind: "validation", Message: err.Error()})
		return false
	}
	return true
}
