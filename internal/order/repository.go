package order

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/surplus-orders/internal/inventory"
)

type Repository interface {
	Create(ctx context.Context, o Order) error
	Get(ctx context.Context, id string) (Order, error)
	// Update is a compare-and-set: it writes o only while the stored row is
	// still at status from and version o.Version, then bumps o.Version. Sold
	// lines are subtracted from the durable stock totals in the same unit of
	// work.
	Update(ctx context.Context, o *Order, from Status, sold ...inventory.Line) error
	// Due lists orders in status whose deadline passed: acceptance deadline
	// for PENDING_ACCEPTANCE, pickup deadline for READY_FOR_PICKUP and the
	// pickup time for PICKED_UP.
	Due(ctx context.Context, status Status, now time.Time, limit int) ([]Order, error)
}

type MemoryRepository struct {
	mu     sync.Mutex
	orders map[string]Order
	sold   map[string]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: map[string]Order{}, sold: map[string]int{}}
}

func (r *MemoryRepository) Create(_ context.Context, o Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return ErrStale
	}
	r.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return cloneOrder(o), nil
}

func (r *MemoryRepository) Update(_ context.Context, o *Order, from Status, sold ...inventory.Line) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != from || cur.Version != o.Version {
		return ErrStale
	}
	o.Version++
	r.orders[o.ID] = cloneOrder(*o)
	for _, l := range sold {
		r.sold[l.UnitID] += l.Qty
	}
	return nil
}

func (r *MemoryRepository) Due(_ context.Context, status Status, now time.Time, limit int) ([]Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Order
	for _, o := range r.orders {
		if o.Status != status {
			continue
		}
		if d := dueAt(o); d != nil && d.Before(now) {
			out = append(out, cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return dueAt(out[i]).Before(*dueAt(out[j])) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Sold is the quantity of a unit committed through Update.
func (r *MemoryRepository) Sold(unitID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sold[unitID]
}

func dueAt(o Order) *time.Time {
	switch o.Status {
	case StatusPendingAcceptance:
		return o.AcceptanceDeadline
	case StatusReady:
		return o.PickupDeadline
	case StatusPickedUp:
		return o.PickedUpAt
	}
	return nil
}

func cloneOrder(o Order) Order {
	o.Items = append([]Item(nil), o.Items...)
	return o
}
