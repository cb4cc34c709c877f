package payment

import (
	"context"
	"sort"
	"sync"
)

type Repository interface {
	// Create inserts p unless a payment with the same idempotency key exists.
	// It returns the stored record and whether it was created.
	Create(ctx context.Context, p Payment) (Payment, bool, error)
	ByOrder(ctx context.Context, orderID string) (Payment, error)
	ByTxn(ctx context.Context, txnID string) (Payment, error)
	// Update persists p only if the stored status is still from.
	Update(ctx context.Context, p Payment, from Status) error
	Flagged(ctx context.Context, limit int) ([]Payment, error)
}

type MethodRepository interface {
	Method(ctx context.Context, id string) (Method, error)
}

type MemoryRepository struct {
	mu    sync.Mutex
	byKey map[string]Payment
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byKey: map[string]Payment{}}
}

func (r *MemoryRepository) Create(_ context.Context, p Payment) (Payment, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.byKey[p.IdempotencyKey]; ok {
		return cur, false, nil
	}
	r.byKey[p.IdempotencyKey] = p
	return p, true, nil
}

func (r *MemoryRepository) ByOrder(_ context.Context, orderID string) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.byKey[IdempotencyKey(orderID)]; ok {
		return p, nil
	}
	return Payment{}, ErrNotFound
}

func (r *MemoryRepository) ByTxn(_ context.Context, txnID string) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byKey {
		if txnID != "" && p.GatewayTxnID == txnID {
			return p, nil
		}
	}
	return Payment{}, ErrNotFound
}

func (r *MemoryRepository) Update(_ context.Context, p Payment, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.byKey[p.IdempotencyKey]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != from {
		return ErrStale
	}
	r.byKey[p.IdempotencyKey] = p
	return nil
}

func (r *MemoryRepository) Flagged(_ context.Context, limit int) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.byKey {
		if p.NeedsReconciliation {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count is the number of stored payments.
func (r *MemoryRepository) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byKey)
}

type MemoryMethods struct {
	mu      sync.Mutex
	methods map[string]Method
}

func NewMemoryMethods(ms ...Method) *MemoryMethods {
	m := &MemoryMethods{methods: map[string]Method{}}
	for _, x := range ms {
		m.methods[x.ID] = x
	}
	return m
}

func (m *MemoryMethods) Put(x Method) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.methods[x.ID] = x
}

func (m *MemoryMethods) Method(_ context.Context, id string) (Method, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if x, ok := m.methods[id]; ok {
		return x, nil
	}
	return Method{}, ErrMethodNotFound
}
