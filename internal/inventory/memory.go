package inventory

import (
	"context"
	"sync"
	"time"
)

type memHold struct {
	qty       int
	expiresAt time.Time
}

type memUnit struct {
	total    int
	reserved int
	holds    map[string]*memHold
}

// MemoryStore keeps everything behind one mutex. Used by tests and local runs.
type MemoryStore struct {
	mu    sync.Mutex
	units map[string]*memUnit
	ttl   time.Duration
	now   func() time.Time
}

func NewMemoryStore(holdTTL time.Duration, now func() time.Time) *MemoryStore {
	if holdTTL <= 0 {
		holdTTL = DefaultHoldTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{units: map[string]*memUnit{}, ttl: holdTTL, now: now}
}

// unit returns the purged state of unitID; caller holds mu.
func (m *MemoryStore) unit(unitID string) (*memUnit, error) {
	u, ok := m.units[unitID]
	if !ok {
		return nil, unitErr(unitID, ErrUnknownUnit)
	}
	now := m.now()
	for holder, h := range u.holds {
		if !now.Before(h.expiresAt) {
			u.reserved -= h.qty
			delete(u.holds, holder)
		}
	}
	return u, nil
}

func (u *memUnit) own(holder string) int {
	if h, ok := u.holds[holder]; ok {
		return h.qty
	}
	return 0
}

func (m *MemoryStore) Available(_ context.Context, unitID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.unit(unitID)
	if err != nil {
		return 0, err
	}
	return max(0, u.total-u.reserved), nil
}

func (m *MemoryStore) Held(_ context.Context, unitID, holderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.unit(unitID)
	if err != nil {
		return 0, err
	}
	return u.own(holderID), nil
}

func (m *MemoryStore) Reserve(_ context.Context, unitID string, qty int, holderID string) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.unit(unitID)
	if err != nil {
		return false, err
	}
	if u.total-u.reserved < qty {
		return false, nil
	}
	m.setHold(u, holderID, u.own(holderID)+qty, m.ttl)
	u.reserved += qty
	return true, nil
}

func (m *MemoryStore) Resize(_ context.Context, unitID, holderID string, qty int) (bool, error) {
	if qty < 0 {
		return false, ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.unit(unitID)
	if err != nil {
		return false, err
	}
	delta := qty - u.own(holderID)
	if delta > 0 && u.total-u.reserved < delta {
		return false, nil
	}
	m.setHold(u, holderID, qty, m.ttl)
	u.reserved += delta
	return true, nil
}

func (m *MemoryStore) setHold(u *memUnit, holder string, qty int, ttl time.Duration) {
	if qty <= 0 {
		delete(u.holds, holder)
		return
	}
	u.holds[holder] = &memHold{qty: qty, expiresAt: m.now().Add(ttl)}
}

func (m *MemoryStore) Release(_ context.Context, unitID, holderID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.unit(unitID)
	if err != nil {
		return 0, err
	}
	own := u.own(holderID)
	if own > 0 {
		u.reserved -= own
		delete(u.holds, holderID)
	}
	return own, nil
}

func (m *MemoryStore) Extend(_ context.Context, unitID, holderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.unit(unitID)
	if err != nil {
		return err
	}
	if h, ok := u.holds[holderID]; ok {
		h.expiresAt = m.now().Add(m.ttl)
	}
	return nil
}

func (m *MemoryStore) Decrement(ctx context.Context, unitID string, qty int, holderID string) error {
	return m.DecrementBatch(ctx, holderID, []Line{{UnitID: unitID, Qty: qty}})
}

func (m *MemoryStore) DecrementBatch(_ context.Context, holderID string, lines []Line) error {
	lines, err := Merge(lines)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	units, err := m.lock(lines)
	if err != nil {
		return err
	}
	for i, l := range lines {
		u := units[i]
		if u.total-(u.reserved-u.own(holderID)) < l.Qty {
			return unitErr(l.UnitID, ErrInsufficientStock)
		}
	}
	for i, l := range lines {
		u := units[i]
		u.total -= l.Qty
		u.reserved -= u.own(holderID)
		delete(u.holds, holderID)
	}
	return nil
}

func (m *MemoryStore) Restock(_ context.Context, holderID string, lines []Line, ttl time.Duration) error {
	lines, err := Merge(lines)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	units, err := m.lock(lines)
	if err != nil {
		return err
	}
	for i, l := range lines {
		u := units[i]
		u.total += l.Qty
		u.reserved += l.Qty
		m.setHold(u, holderID, u.own(holderID)+l.Qty, ttl)
	}
	return nil
}

func (m *MemoryStore) TransferBatch(_ context.Context, from, to string, lines []Line, ttl time.Duration) error {
	lines, err := Merge(lines)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	units, err := m.lock(lines)
	if err != nil {
		return err
	}
	for i, l := range lines {
		u := units[i]
		if u.total-(u.reserved-u.own(from)) < l.Qty {
			return unitErr(l.UnitID, ErrInsufficientStock)
		}
	}
	for i, l := range lines {
		u := units[i]
		u.reserved += l.Qty - u.own(from)
		delete(u.holds, from)
		m.setHold(u, to, u.own(to)+l.Qty, ttl)
	}
	return nil
}

// lock resolves and purges every unit of a batch; caller holds mu.
func (m *MemoryStore) lock(lines []Line) ([]*memUnit, error) {
	units := make([]*memUnit, len(lines))
	for i, l := range lines {
		u, err := m.unit(l.UnitID)
		if err != nil {
			return nil, err
		}
		units[i] = u
	}
	return units, nil
}

func (m *MemoryStore) SetStock(_ context.Context, unitID string, total int) error {
	if total < 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.units[unitID]; ok {
		u.total = total
		return nil
	}
	m.units[unitID] = &memUnit{total: total, holds: map[string]*memHold{}}
	return nil
}

func (m *MemoryStore) Seed(_ context.Context, unitID string, total int) (bool, error) {
	if total < 0 {
		return false, ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.units[unitID]; ok {
		return false, nil
	}
	m.units[unitID] = &memUnit{total: total, holds: map[string]*memHold{}}
	return true, nil
}

// Snapshot returns total and raw reserved aggregate for tests and diagnostics.
func (m *MemoryStore) Snapshot(unitID string) (total, reserved int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, err := m.unit(unitID)
	if err != nil {
		return 0, 0
	}
	return u.total, u.reserved
}
