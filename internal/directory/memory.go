package directory

import (
	"context"
	"sync"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
)

type Memory struct {
	mu      sync.RWMutex
	users   map[string]UserInfo
	outlets map[string]OutletInfo
	units   map[string]UnitInfo
}

func NewMemory() *Memory {
	return &Memory{
		users:   map[string]UserInfo{},
		outlets: map[string]OutletInfo{},
		units:   map[string]UnitInfo{},
	}
}

func (m *Memory) PutUser(u UserInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
}

func (m *Memory) PutOutlet(o OutletInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outlets[o.ID] = o
}

func (m *Memory) PutUnit(u UnitInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.units[u.ID] = u
}

func (m *Memory) User(_ context.Context, id string) (UserInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return UserInfo{}, apperr.NotFound("directory.user", "user %s not found", id)
	}
	return u, nil
}

func (m *Memory) Outlet(_ context.Context, id string) (OutletInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.outlets[id]
	if !ok {
		return OutletInfo{}, apperr.NotFound("directory.outlet", "outlet %s not found", id)
	}
	return o, nil
}

func (m *Memory) Unit(_ context.Context, id string) (UnitInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[id]
	if !ok {
		return UnitInfo{}, apperr.NotFound("directory.unit", "unit %s not found", id)
	}
	return u, nil
}
