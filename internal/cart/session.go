package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/redisx"
)

type SessionStore interface {
	Get(ctx context.Context, buyerID string) (Cart, bool, error)
	Save(ctx context.Context, c Cart, ttl time.Duration) error
	Delete(ctx context.Context, buyerID string) error
}

// RedisSessions stores each cart as one JSON value with a sliding TTL.
type RedisSessions struct{ RDB redis.Cmdable }

func (s *RedisSessions) key(buyerID string) string { return fmt.Sprintf(redisx.KeyCart, buyerID) }

func (s *RedisSessions) Get(ctx context.Context, buyerID string) (Cart, bool, error) {
	b, err := s.RDB.Get(ctx, s.key(buyerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Cart{}, false, nil
	}
	if err != nil {
		return Cart{}, false, apperr.Upstream("cart.get", err)
	}
	var c Cart
	if err := json.Unmarshal(b, &c); err != nil {
		return Cart{}, false, apperr.Wrap(apperr.KindInternal, "cart.get", err)
	}
	if c.Items == nil {
		c.Items = map[string]Line{}
	}
	return c, true, nil
}

func (s *RedisSessions) Save(ctx context.Context, c Cart, ttl time.Duration) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := s.RDB.Set(ctx, s.key(c.BuyerID), b, ttl).Err(); err != nil {
		return apperr.Upstream("cart.save", err)
	}
	return nil
}

func (s *RedisSessions) Delete(ctx context.Context, buyerID string) error {
	if err := s.RDB.Del(ctx, s.key(buyerID)).Err(); err != nil {
		return apperr.Upstream("cart.delete", err)
	}
	return nil
}

type memSession struct {
	cart    Cart
	expires time.Time
}

type MemorySessions struct {
	mu    sync.Mutex
	carts map[string]memSession
	now   func() time.Time
}

func NewMemorySessions(now func() time.Time) *MemorySessions {
	if now == nil {
		now = time.Now
	}
	return &MemorySessions{carts: map[string]memSession{}, now: now}
}

func (s *MemorySessions) Get(_ context.Context, buyerID string) (Cart, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.carts[buyerID]
	if !ok || !s.now().Before(m.expires) {
		delete(s.carts, buyerID)
		return Cart{}, false, nil
	}
	return cloneCart(m.cart), true, nil
}

func (s *MemorySessions) Save(_ context.Context, c Cart, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[c.BuyerID] = memSession{cart: cloneCart(c), expires: s.now().Add(ttl)}
	return nil
}

func (s *MemorySessions) Delete(_ context.Context, buyerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, buyerID)
	return nil
}

func cloneCart(c Cart) Cart {
	items := make(map[string]Line, len(c.Items))
	for k, v := range c.Items {
		items[k] = v
	}
	c.Items = items
	return c
}
