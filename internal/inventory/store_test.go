package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

const testTTL = 10 * time.Minute

type storeFactory func(t *testing.T, now func() time.Time) Store

func memoryFactory(_ *testing.T, now func() time.Time) Store {
	return NewMemoryStore(testTTL, now)
}

func redisFactory(t *testing.T, now func() time.Time) Store {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, testTTL, now)
}

func TestStores(t *testing.T) {
	for name, f := range map[string]storeFactory{"memory": memoryFactory, "redis": redisFactory} {
		t.Run(name, func(t *testing.T) { runStoreContract(t, f) })
	}
}

func runStoreContract(t *testing.T, newStore storeFactory) {
	ctx := context.Background()

	setup := func(t *testing.T, stock map[string]int) (Store, *fakeClock) {
		clk := newClock()
		s := newStore(t, clk.Now)
		for id, n := range stock {
			require.NoError(t, s.SetStock(ctx, id, n))
		}
		return s, clk
	}

	avail := func(t *testing.T, s Store, unit string) int {
		t.Helper()
		n, err := s.Available(ctx, unit)
		require.NoError(t, err)
		return n
	}

	held := func(t *testing.T, s Store, unit, holder string) int {
		t.Helper()
		n, err := s.Held(ctx, unit, holder)
		require.NoError(t, err)
		return n
	}

	t.Run("reserve within available", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 3})
		ok, err := s.Reserve(ctx, "u1", 2, "cart:b1")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, avail(t, s, "u1"))

		ok, err = s.Reserve(ctx, "u1", 2, "cart:b2")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, avail(t, s, "u1"))
	})

	t.Run("reserve is additive per holder", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 5})
		for i := 0; i < 2; i++ {
			ok, err := s.Reserve(ctx, "u1", 2, "cart:b1")
			require.NoError(t, err)
			require.True(t, ok)
		}
		assert.Equal(t, 4, held(t, s, "u1", "cart:b1"))
		assert.Equal(t, 1, avail(t, s, "u1"))
	})

	t.Run("resize sets absolute quantity", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 5})
		ok, err := s.Resize(ctx, "u1", "cart:b1", 3)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.Resize(ctx, "u1", "cart:b1", 1)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 4, avail(t, s, "u1"))

		ok, err = s.Resize(ctx, "u1", "cart:b1", 6)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, held(t, s, "u1", "cart:b1"))

		ok, err = s.Resize(ctx, "u1", "cart:b1", 0)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 5, avail(t, s, "u1"))
	})

	t.Run("release is idempotent", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 3})
		_, err := s.Reserve(ctx, "u1", 2, "cart:b1")
		require.NoError(t, err)

		n, err := s.Release(ctx, "u1", "cart:b1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = s.Release(ctx, "u1", "cart:b1")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 3, avail(t, s, "u1"))
	})

	t.Run("expired hold is subtracted exactly once", func(t *testing.T) {
		s, clk := setup(t, map[string]int{"u1": 3})
		_, err := s.Reserve(ctx, "u1", 2, "cart:b1")
		require.NoError(t, err)
		_, err = s.Reserve(ctx, "u1", 1, "cart:b2")
		require.NoError(t, err)
		assert.Equal(t, 0, avail(t, s, "u1"))

		clk.Advance(testTTL - time.Minute)
		require.NoError(t, s.Extend(ctx, "u1", "cart:b2"))
		clk.Advance(2 * time.Minute)

		assert.Equal(t, 2, avail(t, s, "u1"))
		n, err := s.Release(ctx, "u1", "cart:b1")
		require.NoError(t, err)
		assert.Equal(t, 0, n, "expired hold already purged")
		assert.Equal(t, 2, avail(t, s, "u1"))
		assert.Equal(t, 1, held(t, s, "u1", "cart:b2"))
	})

	t.Run("decrement consumes own hold", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 5})
		_, err := s.Reserve(ctx, "u1", 2, "order:o1")
		require.NoError(t, err)
		_, err = s.Reserve(ctx, "u1", 3, "cart:b9")
		require.NoError(t, err)

		require.NoError(t, s.Decrement(ctx, "u1", 2, "order:o1"))
		assert.Equal(t, 0, avail(t, s, "u1"))
		assert.Equal(t, 0, held(t, s, "u1", "order:o1"))

		n, err := s.Release(ctx, "u1", "cart:b9")
		require.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.Equal(t, 3, avail(t, s, "u1"))
	})

	t.Run("decrement refuses to eat other holds", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 3})
		_, err := s.Reserve(ctx, "u1", 3, "cart:b1")
		require.NoError(t, err)

		err = s.Decrement(ctx, "u1", 1, "order:o1")
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.True(t, apperr.Is(err, apperr.KindExhausted))
		assert.Equal(t, 3, held(t, s, "u1", "cart:b1"))
	})

	t.Run("decrement batch is all or nothing", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 2, "u2": 1})
		err := s.DecrementBatch(ctx, "order:o1", []Line{{UnitID: "u1", Qty: 2}, {UnitID: "u2", Qty: 2}})
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.Contains(t, err.Error(), "u2")
		assert.Equal(t, 2, avail(t, s, "u1"))
		assert.Equal(t, 1, avail(t, s, "u2"))
	})

	t.Run("restock reverses a decrement", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 4})
		_, err := s.Reserve(ctx, "u1", 2, "order:o1")
		require.NoError(t, err)
		lines := []Line{{UnitID: "u1", Qty: 2}}
		require.NoError(t, s.DecrementBatch(ctx, "order:o1", lines))
		assert.Equal(t, 2, avail(t, s, "u1"))

		require.NoError(t, s.Restock(ctx, "order:o1", lines, time.Minute))
		assert.Equal(t, 2, avail(t, s, "u1"))
		assert.Equal(t, 2, held(t, s, "u1", "order:o1"))

		n, err := s.Release(ctx, "u1", "order:o1")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, 4, avail(t, s, "u1"))
	})

	t.Run("transfer moves holds and covers shortfall", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 4, "u2": 2})
		_, err := s.Reserve(ctx, "u1", 2, "cart:b1")
		require.NoError(t, err)

		lines := []Line{{UnitID: "u1", Qty: 3}, {UnitID: "u2", Qty: 1}}
		require.NoError(t, s.TransferBatch(ctx, "cart:b1", "order:o1", lines, 15*time.Minute))
		assert.Equal(t, 0, held(t, s, "u1", "cart:b1"))
		assert.Equal(t, 3, held(t, s, "u1", "order:o1"))
		assert.Equal(t, 1, held(t, s, "u2", "order:o1"))
		assert.Equal(t, 1, avail(t, s, "u1"))
		assert.Equal(t, 1, avail(t, s, "u2"))
	})

	t.Run("failed transfer leaves holds untouched", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 4, "u2": 1})
		_, err := s.Reserve(ctx, "u1", 2, "cart:b1")
		require.NoError(t, err)
		_, err = s.Reserve(ctx, "u2", 1, "cart:other")
		require.NoError(t, err)

		err = s.TransferBatch(ctx, "cart:b1", "order:o1",
			[]Line{{UnitID: "u1", Qty: 2}, {UnitID: "u2", Qty: 1}}, time.Minute)
		assert.ErrorIs(t, err, ErrInsufficientStock)
		assert.Equal(t, 2, held(t, s, "u1", "cart:b1"))
		assert.Equal(t, 0, held(t, s, "u1", "order:o1"))
	})

	t.Run("unknown unit and bad quantity", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 1})
		_, err := s.Reserve(ctx, "nope", 1, "cart:b1")
		assert.ErrorIs(t, err, ErrUnknownUnit)
		_, err = s.Available(ctx, "nope")
		assert.ErrorIs(t, err, ErrUnknownUnit)

		_, err = s.Reserve(ctx, "u1", 0, "cart:b1")
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		assert.ErrorIs(t, s.SetStock(ctx, "u1", -1), ErrInvalidQuantity)
	})

	t.Run("seed only fills unknown units", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 1})
		ok, err := s.Seed(ctx, "u1", 9)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, avail(t, s, "u1"))

		ok, err = s.Seed(ctx, "u2", 4)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 4, avail(t, s, "u2"))
	})

	t.Run("concurrent reservations never oversell", func(t *testing.T) {
		s, _ := setup(t, map[string]int{"u1": 10})
		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 40; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ok, err := s.Reserve(ctx, "u1", 1, "cart:b"+string(rune('A'+i)))
				if err == nil && ok {
					wins.Add(1)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(10), wins.Load())
		assert.Equal(t, 0, avail(t, s, "u1"))
	})
}

func TestMerge(t *testing.T) {
	lines, err := Merge([]Line{{UnitID: "b", Qty: 1}, {UnitID: "a", Qty: 2}, {UnitID: "b", Qty: 3}})
	require.NoError(t, err)
	assert.Equal(t, []Line{{UnitID: "a", Qty: 2}, {UnitID: "b", Qty: 4}}, lines)

	_, err = Merge([]Line{{UnitID: "a", Qty: 0}})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
}
