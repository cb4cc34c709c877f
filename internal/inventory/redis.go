package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/redisx"
)

// purge drops holds whose expiry is <= now and subtracts them from the
// reserved aggregate. Shared prologue of every script.
const luaPurge = `
local function purge(kr, kh, ke, now)
	local expired = redis.call('ZRANGEBYSCORE', ke, '-inf', now)
	for _, holder in ipairs(expired) do
		local q = tonumber(redis.call('HGET', kh, holder) or '0')
		if q > 0 then redis.call('DECRBY', kr, q) end
		redis.call('HDEL', kh, holder)
		redis.call('ZREM', ke, holder)
	end
end
local function num(v) return tonumber(v or '0') end
`

// KEYS: total reserved holds hold_exp
// ARGV: now qty holder expireAt mode(add|set)
var scriptReserve = redis.NewScript(luaPurge + `
local total = redis.call('GET', KEYS[1])
if not total then return -1 end
local now = tonumber(ARGV[1])
purge(KEYS[2], KEYS[3], KEYS[4], now)
local qty = tonumber(ARGV[2])
local holder = ARGV[3]
local reserved = num(redis.call('GET', KEYS[2]))
local own = num(redis.call('HGET', KEYS[3], holder))
local delta, target = qty, own + qty
if ARGV[5] == 'set' then delta, target = qty - own, qty end
if delta > 0 and tonumber(total) - reserved < delta then return 0 end
if delta ~= 0 then redis.call('INCRBY', KEYS[2], delta) end
if target <= 0 then
	redis.call('HDEL', KEYS[3], holder)
	redis.call('ZREM', KEYS[4], holder)
else
	redis.call('HSET', KEYS[3], holder, target)
	redis.call('ZADD', KEYS[4], ARGV[4], holder)
end
return 1
`)

// ARGV: now holder
var scriptRelease = redis.NewScript(luaPurge + `
if not redis.call('GET', KEYS[1]) then return -1 end
purge(KEYS[2], KEYS[3], KEYS[4], tonumber(ARGV[1]))
local own = num(redis.call('HGET', KEYS[3], ARGV[2]))
if own > 0 then
	redis.call('DECRBY', KEYS[2], own)
	redis.call('HDEL', KEYS[3], ARGV[2])
	redis.call('ZREM', KEYS[4], ARGV[2])
end
return own
`)

// ARGV: now holder(optional) expireAt(optional)
// Returns {available, held}; held is 0 when no holder is given.
var scriptPeek = redis.NewScript(luaPurge + `
local total = redis.call('GET', KEYS[1])
if not total then return {-1, 0} end
purge(KEYS[2], KEYS[3], KEYS[4], tonumber(ARGV[1]))
local avail = tonumber(total) - num(redis.call('GET', KEYS[2]))
if avail < 0 then avail = 0 end
local held = 0
if ARGV[2] and ARGV[2] ~= '' then
	held = num(redis.call('HGET', KEYS[3], ARGV[2]))
	if held > 0 and ARGV[3] and ARGV[3] ~= '' then
		redis.call('ZADD', KEYS[4], ARGV[3], ARGV[2])
	end
end
return {avail, held}
`)

// KEYS: 4 per unit. ARGV: now holder qty1..qtyN
// Returns {1,0} on success, {0,i} when unit i is short, {-1,i} when unknown.
var scriptDecrement = redis.NewScript(luaPurge + `
local now = tonumber(ARGV[1])
local holder = ARGV[2]
local n = #KEYS / 4
for i = 1, n do
	local b = (i - 1) * 4
	local total = redis.call('GET', KEYS[b + 1])
	if not total then return {-1, i} end
	purge(KEYS[b + 2], KEYS[b + 3], KEYS[b + 4], now)
	local reserved = num(redis.call('GET', KEYS[b + 2]))
	local own = num(redis.call('HGET', KEYS[b + 3], holder))
	if tonumber(total) - (reserved - own) < tonumber(ARGV[2 + i]) then return {0, i} end
end
for i = 1, n do
	local b = (i - 1) * 4
	local own = num(redis.call('HGET', KEYS[b + 3], holder))
	redis.call('DECRBY', KEYS[b + 1], ARGV[2 + i])
	if own > 0 then
		redis.call('DECRBY', KEYS[b + 2], own)
		redis.call('HDEL', KEYS[b + 3], holder)
		redis.call('ZREM', KEYS[b + 4], holder)
	end
end
return {1, 0}
`)

// ARGV: now holder expireAt qty1..qtyN
var scriptRestock = redis.NewScript(luaPurge + `
local now = tonumber(ARGV[1])
local holder = ARGV[2]
local n = #KEYS / 4
for i = 1, n do
	local b = (i - 1) * 4
	if not redis.call('GET', KEYS[b + 1]) then return {-1, i} end
	purge(KEYS[b + 2], KEYS[b + 3], KEYS[b + 4], now)
end
for i = 1, n do
	local b = (i - 1) * 4
	local q = ARGV[3 + i]
	redis.call('INCRBY', KEYS[b + 1], q)
	redis.call('INCRBY', KEYS[b + 2], q)
	redis.call('HINCRBY', KEYS[b + 3], holder, q)
	redis.call('ZADD', KEYS[b + 4], ARGV[3], holder)
end
return {1, 0}
`)

// ARGV: now from to expireAt qty1..qtyN
var scriptTransfer = redis.NewScript(luaPurge + `
local now = tonumber(ARGV[1])
local from, to = ARGV[2], ARGV[3]
local n = #KEYS / 4
for i = 1, n do
	local b = (i - 1) * 4
	local total = redis.call('GET', KEYS[b + 1])
	if not total then return {-1, i} end
	purge(KEYS[b + 2], KEYS[b + 3], KEYS[b + 4], now)
	local reserved = num(redis.call('GET', KEYS[b + 2]))
	local own = num(redis.call('HGET', KEYS[b + 3], from))
	if tonumber(total) - (reserved - own) < tonumber(ARGV[4 + i]) then return {0, i} end
end
for i = 1, n do
	local b = (i - 1) * 4
	local q = tonumber(ARGV[4 + i])
	local own = num(redis.call('HGET', KEYS[b + 3], from))
	if q - own ~= 0 then redis.call('INCRBY', KEYS[b + 2], q - own) end
	redis.call('HDEL', KEYS[b + 3], from)
	redis.call('ZREM', KEYS[b + 4], from)
	redis.call('HINCRBY', KEYS[b + 3], to, q)
	redis.call('ZADD', KEYS[b + 4], ARGV[4], to)
end
return {1, 0}
`)

// ARGV: total
var scriptSeed = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2], KEYS[3], KEYS[4])
return 1
`)

// RedisStore keeps per-unit state in four keys sharing a hash tag; every
// operation is one Lua script so Redis serializes them.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
	now func() time.Time
}

func NewRedisStore(rdb redis.Cmdable, holdTTL time.Duration, now func() time.Time) *RedisStore {
	if holdTTL <= 0 {
		holdTTL = DefaultHoldTTL
	}
	if now == nil {
		now = time.Now
	}
	return &RedisStore{rdb: rdb, ttl: holdTTL, now: now}
}

func (s *RedisStore) nowMS() int64 { return s.now().UnixMilli() }

func (s *RedisStore) expireAt(ttl time.Duration) int64 {
	return s.now().Add(ttl).UnixMilli()
}

func (s *RedisStore) Available(ctx context.Context, unitID string) (int, error) {
	avail, _, err := s.peek(ctx, unitID, "", false)
	return avail, err
}

func (s *RedisStore) Held(ctx context.Context, unitID, holderID string) (int, error) {
	_, held, err := s.peek(ctx, unitID, holderID, false)
	return held, err
}

func (s *RedisStore) Extend(ctx context.Context, unitID, holderID string) error {
	_, _, err := s.peek(ctx, unitID, holderID, true)
	return err
}

func (s *RedisStore) peek(ctx context.Context, unitID, holder string, extend bool) (int, int, error) {
	exp := ""
	if extend {
		exp = strconv.FormatInt(s.expireAt(s.ttl), 10)
	}
	res, err := scriptPeek.Run(ctx, s.rdb, redisx.UnitKeys(unitID), s.nowMS(), holder, exp).Int64Slice()
	if err != nil {
		return 0, 0, apperr.Upstream("inventory.peek", err)
	}
	if res[0] < 0 {
		return 0, 0, unitErr(unitID, ErrUnknownUnit)
	}
	return int(res[0]), int(res[1]), nil
}

func (s *RedisStore) Reserve(ctx context.Context, unitID string, qty int, holderID string) (bool, error) {
	if qty <= 0 {
		return false, ErrInvalidQuantity
	}
	return s.reserve(ctx, unitID, qty, holderID, "add")
}

func (s *RedisStore) Resize(ctx context.Context, unitID, holderID string, qty int) (bool, error) {
	if qty < 0 {
		return false, ErrInvalidQuantity
	}
	return s.reserve(ctx, unitID, qty, holderID, "set")
}

func (s *RedisStore) reserve(ctx context.Context, unitID string, qty int, holder, mode string) (bool, error) {
	code, err := scriptReserve.Run(ctx, s.rdb, redisx.UnitKeys(unitID),
		s.nowMS(), qty, holder, s.expireAt(s.ttl), mode).Int()
	if err != nil {
		return false, apperr.Upstream("inventory.reserve", err)
	}
	switch code {
	case -1:
		return false, unitErr(unitID, ErrUnknownUnit)
	case 0:
		return false, nil
	}
	return true, nil
}

func (s *RedisStore) Release(ctx context.Context, unitID, holderID string) (int, error) {
	n, err := scriptRelease.Run(ctx, s.rdb, redisx.UnitKeys(unitID), s.nowMS(), holderID).Int()
	if err != nil {
		return 0, apperr.Upstream("inventory.release", err)
	}
	if n < 0 {
		return 0, unitErr(unitID, ErrUnknownUnit)
	}
	return n, nil
}

func (s *RedisStore) Decrement(ctx context.Context, unitID string, qty int, holderID string) error {
	return s.DecrementBatch(ctx, holderID, []Line{{UnitID: unitID, Qty: qty}})
}

func (s *RedisStore) DecrementBatch(ctx context.Context, holderID string, lines []Line) error {
	return s.batch(ctx, "inventory.decrement", scriptDecrement, lines, s.nowMS(), holderID)
}

func (s *RedisStore) Restock(ctx context.Context, holderID string, lines []Line, ttl time.Duration) error {
	return s.batch(ctx, "inventory.restock", scriptRestock, lines, s.nowMS(), holderID, s.expireAt(ttl))
}

func (s *RedisStore) TransferBatch(ctx context.Context, from, to string, lines []Line, ttl time.Duration) error {
	return s.batch(ctx, "inventory.transfer", scriptTransfer, lines, s.nowMS(), from, to, s.expireAt(ttl))
}

// batch runs a multi-unit script. head args precede one qty per line.
func (s *RedisStore) batch(ctx context.Context, op string, script *redis.Script, lines []Line, head ...any) error {
	lines, err := Merge(lines)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	keys := make([]string, 0, 4*len(lines))
	args := append(make([]any, 0, len(head)+len(lines)), head...)
	for _, l := range lines {
		keys = append(keys, redisx.UnitKeys(l.UnitID)...)
		args = append(args, l.Qty)
	}
	res, err := script.Run(ctx, s.rdb, keys, args...).Int64Slice()
	if err != nil {
		return apperr.Upstream(op, err)
	}
	if len(res) != 2 {
		return apperr.Wrap(apperr.KindInternal, op, fmt.Errorf("unexpected script reply %v", res))
	}
	switch res[0] {
	case 1:
		return nil
	case 0:
		return unitErr(lines[res[1]-1].UnitID, ErrInsufficientStock)
	default:
		return unitErr(lines[res[1]-1].UnitID, ErrUnknownUnit)
	}
}

func (s *RedisStore) SetStock(ctx context.Context, unitID string, total int) error {
	if total < 0 {
		return ErrInvalidQuantity
	}
	if err := s.rdb.Set(ctx, redisx.UnitKeys(unitID)[0], total, 0).Err(); err != nil {
		return apperr.Upstream("inventory.set_stock", err)
	}
	return nil
}

func (s *RedisStore) Seed(ctx context.Context, unitID string, total int) (bool, error) {
	if total < 0 {
		return false, ErrInvalidQuantity
	}
	n, err := scriptSeed.Run(ctx, s.rdb, redisx.UnitKeys(unitID), total).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, apperr.Upstream("inventory.seed", err)
	}
	return n == 1, nil
}
