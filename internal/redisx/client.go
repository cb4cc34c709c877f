package redisx

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb redis.Cmdable, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

var releaseLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lease is a best-effort single-holder lock (SET NX PX). Losing it is never a
// correctness problem for callers; it only avoids duplicate work.
type Lease struct {
	rdb   redis.Cmdable
	key   string
	owner string
	ttl   time.Duration
}

func NewLease(rdb redis.Cmdable, key, owner string, ttl time.Duration) *Lease {
	return &Lease{rdb: rdb, key: key, owner: owner, ttl: ttl}
}

func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.rdb.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil || ok {
		return ok, err
	}
	// already ours: refresh
	cur, err := l.rdb.Get(ctx, l.key).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}
	if cur != l.owner {
		return false, nil
	}
	return true, l.rdb.PExpire(ctx, l.key, l.ttl).Err()
}

func (l *Lease) Release(ctx context.Context) error {
	return releaseLease.Run(ctx, l.rdb, []string{l.key}, l.owner).Err()
}
