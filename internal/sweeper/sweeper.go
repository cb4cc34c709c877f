// Package sweeper drives the time-based order transitions: acceptance
// timeouts, pickup expiry and completion of interrupted pickups.
package sweeper

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/surplus-orders/internal/order"
)

// Machine is the part of order.Machine the sweep calls.
type Machine interface {
	Sweep(ctx context.Context, id string, due order.Status) (order.Order, bool, error)
}

type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

type Sweeper struct {
	Machine  Machine
	Orders   order.Repository
	Lease    Lease // optional; without it every instance sweeps
	Interval time.Duration
	Batch    int
	Log      zerolog.Logger
	Now      func() time.Time
}

type Result struct {
	Cancelled int
	Expired   int
	Completed int
	Skipped   int
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if s.Lease != nil {
				ok, err := s.Lease.Acquire(ctx)
				if err != nil {
					s.Log.Warn().Err(err).Msg("sweep lease")
				}
				if !ok && err == nil {
					continue
				}
			}
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.Log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}

// RunOnce makes one pass. Orders another caller already moved are skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (Result, error) {
	var res Result
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	passes := []struct {
		status order.Status
		count  *int
	}{
		{order.StatusPendingAcceptance, &res.Cancelled},
		{order.StatusReady, &res.Expired},
		{order.StatusPickedUp, &res.Completed},
	}
	for _, p := range passes {
		due, err := s.Orders.Due(ctx, p.status, now, s.Batch)
		if err != nil {
			return res, err
		}
		for _, o := range due {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			got, moved, err := s.Machine.Sweep(ctx, o.ID, p.status)
			var te *order.TransitionError
			switch {
			case moved && err != nil:
				// committed; payment settlement failed and is flagged
				*p.count++
				s.Log.Warn().Err(err).Str("order_id", o.ID).Msg("sweep settled with errors")
			case moved:
				*p.count++
			case err != nil && !errors.As(err, &te):
				res.Skipped++
				s.Log.Error().Err(err).Str("order_id", o.ID).Msg("sweep transition failed")
			default:
				res.Skipped++
				s.Log.Debug().Str("order_id", o.ID).Str("status", string(got.Status)).Msg("sweep skipped")
			}
		}
	}
	if res.Cancelled+res.Expired+res.Completed > 0 {
		s.Log.Info().Int("cancelled", res.Cancelled).Int("expired", res.Expired).Int("completed", res.Completed).
			Msg("sweep pass")
	}
	return res, nil
}
