package inventory

import (
	"context"

	"github.com/rs/zerolog"
)

// Service pairs the reservation store with the durable totals. Admin stock
// changes go to the durable record first so a restart never resurrects an
// older total.
type Service struct {
	Store  Store
	Totals TotalsRepository
	Log    zerolog.Logger
}

func (s *Service) SetStock(ctx context.Context, unitID string, total int) error {
	if total < 0 {
		return ErrInvalidQuantity
	}
	if err := s.Totals.SetTotal(ctx, unitID, total); err != nil {
		return err
	}
	if err := s.Store.SetStock(ctx, unitID, total); err != nil {
		return err
	}
	s.Log.Info().Str("unit_id", unitID).Int("total", total).Msg("stock set")
	return nil
}

func (s *Service) Available(ctx context.Context, unitID string) (int, error) {
	return s.Store.Available(ctx, unitID)
}

// Warm seeds the store from durable totals for units it does not know yet,
// e.g. after the cache lost its data. Reservations start at zero.
func (s *Service) Warm(ctx context.Context) (int, error) {
	totals, err := s.Totals.Totals(ctx)
	if err != nil {
		return 0, err
	}
	seeded := 0
	for unitID, total := range totals {
		ok, err := s.Store.Seed(ctx, unitID, total)
		if err != nil {
			return seeded, err
		}
		if ok {
			seeded++
		}
	}
	s.Log.Info().Int("units", len(totals)).Int("seeded", seeded).Msg("inventory warmed")
	return seeded, nil
}
