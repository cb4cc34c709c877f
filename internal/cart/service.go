package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/directory"
	"github.com/ariefcatur/surplus-orders/internal/inventory"
)

const DefaultTTL = 30 * time.Minute

// Service is the checkout-convenience layer in front of the inventory store.
// The cart never owns stock truth; every quantity it shows is backed by a hold.
type Service struct {
	Directory directory.Directory
	Inventory inventory.Store
	Sessions  SessionStore
	TTL       time.Duration
	Log       zerolog.Logger
	Now       func() time.Time
}

func (s *Service) ttl() time.Duration {
	if s.TTL > 0 {
		return s.TTL
	}
	return DefaultTTL
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) load(ctx context.Context, buyerID string) (Cart, error) {
	if buyerID == "" {
		return Cart{}, apperr.Validation("cart", "buyer is required")
	}
	c, ok, err := s.Sessions.Get(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}
	if !ok {
		return newCart(buyerID), nil
	}
	return c, nil
}

// save refreshes the session TTL and every hold behind it.
func (s *Service) save(ctx context.Context, c Cart) error {
	if c.Empty() {
		return s.Sessions.Delete(ctx, c.BuyerID)
	}
	c.UpdatedAt = s.now()
	holder := inventory.CartHolder(c.BuyerID)
	for id := range c.Items {
		if err := s.Inventory.Extend(ctx, id, holder); err != nil {
			s.Log.Warn().Err(err).Str("unit_id", id).Msg("extend cart hold")
		}
	}
	return s.Sessions.Save(ctx, c, s.ttl())
}

func (s *Service) Get(ctx context.Context, buyerID string) (Cart, error) {
	return s.load(ctx, buyerID)
}

// Add reserves qty more of a unit and locks its price on first add. The first
// item pins the cart to the unit's outlet.
func (s *Service) Add(ctx context.Context, buyerID, unitID string, qty int) (Cart, error) {
	if qty <= 0 {
		return Cart{}, inventory.ErrInvalidQuantity
	}
	user, err := s.Directory.User(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}
	if user.Status != directory.StatusActive {
		return Cart{}, apperr.Unauthorized("cart.add", "buyer %s is %s", buyerID, user.Status)
	}
	unit, err := s.Directory.Unit(ctx, unitID)
	if err != nil {
		return Cart{}, err
	}
	if unit.Status != directory.StatusActive {
		return Cart{}, fmt.Errorf("unit %s: %w", unitID, ErrUnavailable)
	}
	outlet, err := s.Directory.Outlet(ctx, unit.OutletID)
	if err != nil {
		return Cart{}, err
	}
	if outlet.Status != directory.StatusActive {
		return Cart{}, fmt.Errorf("outlet %s: %w", outlet.ID, ErrUnavailable)
	}

	c, err := s.load(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}
	if c.OutletID != "" && c.OutletID != unit.OutletID {
		return c, ErrOutletMismatch
	}

	holder := inventory.CartHolder(buyerID)
	ok, err := s.Inventory.Reserve(ctx, unitID, qty, holder)
	if err != nil {
		return c, err
	}
	if !ok {
		return c, fmt.Errorf("unit %s: %w", unitID, inventory.ErrInsufficientStock)
	}

	line, exists := c.Items[unitID]
	if !exists {
		line = Line{UnitID: unitID, Name: unit.Name, UnitPrice: unit.Price, OriginalPrice: unit.OriginalPrice}
	}
	prev := line.Qty
	line.Qty += qty
	c.Items[unitID] = line
	c.OutletID = unit.OutletID

	if err := s.save(ctx, c); err != nil {
		s.undo(ctx, unitID, holder, prev)
		return Cart{}, err
	}
	s.Log.Debug().Str("buyer_id", buyerID).Str("unit_id", unitID).Int("qty", line.Qty).Msg("cart add")
	return c, nil
}

// Update sets a line to exactly qty; zero removes it.
func (s *Service) Update(ctx context.Context, buyerID, unitID string, qty int) (Cart, error) {
	if qty < 0 {
		return Cart{}, inventory.ErrInvalidQuantity
	}
	if qty == 0 {
		return s.Remove(ctx, buyerID, unitID)
	}
	c, err := s.load(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}
	line, ok := c.Items[unitID]
	if !ok {
		return c, ErrLineNotFound
	}
	holder := inventory.CartHolder(buyerID)
	prev, err := s.Inventory.Held(ctx, unitID, holder)
	if err != nil {
		return c, err
	}
	granted, err := s.Inventory.Resize(ctx, unitID, holder, qty)
	if err != nil {
		return c, err
	}
	if !granted {
		return c, fmt.Errorf("unit %s: %w", unitID, inventory.ErrInsufficientStock)
	}
	line.Qty = qty
	c.Items[unitID] = line
	if err := s.save(ctx, c); err != nil {
		s.undo(ctx, unitID, holder, prev)
		return Cart{}, err
	}
	return c, nil
}

func (s *Service) undo(ctx context.Context, unitID, holder string, qty int) {
	if _, err := s.Inventory.Resize(ctx, unitID, holder, qty); err != nil {
		s.Log.Error().Err(err).Str("unit_id", unitID).Str("holder", holder).Msg("undo cart hold")
	}
}

// Remove releases the unit's hold. Removing the last line unpins the outlet.
func (s *Service) Remove(ctx context.Context, buyerID, unitID string) (Cart, error) {
	c, err := s.load(ctx, buyerID)
	if err != nil {
		return Cart{}, err
	}
	if _, ok := c.Items[unitID]; !ok {
		return c, ErrLineNotFound
	}
	if _, err := s.Inventory.Release(ctx, unitID, inventory.CartHolder(buyerID)); err != nil {
		return c, err
	}
	delete(c.Items, unitID)
	if c.Empty() {
		c.OutletID = ""
	}
	return c, s.save(ctx, c)
}

// Clear releases every hold and drops the session.
func (s *Service) Clear(ctx context.Context, buyerID string) error {
	c, err := s.load(ctx, buyerID)
	if err != nil {
		return err
	}
	holder := inventory.CartHolder(buyerID)
	for id := range c.Items {
		if _, err := s.Inventory.Release(ctx, id, holder); err != nil {
			return err
		}
	}
	return s.Sessions.Delete(ctx, buyerID)
}

// Checkout re-validates every line against current availability. Sold-out
// lines are dropped and over-available lines clamped to what the buyer can
// still hold; the adjusted cart is saved.
func (s *Service) Checkout(ctx context.Context, buyerID string) (Checkout, error) {
	c, err := s.load(ctx, buyerID)
	if err != nil {
		return Checkout{}, err
	}
	if c.Empty() {
		return Checkout{}, ErrEmptyCart
	}
	holder := inventory.CartHolder(buyerID)
	out := Checkout{BuyerID: buyerID, OutletID: c.OutletID, Holder: holder}

	for _, line := range c.Lines() {
		granted, err := s.settle(ctx, line.UnitID, holder, line.Qty)
		if err != nil {
			return Checkout{}, err
		}
		if granted != line.Qty {
			out.Adjustments = append(out.Adjustments, Adjustment{UnitID: line.UnitID, Requested: line.Qty, Granted: granted})
		}
		if granted == 0 {
			delete(c.Items, line.UnitID)
			continue
		}
		line.Qty = granted
		c.Items[line.UnitID] = line
		out.Lines = append(out.Lines, line)
	}

	if c.Empty() {
		c.OutletID = ""
	}
	if err := s.save(ctx, c); err != nil {
		return Checkout{}, err
	}
	if len(out.Lines) == 0 {
		return out, ErrSoldOut
	}
	if len(out.Adjustments) > 0 {
		s.Log.Info().Str("buyer_id", buyerID).Int("adjusted", len(out.Adjustments)).Msg("checkout adjusted cart")
	}
	return out, nil
}

// settle makes the holder's hold on unitID match want as closely as stock
// allows and returns the granted quantity.
func (s *Service) settle(ctx context.Context, unitID, holder string, want int) (int, error) {
	for attempt := 0; attempt < 3; attempt++ {
		held, err := s.Inventory.Held(ctx, unitID, holder)
		if err != nil {
			return 0, err
		}
		if held == want {
			return want, nil
		}
		avail, err := s.Inventory.Available(ctx, unitID)
		if err != nil {
			return 0, err
		}
		target := min(want, held+avail)
		if target == held {
			return held, nil
		}
		ok, err := s.Inventory.Resize(ctx, unitID, holder, target)
		if err != nil {
			return 0, err
		}
		if ok {
			return target, nil
		}
	}
	return s.Inventory.Held(ctx, unitID, holder)
}

// Complete drops the session after its holds were handed to an order.
func (s *Service) Complete(ctx context.Context, buyerID string) error {
	return s.Sessions.Delete(ctx, buyerID)
}
