package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/directory"
	"github.com/ariefcatur/surplus-orders/internal/inventory"
	"github.com/ariefcatur/surplus-orders/internal/payment"
)

// Payments is the slice of the payment ledger the saga drives.
type Payments interface {
	PreAuthorize(ctx context.Context, req payment.AuthRequest) (payment.Payment, error)
	Capture(ctx context.Context, orderID string) (payment.Payment, error)
	VoidAuthorization(ctx context.Context, orderID string) (payment.Payment, error)
	Refund(ctx context.Context, orderID, reason string) (payment.Payment, error)
}

// Notifier delivers fire-and-forget notifications; it must not block.
type Notifier interface {
	Notify(ctx context.Context, recipientID, eventType string, payload any)
}

type Config struct {
	AcceptanceTimeout time.Duration
	OrderHoldTTL      time.Duration
	PickupWindow      time.Duration
	TaxRate           decimal.Decimal
	Currency          string
}

func DefaultConfig() Config {
	return Config{
		AcceptanceTimeout: 300 * time.Second,
		OrderHoldTTL:      15 * time.Minute,
		PickupWindow:      2 * time.Hour,
		TaxRate:           decimal.RequireFromString("0.11"),
		Currency:          "IDR",
	}
}

// Machine is the order saga. Each transition is one compare-and-set on the
// order row. Terminal paths commit first and settle payment after; forward
// paths run their replay-safe effects first and compensate when the
// compare-and-set loses.
type Machine struct {
	Orders    Repository
	Payments  Payments
	Inventory inventory.Store
	Directory directory.Directory
	Notifier  Notifier
	Config    Config
	Log       zerolog.Logger
	Now       func() time.Time
}

type CreateRequest struct {
	OutletID string
	Items    []inventory.Line
	// Prices locked earlier (by the cart); units missing here use the
	// current directory price.
	Prices map[string]decimal.Decimal
	// HoldFrom is the holder whose reservations the order takes over.
	HoldFrom string
}

func (m *Machine) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *Machine) Get(ctx context.Context, actor Actor, id string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	switch actor.Role {
	case RoleSystem:
		return o, nil
	case RoleBuyer:
		if actor.ID == o.BuyerID {
			return o, nil
		}
	case RoleStaff:
		if _, err := m.requireStaff(ctx, o, actor, o.Status); err == nil {
			return o, nil
		}
	}
	return Order{}, apperr.Unauthorized("order.get", "order %s is not visible to %s", id, actor.ID)
}

// View is an order as one actor sees it. The pickup code is shown to the
// buyer only, from READY_FOR_PICKUP on.
type View struct {
	Order
	PickupCode string `json:"pickup_code,omitempty"`
}

func (m *Machine) View(ctx context.Context, actor Actor, id string) (View, error) {
	o, err := m.Get(ctx, actor, id)
	if err != nil {
		return View{}, err
	}
	v := View{Order: o}
	if actor.Role == RoleBuyer && actor.ID == o.BuyerID && (o.Status == StatusReady || o.Status == StatusPickedUp) {
		v.PickupCode = o.PickupCode
	}
	return v, nil
}

// Create prices the items, takes over or places the reservations and stores
// the order as CREATED.
func (m *Machine) Create(ctx context.Context, actor Actor, req CreateRequest) (Order, error) {
	const op = "order.create"
	if actor.Role != RoleBuyer || actor.ID == "" {
		return Order{}, apperr.Unauthorized(op, "only a buyer can place an order")
	}
	lines, err := inventory.Merge(req.Items)
	if err != nil {
		return Order{}, err
	}
	if len(lines) == 0 {
		return Order{}, ErrNoItems
	}
	user, err := m.Directory.User(ctx, actor.ID)
	if err != nil {
		return Order{}, err
	}
	if user.Status != directory.StatusActive {
		return Order{}, apperr.Unauthorized(op, "buyer %s is %s", user.ID, user.Status)
	}
	outlet, err := m.Directory.Outlet(ctx, req.OutletID)
	if err != nil {
		return Order{}, err
	}
	if outlet.Status != directory.StatusActive {
		return Order{}, apperr.Validation(op, "outlet %s is %s", outlet.ID, outlet.Status)
	}

	id := uuid.NewString()
	items := make([]Item, len(lines))
	for i, l := range lines {
		unit, err := m.Directory.Unit(ctx, l.UnitID)
		if err != nil {
			return Order{}, err
		}
		if unit.OutletID != outlet.ID {
			return Order{}, apperr.Validation(op, "unit %s is not sold by outlet %s", unit.ID, outlet.ID)
		}
		if unit.Status != directory.StatusActive {
			return Order{}, apperr.Validation(op, "unit %s is not for sale", unit.ID)
		}
		price := unit.Price
		if locked, ok := req.Prices[unit.ID]; ok {
			price = locked
		}
		items[i] = Item{OrderID: id, UnitID: unit.ID, Qty: l.Qty, UnitPrice: price}
	}

	code, err := newPickupCode()
	if err != nil {
		return Order{}, apperr.Wrap(apperr.KindInternal, op, err)
	}
	now := m.now()
	o := Order{
		ID: id, BuyerID: actor.ID, OutletID: outlet.ID, Status: StatusCreated, Version: 1,
		Currency: m.Config.Currency, PickupCode: code, Items: items, CreatedAt: now, UpdatedAt: now,
	}
	o.Subtotal, o.Tax, o.Total = Totals(items, m.Config.TaxRate)

	holder := inventory.OrderHolder(id)
	if err := m.Inventory.TransferBatch(ctx, req.HoldFrom, holder, lines, m.Config.OrderHoldTTL); err != nil {
		return Order{}, err
	}
	if err := m.Orders.Create(ctx, o); err != nil {
		if req.HoldFrom != "" {
			if terr := m.Inventory.TransferBatch(ctx, holder, req.HoldFrom, lines, m.Config.OrderHoldTTL); terr != nil {
				m.Log.Error().Err(terr).Str("order_id", id).Msg("return holds to cart")
			}
		} else {
			m.releaseHolds(ctx, o)
		}
		return Order{}, err
	}
	m.Log.Info().Str("order_id", id).Str("buyer_id", o.BuyerID).Str("outlet_id", o.OutletID).
		Str("total", o.Total.StringFixed(2)).Msg("order created")
	m.emit(ctx, o, "")
	return o, nil
}

// Submit preauthorizes payment and opens the acceptance window.
func (m *Machine) Submit(ctx context.Context, actor Actor, id, paymentMethodID string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	to := StatusPendingAcceptance
	if err := requireBuyer(o, actor, to); err != nil {
		return o, err
	}
	if o.Status == to {
		return o, nil
	}
	if !CanTransition(o.Status, to) {
		return o, guardErr(o, to, GuardIllegal)
	}
	if paymentMethodID == "" {
		return o, apperr.Validation("order.submit", "payment method is required")
	}

	holder := inventory.OrderHolder(o.ID)
	for _, l := range o.Lines() {
		if err := m.Inventory.Extend(ctx, l.UnitID, holder); err != nil {
			m.Log.Warn().Err(err).Str("order_id", o.ID).Str("unit_id", l.UnitID).Msg("extend order hold")
		}
	}

	if _, err := m.Payments.PreAuthorize(ctx, payment.AuthRequest{
		OrderID: o.ID, BuyerID: o.BuyerID, MethodID: paymentMethodID, Amount: o.Total, Currency: o.Currency,
	}); err != nil {
		return o, err
	}

	deadline := m.now().Add(m.Config.AcceptanceTimeout)
	next, err := m.commit(ctx, o, to, func(n *Order) {
		n.PaymentMethodID = paymentMethodID
		n.AcceptanceDeadline = &deadline
	})
	if err == nil {
		return next, nil
	}
	var te *TransitionError
	if errors.As(err, &te) && next.Status == to {
		// a concurrent submit won with the same authorization
		return next, nil
	}
	if errors.As(err, &te) {
		if _, verr := m.Payments.VoidAuthorization(ctx, o.ID); verr != nil {
			m.Log.Error().Err(verr).Str("order_id", o.ID).Msg("void after lost submit")
		}
	}
	return next, err
}

// Accept commits the sale: inventory first, then capture, then the status
// change together with the durable stock decrement.
func (m *Machine) Accept(ctx context.Context, actor Actor, id string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	to := StatusPaid
	if _, err := m.requireStaff(ctx, o, actor, to); err != nil {
		return o, err
	}
	if o.Status == to {
		return o, nil
	}
	if !CanTransition(o.Status, to) {
		return o, guardErr(o, to, GuardIllegal)
	}

	lines := o.Lines()
	if err := m.Inventory.DecrementBatch(ctx, inventory.OrderHolder(o.ID), lines); err != nil {
		if cur, gerr := m.Orders.Get(ctx, o.ID); gerr == nil && cur.Status == to {
			return cur, nil
		}
		m.Log.Warn().Err(err).Str("order_id", o.ID).Msg("accept: stock decrement failed")
		return o, err
	}
	if _, err := m.Payments.Capture(ctx, o.ID); err != nil {
		cur, moved := m.movedOn(ctx, o)
		if !moved {
			m.restock(ctx, o, true)
			return o, err
		}
		// a cancel or another accept committed meanwhile
		m.restock(ctx, o, false)
		if cur.Status == to {
			return cur, nil
		}
		return cur, &TransitionError{OrderID: o.ID, Current: cur.Status, Requested: to, Guard: GuardRace}
	}

	next, err := m.commit(ctx, o, to, nil, lines...)
	if err == nil {
		return next, nil
	}
	var te *TransitionError
	if !errors.As(err, &te) {
		cur, moved := m.movedOn(ctx, o)
		if !moved {
			// not committed; keep the hold so a retry converges
			m.restock(ctx, o, true)
			return next, err
		}
		next, err = cur, &TransitionError{OrderID: o.ID, Current: cur.Status, Requested: to, Guard: GuardRace}
	}
	m.restock(ctx, o, false)
	if next.Status == to {
		return next, nil
	}
	if next.Status.Terminal() {
		reason := fmt.Sprintf("order %s during acceptance", next.Status)
		if _, rerr := m.Payments.Refund(ctx, o.ID, reason); rerr != nil {
			m.Log.Error().Err(rerr).Str("order_id", o.ID).Msg("refund after lost accept")
		}
	}
	return next, err
}

func (m *Machine) Decline(ctx context.Context, actor Actor, id, reason string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	to := StatusDeclined
	if _, err := m.requireStaff(ctx, o, actor, to); err != nil {
		return o, err
	}
	if o.Status == to {
		return o, nil
	}
	next, err := m.commit(ctx, o, to, func(n *Order) { n.Reason = reason })
	if err != nil {
		return next, err
	}
	m.releaseHolds(ctx, next)
	return next, m.settlePayment(ctx, next)
}

// Cancel is buyer-initiated (or system) and only legal while the order is
// still CREATED or PENDING_ACCEPTANCE.
func (m *Machine) Cancel(ctx context.Context, actor Actor, id, reason string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	to := StatusCancelled
	if actor.Role != RoleSystem {
		if err := requireBuyer(o, actor, to); err != nil {
			return o, err
		}
	}
	if o.Status == to {
		return o, nil
	}
	return m.cancel(ctx, o, reason)
}

func (m *Machine) cancel(ctx context.Context, o Order, reason string) (Order, error) {
	next, err := m.commit(ctx, o, StatusCancelled, func(n *Order) { n.Reason = reason })
	if err != nil {
		return next, err
	}
	m.releaseHolds(ctx, next)
	return next, m.settlePayment(ctx, next)
}

// CancelExpiredAcceptance is the sweep's timeout path for orders the outlet
// never answered.
func (m *Machine) CancelExpiredAcceptance(ctx context.Context, id string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status == StatusCancelled {
		return o, nil
	}
	return m.cancelExpired(ctx, o)
}

func (m *Machine) cancelExpired(ctx context.Context, o Order) (Order, error) {
	to := StatusCancelled
	if o.Status != StatusPendingAcceptance {
		return o, guardErr(o, to, GuardIllegal)
	}
	if o.AcceptanceDeadline == nil || !m.now().After(*o.AcceptanceDeadline) {
		return o, guardErr(o, to, GuardNotDue)
	}
	return m.cancel(ctx, o, "acceptance timeout")
}

func (m *Machine) Prepare(ctx context.Context, actor Actor, id string) (Order, error) {
	return m.staffStep(ctx, actor, id, StatusPreparing, nil)
}

// Ready opens pickup; the deadline is the outlet's next closing time, or the
// pickup window when the outlet has none ahead today.
func (m *Machine) Ready(ctx context.Context, actor Actor, id string) (Order, error) {
	return m.staffStep(ctx, actor, id, StatusReady, func(n *Order, outlet directory.OutletInfo) {
		now := m.now()
		deadline, ok := outlet.NextClose(now)
		if !ok {
			deadline = now.Add(m.Config.PickupWindow)
		}
		deadline = deadline.UTC()
		n.PickupDeadline = &deadline
	})
}

func (m *Machine) staffStep(ctx context.Context, actor Actor, id string, to Status,
	mutate func(*Order, directory.OutletInfo)) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	outlet, err := m.requireStaff(ctx, o, actor, to)
	if err != nil {
		return o, err
	}
	if o.Status == to {
		return o, nil
	}
	var fn func(*Order)
	if mutate != nil {
		fn = func(n *Order) { mutate(n, outlet) }
	}
	return m.commit(ctx, o, to, fn)
}

// VerifyPickup checks the buyer's code and chains straight into COMPLETED.
// A wrong code changes nothing.
func (m *Machine) VerifyPickup(ctx context.Context, actor Actor, id, code string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	to := StatusPickedUp
	if _, err := m.requireStaff(ctx, o, actor, to); err != nil {
		return o, err
	}
	switch o.Status {
	case StatusCompleted:
		return o, nil
	case StatusPickedUp:
		return m.complete(ctx, o)
	case StatusReady:
	default:
		return o, guardErr(o, to, GuardIllegal)
	}
	if !pickupMatches(o.PickupCode, code) {
		m.Log.Info().Str("order_id", o.ID).Msg("pickup code mismatch")
		return o, &GuardError{OrderID: o.ID, Guard: GuardPickupCode, Err: ErrWrongPickupCode}
	}
	next, err := m.commit(ctx, o, to, nil)
	if err != nil {
		return next, err
	}
	done, err := m.complete(ctx, next)
	if err != nil {
		// the sweep finishes interrupted chains
		m.Log.Warn().Err(err).Str("order_id", o.ID).Msg("complete after pickup")
		return next, nil
	}
	return done, nil
}

func (m *Machine) Complete(ctx context.Context, actor Actor, id string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if actor.Role != RoleSystem {
		if _, err := m.requireStaff(ctx, o, actor, StatusCompleted); err != nil {
			return o, err
		}
	}
	if o.Status == StatusCompleted {
		return o, nil
	}
	return m.complete(ctx, o)
}

func (m *Machine) complete(ctx context.Context, o Order) (Order, error) {
	return m.commit(ctx, o, StatusCompleted, nil)
}

// ExpireOverduePickup is the sweep's path for orders nobody collected. The
// captured payment is kept.
func (m *Machine) ExpireOverduePickup(ctx context.Context, id string) (Order, error) {
	o, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, err
	}
	if o.Status == StatusExpired {
		return o, nil
	}
	return m.expireOverdue(ctx, o)
}

func (m *Machine) expireOverdue(ctx context.Context, o Order) (Order, error) {
	to := StatusExpired
	if o.Status != StatusReady {
		return o, guardErr(o, to, GuardIllegal)
	}
	if o.PickupDeadline == nil || !m.now().After(*o.PickupDeadline) {
		return o, guardErr(o, to, GuardNotDue)
	}
	return m.commit(ctx, o, to, func(n *Order) { n.Reason = "pickup deadline passed" })
}

// Sweep drives one order the sweeper found in status due: an expired
// acceptance is cancelled, an overdue pickup expired, an interrupted pickup
// completed. moved reports whether this call committed the transition; an
// order already moved elsewhere comes back unchanged with moved false.
func (m *Machine) Sweep(ctx context.Context, id string, due Status) (o Order, moved bool, err error) {
	cur, err := m.Orders.Get(ctx, id)
	if err != nil {
		return Order{}, false, err
	}
	if cur.Status != due {
		return cur, false, nil
	}
	switch due {
	case StatusPendingAcceptance:
		o, err = m.cancelExpired(ctx, cur)
	case StatusReady:
		o, err = m.expireOverdue(ctx, cur)
	case StatusPickedUp:
		o, err = m.complete(ctx, cur)
	default:
		return cur, false, guardErr(cur, due, GuardIllegal)
	}
	var te *TransitionError
	if errors.As(err, &te) {
		return o, false, err
	}
	// a settlement failure still comes back with the committed order
	return o, o.Status != due, err
}

// commit moves o to `to` with a compare-and-set. On a lost race the stored
// order comes back with a retryable TransitionError.
func (m *Machine) commit(ctx context.Context, o Order, to Status, mutate func(*Order), sold ...inventory.Line) (Order, error) {
	if !CanTransition(o.Status, to) {
		return o, guardErr(o, to, GuardIllegal)
	}
	next := o
	next.Status = to
	next.stamp(to, m.now())
	if mutate != nil {
		mutate(&next)
	}
	if err := m.Orders.Update(ctx, &next, o.Status, sold...); err != nil {
		if !errors.Is(err, ErrStale) {
			return o, err
		}
		cur, gerr := m.Orders.Get(ctx, o.ID)
		if gerr != nil {
			return o, gerr
		}
		return cur, &TransitionError{OrderID: o.ID, Current: cur.Status, Requested: to, Guard: GuardRace}
	}
	m.Log.Info().Str("order_id", o.ID).Str("from", string(o.Status)).Str("to", string(to)).Msg("order transition")
	m.emit(ctx, next, o.Status)
	return next, nil
}

// movedOn reloads o and reports whether another writer moved it off o's status.
func (m *Machine) movedOn(ctx context.Context, o Order) (Order, bool) {
	cur, err := m.Orders.Get(ctx, o.ID)
	if err != nil || cur.Status == o.Status {
		return o, false
	}
	return cur, true
}

// settlePayment voids whatever authorization a now-terminal order holds,
// refunding instead when the money was already captured.
func (m *Machine) settlePayment(ctx context.Context, o Order) error {
	p, err := m.Payments.VoidAuthorization(ctx, o.ID)
	switch {
	case errors.Is(err, payment.ErrNotFound):
		return nil
	case errors.Is(err, payment.ErrInvalidState):
		m.Log.Warn().Err(err).Str("order_id", o.ID).Msg("payment left for reconciliation")
		return nil
	case err != nil:
		m.Log.Error().Err(err).Str("order_id", o.ID).Str("status", string(o.Status)).Msg("void failed")
		return err
	}
	if p.Status == payment.StatusCaptured {
		if _, err := m.Payments.Refund(ctx, o.ID, "order "+string(o.Status)); err != nil {
			m.Log.Error().Err(err).Str("order_id", o.ID).Msg("refund failed")
			return err
		}
	}
	return nil
}

func (m *Machine) releaseHolds(ctx context.Context, o Order) {
	holder := inventory.OrderHolder(o.ID)
	for _, l := range o.Lines() {
		if _, err := m.Inventory.Release(ctx, l.UnitID, holder); err != nil {
			m.Log.Warn().Err(err).Str("order_id", o.ID).Str("unit_id", l.UnitID).Msg("release order hold")
		}
	}
}

// restock undoes an accept's decrement. keepHold leaves the order's hold in
// place for a retry.
func (m *Machine) restock(ctx context.Context, o Order, keepHold bool) {
	if err := m.Inventory.Restock(ctx, inventory.OrderHolder(o.ID), o.Lines(), m.Config.OrderHoldTTL); err != nil {
		m.Log.Error().Err(err).Str("order_id", o.ID).Msg("restock after failed accept")
		return
	}
	if !keepHold {
		m.releaseHolds(ctx, o)
	}
}

func (m *Machine) emit(ctx context.Context, o Order, from Status) {
	if m.Notifier == nil {
		return
	}
	event := EventFor(o.Status)
	p := payloadFor(o, from)
	m.Notifier.Notify(ctx, OutletRecipient(o.OutletID), event, p)
	if o.Status == StatusReady {
		p.PickupCode = o.PickupCode
	}
	m.Notifier.Notify(ctx, o.BuyerID, event, p)
}

func requireBuyer(o Order, actor Actor, to Status) error {
	if actor.Role == RoleBuyer && actor.ID != "" && actor.ID == o.BuyerID {
		return nil
	}
	return guardErr(o, to, GuardBuyer)
}

func (m *Machine) requireStaff(ctx context.Context, o Order, actor Actor, to Status) (directory.OutletInfo, error) {
	if actor.Role != RoleStaff {
		return directory.OutletInfo{}, guardErr(o, to, GuardStaff)
	}
	outlet, err := m.Directory.Outlet(ctx, o.OutletID)
	if err != nil {
		return directory.OutletInfo{}, err
	}
	if !outlet.IsStaff(actor.ID) {
		return outlet, guardErr(o, to, GuardStaff)
	}
	return outlet, nil
}
