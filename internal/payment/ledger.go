package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/gateway"
)

type AuthRequest struct {
	OrderID  string
	BuyerID  string
	MethodID string
	Amount   decimal.Decimal
	Currency string
}

// WebhookEvent is the gateway's asynchronous status callback.
type WebhookEvent struct {
	TxnID   string          `json:"txn_id"`
	Status  string          `json:"status"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

var webhookStatus = map[string]Status{
	gateway.StatusAuthorized: StatusAuthorized,
	gateway.StatusCaptured:   StatusCaptured,
	gateway.StatusVoided:     StatusVoided,
	gateway.StatusRefunded:   StatusRefunded,
	gateway.StatusFailed:     StatusFailed,
}

// Ledger never holds a lock across a gateway call. Every gateway call is
// replay-safe, and every record change is a status compare-and-set.
type Ledger struct {
	Repo    Repository
	Methods MethodRepository
	Gateway gateway.Gateway
	Log     zerolog.Logger
	Now     func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) Get(ctx context.Context, orderID string) (Payment, error) {
	return l.Repo.ByOrder(ctx, orderID)
}

func (l *Ledger) ListReconciliation(ctx context.Context, limit int) ([]Payment, error) {
	return l.Repo.Flagged(ctx, limit)
}

// PreAuthorize returns the order's payment, creating and authorizing it on
// first call. A declined authorization leaves a FAILED record that is never
// re-created; an ambiguous gateway error leaves it PENDING for a retry with
// the same idempotency key.
func (l *Ledger) PreAuthorize(ctx context.Context, req AuthRequest) (Payment, error) {
	const op = "payment.preauthorize"
	if req.OrderID == "" || req.MethodID == "" {
		return Payment{}, apperr.Validation(op, "order and payment method are required")
	}
	if !req.Amount.IsPositive() {
		return Payment{}, apperr.Validation(op, "amount must be positive")
	}

	p, err := l.Repo.ByOrder(ctx, req.OrderID)
	switch {
	case err == nil && p.Status != StatusPending:
		return settledAuth(p)
	case err != nil && !errors.Is(err, ErrNotFound):
		return Payment{}, err
	}

	method, err := l.Methods.Method(ctx, req.MethodID)
	if err != nil {
		return Payment{}, err
	}
	if method.OwnerID != req.BuyerID {
		return Payment{}, ErrMethodNotOwned
	}
	if method.Expired(l.now()) {
		return Payment{}, ErrMethodExpired
	}

	if p.ID == "" {
		now := l.now()
		var created bool
		p, created, err = l.Repo.Create(ctx, Payment{
			ID:              uuid.NewString(),
			OrderID:         req.OrderID,
			IdempotencyKey:  IdempotencyKey(req.OrderID),
			PaymentMethodID: method.ID,
			Amount:          req.Amount.Round(2),
			Currency:        req.Currency,
			Status:          StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
		if err != nil {
			return Payment{}, err
		}
		if !created && p.Status != StatusPending {
			return settledAuth(p)
		}
	}

	auth, gerr := l.Gateway.Authorize(ctx, method.Token, p.Amount, p.Currency, p.IdempotencyKey)
	next := p
	next.UpdatedAt = l.now()
	if gerr != nil {
		next.FailureReason = gerr.Error()
		if errors.Is(gerr, gateway.ErrDeclined) {
			next.Status = StatusFailed
		}
		if err := l.Repo.Update(ctx, next, StatusPending); err != nil {
			return Payment{}, err
		}
		l.Log.Warn().Err(gerr).Str("order_id", p.OrderID).Str("payment_id", p.ID).
			Str("status", string(next.Status)).Msg("preauthorization failed")
		return next, gatewayErr(op, gerr)
	}

	next.Status = StatusAuthorized
	next.GatewayTxnID = auth.TxnID
	next.AuthCode = auth.Code
	next.FailureReason = ""
	next.AuthorizedAt = &next.UpdatedAt
	if err := l.Repo.Update(ctx, next, StatusPending); err != nil {
		if errors.Is(err, ErrStale) {
			// a concurrent attempt finished first with the same key
			cur, gerr := l.Repo.ByOrder(ctx, p.OrderID)
			if gerr != nil {
				return Payment{}, gerr
			}
			return settledAuth(cur)
		}
		return Payment{}, err
	}
	l.Log.Info().Str("order_id", p.OrderID).Str("payment_id", p.ID).Str("txn_id", auth.TxnID).Msg("payment authorized")
	return next, nil
}

func settledAuth(p Payment) (Payment, error) {
	if p.Status == StatusFailed {
		return p, &apperr.Error{
			Kind: apperr.KindUpstream, Op: "payment.preauthorize",
			Msg: "payment failed: " + p.FailureReason, Err: ErrGateway,
		}
	}
	return p, nil
}

func gatewayErr(op string, err error) error {
	retryable := !errors.Is(err, gateway.ErrDeclined)
	return &apperr.Error{Kind: apperr.KindUpstream, Op: op, Retryable: retryable,
		Err: fmt.Errorf("%w: %w", ErrGateway, err)}
}

// Capture moves AUTHORIZED to CAPTURED. A gateway failure keeps the payment
// AUTHORIZED with the reason recorded.
func (l *Ledger) Capture(ctx context.Context, orderID string) (Payment, error) {
	const op = "payment.capture"
	p, err := l.Repo.ByOrder(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	switch p.Status {
	case StatusCaptured:
		return p, nil
	case StatusAuthorized:
	default:
		return p, fmt.Errorf("capture from %s: %w", p.Status, ErrInvalidState)
	}

	if gerr := l.Gateway.Capture(ctx, p.GatewayTxnID); gerr != nil {
		next := p
		next.FailureReason = gerr.Error()
		next.UpdatedAt = l.now()
		if err := l.Repo.Update(ctx, next, StatusAuthorized); err != nil {
			l.Log.Error().Err(err).Str("payment_id", p.ID).Msg("record capture failure")
		}
		l.Log.Warn().Err(gerr).Str("order_id", orderID).Str("txn_id", p.GatewayTxnID).Msg("capture failed")
		return next, gatewayErr(op, gerr)
	}

	next := p
	next.Status = StatusCaptured
	next.FailureReason = ""
	next.UpdatedAt = l.now()
	next.CapturedAt = &next.UpdatedAt
	if err := l.commit(ctx, &next, StatusAuthorized); err != nil {
		return next, err
	}
	l.Log.Info().Str("order_id", orderID).Str("txn_id", p.GatewayTxnID).Msg("payment captured")
	return next, nil
}

// VoidAuthorization releases an AUTHORIZED hold. It is a no-op on a settled
// payment. A gateway failure flags the payment for reconciliation.
func (l *Ledger) VoidAuthorization(ctx context.Context, orderID string) (Payment, error) {
	const op = "payment.void"
	p, err := l.Repo.ByOrder(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	if p.Status.Settled() {
		return p, nil
	}
	if p.Status == StatusPending {
		// authorization outcome unknown; an operator resolves it
		if !p.NeedsReconciliation {
			p.NeedsReconciliation = true
			p.UpdatedAt = l.now()
			if err := l.Repo.Update(ctx, p, StatusPending); err != nil {
				return p, err
			}
		}
		return p, fmt.Errorf("void from %s: %w", p.Status, ErrInvalidState)
	}

	if gerr := l.Gateway.Void(ctx, p.GatewayTxnID); gerr != nil {
		return l.flag(ctx, p, op, gerr)
	}
	next := p
	next.Status = StatusVoided
	next.NeedsReconciliation = false
	next.UpdatedAt = l.now()
	next.VoidedAt = &next.UpdatedAt
	if err := l.commit(ctx, &next, StatusAuthorized); err != nil {
		return next, err
	}
	l.Log.Info().Str("order_id", orderID).Str("txn_id", p.GatewayTxnID).Msg("authorization voided")
	return next, nil
}

// Refund returns a captured payment.
func (l *Ledger) Refund(ctx context.Context, orderID, reason string) (Payment, error) {
	const op = "payment.refund"
	p, err := l.Repo.ByOrder(ctx, orderID)
	if err != nil {
		return Payment{}, err
	}
	switch p.Status {
	case StatusRefunded:
		return p, nil
	case StatusCaptured:
	default:
		return p, fmt.Errorf("refund from %s: %w", p.Status, ErrInvalidState)
	}

	refundID, gerr := l.Gateway.Refund(ctx, p.GatewayTxnID, p.Amount)
	if gerr != nil {
		return l.flag(ctx, p, op, gerr)
	}
	next := p
	next.Status = StatusRefunded
	next.RefundTxnID = refundID
	next.RefundReason = reason
	next.NeedsReconciliation = false
	next.UpdatedAt = l.now()
	next.RefundedAt = &next.UpdatedAt
	if err := l.commit(ctx, &next, StatusCaptured); err != nil {
		return next, err
	}
	l.Log.Info().Str("order_id", orderID).Str("refund_txn_id", refundID).Msg("payment refunded")
	return next, nil
}

func (l *Ledger) flag(ctx context.Context, p Payment, op string, gerr error) (Payment, error) {
	next := p
	next.NeedsReconciliation = true
	next.FailureReason = gerr.Error()
	next.UpdatedAt = l.now()
	if err := l.Repo.Update(ctx, next, p.Status); err != nil {
		l.Log.Error().Err(err).Str("payment_id", p.ID).Msg("flag for reconciliation")
	}
	l.Log.Error().Err(gerr).Str("order_id", p.OrderID).Str("txn_id", p.GatewayTxnID).Str("op", op).
		Msg("payment needs reconciliation")
	return next, gatewayErr(op, gerr)
}

// commit persists next; when another writer already moved the record to the
// same status the stored record wins.
func (l *Ledger) commit(ctx context.Context, next *Payment, from Status) error {
	err := l.Repo.Update(ctx, *next, from)
	if !errors.Is(err, ErrStale) {
		return err
	}
	cur, gerr := l.Repo.ByOrder(ctx, next.OrderID)
	if gerr != nil {
		return gerr
	}
	done := cur.Status == next.Status
	*next = cur
	if done {
		return nil
	}
	return err
}

// HandleWebhook applies a gateway status callback. Unknown transactions,
// final payments and backward moves are dropped without error.
func (l *Ledger) HandleWebhook(ctx context.Context, ev WebhookEvent) error {
	target, ok := webhookStatus[ev.Status]
	if ev.TxnID == "" || !ok {
		return apperr.Validation("payment.webhook", "malformed webhook: txn_id=%q status=%q", ev.TxnID, ev.Status)
	}
	log := l.Log.With().Str("txn_id", ev.TxnID).Str("webhook_status", ev.Status).Logger()

	p, err := l.Repo.ByTxn(ctx, ev.TxnID)
	if errors.Is(err, ErrNotFound) {
		log.Warn().Msg("webhook for unknown transaction dropped")
		return nil
	}
	if err != nil {
		log.Error().Err(err).Msg("webhook lookup failed")
		return nil
	}
	if p.Status.Final() || p.Status == target || !CanMove(p.Status, target) {
		log.Debug().Str("status", string(p.Status)).Msg("webhook ignored")
		return nil
	}

	next := p
	next.Status = target
	next.UpdatedAt = l.now()
	ts := next.UpdatedAt
	switch target {
	case StatusAuthorized:
		next.AuthorizedAt = &ts
	case StatusCaptured:
		next.CapturedAt = &ts
	case StatusVoided:
		next.VoidedAt = &ts
		next.NeedsReconciliation = false
	case StatusRefunded:
		next.RefundedAt = &ts
		next.NeedsReconciliation = false
	case StatusFailed:
		next.FailureReason = "gateway reported failure"
		if len(ev.Payload) > 0 {
			next.FailureReason += ": " + string(ev.Payload)
		}
	}
	if err := l.Repo.Update(ctx, next, p.Status); err != nil {
		log.Warn().Err(err).Msg("webhook update lost")
		return nil
	}
	log.Info().Str("from", string(p.Status)).Str("to", string(target)).Msg("webhook applied")
	return nil
}
