// Package payment is the ledger of one payment record per order. Records only
// move forward through PENDING -> AUTHORIZED -> CAPTURED -> REFUNDED, with
// VOIDED and FAILED as side exits.
package payment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAuthorized Status = "AUTHORIZED"
	StatusCaptured   Status = "CAPTURED"
	StatusRefunded   Status = "REFUNDED"
	StatusVoided     Status = "VOIDED"
	StatusFailed     Status = "FAILED"
)

var forward = map[Status][]Status{
	StatusPending:    {StatusAuthorized, StatusFailed},
	StatusAuthorized: {StatusCaptured, StatusVoided, StatusFailed},
	StatusCaptured:   {StatusRefunded},
}

func CanMove(from, to Status) bool {
	for _, s := range forward[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Final statuses ignore every further update.
func (s Status) Final() bool {
	return s == StatusRefunded || s == StatusVoided || s == StatusFailed
}

// Settled statuses make a void a no-op.
func (s Status) Settled() bool {
	return s == StatusCaptured || s.Final()
}

var (
	ErrNotFound       = &apperr.Error{Kind: apperr.KindNotFound, Op: "payment", Msg: "payment not found"}
	ErrMethodNotFound = &apperr.Error{Kind: apperr.KindValidation, Op: "payment", Msg: "payment method not found"}
	ErrMethodNotOwned = &apperr.Error{Kind: apperr.KindUnauthorized, Op: "payment", Msg: "payment method does not belong to buyer"}
	ErrMethodExpired  = &apperr.Error{Kind: apperr.KindValidation, Op: "payment", Msg: "payment method expired"}
	ErrInvalidState   = &apperr.Error{Kind: apperr.KindConflict, Op: "payment", Msg: "payment not in required state"}
	ErrStale          = &apperr.Error{Kind: apperr.KindConflict, Op: "payment", Msg: "payment changed concurrently", Retryable: true}
	ErrGateway        = &apperr.Error{Kind: apperr.KindUpstream, Op: "payment", Msg: "gateway failure", Retryable: true}
)

type Payment struct {
	ID                  string          `json:"id"`
	OrderID             string          `json:"order_id"`
	IdempotencyKey      string          `json:"idempotency_key"`
	PaymentMethodID     string          `json:"payment_method_id"`
	Amount              decimal.Decimal `json:"amount"`
	Currency            string          `json:"currency"`
	Status              Status          `json:"status"`
	GatewayTxnID        string          `json:"gateway_txn_id,omitempty"`
	AuthCode            string          `json:"auth_code,omitempty"`
	RefundTxnID         string          `json:"refund_txn_id,omitempty"`
	FailureReason       string          `json:"failure_reason,omitempty"`
	RefundReason        string          `json:"refund_reason,omitempty"`
	NeedsReconciliation bool            `json:"needs_reconciliation"`
	AuthorizedAt        *time.Time      `json:"authorized_at,omitempty"`
	CapturedAt          *time.Time      `json:"captured_at,omitempty"`
	VoidedAt            *time.Time      `json:"voided_at,omitempty"`
	RefundedAt          *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

func IdempotencyKey(orderID string) string { return "pay:" + orderID }

type Method struct {
	ID        string
	OwnerID   string
	Token     string
	ExpiresAt time.Time
}

func (m Method) Expired(now time.Time) bool { return !now.Before(m.ExpiresAt) }
