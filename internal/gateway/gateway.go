// Package gateway models the external payment gateway. Every call is
// blocking and must be idempotent on retry.
package gateway

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrDeclined     = errors.New("gateway: declined")
	ErrUnavailable  = errors.New("gateway: unavailable")
	ErrUnknownTxn   = errors.New("gateway: unknown transaction")
	ErrInvalidState = errors.New("gateway: invalid transaction state")
)

type Authorization struct {
	TxnID string
	Code  string
}

type Gateway interface {
	// Authorize places a hold; repeated calls with the same idempotency key
	// return the original authorization.
	Authorize(ctx context.Context, token string, amount decimal.Decimal, currency, idempotencyKey string) (Authorization, error)
	Capture(ctx context.Context, txnID string) error
	Void(ctx context.Context, txnID string) error
	Refund(ctx context.Context, txnID string, amount decimal.Decimal) (string, error)
}

// Webhook status values sent by the gateway.
const (
	StatusAuthorized = "authorized"
	StatusCaptured   = "captured"
	StatusVoided     = "voided"
	StatusRefunded   = "refunded"
	StatusFailed     = "failed"
)
