package gateway

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var amount = decimal.RequireFromString("42500.00")

func TestSimulator_AuthorizeIsIdempotentByKey(t *testing.T) {
	ctx := context.Background()
	g := NewSimulator()

	a1, err := g.Authorize(ctx, "tok_visa", amount, "IDR", "pay:o-1")
	require.NoError(t, err)
	a2, err := g.Authorize(ctx, "tok_visa", amount, "IDR", "pay:o-1")
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, StatusAuthorized, g.State(a1.TxnID))
}

func TestSimulator_Declines(t *testing.T) {
	g := NewSimulator()
	_, err := g.Authorize(context.Background(), "tok_decline_nsf", amount, "IDR", "pay:o-2")
	assert.ErrorIs(t, err, ErrDeclined)
}

func TestSimulator_Lifecycle(t *testing.T) {
	ctx := context.Background()
	g := NewSimulator()
	a, err := g.Authorize(ctx, "tok_visa", amount, "IDR", "pay:o-3")
	require.NoError(t, err)

	require.NoError(t, g.Capture(ctx, a.TxnID))
	require.NoError(t, g.Capture(ctx, a.TxnID), "repeat capture is idempotent")
	assert.ErrorIs(t, g.Void(ctx, a.TxnID), ErrInvalidState)

	r1, err := g.Refund(ctx, a.TxnID, amount)
	require.NoError(t, err)
	r2, err := g.Refund(ctx, a.TxnID, amount)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
	assert.Equal(t, StatusRefunded, g.State(a.TxnID))
}

func TestSimulator_FailNext(t *testing.T) {
	ctx := context.Background()
	g := NewSimulator()
	a, err := g.Authorize(ctx, "tok_visa", amount, "IDR", "pay:o-4")
	require.NoError(t, err)

	g.FailNext(OpVoid, 1)
	assert.ErrorIs(t, g.Void(ctx, a.TxnID), ErrUnavailable)
	assert.Equal(t, StatusAuthorized, g.State(a.TxnID))

	require.NoError(t, g.Void(ctx, a.TxnID))
	assert.Equal(t, StatusVoided, g.State(a.TxnID))
	assert.Equal(t, 2, g.Calls(OpVoid))
}

func TestSimulator_UnknownTxn(t *testing.T) {
	g := NewSimulator()
	assert.ErrorIs(t, g.Capture(context.Background(), "txn_nope"), ErrUnknownTxn)
}
