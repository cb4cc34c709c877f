package gateway

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Op string

const (
	OpAuthorize Op = "authorize"
	OpCapture   Op = "capture"
	OpVoid      Op = "void"
	OpRefund    Op = "refund"
)

type simTxn struct {
	id       string
	amount   decimal.Decimal
	currency string
	state    string
	refundID string
}

// Simulator is an in-process gateway. Tokens prefixed "tok_decline" are
// declined; failures can be injected per operation.
type Simulator struct {
	mu       sync.Mutex
	txns     map[string]*simTxn
	byKey    map[string]Authorization
	failNext map[Op]int
	calls    map[Op]int
}

func NewSimulator() *Simulator {
	return &Simulator{
		txns:     map[string]*simTxn{},
		byKey:    map[string]Authorization{},
		failNext: map[Op]int{},
		calls:    map[Op]int{},
	}
}

// FailNext makes the next n calls of op return ErrUnavailable.
func (s *Simulator) FailNext(op Op, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext[op] += n
}

func (s *Simulator) Calls(op Op) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// State returns the gateway-side state of a transaction.
func (s *Simulator) State(txnID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.txns[txnID]; ok {
		return t.state
	}
	return ""
}

func (s *Simulator) enter(op Op) error {
	s.calls[op]++
	if s.failNext[op] > 0 {
		s.failNext[op]--
		return ErrUnavailable
	}
	return nil
}

func (s *Simulator) Authorize(ctx context.Context, token string, amount decimal.Decimal, currency, key string) (Authorization, error) {
	if err := ctx.Err(); err != nil {
		return Authorization{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpAuthorize); err != nil {
		return Authorization{}, err
	}
	if a, ok := s.byKey[key]; ok {
		return a, nil
	}
	if strings.HasPrefix(token, "tok_decline") || !amount.IsPositive() {
		return Authorization{}, ErrDeclined
	}
	id := "txn_" + uuid.NewString()
	s.txns[id] = &simTxn{id: id, amount: amount, currency: currency, state: StatusAuthorized}
	a := Authorization{TxnID: id, Code: fmt.Sprintf("A%06d", len(s.txns))}
	s.byKey[key] = a
	return a, nil
}

func (s *Simulator) Capture(ctx context.Context, txnID string) error {
	return s.move(ctx, OpCapture, txnID, StatusAuthorized, StatusCaptured)
}

func (s *Simulator) Void(ctx context.Context, txnID string) error {
	return s.move(ctx, OpVoid, txnID, StatusAuthorized, StatusVoided)
}

func (s *Simulator) move(ctx context.Context, op Op, txnID, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(op); err != nil {
		return err
	}
	t, ok := s.txns[txnID]
	if !ok {
		return ErrUnknownTxn
	}
	switch t.state {
	case to:
		return nil
	case from:
		t.state = to
		return nil
	default:
		return fmt.Errorf("%w: %s from %s", ErrInvalidState, op, t.state)
	}
}

func (s *Simulator) Refund(ctx context.Context, txnID string, amount decimal.Decimal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpRefund); err != nil {
		return "", err
	}
	t, ok := s.txns[txnID]
	if !ok {
		return "", ErrUnknownTxn
	}
	switch t.state {
	case StatusRefunded:
		return t.refundID, nil
	case StatusCaptured:
		if amount.GreaterThan(t.amount) {
			return "", fmt.Errorf("%w: refund exceeds capture", ErrInvalidState)
		}
		t.state = StatusRefunded
		t.refundID = "rfd_" + uuid.NewString()
		return t.refundID, nil
	default:
		return "", fmt.Errorf("%w: refund from %s", ErrInvalidState, t.state)
	}
}
