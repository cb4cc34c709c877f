package payment

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/surplus-orders/internal/postgres"
)

const paymentColumns = `id, order_id, idempotency_key, payment_method_id, amount, currency, status,
	COALESCE(gateway_txn_id, ''), COALESCE(auth_code, ''), COALESCE(refund_txn_id, ''),
	COALESCE(failure_reason, ''), COALESCE(refund_reason, ''), needs_reconciliation,
	authorized_at, captured_at, voided_at, refunded_at, created_at, updated_at`

type PostgresRepository struct{ DB postgres.DBTX }

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	var status string
	err := row.Scan(&p.ID, &p.OrderID, &p.IdempotencyKey, &p.PaymentMethodID, &p.Amount, &p.Currency, &status,
		&p.GatewayTxnID, &p.AuthCode, &p.RefundTxnID, &p.FailureReason, &p.RefundReason, &p.NeedsReconciliation,
		&p.AuthorizedAt, &p.CapturedAt, &p.VoidedAt, &p.RefundedAt, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Payment{}, ErrNotFound
	}
	p.Status = Status(status)
	return p, err
}

// Create relies on the unique idempotency key: a concurrent or repeated
// insert for the same order falls through to reading the existing row.
func (r *PostgresRepository) Create(ctx context.Context, p Payment) (Payment, bool, error) {
	tag, err := r.DB.Exec(ctx, `
		INSERT INTO payments (id, order_id, idempotency_key, payment_method_id, amount, currency, status,
			needs_reconciliation, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,$8,$8)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		p.ID, p.OrderID, p.IdempotencyKey, p.PaymentMethodID, p.Amount, p.Currency, string(p.Status), p.CreatedAt)
	if err != nil {
		return Payment{}, false, err
	}
	if tag.RowsAffected() == 1 {
		return p, true, nil
	}
	cur, err := scanPayment(r.DB.QueryRow(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE idempotency_key=$1`, p.IdempotencyKey))
	return cur, false, err
}

func (r *PostgresRepository) ByOrder(ctx context.Context, orderID string) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE order_id=$1`, orderID))
}

func (r *PostgresRepository) ByTxn(ctx context.Context, txnID string) (Payment, error) {
	return scanPayment(r.DB.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE gateway_txn_id=$1`, txnID))
}

func (r *PostgresRepository) Update(ctx context.Context, p Payment, from Status) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE payments SET
			status=$3, gateway_txn_id=NULLIF($4,''), auth_code=NULLIF($5,''), refund_txn_id=NULLIF($6,''),
			failure_reason=NULLIF($7,''), refund_reason=NULLIF($8,''), needs_reconciliation=$9,
			authorized_at=$10, captured_at=$11, voided_at=$12, refunded_at=$13, updated_at=$14
		WHERE id=$1 AND status=$2`,
		p.ID, string(from), string(p.Status), p.GatewayTxnID, p.AuthCode, p.RefundTxnID,
		p.FailureReason, p.RefundReason, p.NeedsReconciliation,
		p.AuthorizedAt, p.CapturedAt, p.VoidedAt, p.RefundedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}

func (r *PostgresRepository) Flagged(ctx context.Context, limit int) ([]Payment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE needs_reconciliation ORDER BY updated_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type PostgresMethods struct{ DB postgres.DBTX }

func (r *PostgresMethods) Method(ctx context.Context, id string) (Method, error) {
	var m Method
	err := r.DB.QueryRow(ctx,
		`SELECT id, owner_id, token, expires_at FROM payment_methods WHERE id=$1`, id).
		Scan(&m.ID, &m.OwnerID, &m.Token, &m.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Method{}, ErrMethodNotFound
	}
	return m, err
}
