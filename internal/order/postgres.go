package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/surplus-orders/internal/inventory"
	"github.com/ariefcatur/surplus-orders/internal/postgres"
)

const orderColumns = `id, buyer_id, outlet_id, status, version, subtotal, tax, total, currency, pickup_code,
	COALESCE(payment_method_id, ''), COALESCE(reason, ''), acceptance_deadline, pickup_deadline,
	created_at, updated_at, submitted_at, accepted_at, declined_at, preparing_at, ready_at,
	picked_up_at, completed_at, cancelled_at, expired_at`

type PostgresRepository struct{ DB postgres.DBTX }

func (r *PostgresRepository) Create(ctx context.Context, o Order) error {
	return postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (id, buyer_id, outlet_id, status, version, subtotal, tax, total, currency,
				pickup_code, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)`,
			o.ID, o.BuyerID, o.OutletID, string(o.Status), o.Version, o.Subtotal, o.Tax, o.Total, o.Currency,
			o.PickupCode, o.CreatedAt); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
		for _, it := range o.Items {
			if _, err := tx.Exec(ctx, `
				INSERT INTO order_items (order_id, unit_id, qty, unit_price) VALUES ($1,$2,$3,$4)`,
				o.ID, it.UnitID, it.Qty, it.UnitPrice); err != nil {
				return fmt.Errorf("insert order item %s: %w", it.UnitID, err)
			}
		}
		return nil
	})
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.BuyerID, &o.OutletID, &status, &o.Version, &o.Subtotal, &o.Tax, &o.Total,
		&o.Currency, &o.PickupCode, &o.PaymentMethodID, &o.Reason, &o.AcceptanceDeadline, &o.PickupDeadline,
		&o.CreatedAt, &o.UpdatedAt, &o.SubmittedAt, &o.AcceptedAt, &o.DeclinedAt, &o.PreparingAt,
		&o.ReadyAt, &o.PickedUpAt, &o.CompletedAt, &o.CancelledAt, &o.ExpiredAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	o.Status = Status(status)
	return o, err
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return Order{}, err
	}
	o.Items, err = r.items(ctx, id)
	return o, err
}

func (r *PostgresRepository) items(ctx context.Context, orderID string) ([]Item, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT order_id, unit_id, qty, unit_price FROM order_items WHERE order_id=$1 ORDER BY unit_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.OrderID, &it.UnitID, &it.Qty, &it.UnitPrice); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// Update runs the status CAS and the durable stock decrement in one
// transaction; either both commit or neither does.
func (r *PostgresRepository) Update(ctx context.Context, o *Order, from Status, sold ...inventory.Line) error {
	err := postgres.InTx(ctx, r.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE orders SET
				status=$4, version=version+1, payment_method_id=NULLIF($5,''), reason=NULLIF($6,''),
				acceptance_deadline=$7, pickup_deadline=$8, updated_at=$9, submitted_at=$10,
				accepted_at=$11, declined_at=$12, preparing_at=$13, ready_at=$14, picked_up_at=$15,
				completed_at=$16, cancelled_at=$17, expired_at=$18
			WHERE id=$1 AND status=$2 AND version=$3`,
			o.ID, string(from), o.Version, string(o.Status), o.PaymentMethodID, o.Reason,
			o.AcceptanceDeadline, o.PickupDeadline, o.UpdatedAt, o.SubmittedAt,
			o.AcceptedAt, o.DeclinedAt, o.PreparingAt, o.ReadyAt, o.PickedUpAt,
			o.CompletedAt, o.CancelledAt, o.ExpiredAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrStale
		}
		if len(sold) > 0 {
			return inventory.ApplySale(ctx, tx, sold)
		}
		return nil
	})
	if err != nil {
		return err
	}
	o.Version++
	return nil
}

func (r *PostgresRepository) Due(ctx context.Context, status Status, now time.Time, limit int) ([]Order, error) {
	var column string
	switch status {
	case StatusPendingAcceptance:
		column = "acceptance_deadline"
	case StatusReady:
		column = "pickup_deadline"
	case StatusPickedUp:
		column = "picked_up_at"
	default:
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status=$1 AND `+column+` < $2 ORDER BY `+column+` LIMIT $3`, string(status), now, limit)
	if err != nil {
		return nil, err
	}
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = r.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
