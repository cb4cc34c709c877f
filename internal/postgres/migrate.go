package postgres

import (
	"context"
	"fmt"
)

var migrations = []string{
	// directory (read-only to the saga, owned by the CRUD services)
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS outlets (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		closes_at TEXT,
		timezone TEXT NOT NULL DEFAULT 'UTC'
	)`,
	`CREATE TABLE IF NOT EXISTS outlet_staff (
		outlet_id TEXT NOT NULL REFERENCES outlets(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id),
		PRIMARY KEY (outlet_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sellable_units (
		id TEXT PRIMARY KEY,
		outlet_id TEXT NOT NULL REFERENCES outlets(id),
		name TEXT NOT NULL,
		price NUMERIC(14,2) NOT NULL,
		original_price NUMERIC(14,2) NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE'
	)`,
	`CREATE TABLE IF NOT EXISTS payment_methods (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES users(id),
		token TEXT NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL
	)`,

	// stock totals are the only durable inventory truth
	`CREATE TABLE IF NOT EXISTS stock_records (
		unit_id TEXT PRIMARY KEY REFERENCES sellable_units(id),
		total INTEGER NOT NULL CHECK (total >= 0),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		buyer_id TEXT NOT NULL,
		outlet_id TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		subtotal NUMERIC(14,2) NOT NULL,
		tax NUMERIC(14,2) NOT NULL,
		total NUMERIC(14,2) NOT NULL,
		currency TEXT NOT NULL,
		pickup_code TEXT NOT NULL,
		payment_method_id TEXT,
		reason TEXT,
		acceptance_deadline TIMESTAMPTZ,
		pickup_deadline TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		submitted_at TIMESTAMPTZ,
		accepted_at TIMESTAMPTZ,
		declined_at TIMESTAMPTZ,
		preparing_at TIMESTAMPTZ,
		ready_at TIMESTAMPTZ,
		picked_up_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		expired_at TIMESTAMPTZ,
		CHECK (total = subtotal + tax)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status_acceptance ON orders(status, acceptance_deadline)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_status_pickup ON orders(status, pickup_deadline)`,
	`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		unit_id TEXT NOT NULL,
		qty INTEGER NOT NULL CHECK (qty > 0),
		unit_price NUMERIC(14,2) NOT NULL,
		PRIMARY KEY (order_id, unit_id)
	)`,

	`CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		order_id TEXT NOT NULL UNIQUE REFERENCES orders(id),
		idempotency_key TEXT NOT NULL UNIQUE,
		payment_method_id TEXT NOT NULL,
		amount NUMERIC(14,2) NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		gateway_txn_id TEXT,
		auth_code TEXT,
		refund_txn_id TEXT,
		failure_reason TEXT,
		refund_reason TEXT,
		needs_reconciliation BOOLEAN NOT NULL DEFAULT false,
		authorized_at TIMESTAMPTZ,
		captured_at TIMESTAMPTZ,
		voided_at TIMESTAMPTZ,
		refunded_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_txn ON payments(gateway_txn_id) WHERE gateway_txn_id IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS idx_payments_reconcile ON payments(needs_reconciliation) WHERE needs_reconciliation`,
}

func Migrate(ctx context.Context, db DBTX) error {
	for _, m := range migrations {
		if _, err := db.Exec(ctx, m); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
