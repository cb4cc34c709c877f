package inventory

import (
	"context"
	"errors"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/surplus-orders/internal/postgres"
)

// TotalsRepository is the durable record of stock totals. Reservations are
// never persisted; only committed sales change a total.
type TotalsRepository interface {
	Totals(ctx context.Context) (map[string]int, error)
	SetTotal(ctx context.Context, unitID string, total int) error
}

type PostgresStock struct{ DB postgres.DBTX }

func (r *PostgresStock) Totals(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.Query(ctx, `SELECT unit_id, total FROM stock_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var id string
		var total int
		if err := rows.Scan(&id, &total); err != nil {
			return nil, err
		}
		out[id] = total
	}
	return out, rows.Err()
}

func (r *PostgresStock) SetTotal(ctx context.Context, unitID string, total int) error {
	if total < 0 {
		return ErrInvalidQuantity
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO stock_records(unit_id, total) VALUES ($1, $2)
		ON CONFLICT (unit_id) DO UPDATE SET total = EXCLUDED.total, updated_at = NOW()`,
		unitID, total)
	return err
}

// ApplySale locks each unit row, checks every line, then decrements. It
// runs on the caller's transaction so the sale commits with the order row.
func ApplySale(ctx context.Context, tx postgres.DBTX, lines []Line) error {
	lines, err := Merge(lines)
	if err != nil {
		return err
	}
	for _, l := range lines {
		var total int
		err := tx.QueryRow(ctx, `SELECT total FROM stock_records WHERE unit_id=$1 FOR UPDATE`, l.UnitID).Scan(&total)
		if errors.Is(err, pgx.ErrNoRows) {
			return unitErr(l.UnitID, ErrUnknownUnit)
		}
		if err != nil {
			return err
		}
		if total < l.Qty {
			return unitErr(l.UnitID, ErrInsufficientStock)
		}
	}
	for _, l := range lines {
		if _, err := tx.Exec(ctx,
			`UPDATE stock_records SET total = total - $2, updated_at = NOW() WHERE unit_id=$1`,
			l.UnitID, l.Qty); err != nil {
			return err
		}
	}
	return nil
}

// MemoryTotals is the in-process TotalsRepository.
type MemoryTotals struct {
	mu     sync.Mutex
	totals map[string]int
}

func NewMemoryTotals() *MemoryTotals { return &MemoryTotals{totals: map[string]int{}} }

func (m *MemoryTotals) Totals(context.Context) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]int, len(m.totals))
	for k, v := range m.totals {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryTotals) SetTotal(_ context.Context, unitID string, total int) error {
	if total < 0 {
		return ErrInvalidQuantity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.totals[unitID] = total
	return nil
}
