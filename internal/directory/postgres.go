package directory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariefcatur/surplus-orders/internal/apperr"
	"github.com/ariefcatur/surplus-orders/internal/postgres"
)

type Postgres struct{ DB postgres.DBTX }

func (p *Postgres) User(ctx context.Context, id string) (UserInfo, error) {
	var u UserInfo
	var st string
	err := p.DB.QueryRow(ctx, `SELECT id, status FROM users WHERE id=$1`, id).Scan(&u.ID, &st)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserInfo{}, apperr.NotFound("directory.user", "user %s not found", id)
	}
	if err != nil {
		return UserInfo{}, err
	}
	u.Status = Status(st)
	return u, nil
}

func (p *Postgres) Outlet(ctx context.Context, id string) (OutletInfo, error) {
	var (
		o        OutletInfo
		st, tz   string
		closesAt *string
	)
	err := p.DB.QueryRow(ctx, `
		SELECT o.id, o.owner_id, o.status, o.closes_at, o.timezone,
		       COALESCE(ARRAY(SELECT user_id FROM outlet_staff s WHERE s.outlet_id = o.id ORDER BY user_id), '{}')
		FROM outlets o WHERE o.id=$1`, id).Scan(&o.ID, &o.OwnerID, &st, &closesAt, &tz, &o.StaffIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return OutletInfo{}, apperr.NotFound("directory.outlet", "outlet %s not found", id)
	}
	if err != nil {
		return OutletInfo{}, err
	}
	o.Status = Status(st)
	if closesAt != nil {
		o.ClosesAt = *closesAt
	}
	if loc, err := time.LoadLocation(tz); err == nil {
		o.Location = loc
	}
	return o, nil
}

func (p *Postgres) Unit(ctx context.Context, id string) (UnitInfo, error) {
	var u UnitInfo
	var st string
	err := p.DB.QueryRow(ctx, `
		SELECT id, outlet_id, name, price, original_price, status
		FROM sellable_units WHERE id=$1`, id).
		Scan(&u.ID, &u.OutletID, &u.Name, &u.Price, &u.OriginalPrice, &st)
	if errors.Is(err, pgx.ErrNoRows) {
		return UnitInfo{}, apperr.NotFound("directory.unit", "unit %s not found", id)
	}
	if err != nil {
		return UnitInfo{}, err
	}
	u.Status = Status(st)
	return u, nil
}
