// Package directory exposes read-only lookups of users, outlets and sellable
// units owned by the CRUD side of the marketplace.
package directory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusClosed    Status = "CLOSED"
)

type UserInfo struct {
	ID     string
	Status Status
}

type OutletInfo struct {
	ID       string
	OwnerID  string
	Status   Status
	StaffIDs []string
	// ClosesAt is the local closing time as "HH:MM"; empty when unknown.
	ClosesAt string
	Location *time.Location
}

// IsStaff reports whether userID may act for the outlet.
func (o OutletInfo) IsStaff(userID string) bool {
	if userID == "" {
		return false
	}
	if o.OwnerID == userID {
		return true
	}
	for _, id := range o.StaffIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// NextClose returns the outlet's next closing instant after now, or false
// when ClosesAt is unset or malformed.
func (o OutletInfo) NextClose(now time.Time) (time.Time, bool) {
	if o.ClosesAt == "" {
		return time.Time{}, false
	}
	hm, err := time.Parse("15:04", o.ClosesAt)
	if err != nil {
		return time.Time{}, false
	}
	loc := o.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	closing := time.Date(local.Year(), local.Month(), local.Day(), hm.Hour(), hm.Minute(), 0, 0, loc)
	if !closing.After(local) {
		return time.Time{}, false
	}
	return closing, true
}

type UnitInfo struct {
	ID            string
	OutletID      string
	Name          string
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal
	Status        Status
}

// Directory returns apperr NotFound errors for unknown ids.
type Directory interface {
	User(ctx context.Context, id string) (UserInfo, error)
	Outlet(ctx context.Context, id string) (OutletInfo, error)
	Unit(ctx context.Context, id string) (UnitInfo, error)
}
