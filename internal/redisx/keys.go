package redisx

import (
	"fmt"
	"time"
)

// Inventory keys share the {unit} hash tag so one Lua script can touch all
// four keys of a unit on a cluster slot.
const (
	// stock:{unit}:total -> int, mirror of stock_records.total
	KeyStockTotal = "stock:{%s}:total"

	// stock:{unit}:reserved -> int, aggregate of live holds
	KeyStockReserved = "stock:{%s}:reserved"

	// stock:{unit}:holds -> hash holder -> qty
	KeyStockHolds = "stock:{%s}:holds"

	// stock:{unit}:hold_exp -> zset holder -> expiry (unix ms)
	KeyStockHoldExpiry = "stock:{%s}:hold_exp"

	// cart:{buyer} -> JSON cart session
	KeyCart = "cart:%s"

	// sweep:lease -> instance id holding the sweep lease
	KeySweepLease = "sweep:lease"

	// notify:seen:{event_id} -> "1" once the notifier delivered the event
	KeyNotifySeen = "notify:seen:%s"
)

var (
	TTLCart       = 30 * time.Minute
	TTLSweepLease = 30 * time.Second
	TTLNotifySeen = 24 * time.Hour
)

// UnitKeys returns the four inventory keys of a unit in script order.
func UnitKeys(unitID string) []string {
	return []string{
		fmt.Sprintf(KeyStockTotal, unitID),
		fmt.Sprintf(KeyStockReserved, unitID),
		fmt.Sprintf(KeyStockHolds, unitID),
		fmt.Sprintf(KeyStockHoldExpiry, unitID),
	}
}
