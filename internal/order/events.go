package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderCreated   = "OrderCreated"
	EventOrderSubmitted = "OrderSubmitted"
	EventOrderAccepted  = "OrderAccepted"
	EventOrderDeclined  = "OrderDeclined"
	EventOrderPreparing = "OrderPreparing"
	EventOrderReady     = "OrderReady"
	EventOrderPickedUp  = "OrderPickedUp"
	EventOrderCompleted = "OrderCompleted"
	EventOrderCancelled = "OrderCancelled"
	EventOrderExpired   = "OrderExpired"
)

var eventFor = map[Status]string{
	StatusCreated:           EventOrderCreated,
	StatusPendingAcceptance: EventOrderSubmitted,
	StatusPaid:              EventOrderAccepted,
	StatusDeclined:          EventOrderDeclined,
	StatusPreparing:         EventOrderPreparing,
	StatusReady:             EventOrderReady,
	StatusPickedUp:          EventOrderPickedUp,
	StatusCompleted:         EventOrderCompleted,
	StatusCancelled:         EventOrderCancelled,
	StatusExpired:           EventOrderExpired,
}

func EventFor(s Status) string { return eventFor[s] }

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	RecipientID   string          `json:"recipient_id"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// StatusChangedPayload is carried by every order event.
type StatusChangedPayload struct {
	OrderID        string          `json:"order_id"`
	BuyerID        string          `json:"buyer_id"`
	OutletID       string          `json:"outlet_id"`
	From           Status          `json:"from,omitempty"`
	To             Status          `json:"to"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
	Reason         string          `json:"reason,omitempty"`
	PickupCode     string          `json:"pickup_code,omitempty"`
	PickupDeadline *time.Time      `json:"pickup_deadline,omitempty"`
}

func payloadFor(o Order, from Status) StatusChangedPayload {
	return StatusChangedPayload{
		OrderID: o.ID, BuyerID: o.BuyerID, OutletID: o.OutletID,
		From: from, To: o.Status, Total: o.Total, Currency: o.Currency,
		Reason: o.Reason, PickupDeadline: o.PickupDeadline,
	}
}
