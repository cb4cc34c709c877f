// Package notify carries order events to buyers and outlet staff. Dispatch is
// fire-and-forget: a failed publish is logged and never affects the order.
package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/surplus-orders/internal/kafka"
	"github.com/ariefcatur/surplus-orders/internal/order"
)

const EventVersion = 1

type Dispatcher interface {
	Notify(ctx context.Context, recipientID, eventType string, payload any)
}

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header) bool
}

// KafkaDispatcher wraps each notification in an order.Envelope and publishes
// it keyed by order id, so one order's events stay ordered.
type KafkaDispatcher struct {
	Producer Publisher
	Service  string
	Log      zerolog.Logger
	Now      func() time.Time
}

func (d *KafkaDispatcher) Notify(ctx context.Context, recipientID, eventType string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		d.Log.Error().Err(err).Str("event_type", eventType).Msg("encode notification")
		return
	}
	now := time.Now
	if d.Now != nil {
		now = d.Now
	}
	orderID := recipientID
	if p, ok := payload.(order.StatusChangedPayload); ok {
		orderID = p.OrderID
	}
	ev := order.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  EventVersion,
		OccurredAt:    now().UTC(),
		Producer:      d.Service,
		RecipientID:   recipientID,
		TraceID:       traceID(ctx),
		CorrelationID: orderID,
		Payload:       body,
	}
	if !d.Producer.Publish(order.PartitionKey(orderID), kafka.MustMarshal(ev), kafka.Headers(eventType, strconv.Itoa(EventVersion))...) {
		d.Log.Warn().Str("order_id", orderID).Str("event_type", eventType).Str("recipient_id", recipientID).
			Msg("notification dropped")
	}
}

// LogDispatcher only logs. Used when no broker is configured.
type LogDispatcher struct{ Log zerolog.Logger }

func (d LogDispatcher) Notify(_ context.Context, recipientID, eventType string, payload any) {
	d.Log.Info().Str("recipient_id", recipientID).Str("event_type", eventType).Interface("payload", payload).
		Msg("notification")
}

type traceKey struct{}

// WithTraceID tags notifications emitted under ctx with a request id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

func traceID(ctx context.Context) string {
	id, _ := ctx.Value(traceKey{}).(string)
	return id
}
