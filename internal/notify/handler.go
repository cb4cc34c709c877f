package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/surplus-orders/internal/kafka"
	"github.com/ariefcatur/surplus-orders/internal/order"
	"github.com/ariefcatur/surplus-orders/internal/redisx"
)

// Message is one rendered notification for one recipient.
type Message struct {
	EventID     string
	RecipientID string
	EventType   string
	OrderID     string
	Text        string
	OccurredAt  time.Time
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

type LogSender struct{ Log zerolog.Logger }

func (s LogSender) Send(_ context.Context, m Message) error {
	s.Log.Info().Str("recipient_id", m.RecipientID).Str("order_id", m.OrderID).Str("event_type", m.EventType).
		Msg(m.Text)
	return nil
}

// Handler consumes order.notifications. Malformed events are dropped; a send
// failure is returned so the offset stays uncommitted. Seen, when set,
// suppresses redelivered events.
type Handler struct {
	Sender Sender
	Seen   redis.Cmdable
	Log    zerolog.Logger
}

func (h *Handler) Handle(ctx context.Context, m kafkago.Message) error {
	var ev order.Envelope
	if err := kafka.UnmarshalEnvelope(m.Value, &ev); err != nil {
		h.Log.Warn().Err(err).Int64("offset", m.Offset).Msg("drop malformed envelope")
		return nil
	}
	if ev.EventVersion != EventVersion {
		h.Log.Warn().Int("version", ev.EventVersion).Str("event_id", ev.EventID).Msg("drop unsupported event version")
		return nil
	}
	p, err := kafka.UnwrapPayload[order.StatusChangedPayload](ev.Payload)
	if err != nil {
		h.Log.Warn().Err(err).Str("event_id", ev.EventID).Msg("drop malformed payload")
		return nil
	}

	var seenKey string
	if h.Seen != nil && ev.EventID != "" {
		seenKey = fmt.Sprintf(redisx.KeyNotifySeen, ev.EventID)
		first, err := h.Seen.SetNX(ctx, seenKey, "1", redisx.TTLNotifySeen).Result()
		if err != nil {
			return err
		}
		if !first {
			return nil
		}
	}

	msg := Message{
		EventID: ev.EventID, RecipientID: ev.RecipientID, EventType: ev.EventType,
		OrderID: p.OrderID, Text: Render(ev.EventType, p), OccurredAt: ev.OccurredAt,
	}
	if err := h.Sender.Send(ctx, msg); err != nil {
		if seenKey != "" {
			_ = h.Seen.Del(ctx, seenKey).Err()
		}
		return fmt.Errorf("send %s to %s: %w", ev.EventType, ev.RecipientID, err)
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

// Render turns an event into the text shown to its recipient.
func Render(eventType string, p order.StatusChangedPayload) string {
	id := shortID(p.OrderID)
	switch eventType {
	case order.EventOrderCreated:
		return fmt.Sprintf("Order %s created, total %s %s.", id, p.Total.StringFixed(2), p.Currency)
	case order.EventOrderSubmitted:
		return fmt.Sprintf("Order %s is waiting for the outlet to accept.", id)
	case order.EventOrderAccepted:
		return fmt.Sprintf("Order %s accepted and paid.", id)
	case order.EventOrderDeclined:
		if p.Reason != "" {
			return fmt.Sprintf("Order %s was declined: %s.", id, p.Reason)
		}
		return fmt.Sprintf("Order %s was declined.", id)
	case order.EventOrderPreparing:
		return fmt.Sprintf("Order %s is being prepared.", id)
	case order.EventOrderReady:
		s := fmt.Sprintf("Order %s is ready for pickup", id)
		if p.PickupCode != "" {
			s += ", code " + p.PickupCode
		}
		if p.PickupDeadline != nil {
			s += ", until " + p.PickupDeadline.Format("15:04 MST")
		}
		return s + "."
	case order.EventOrderPickedUp:
		return fmt.Sprintf("Order %s picked up.", id)
	case order.EventOrderCompleted:
		return fmt.Sprintf("Order %s completed. You can leave a review for the next 48 hours.", id)
	case order.EventOrderCancelled:
		if p.Reason != "" {
			return fmt.Sprintf("Order %s was cancelled: %s.", id, p.Reason)
		}
		return fmt.Sprintf("Order %s was cancelled.", id)
	case order.EventOrderExpired:
		return fmt.Sprintf("Order %s expired without pickup.", id)
	}
	return fmt.Sprintf("Order %s: %s.", id, eventType)
}
