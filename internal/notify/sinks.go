package notify

import (
	"context"
	"log/slog"

	"github.com/aquaflow/shop/internal/events"
)

// KafkaSink mirrors every notification onto the order events topic so
// downstream consumers see the same lifecycle changes the UI announces.
// Publishing is best-effort, matching the other sinks.
type KafkaSink struct {
	Producer events.Publisher
	Log      *slog.Logger
}

func (s *KafkaSink) Notify(n Notification) {
	err := s.Producer.PublishEvent(context.Background(), events.TopicOrderEvents, n.OrderID, map[string]any{
		"type":    "order_notification",
		"kind":    n.Kind.String(),
		"orderID": n.OrderID,
		"status":  string(n.Status),
		"message": n.Message,
	})
	if err != nil {
		s.Log.Error("kafka notify publish failed", "orderID", n.OrderID, "error", err)
	}
}

// Fanout delivers each notification to every sink in order.
type Fanout []Sink

func (f Fanout) Notify(n Notification) {
	for _, s := range f {
		s.Notify(n)
	}
}

var (
	_ Sink = (*KafkaSink)(nil)
	_ Sink = Fanout(nil)
)
