// Package handlers holds the echo HTTP layer. Handlers translate requests
// into service calls and map service errors onto status codes; business rules
// live below them.
package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aquaflow/shop/internal/events"
	"github.com/aquaflow/shop/internal/logging"
)

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil {
		return v
	}
	return def
}

// publish fires an event without failing the request; delivery of domain
// events is best effort at the HTTP boundary.
func publish(c echo.Context, producer events.Publisher, topic, key string, event map[string]any) {
	if producer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()
	if err := producer.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(c.Request().Context()).Error("kafka publish error", "topic", topic, "error", err)
	}
}
