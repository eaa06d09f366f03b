package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aquaflow/shop/internal/cart"
	"github.com/aquaflow/shop/internal/checkout"
	"github.com/aquaflow/shop/internal/events"
	"github.com/aquaflow/shop/internal/logging"
	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/mux"
	"github.com/aquaflow/shop/internal/notify"
	"github.com/aquaflow/shop/internal/order"
	"github.com/aquaflow/shop/internal/projector"
	"github.com/aquaflow/shop/internal/service/token"
	"github.com/aquaflow/shop/internal/store"
)

type OrderHandler struct {
	Store    store.OrderStore
	Cart     *cart.Repo
	Writer   *checkout.Writer
	Mux      *mux.Mux
	Admin    *notify.Dispatcher
	Producer events.Publisher
}

// Checkout turns the caller's redis cart into a persisted order. The cart is
// cleared only after the write commits; on any failure it is preserved so the
// customer can retry.
func (h *OrderHandler) Checkout(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	var form checkout.ShippingForm
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}

	ctx := c.Request().Context()
	items, err := h.Cart.Get(ctx, userID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err)
	}

	o, err := h.Writer.PlaceOrder(ctx, userID, items, form)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			return echo.NewHTTPError(http.StatusBadRequest, "cart is empty")
		case errors.Is(err, checkout.ErrInvalidQuantity):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrTimeout):
			return echo.NewHTTPError(http.StatusGatewayTimeout, "order could not be placed, please try again")
		case errors.Is(err, store.ErrAborted):
			return echo.NewHTTPError(http.StatusConflict, "order could not be placed, please try again")
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.Cart.Clear(ctx, userID); err != nil {
		logging.FromContext(ctx).Error("cart clear after checkout failed", "userID", userID, "error", err)
	}

	publish(c, h.Producer, events.TopicOrderEvents, o.ID, map[string]any{
		"type":           "order_created",
		"orderID":        o.ID,
		"userID":         o.UserID,
		"total":          o.TotalAmount,
		"trackingNumber": o.TrackingNumber,
	})

	return c.JSON(http.StatusCreated, o)
}

// ListMyOrders returns the caller's order history, newest first.
func (h *OrderHandler) ListMyOrders(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	orders, err := h.Store.QueryOrders(c.Request().Context(), store.QuerySpec{
		OwnerID:         userID,
		OrderByDateDesc: true,
	})
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrder(c echo.Context) error {
	userID, err := token.UserID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	o, err := h.Store.GetOrder(ctx, userID, c.Param("id"))
	if err != nil {
		return mapStoreError(err)
	}
	items, err := h.Store.ListOrderItems(ctx, userID, o.ID)
	if err != nil {
		return mapStoreError(err)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"order": o,
		"items": items,
	})
}

// ListOrders is the admin view over every customer's orders.
func (h *OrderHandler) ListOrders(c echo.Context) error {
	spec := store.QuerySpec{OrderByDateDesc: true}
	if raw := c.QueryParam("status"); raw != "" {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", raw))
		}
		spec.Status = status
	}

	orders, err := h.Store.QueryOrders(c.Request().Context(), spec)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, orders)
}

func (h *OrderHandler) GetOrderAdmin(c echo.Context) error {
	ctx := c.Request().Context()
	o, err := h.Store.GetOrder(ctx, "", c.Param("id"))
	if err != nil {
		return mapStoreError(err)
	}
	items, err := h.Store.ListOrderItems(ctx, "", o.ID)
	if err != nil {
		return mapStoreError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"order":        o,
		"items":        items,
		"allowed_next": order.AllowedNext(o.Status),
	})
}

// UpdateStatus advances an order through the state machine. Legality is
// re-checked against the stored status inside the write transaction, so two
// admins racing on the same order cannot both win.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	requested, ok := models.ParseStatus(req.Status)
	if !ok {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown status %q", req.Status))
	}

	orderID := c.Param("id")
	err := h.Store.AtomicWrite(c.Request().Context(), []store.Op{
		store.UpdateOrderStatus{
			OrderID: orderID,
			Apply: func(current models.OrderStatus) (models.OrderStatus, error) {
				return order.Transition(current, requested)
			},
		},
	})
	if err != nil {
		var invalid *order.ErrInvalidTransition
		if errors.As(err, &invalid) {
			return echo.NewHTTPError(http.StatusConflict, invalid.Error())
		}
		return mapStoreError(err)
	}

	publish(c, h.Producer, events.TopicOrderEvents, orderID, map[string]any{
		"type":    "order_status_changed",
		"orderID": orderID,
		"status":  string(requested),
	})

	return c.JSON(http.StatusOK, echo.Map{
		"order_id": orderID,
		"status":   requested,
	})
}

// StreamOrders pushes the admin's live order feed as server-sent events:
// first a snapshot frame, then one frame per change, plus feed status frames
// while the backend catches up. Every order crosses the projector on its way
// out, so a malformed stored record is logged and dropped instead of shipped
// to the client. The stream ends when the client disconnects.
func (h *OrderHandler) StreamOrders(c echo.Context) error {
	ctx := c.Request().Context()
	log := logging.FromContext(ctx)

	obs := h.Mux.Watch(ctx, store.QuerySpec{OrderByDateDesc: true})
	defer obs.Cancel()

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set(echo.HeaderCacheControl, "no-cache")
	w.Header().Set(echo.HeaderConnection, "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := writeSSE(w, "snapshot", projectOrders(obs.Snapshot(), log)); err != nil {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, open := <-obs.StatusChanges():
			if !open {
				return nil
			}
			if err := writeSSE(w, "status", echo.Map{"state": s.String()}); err != nil {
				return nil
			}
			if s == mux.StatusLive {
				if err := writeSSE(w, "snapshot", projectOrders(obs.Snapshot(), log)); err != nil {
					return nil
				}
			}
		case ev, open := <-obs.Updates():
			if !open {
				return nil
			}
			frame := echo.Map{
				"type":     ev.Type.String(),
				"order_id": ev.OrderID,
				"backfill": ev.Class == mux.ClassBackfill,
			}
			if ev.Order != nil {
				projected, ok := projectOrder(ev.Order, log)
				if !ok {
					continue
				}
				frame["order"] = projected
			}
			if err := writeSSE(w, "change", frame); err != nil {
				return nil
			}
		}
	}
}

// orderDocs flattens orders into the raw document form the projector reads.
func orderDocs(orders []models.Order) ([]map[string]any, error) {
	data, err := json.Marshal(orders)
	if err != nil {
		return nil, err
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func projectOrders(orders []models.Order, log *slog.Logger) []models.Order {
	docs, err := orderDocs(orders)
	if err != nil {
		log.Error("order stream encode failed", "error", err)
		return nil
	}
	return projector.Orders(docs, log)
}

func projectOrder(o *models.Order, log *slog.Logger) (*models.Order, bool) {
	docs, err := orderDocs([]models.Order{*o})
	if err != nil || len(docs) != 1 {
		log.Error("order stream encode failed", "error", err)
		return nil, false
	}
	projected, err := projector.Order(docs[0])
	if err != nil {
		log.Warn("skipping malformed order record", "err", err)
		return nil, false
	}
	return projected, true
}

func writeSSE(w *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

// Track is the public tracking lookup. It exposes only the delivery-facing
// projection of an order, never the customer identity or totals.
func (h *OrderHandler) Track(c echo.Context) error {
	tracking := c.Param("tracking")
	if tracking == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "tracking number is required")
	}

	orders, err := h.Store.QueryOrders(c.Request().Context(), store.QuerySpec{
		TrackingNumber: tracking,
		Limit:          1,
	})
	if err != nil {
		return mapStoreError(err)
	}
	if len(orders) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "no order with this tracking number")
	}

	o := orders[0]
	return c.JSON(http.StatusOK, echo.Map{
		"tracking_number":    o.TrackingNumber,
		"status":             o.Status,
		"order_date":         o.OrderDate,
		"estimated_delivery": o.EstimatedDelivery,
		"delivery_method":    o.DeliveryMethod,
	})
}

// Badge reports the count of orders currently awaiting processing plus the
// batch of incoming notifications not yet dismissed.
func (h *OrderHandler) Badge(c echo.Context) error {
	batch := h.Admin.PendingBatch()
	summaries := make([]echo.Map, len(batch))
	for i, o := range batch {
		summaries[i] = echo.Map{
			"order_id":   o.ID,
			"status":     o.Status,
			"order_date": o.OrderDate,
			"total":      o.TotalAmount,
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"badge":   h.Admin.Badge(),
		"pending": summaries,
	})
}

// Dismiss clears the pending notification batch. The badge keeps tracking
// unprocessed orders and dismissed orders are not re-announced.
func (h *OrderHandler) Dismiss(c echo.Context) error {
	h.Admin.Dismiss()
	return c.NoContent(http.StatusNoContent)
}

func mapStoreError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	case errors.Is(err, store.ErrPermissionDenied):
		return echo.NewHTTPError(http.StatusForbidden, "not your order")
	case errors.Is(err, store.ErrPreconditionFailed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "query not ready, retry shortly")
	case errors.Is(err, store.ErrTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "store timeout")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
