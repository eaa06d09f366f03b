package handlers

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/routeopt"
	"github.com/aquaflow/shop/internal/store"
)

// RouteHandler plans delivery routes for the day's outgoing orders.
type RouteHandler struct {
	Store        store.OrderStore
	Optimizer    *routeopt.Optimizer
	DepotAddress string
}

const (
	defaultWindowStart = "09:00"
	defaultWindowEnd   = "17:00"
)

// Optimize accepts an explicit delivery list or, when none is given, builds
// one from every order currently out for delivery. Walk-in orders have no
// address to visit and are never routed.
func (h *RouteHandler) Optimize(c echo.Context) error {
	var in routeopt.Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err)
	}
	if in.DepotAddress == "" {
		in.DepotAddress = h.DepotAddress
	}

	ctx := c.Request().Context()
	if len(in.Deliveries) == 0 {
		orders, err := h.Store.QueryOrders(ctx, store.QuerySpec{
			Status:          models.StatusOutForDelivery,
			OrderByDateDesc: false,
		})
		if err != nil {
			return mapStoreError(err)
		}
		for _, o := range orders {
			if o.DeliveryMethod != models.DeliveryMethodDeliver {
				continue
			}
			start, end := defaultWindowStart, defaultWindowEnd
			if o.DeliveryTimeSlot != "" {
				start, end = splitTimeSlot(o.DeliveryTimeSlot)
			}
			in.Deliveries = append(in.Deliveries, routeopt.Delivery{
				OrderID:         o.ID,
				Address:         o.Address + ", " + o.City,
				TimeWindowStart: start,
				TimeWindowEnd:   end,
			})
		}
	}
	if len(in.Deliveries) == 0 {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "no deliveries to route")
	}

	out, err := h.Optimizer.Optimize(ctx, in)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, out)
}

// splitTimeSlot parses "09:00 - 12:00" style slots, falling back to the full
// day when the slot has no range separator.
func splitTimeSlot(slot string) (string, string) {
	parts := strings.SplitN(slot, " - ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return defaultWindowStart, defaultWindowEnd
	}
	return parts[0], parts[1]
}
