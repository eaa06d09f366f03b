package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/routeopt"
	"github.com/aquaflow/shop/internal/store/memstore"
)

func TestOptimizeBuildsDeliveriesFromOutgoingOrders(t *testing.T) {
	st := memstore.New()
	o := seedOrder(t, st, "user-1", models.StatusOutForDelivery, "AQ000000080001")
	seedOrder(t, st, "user-2", models.StatusProcessing, "AQ000000080002")

	h := &RouteHandler{
		Store:        st,
		Optimizer:    routeopt.NewOptimizer(routeopt.NewMockCompleter("gpt-4o-mini")),
		DepotAddress: "1 Reservoir Rd, Springfield",
	}

	e := echo.New()
	rec, c := doJSON(e, http.MethodPost, "/", map[string]any{})
	require.NoError(t, h.Optimize(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var out routeopt.Output
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out.OptimizedRoutes, 1)
	require.Len(t, out.OptimizedRoutes[0].Route, 1, "only out-for-delivery orders are routed")
	require.Equal(t, o.ID, out.OptimizedRoutes[0].Route[0].OrderID)
}

func TestOptimizeNoDeliveries(t *testing.T) {
	st := memstore.New()
	h := &RouteHandler{
		Store:        st,
		Optimizer:    routeopt.NewOptimizer(routeopt.NewMockCompleter("gpt-4o-mini")),
		DepotAddress: "1 Reservoir Rd",
	}

	e := echo.New()
	_, c := doJSON(e, http.MethodPost, "/", map[string]any{})
	err := h.Optimize(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	require.Equal(t, http.StatusUnprocessableEntity, httpErr.Code)
}

func TestSplitTimeSlot(t *testing.T) {
	start, end := splitTimeSlot("09:00 - 12:00")
	require.Equal(t, "09:00", start)
	require.Equal(t, "12:00", end)

	start, end = splitTimeSlot("morning")
	require.Equal(t, defaultWindowStart, start)
	require.Equal(t, defaultWindowEnd, end)
}
