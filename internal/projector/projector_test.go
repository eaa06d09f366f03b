package projector

import (
	"testing"
	"time"

	"github.com/aquaflow/shop/internal/logging"
	"github.com/aquaflow/shop/internal/models"
	"github.com/stretchr/testify/require"
)

func validOrderDoc() map[string]any {
	return map[string]any{
		"id":                 "ord-1",
		"user_id":            "user-1",
		"order_date":         time.Now().UTC().Format(time.RFC3339),
		"total_amount":       82.0,
		"status":             "Processing",
		"first_name":         "Maria",
		"last_name":          "Santos",
		"address":            "12 Mabini St",
		"city":               "Quezon City",
		"state":              "Metro Manila",
		"zip_code":           "1100",
		"delivery_method":    "Deliver",
		"payment_method":     "GCash",
		"tracking_number":    "AQ12345678",
		"estimated_delivery": time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339),
	}
}

func TestOrderProjection(t *testing.T) {
	o, err := Order(validOrderDoc())
	require.NoError(t, err)
	require.Equal(t, "ord-1", o.ID)
	require.Equal(t, models.StatusProcessing, o.Status)
	require.Equal(t, "82", o.TotalAmount.String())
	require.Equal(t, models.PaymentGCash, o.PaymentMethod)
}

func TestOrderProjectionRejectsUnknownStatus(t *testing.T) {
	doc := validOrderDoc()
	doc["status"] = "Shipped"
	_, err := Order(doc)
	var malformed *ErrMalformedRecord
	require.ErrorAs(t, err, &malformed)
	require.Equal(t, "status", malformed.Field)
}

func TestOrderProjectionRejectsMissingField(t *testing.T) {
	for _, field := range []string{"id", "user_id", "order_date", "status", "tracking_number", "address"} {
		doc := validOrderDoc()
		delete(doc, field)
		_, err := Order(doc)
		var malformed *ErrMalformedRecord
		require.ErrorAs(t, err, &malformed, "missing %s must fail projection", field)
	}
}

func TestOrderItemProjection(t *testing.T) {
	it, err := OrderItem(map[string]any{
		"id":           "item-1",
		"order_id":     "ord-1",
		"product_id":   "p1",
		"product_name": "5 Gallon Round",
		"quantity":     2.0,
		"unit_price":   35.0,
	})
	require.NoError(t, err)
	require.Equal(t, uint(2), it.Quantity)
	require.Equal(t, "35", it.UnitPrice.String())

	_, err = OrderItem(map[string]any{
		"id": "item-2", "order_id": "ord-1", "product_id": "p1",
		"product_name": "x", "quantity": 0.0, "unit_price": 35.0,
	})
	require.Error(t, err)
}

func TestOrdersSkipsMalformedRecords(t *testing.T) {
	bad := validOrderDoc()
	bad["status"] = "Lost"
	got := Orders([]map[string]any{validOrderDoc(), bad}, logging.New("error"))
	require.Len(t, got, 1)
	require.Equal(t, "ord-1", got[0].ID)
}
