// Package projector turns raw backend documents into typed Order/OrderItem
// aggregates. A document missing a required field, or carrying a status
// outside the enum, fails with MalformedRecord; list projection skips such
// records so one bad document can never take a whole view down.
package projector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"github.com/shopspring/decimal"
)

type ErrMalformedRecord struct {
	Field  string
	Reason string
}

func (e *ErrMalformedRecord) Error() string {
	return fmt.Sprintf("malformed record: field %q %s", e.Field, e.Reason)
}

func malformed(field, reason string) error {
	return &ErrMalformedRecord{Field: field, Reason: reason}
}

// Order projects a raw document into a typed Order.
func Order(doc map[string]any) (*models.Order, error) {
	o := &models.Order{}
	var err error

	if o.ID, err = str(doc, "id"); err != nil {
		return nil, err
	}
	if o.UserID, err = str(doc, "user_id"); err != nil {
		return nil, err
	}
	rawDate, err := str(doc, "order_date")
	if err != nil {
		return nil, err
	}
	if o.OrderDate, err = time.Parse(time.RFC3339, rawDate); err != nil {
		return nil, malformed("order_date", "is not an RFC3339 timestamp")
	}
	if o.TotalAmount, err = money(doc, "total_amount"); err != nil {
		return nil, err
	}
	rawStatus, err := str(doc, "status")
	if err != nil {
		return nil, err
	}
	status, ok := models.ParseStatus(rawStatus)
	if !ok {
		return nil, malformed("status", fmt.Sprintf("has unknown value %q", rawStatus))
	}
	o.Status = status

	for field, dst := range map[string]*string{
		"first_name": &o.FirstName,
		"last_name":  &o.LastName,
		"address":    &o.Address,
		"city":       &o.City,
		"state":      &o.State,
		"zip_code":   &o.ZipCode,
	} {
		if *dst, err = str(doc, field); err != nil {
			return nil, err
		}
	}

	method, err := str(doc, "delivery_method")
	if err != nil {
		return nil, err
	}
	o.DeliveryMethod = models.DeliveryMethod(method)
	payment, err := str(doc, "payment_method")
	if err != nil {
		return nil, err
	}
	o.PaymentMethod = models.PaymentMethod(payment)

	// Optional hints.
	o.DeliveryDate, _ = optStr(doc, "delivery_date")
	o.DeliveryTimeSlot, _ = optStr(doc, "delivery_time_slot")

	if o.TrackingNumber, err = str(doc, "tracking_number"); err != nil {
		return nil, err
	}
	rawEst, err := str(doc, "estimated_delivery")
	if err != nil {
		return nil, err
	}
	if o.EstimatedDelivery, err = time.Parse(time.RFC3339, rawEst); err != nil {
		return nil, malformed("estimated_delivery", "is not an RFC3339 timestamp")
	}
	return o, nil
}

// OrderItem projects a raw document into a typed OrderItem.
func OrderItem(doc map[string]any) (*models.OrderItem, error) {
	it := &models.OrderItem{}
	var err error

	if it.ID, err = str(doc, "id"); err != nil {
		return nil, err
	}
	if it.OrderID, err = str(doc, "order_id"); err != nil {
		return nil, err
	}
	if it.ProductID, err = str(doc, "product_id"); err != nil {
		return nil, err
	}
	if it.ProductName, err = str(doc, "product_name"); err != nil {
		return nil, err
	}
	qty, ok := doc["quantity"].(float64)
	if !ok || qty < 1 || qty != float64(uint(qty)) {
		return nil, malformed("quantity", "must be a positive integer")
	}
	it.Quantity = uint(qty)
	if it.UnitPrice, err = money(doc, "unit_price"); err != nil {
		return nil, err
	}
	it.UserID, _ = optStr(doc, "user_id")
	return it, nil
}

// Orders projects a list, skipping and logging malformed records.
func Orders(docs []map[string]any, log *slog.Logger) []models.Order {
	out := make([]models.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := Order(doc)
		if err != nil {
			log.Warn("skipping malformed order record", "err", err)
			continue
		}
		out = append(out, *o)
	}
	return out
}

func str(doc map[string]any, field string) (string, error) {
	v, ok := doc[field].(string)
	if !ok || v == "" {
		return "", malformed(field, "is missing or empty")
	}
	return v, nil
}

func optStr(doc map[string]any, field string) (string, bool) {
	v, ok := doc[field].(string)
	return v, ok
}

func money(doc map[string]any, field string) (decimal.Decimal, error) {
	switch v := doc[field].(type) {
	case float64:
		if v < 0 {
			return decimal.Zero, malformed(field, "must be non-negative")
		}
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil || d.IsNegative() {
			return decimal.Zero, malformed(field, "is not a valid amount")
		}
		return d, nil
	default:
		return decimal.Zero, malformed(field, "is missing")
	}
}
