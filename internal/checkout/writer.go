// Package checkout builds an Order and its OrderItem set from a cart and
// commits them as one atomic write. Item name and price are snapshotted from
// the cart's embedded product so the receipt stays accurate when the catalog
// changes later.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EstimatedDeliveryOffset is added to the order date at creation.
const EstimatedDeliveryOffset = 48 * time.Hour

var (
	ErrEmptyCart       = errors.New("checkout: cart is empty")
	ErrInvalidQuantity = errors.New("checkout: quantity must be at least 1")
)

// ShippingForm carries the validated shipping, delivery and payment fields
// from the storefront.
type ShippingForm struct {
	FirstName        string                `json:"first_name"`
	LastName         string                `json:"last_name"`
	Address          string                `json:"address"`
	City             string                `json:"city"`
	State            string                `json:"state"`
	ZipCode          string                `json:"zip_code"`
	DeliveryMethod   models.DeliveryMethod `json:"delivery_method"`
	PaymentMethod    models.PaymentMethod  `json:"payment_method"`
	DeliveryDate     string                `json:"delivery_date,omitempty"`
	DeliveryTimeSlot string                `json:"delivery_time_slot,omitempty"`
}

func (f *ShippingForm) Validate() error {
	for name, v := range map[string]string{
		"first_name": f.FirstName,
		"last_name":  f.LastName,
		"address":    f.Address,
		"city":       f.City,
		"state":      f.State,
		"zip_code":   f.ZipCode,
	} {
		if v == "" {
			return fmt.Errorf("checkout: %s is required", name)
		}
	}
	switch f.DeliveryMethod {
	case models.DeliveryMethodDeliver, models.DeliveryMethodWalkIn:
	default:
		return fmt.Errorf("checkout: unknown delivery method %q", f.DeliveryMethod)
	}
	switch f.PaymentMethod {
	case models.PaymentCashOnDelivery, models.PaymentGCash, models.PaymentMaya:
	default:
		return fmt.Errorf("checkout: unknown payment method %q", f.PaymentMethod)
	}
	return nil
}

type Writer struct {
	st  store.OrderStore
	now func() time.Time
}

func NewWriter(st store.OrderStore) *Writer {
	return &Writer{st: st, now: time.Now}
}

// SetClock overrides order timestamps in tests.
func (w *Writer) SetClock(now func() time.Time) { w.now = now }

// PlaceOrder commits the order and all its items in one atomic write and
// returns the created order. On any failure nothing is persisted and the
// caller keeps the cart for retry.
func (w *Writer) PlaceOrder(ctx context.Context, userID string, cart []models.CartItem, form ShippingForm) (*models.Order, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	if err := form.Validate(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, item := range cart {
		if item.Quantity < 1 {
			return nil, ErrInvalidQuantity
		}
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	now := w.now()
	o := models.Order{
		ID:                uuid.NewString(),
		UserID:            userID,
		OrderDate:         now.UTC(),
		TotalAmount:       total,
		Status:            models.StatusProcessing,
		FirstName:         form.FirstName,
		LastName:          form.LastName,
		Address:           form.Address,
		City:              form.City,
		State:             form.State,
		ZipCode:           form.ZipCode,
		DeliveryMethod:    form.DeliveryMethod,
		PaymentMethod:     form.PaymentMethod,
		DeliveryDate:      form.DeliveryDate,
		DeliveryTimeSlot:  form.DeliveryTimeSlot,
		TrackingNumber:    NewTrackingNumber(now),
		EstimatedDelivery: now.UTC().Add(EstimatedDeliveryOffset),
	}

	ops := make([]store.Op, 0, 1+len(cart))
	ops = append(ops, store.CreateOrder{Order: o})
	for _, item := range cart {
		ops = append(ops, store.CreateOrderItem{Item: models.OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			UserID:      userID,
			ProductID:   item.Product.ID,
			Quantity:    item.Quantity,
			UnitPrice:   item.Product.Price,
			ProductName: item.Product.Name,
		}})
	}

	if err := w.st.AtomicWrite(ctx, ops); err != nil {
		return nil, err
	}
	return &o, nil
}

// NewTrackingNumber derives a tracking id from the millisecond timestamp plus
// a random suffix. The timestamp slice alone collides for simultaneous
// checkouts, the suffix makes that overwhelmingly unlikely.
func NewTrackingNumber(now time.Time) string {
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ms) > 8 {
		ms = ms[len(ms)-8:]
	}
	return fmt.Sprintf("AQ%s%04d", ms, rand.Intn(10000))
}
