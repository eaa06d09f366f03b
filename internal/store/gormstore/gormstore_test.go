package gormstore

import (
	"context"
	"testing"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/order"
	"github.com/aquaflow/shop/internal/store"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}, &models.OrderItem{}))
	return New(db)
}

func testOrder(id, userID string) models.Order {
	return models.Order{
		ID:                id,
		UserID:            userID,
		OrderDate:         time.Now().UTC(),
		TotalAmount:       decimal.NewFromFloat(82.00),
		Status:            models.StatusProcessing,
		FirstName:         "Maria",
		LastName:          "Santos",
		Address:           "12 Mabini St",
		City:              "Quezon City",
		State:             "Metro Manila",
		ZipCode:           "1100",
		DeliveryMethod:    models.DeliveryMethodDeliver,
		PaymentMethod:     models.PaymentCashOnDelivery,
		TrackingNumber:    "AQ" + id,
		EstimatedDelivery: time.Now().UTC().Add(48 * time.Hour),
	}
}

func TestAtomicWriteCreatesOrderWithItems(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := testOrder("ord-1", "user-1")
	ops := []store.Op{
		store.CreateOrder{Order: o},
		store.CreateOrderItem{Item: models.OrderItem{
			ID: "item-1", OrderID: o.ID, UserID: o.UserID, ProductID: "p1",
			Quantity: 2, UnitPrice: decimal.NewFromFloat(35), ProductName: "5 Gallon Round",
		}},
		store.CreateOrderItem{Item: models.OrderItem{
			ID: "item-2", OrderID: o.ID, UserID: o.UserID, ProductID: "p2",
			Quantity: 1, UnitPrice: decimal.NewFromFloat(12), ProductName: "500ml Bottle Pack",
		}},
	}
	require.NoError(t, s.AtomicWrite(ctx, ops))

	got, err := s.GetOrder(ctx, "user-1", "ord-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusProcessing, got.Status)

	items, err := s.ListOrderItems(ctx, "user-1", "ord-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestAtomicWriteRollsBackWholeBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := testOrder("ord-1", "user-1")
	require.NoError(t, s.AtomicWrite(ctx, []store.Op{store.CreateOrder{Order: o}}))

	// Second batch reuses the order id; the duplicate create must take the
	// item down with it.
	dup := testOrder("ord-1", "user-1")
	err := s.AtomicWrite(ctx, []store.Op{
		store.CreateOrderItem{Item: models.OrderItem{
			ID: "orphan", OrderID: "ord-1", UserID: "user-1", ProductID: "p1",
			Quantity: 1, UnitPrice: decimal.NewFromFloat(35), ProductName: "x",
		}},
		store.CreateOrder{Order: dup},
	})
	require.Error(t, err)

	items, err := s.ListOrderItems(ctx, "user-1", "ord-1")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestStatusUpdateRechecksAtWriteTime(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AtomicWrite(ctx, []store.Op{store.CreateOrder{Order: testOrder("ord-1", "user-1")}}))

	ship := store.UpdateOrderStatus{
		UserID:  "user-1",
		OrderID: "ord-1",
		Apply: func(cur models.OrderStatus) (models.OrderStatus, error) {
			return order.Transition(cur, models.StatusOutForDelivery)
		},
	}
	require.NoError(t, s.AtomicWrite(ctx, []store.Op{ship}))

	got, err := s.GetOrder(ctx, "user-1", "ord-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusOutForDelivery, got.Status)

	// Shipping again is illegal against the now-current state.
	err = s.AtomicWrite(ctx, []store.Op{ship})
	var invalid *order.ErrInvalidTransition
	require.ErrorAs(t, err, &invalid)

	got, err = s.GetOrder(ctx, "user-1", "ord-1")
	require.NoError(t, err)
	require.Equal(t, models.StatusOutForDelivery, got.Status)
}

func TestSubscribeDeliversCommitsAfterSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AtomicWrite(ctx, []store.Op{store.CreateOrder{Order: testOrder("ord-1", "user-1")}}))

	sub, err := s.Subscribe(ctx, store.QuerySpec{OwnerID: "user-1", OrderByDateDesc: true})
	require.NoError(t, err)
	defer sub.Cancel()
	require.Len(t, sub.Snapshot, 1)

	require.NoError(t, s.AtomicWrite(ctx, []store.Op{store.CreateOrder{Order: testOrder("ord-2", "user-1")}}))

	select {
	case ev := <-sub.Events:
		require.Equal(t, store.EventAdded, ev.Type)
		require.Equal(t, "ord-2", ev.OrderID)
		require.NotZero(t, ev.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event delivered")
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	sub, err := s.Subscribe(ctx, store.QuerySpec{OwnerID: "user-1"})
	require.NoError(t, err)
	sub.Cancel()

	require.NoError(t, s.AtomicWrite(ctx, []store.Op{store.CreateOrder{Order: testOrder("ord-1", "user-1")}}))

	_, open := <-sub.Events
	require.False(t, open, "events channel must be closed after cancel")
}

func TestGetOrderScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AtomicWrite(ctx, []store.Op{store.CreateOrder{Order: testOrder("ord-1", "user-1")}}))

	_, err := s.GetOrder(ctx, "someone-else", "ord-1")
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := s.GetOrder(ctx, "", "ord-1")
	require.NoError(t, err)
	require.Equal(t, "user-1", got.UserID)
}

func TestTrackingNumberQueryIsExactMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AtomicWrite(ctx, []store.Op{store.CreateOrder{Order: testOrder("ord-1", "user-1")}}))

	found, err := s.QueryOrders(ctx, store.QuerySpec{TrackingNumber: "AQord-1"})
	require.NoError(t, err)
	require.Len(t, found, 1)

	missing, err := s.QueryOrders(ctx, store.QuerySpec{TrackingNumber: "AQord-9"})
	require.NoError(t, err)
	require.Empty(t, missing)
}
