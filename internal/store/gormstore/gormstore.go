// Package gormstore adapts a relational database to the OrderStore contract.
// Writes go through gorm transactions so multi-document batches commit or roll
// back as a unit, and every committed write is broadcast to live subscriptions
// through an in-process hub with a monotonic write sequence.
package gormstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/store"
	"gorm.io/gorm"
)

type Store struct {
	db  *gorm.DB
	hub *store.Hub

	// writeMu serializes commit+publish against subscription establishment so
	// a subscriber never misses an event that is absent from its snapshot.
	writeMu sync.Mutex
	version uint64
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, hub: store.NewHub()}
}

func (s *Store) GetOrder(ctx context.Context, ownerID, orderID string) (*models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, store.UnaryTimeout)
	defer cancel()

	q := s.db.WithContext(ctx).Where("id = ?", orderID)
	if ownerID != "" {
		q = q.Where("user_id = ?", ownerID)
	}
	var o models.Order
	if err := q.First(&o).Error; err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (s *Store) QueryOrders(ctx context.Context, spec store.QuerySpec) ([]models.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, store.UnaryTimeout)
	defer cancel()
	return s.query(ctx, spec)
}

func (s *Store) query(ctx context.Context, spec store.QuerySpec) ([]models.Order, error) {
	q := s.db.WithContext(ctx).Model(&models.Order{})
	if spec.OwnerID != "" {
		q = q.Where("user_id = ?", spec.OwnerID)
	}
	if spec.Status != "" {
		q = q.Where("status = ?", spec.Status)
	}
	if spec.TrackingNumber != "" {
		q = q.Where("tracking_number = ?", spec.TrackingNumber)
	}
	if spec.OrderByDateDesc {
		q = q.Order("order_date DESC")
	}
	if spec.Limit > 0 {
		q = q.Limit(spec.Limit)
	}
	var out []models.Order
	if err := q.Find(&out).Error; err != nil {
		return nil, mapErr(err)
	}
	return out, nil
}

func (s *Store) ListOrderItems(ctx context.Context, ownerID, orderID string) ([]models.OrderItem, error) {
	ctx, cancel := context.WithTimeout(ctx, store.UnaryTimeout)
	defer cancel()

	q := s.db.WithContext(ctx).Where("order_id = ?", orderID)
	if ownerID != "" {
		q = q.Where("user_id = ?", ownerID)
	}
	var items []models.OrderItem
	if err := q.Find(&items).Error; err != nil {
		return nil, mapErr(err)
	}
	return items, nil
}

func (s *Store) Subscribe(ctx context.Context, spec store.QuerySpec) (*store.Subscription, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	snapshot, err := s.query(ctx, spec)
	if err != nil {
		return nil, err
	}
	ch, cancel := s.hub.Attach(spec)
	return store.NewSubscription(snapshot, ch, cancel), nil
}

func (s *Store) AtomicWrite(ctx context.Context, ops []store.Op) error {
	ctx, cancel := context.WithTimeout(ctx, store.UnaryTimeout)
	defer cancel()

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var pending []store.ChangeEvent
	now := time.Now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			switch o := op.(type) {
			case store.CreateOrder:
				if err := tx.Create(&o.Order).Error; err != nil {
					return err
				}
				s.version++
				pending = append(pending, store.ChangeEvent{
					Type:    store.EventAdded,
					OrderID: o.Order.ID,
					Order:   store.CloneOrder(o.Order),
					Version: s.version,
					At:      now,
				})
			case store.CreateOrderItem:
				if err := tx.Create(&o.Item).Error; err != nil {
					return err
				}
			case store.UpdateOrderStatus:
				var cur models.Order
				q := tx.Where("id = ?", o.OrderID)
				if o.UserID != "" {
					q = q.Where("user_id = ?", o.UserID)
				}
				if err := q.First(&cur).Error; err != nil {
					return err
				}
				next, err := o.Apply(cur.Status)
				if err != nil {
					return err
				}
				if err := tx.Model(&models.Order{}).
					Where("id = ?", o.OrderID).
					Update("status", next).Error; err != nil {
					return err
				}
				cur.Status = next
				s.version++
				pending = append(pending, store.ChangeEvent{
					Type:    store.EventModified,
					OrderID: o.OrderID,
					Order:   store.CloneOrder(cur),
					Version: s.version,
					At:      now,
				})
			}
		}
		return nil
	})
	if err != nil {
		return mapErr(err)
	}

	for _, ev := range pending {
		s.hub.Publish(ev)
	}
	return nil
}

// mapErr folds driver errors into the store taxonomy. Application errors (the
// state machine's rejection surfaced through Apply) pass through untouched.
func mapErr(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return store.ErrTimeout
	default:
		return err
	}
}

var _ store.OrderStore = (*Store)(nil)
