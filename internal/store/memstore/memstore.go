// Package memstore is an in-memory OrderStore used by tests and local runs.
// It reproduces the hosted backend's observable behavior: monotonic write
// versions, snapshot+stream subscriptions, all-or-nothing writes, and the
// transient "index building" state toggled through SetIndexReady.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/store"
)

type Store struct {
	mu         sync.Mutex
	orders     map[string]models.Order            // orderID -> order
	items      map[string][]models.OrderItem      // orderID -> items
	version    uint64
	indexReady bool
	failWrite  error // injected failure for the next AtomicWrite
	hub        *store.Hub
	now        func() time.Time
}

func New() *Store {
	return &Store{
		orders:     make(map[string]models.Order),
		items:      make(map[string][]models.OrderItem),
		indexReady: true,
		hub:        store.NewHub(),
		now:        time.Now,
	}
}

// SetIndexReady models the backend's asynchronous composite-index build.
// While false, queries needing the index fail with ErrPreconditionFailed.
func (s *Store) SetIndexReady(ready bool) {
	s.mu.Lock()
	s.indexReady = ready
	s.mu.Unlock()
}

// FailNextWrite makes the next AtomicWrite abort with err before touching any
// document.
func (s *Store) FailNextWrite(err error) {
	s.mu.Lock()
	s.failWrite = err
	s.mu.Unlock()
}

// SetClock overrides commit timestamps in tests.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) GetOrder(ctx context.Context, ownerID, orderID string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || (ownerID != "" && o.UserID != ownerID) {
		return nil, store.ErrNotFound
	}
	return store.CloneOrder(o), nil
}

func (s *Store) QueryOrders(ctx context.Context, spec store.QuerySpec) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(spec)
}

func (s *Store) queryLocked(spec store.QuerySpec) ([]models.Order, error) {
	if s.needsIndex(spec) && !s.indexReady {
		return nil, store.ErrPreconditionFailed
	}
	var out []models.Order
	for _, o := range s.orders {
		if spec.Matches(&o) {
			out = append(out, o)
		}
	}
	if spec.OrderByDateDesc {
		sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	}
	if spec.Limit > 0 && len(out) > spec.Limit {
		out = out[:spec.Limit]
	}
	return out, nil
}

// Cross-owner queries with an ordering or equality filter need a composite
// index on the backend.
func (s *Store) needsIndex(spec store.QuerySpec) bool {
	return spec.OwnerID == "" && (spec.OrderByDateDesc || spec.Status != "" || spec.TrackingNumber != "")
}

func (s *Store) ListOrderItems(ctx context.Context, ownerID, orderID string) ([]models.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok || (ownerID != "" && o.UserID != ownerID) {
		return nil, store.ErrNotFound
	}
	items := make([]models.OrderItem, len(s.items[orderID]))
	copy(items, s.items[orderID])
	return items, nil
}

func (s *Store) Subscribe(ctx context.Context, spec store.QuerySpec) (*store.Subscription, error) {
	s.mu.Lock()
	snapshot, err := s.queryLocked(spec)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	ch, cancel := s.hub.Attach(spec)
	s.mu.Unlock()
	return store.NewSubscription(snapshot, ch, cancel), nil
}

func (s *Store) AtomicWrite(ctx context.Context, ops []store.Op) error {
	s.mu.Lock()

	if s.failWrite != nil {
		err := s.failWrite
		s.failWrite = nil
		s.mu.Unlock()
		return err
	}

	// Validate every op before applying any, so the batch is all-or-nothing.
	type staged struct {
		ev store.ChangeEvent
	}
	now := s.now()
	var pending []staged
	newOrders := make(map[string]models.Order)
	newItems := make(map[string][]models.OrderItem)

	for _, op := range ops {
		switch o := op.(type) {
		case store.CreateOrder:
			if _, exists := s.orders[o.Order.ID]; exists {
				s.mu.Unlock()
				return store.ErrAborted
			}
			newOrders[o.Order.ID] = o.Order
			s.version++
			pending = append(pending, staged{ev: store.ChangeEvent{
				Type:    store.EventAdded,
				OrderID: o.Order.ID,
				Order:   store.CloneOrder(o.Order),
				Version: s.version,
				At:      now,
			}})
		case store.CreateOrderItem:
			newItems[o.Item.OrderID] = append(newItems[o.Item.OrderID], o.Item)
		case store.UpdateOrderStatus:
			cur, exists := s.orders[o.OrderID]
			if !exists || (o.UserID != "" && cur.UserID != o.UserID) {
				s.mu.Unlock()
				return store.ErrNotFound
			}
			next, err := o.Apply(cur.Status)
			if err != nil {
				s.mu.Unlock()
				return err
			}
			cur.Status = next
			newOrders[o.OrderID] = cur
			s.version++
			pending = append(pending, staged{ev: store.ChangeEvent{
				Type:    store.EventModified,
				OrderID: o.OrderID,
				Order:   store.CloneOrder(cur),
				Version: s.version,
				At:      now,
			}})
		}
	}

	for id, o := range newOrders {
		s.orders[id] = o
	}
	for id, its := range newItems {
		s.items[id] = append(s.items[id], its...)
	}

	// Publish before releasing s.mu so concurrent batches reach subscribers
	// in version order; Subscribe holds the same lock, so a subscriber's
	// snapshot and stream can never disagree.
	for _, p := range pending {
		s.hub.Publish(p.ev)
	}
	s.mu.Unlock()
	return nil
}

// CountOrders and CountItems expose persisted document counts for atomicity
// assertions in tests.
func (s *Store) CountOrders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

func (s *Store) CountItems(orderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items[orderID])
}

var _ store.OrderStore = (*Store)(nil)
