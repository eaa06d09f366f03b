// Package store defines the contract the order subsystem consumes from the
// document backend: point lookups, scoped queries, a snapshot-plus-stream
// subscription primitive, and an atomic multi-document write. Implementations
// perform no business validation; status legality is re-evaluated at write
// time through the Apply hook on UpdateOrderStatus so a stale transition can
// never commit.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aquaflow/shop/internal/models"
)

var (
	ErrNotFound           = errors.New("store: not found")
	ErrPermissionDenied   = errors.New("store: permission denied")
	ErrPreconditionFailed = errors.New("store: precondition failed (index building)")
	ErrAborted            = errors.New("store: write aborted")
	ErrTimeout            = errors.New("store: operation timed out")
)

// UnaryTimeout bounds every read or write call. Subscriptions are long-lived
// and carry no timeout.
const UnaryTimeout = 30 * time.Second

// QuerySpec selects orders. An empty OwnerID means the cross-owner collection
// group. Zero-valued filters are ignored.
type QuerySpec struct {
	OwnerID         string
	Status          models.OrderStatus
	TrackingNumber  string
	OrderByDateDesc bool
	Limit           int
}

// Key is a stable identity for deduplicating subscriptions to the same spec.
func (q QuerySpec) Key() string {
	return fmt.Sprintf("owner=%s|status=%s|tracking=%s|desc=%t|limit=%d",
		q.OwnerID, q.Status, q.TrackingNumber, q.OrderByDateDesc, q.Limit)
}

// Matches reports whether an order belongs to the spec's result set.
func (q QuerySpec) Matches(o *models.Order) bool {
	if q.OwnerID != "" && o.UserID != q.OwnerID {
		return false
	}
	if q.Status != "" && o.Status != q.Status {
		return false
	}
	if q.TrackingNumber != "" && o.TrackingNumber != q.TrackingNumber {
		return false
	}
	return true
}

type EventType int

const (
	EventAdded EventType = iota
	EventModified
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventAdded:
		return "added"
	case EventModified:
		return "modified"
	case EventRemoved:
		return "removed"
	}
	return "unknown"
}

// ChangeEvent is one incremental change on a subscribed query. Version is a
// store-wide monotonic write sequence; At is the commit time of the write that
// produced the event.
type ChangeEvent struct {
	Type    EventType
	OrderID string
	Order   *models.Order // nil for Removed
	Version uint64
	At      time.Time
}

// Subscription is an established live query: the snapshot as of subscribe
// time, then an unbounded stream of events in store commit order. Cancel is
// synchronous; events still queued when Cancel returns are discarded and the
// channel is closed.
type Subscription struct {
	Snapshot []models.Order
	Events   <-chan ChangeEvent
	cancel   func()
}

func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Op is one document operation inside an AtomicWrite.
type Op interface{ isOp() }

type CreateOrder struct {
	Order models.Order
}

type CreateOrderItem struct {
	Item models.OrderItem
}

// UpdateOrderStatus mutates only the status field. Apply runs inside the write
// transaction against the currently stored status; its error aborts the whole
// batch, which is how the state machine's legality check lands at write time
// rather than request time.
type UpdateOrderStatus struct {
	UserID  string
	OrderID string
	Apply   func(current models.OrderStatus) (models.OrderStatus, error)
}

func (CreateOrder) isOp()       {}
func (CreateOrderItem) isOp()   {}
func (UpdateOrderStatus) isOp() {}

// OrderStore is the document backend adapter.
type OrderStore interface {
	GetOrder(ctx context.Context, ownerID, orderID string) (*models.Order, error)
	QueryOrders(ctx context.Context, spec QuerySpec) ([]models.Order, error)
	ListOrderItems(ctx context.Context, ownerID, orderID string) ([]models.OrderItem, error)
	Subscribe(ctx context.Context, spec QuerySpec) (*Subscription, error)
	AtomicWrite(ctx context.Context, ops []Op) error
}
