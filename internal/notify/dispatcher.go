// Package notify turns classified order change events into user-facing side
// effects: toast messages, sound, browser notifications, and the admin badge
// count. Every notification is deduplicated on (orderID, status), so a backend
// resend of the same change can never fire twice. Sound and browser delivery
// are best-effort and never produce an error for the caller.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/mux"
	"github.com/aquaflow/shop/internal/store"
)

type Scope int

const (
	ScopeCustomer Scope = iota // the identity's own orders
	ScopeAdmin                 // all orders, with sound and badge
)

type Kind int

const (
	KindApproved Kind = iota // order created / entered Processing
	KindShipped              // entered Out for Delivery
	KindDelivered            // entered Delivered
	KindIncoming             // admin: new order arrived
)

func (k Kind) String() string {
	switch k {
	case KindApproved:
		return "approved"
	case KindShipped:
		return "shipped"
	case KindDelivered:
		return "delivered"
	case KindIncoming:
		return "incoming_order"
	}
	return "unknown"
}

type Notification struct {
	Kind    Kind
	OrderID string
	Status  models.OrderStatus
	Message string
}

// Sink receives toast-style notifications.
type Sink interface {
	Notify(n Notification)
}

// SoundPlayer and BrowserNotifier are best-effort: a failure is logged at
// debug level and otherwise ignored.
type SoundPlayer interface {
	Play() error
}

type BrowserNotifier interface {
	Push(title, body string) error
}

type Dispatcher struct {
	scope   Scope
	ownerID string // customer scope only
	sink    Sink
	sound   SoundPlayer
	browser BrowserNotifier
	log     *slog.Logger

	mu         sync.Mutex
	seen       map[string]struct{}
	processing map[string]struct{} // orders currently in Processing, for the badge
	batch      []models.Order      // admin banner batch since last dismissal
}

func NewCustomerDispatcher(ownerID string, sink Sink, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		scope:      ScopeCustomer,
		ownerID:    ownerID,
		sink:       sink,
		log:        log,
		seen:       make(map[string]struct{}),
		processing: make(map[string]struct{}),
	}
}

func NewAdminDispatcher(sink Sink, sound SoundPlayer, browser BrowserNotifier, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		scope:      ScopeAdmin,
		sink:       sink,
		sound:      sound,
		browser:    browser,
		log:        log,
		seen:       make(map[string]struct{}),
		processing: make(map[string]struct{}),
	}
}

// Run consumes an observer until its stream closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context, obs *mux.Observer) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-obs.Updates():
			if !ok {
				return
			}
			d.Handle(ev)
		}
	}
}

// Handle processes one classified event. Backfill events update badge state
// but never fire notifications.
func (d *Dispatcher) Handle(ev mux.Event) {
	if ev.Order == nil {
		return
	}
	o := ev.Order

	d.mu.Lock()
	if o.Status == models.StatusProcessing {
		d.processing[o.ID] = struct{}{}
	} else {
		delete(d.processing, o.ID)
	}

	if ev.Class != mux.ClassNew {
		d.mu.Unlock()
		return
	}
	if d.scope == ScopeCustomer && o.UserID != d.ownerID {
		d.mu.Unlock()
		return
	}

	key := o.ID + "|" + string(o.Status)
	if _, dup := d.seen[key]; dup {
		d.mu.Unlock()
		return
	}
	d.seen[key] = struct{}{}

	n, ok := d.classify(ev.Type, o)
	if !ok {
		d.mu.Unlock()
		return
	}
	if n.Kind == KindIncoming {
		d.batch = append(d.batch, *o)
	}
	d.mu.Unlock()

	d.sink.Notify(n)
	if n.Kind == KindIncoming {
		d.playSound()
		d.pushBrowser("New Order Received!",
			fmt.Sprintf("Order #%s from %s %s needs processing.", shortID(o.ID), o.FirstName, o.LastName))
	}
}

func (d *Dispatcher) classify(t store.EventType, o *models.Order) (Notification, bool) {
	switch {
	case t == store.EventAdded && o.Status == models.StatusProcessing:
		if d.scope == ScopeAdmin {
			return Notification{
				Kind:    KindIncoming,
				OrderID: o.ID,
				Status:  o.Status,
				Message: fmt.Sprintf("New order #%s received", shortID(o.ID)),
			}, true
		}
		return Notification{
			Kind:    KindApproved,
			OrderID: o.ID,
			Status:  o.Status,
			Message: fmt.Sprintf("Your order #%s has been received and is being processed.", shortID(o.ID)),
		}, true
	case o.Status == models.StatusOutForDelivery:
		return Notification{
			Kind:    KindShipped,
			OrderID: o.ID,
			Status:  o.Status,
			Message: fmt.Sprintf("Order #%s is now out for delivery.", shortID(o.ID)),
		}, true
	case o.Status == models.StatusDelivered:
		return Notification{
			Kind:    KindDelivered,
			OrderID: o.ID,
			Status:  o.Status,
			Message: fmt.Sprintf("Order #%s has been delivered.", shortID(o.ID)),
		}, true
	}
	return Notification{}, false
}

// Badge is the number of orders currently in Processing.
func (d *Dispatcher) Badge() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.processing)
}

// PendingBatch is the admin banner's batch of new orders since the last
// dismissal.
func (d *Dispatcher) PendingBatch() []models.Order {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Order, len(d.batch))
	copy(out, d.batch)
	return out
}

// Dismiss clears the banner batch. Orders arriving afterwards start a fresh
// batch; deduplication state and the badge are untouched.
func (d *Dispatcher) Dismiss() {
	d.mu.Lock()
	d.batch = nil
	d.mu.Unlock()
}

// SeedProcessing primes the badge from a snapshot so it reflects pre-existing
// Processing orders, matching what the live query would report.
func (d *Dispatcher) SeedProcessing(orders []models.Order) {
	d.mu.Lock()
	for _, o := range orders {
		if o.Status == models.StatusProcessing {
			d.processing[o.ID] = struct{}{}
		}
	}
	d.mu.Unlock()
}

func (d *Dispatcher) playSound() {
	if d.sound == nil {
		return
	}
	if err := d.sound.Play(); err != nil {
		d.log.Debug("notification sound failed", "err", err)
	}
}

func (d *Dispatcher) pushBrowser(title, body string) {
	if d.browser == nil {
		return
	}
	if err := d.browser.Push(title, body); err != nil {
		d.log.Debug("browser notification failed", "err", err)
	}
}

func shortID(id string) string {
	if len(id) > 7 {
		return id[:7]
	}
	return id
}

// LogSink writes notifications to the structured log; the SSE handler layers
// real delivery on top of it.
type LogSink struct {
	Log *slog.Logger
}

func (s *LogSink) Notify(n Notification) {
	s.Log.Info("notification",
		"kind", n.Kind.String(),
		"order_id", n.OrderID,
		"status", string(n.Status),
		"message", n.Message,
		"at", time.Now().UTC())
}

var _ Sink = (*LogSink)(nil)
