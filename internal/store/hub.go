package store

import (
	"sync"

	"github.com/aquaflow/shop/internal/models"
)

const subscriberBuffer = 256

// Hub broadcasts committed writes to live subscriptions. Both store adapters
// embed one; it replaces the backend's native push channel with an explicit
// channel-and-cancel abstraction.
type Hub struct {
	mu   sync.Mutex
	subs map[*hubSub]struct{}
}

type hubSub struct {
	spec QuerySpec
	ch   chan ChangeEvent
	done chan struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[*hubSub]struct{})}
}

// Attach registers a subscriber for spec and returns its event channel plus a
// synchronous cancel. After cancel returns no further events are delivered;
// anything still buffered is drained and the channel closed.
func (h *Hub) Attach(spec QuerySpec) (<-chan ChangeEvent, func()) {
	sub := &hubSub{
		spec: spec,
		ch:   make(chan ChangeEvent, subscriberBuffer),
		done: make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[sub]; !ok {
			h.mu.Unlock()
			return
		}
		delete(h.subs, sub)
		close(sub.done)
		h.mu.Unlock()

		// No sender remains at this point; discard queued events.
		for {
			select {
			case <-sub.ch:
			default:
				close(sub.ch)
				return
			}
		}
	}
	return sub.ch, cancel
}

// Publish fans ev out to every subscriber whose spec matches. Delivery order
// per subscriber follows commit order because Publish is called under the
// adapter's write path. A subscriber that cannot keep up loses the event; the
// snapshot-on-resubscribe path recovers state.
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if !h.matches(sub.spec, ev) {
			continue
		}
		select {
		case <-sub.done:
		case sub.ch <- ev:
		default:
		}
	}
}

func (h *Hub) matches(spec QuerySpec, ev ChangeEvent) bool {
	if ev.Order == nil {
		// Removal events carry no document; route them to every subscriber of
		// the owner scope and to cross-owner subscribers.
		return true
	}
	return spec.Matches(ev.Order)
}

// CloneOrder returns a detached copy for events so subscribers never alias
// the adapter's own records.
func CloneOrder(o models.Order) *models.Order {
	c := o
	return &c
}

// NewSubscription assembles a Subscription from a snapshot and an attached hub
// channel. Adapters call it while still holding their write lock so nothing
// can commit between snapshot and attach.
func NewSubscription(snapshot []models.Order, events <-chan ChangeEvent, cancel func()) *Subscription {
	return &Subscription{Snapshot: snapshot, Events: events, cancel: cancel}
}
