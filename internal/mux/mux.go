// Package mux fans a store subscription out to many observers. One underlying
// subscription is held per distinct query spec; each observer carries its own
// watermark taken at watch time, so incoming events are classified as backfill
// (already-known state) or new (notification-worthy). When the backend reports
// its index is still building, observers see a Pending status and the feed
// re-establishes itself without dropping any registration.
package mux

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/store"
)

type Status int

const (
	StatusPending Status = iota // waiting for the backend (index building)
	StatusLive                  // snapshot delivered, stream active
	StatusFailed                // non-retryable subscription error
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusLive:
		return "live"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

type Class int

const (
	ClassBackfill Class = iota // at or before the observer's watermark
	ClassNew                   // after the watermark
)

// Event is a store change classified against one observer's watermark.
// Backfill events still reach the observer so views can reconstruct state;
// only New events are notification-worthy.
type Event struct {
	store.ChangeEvent
	Class Class
}

const observerBuffer = 256

// DefaultRetryInterval paces re-establishment while the backend index builds.
const DefaultRetryInterval = 2 * time.Second

type Mux struct {
	st    store.OrderStore
	log   *slog.Logger
	retry time.Duration
	now   func() time.Time

	mu    sync.Mutex
	feeds map[string]*feed
}

func New(st store.OrderStore, log *slog.Logger) *Mux {
	return &Mux{
		st:    st,
		log:   log,
		retry: DefaultRetryInterval,
		now:   time.Now,
		feeds: make(map[string]*feed),
	}
}

// SetRetryInterval shortens the pending retry loop in tests.
func (m *Mux) SetRetryInterval(d time.Duration) { m.retry = d }

// SetClock overrides watermark time in tests.
func (m *Mux) SetClock(now func() time.Time) { m.now = now }

type Observer struct {
	feed      *Mux
	f         *feed
	watermark time.Time
	events    chan Event
	status    chan Status
}

// Updates streams classified change events in store commit order.
func (o *Observer) Updates() <-chan Event { return o.events }

// StatusChanges reports Pending/Live/Failed transitions of the underlying
// subscription.
func (o *Observer) StatusChanges() <-chan Status { return o.status }

// Snapshot returns the feed's current reconstructed result set. Empty while
// the feed is still pending.
func (o *Observer) Snapshot() []models.Order { return o.f.snapshot() }

// Status is the feed's current subscription state.
func (o *Observer) Status() Status { return o.f.currentStatus() }

// Watermark is the cutoff separating backfill from new events for this
// observer.
func (o *Observer) Watermark() time.Time { return o.watermark }

// Cancel detaches the observer. When the last observer of a query spec
// detaches, the underlying store subscription is released.
func (o *Observer) Cancel() { o.feed.detach(o.f, o) }

type feed struct {
	spec store.QuerySpec
	stop chan struct{}

	mu        sync.Mutex
	observers map[*Observer]struct{}
	state     map[string]models.Order
	status    Status
}

// Watch registers an observer for spec, starting the underlying subscription
// if this is the first observer. It never blocks on the backend: if the index
// is still building the observer starts in Pending and goes Live once the
// feed establishes. The feed's lifetime is bound to its observer set, not to
// any caller's ctx; ctx only detaches this one observer when it ends.
func (m *Mux) Watch(ctx context.Context, spec store.QuerySpec) *Observer {
	m.mu.Lock()
	f, ok := m.feeds[spec.Key()]
	if !ok {
		f = &feed{
			spec:      spec,
			stop:      make(chan struct{}),
			observers: make(map[*Observer]struct{}),
			state:     make(map[string]models.Order),
			status:    StatusPending,
		}
		m.feeds[spec.Key()] = f
		go m.run(f)
	}
	m.mu.Unlock()

	o := &Observer{
		feed:      m,
		f:         f,
		watermark: m.now(),
		events:    make(chan Event, observerBuffer),
		status:    make(chan Status, 8),
	}
	f.mu.Lock()
	f.observers[o] = struct{}{}
	cur := f.status
	f.mu.Unlock()
	o.status <- cur
	context.AfterFunc(ctx, o.Cancel)
	return o
}

func (m *Mux) detach(f *feed, o *Observer) {
	f.mu.Lock()
	if _, ok := f.observers[o]; !ok {
		f.mu.Unlock()
		return
	}
	delete(f.observers, o)
	// The observer is out of the map and f.mu is held, so no sender remains.
	// Anything still buffered was queued before Cancel and must not be seen.
	for drained := false; !drained; {
		select {
		case <-o.events:
		default:
			drained = true
		}
	}
	for drained := false; !drained; {
		select {
		case <-o.status:
		default:
			drained = true
		}
	}
	close(o.events)
	close(o.status)
	last := len(f.observers) == 0
	f.mu.Unlock()

	if last {
		m.mu.Lock()
		if m.feeds[f.spec.Key()] == f {
			delete(m.feeds, f.spec.Key())
		}
		m.mu.Unlock()
		close(f.stop)
	}
}

// run owns the feed's store subscription for its whole life, re-establishing
// it whenever the backend reports the index is not ready yet. The loop stops
// only through f.stop, when the last observer detaches.
func (m *Mux) run(f *feed) {
	for {
		select {
		case <-f.stop:
			return
		default:
		}

		sub, err := m.st.Subscribe(context.Background(), f.spec)
		if err != nil {
			if err == store.ErrPreconditionFailed {
				m.log.Info("subscription pending, index building", "spec", f.spec.Key())
				f.setStatus(StatusPending)
				select {
				case <-time.After(m.retry):
					continue
				case <-f.stop:
					return
				}
			}
			m.log.Error("subscription failed", "spec", f.spec.Key(), "err", err)
			f.setStatus(StatusFailed)
			return
		}

		f.loadSnapshot(sub.Snapshot)
		f.setStatus(StatusLive)

		if !m.pump(f, sub) {
			sub.Cancel()
			return
		}
		sub.Cancel()
	}
}

// pump relays events until the feed stops or the stream ends. It returns true
// when the stream ended and the subscription should be re-established.
func (m *Mux) pump(f *feed, sub *store.Subscription) bool {
	for {
		select {
		case <-f.stop:
			return false
		case ev, ok := <-sub.Events:
			if !ok {
				return true
			}
			f.apply(ev, m.log)
		}
	}
}

func (f *feed) loadSnapshot(orders []models.Order) {
	f.mu.Lock()
	f.state = make(map[string]models.Order, len(orders))
	for _, o := range orders {
		f.state[o.ID] = o
	}
	f.mu.Unlock()
}

func (f *feed) apply(ev store.ChangeEvent, log *slog.Logger) {
	f.mu.Lock()
	switch ev.Type {
	case store.EventRemoved:
		delete(f.state, ev.OrderID)
	default:
		if ev.Order != nil {
			f.state[ev.OrderID] = *ev.Order
		}
	}
	for o := range f.observers {
		class := ClassNew
		if !ev.At.After(o.watermark) {
			class = ClassBackfill
		}
		select {
		case o.events <- Event{ChangeEvent: ev, Class: class}:
		default:
			log.Warn("observer lagging, event dropped", "order_id", ev.OrderID)
		}
	}
	f.mu.Unlock()
}

func (f *feed) setStatus(s Status) {
	f.mu.Lock()
	f.status = s
	for o := range f.observers {
		select {
		case o.status <- s:
		default:
		}
	}
	f.mu.Unlock()
}

func (f *feed) currentStatus() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *feed) snapshot() []models.Order {
	f.mu.Lock()
	out := make([]models.Order, 0, len(f.state))
	for _, o := range f.state {
		out = append(out, o)
	}
	f.mu.Unlock()

	if f.spec.OrderByDateDesc {
		sort.Slice(out, func(i, j int) bool { return out[i].OrderDate.After(out[j].OrderDate) })
	}
	if f.spec.Limit > 0 && len(out) > f.spec.Limit {
		out = out[:f.spec.Limit]
	}
	return out
}
