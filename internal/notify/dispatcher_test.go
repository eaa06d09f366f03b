package notify

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aquaflow/shop/internal/logging"
	"github.com/aquaflow/shop/internal/models"
	"github.com/aquaflow/shop/internal/mux"
	"github.com/aquaflow/shop/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu   sync.Mutex
	got  []Notification
}

func (s *recordingSink) Notify(n Notification) {
	s.mu.Lock()
	s.got = append(s.got, n)
	s.mu.Unlock()
}

func (s *recordingSink) all() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Notification, len(s.got))
	copy(out, s.got)
	return out
}

type failingSound struct{ plays int }

func (p *failingSound) Play() error {
	p.plays++
	return errors.New("audio device unavailable")
}

type failingBrowser struct{ pushes int }

func (b *failingBrowser) Push(title, body string) error {
	b.pushes++
	return errors.New("permission denied")
}

func orderEvent(t store.EventType, id, userID string, status models.OrderStatus, class mux.Class) mux.Event {
	return mux.Event{
		ChangeEvent: store.ChangeEvent{
			Type:    t,
			OrderID: id,
			Order: &models.Order{
				ID:          id,
				UserID:      userID,
				OrderDate:   time.Now(),
				TotalAmount: decimal.NewFromFloat(35),
				Status:      status,
				FirstName:   "Maria",
				LastName:    "Santos",
				City:        "Quezon City",
			},
			At: time.Now(),
		},
		Class: class,
	}
}

func TestDeliveredNotificationIsIdempotent(t *testing.T) {
	sink := &recordingSink{}
	d := NewCustomerDispatcher("user-1", sink, logging.New("error"))

	ev := orderEvent(store.EventModified, "X", "user-1", models.StatusDelivered, mux.ClassNew)
	d.Handle(ev)
	d.Handle(ev) // backend resend

	got := sink.all()
	require.Len(t, got, 1)
	require.Equal(t, KindDelivered, got[0].Kind)
	require.Equal(t, "X", got[0].OrderID)
}

func TestCustomerScopeRules(t *testing.T) {
	sink := &recordingSink{}
	d := NewCustomerDispatcher("user-1", sink, logging.New("error"))

	d.Handle(orderEvent(store.EventAdded, "a", "user-1", models.StatusProcessing, mux.ClassNew))
	d.Handle(orderEvent(store.EventModified, "a", "user-1", models.StatusOutForDelivery, mux.ClassNew))
	d.Handle(orderEvent(store.EventModified, "a", "user-1", models.StatusDelivered, mux.ClassNew))
	// Someone else's order never notifies the customer scope.
	d.Handle(orderEvent(store.EventModified, "b", "user-2", models.StatusDelivered, mux.ClassNew))

	got := sink.all()
	require.Len(t, got, 3)
	require.Equal(t, KindApproved, got[0].Kind)
	require.Equal(t, KindShipped, got[1].Kind)
	require.Equal(t, KindDelivered, got[2].Kind)
}

func TestBackfillNeverNotifies(t *testing.T) {
	sink := &recordingSink{}
	d := NewCustomerDispatcher("user-1", sink, logging.New("error"))

	d.Handle(orderEvent(store.EventAdded, "a", "user-1", models.StatusProcessing, mux.ClassBackfill))
	require.Empty(t, sink.all())
	// Badge state still tracks backfill.
	require.Equal(t, 1, d.Badge())
}

func TestAdminIncomingOrderSideEffectsAreBestEffort(t *testing.T) {
	sink := &recordingSink{}
	sound := &failingSound{}
	browser := &failingBrowser{}
	d := NewAdminDispatcher(sink, sound, browser, logging.New("error"))

	d.Handle(orderEvent(store.EventAdded, "a", "user-1", models.StatusProcessing, mux.ClassNew))

	got := sink.all()
	require.Len(t, got, 1)
	require.Equal(t, KindIncoming, got[0].Kind)
	require.Equal(t, 1, sound.plays)
	require.Equal(t, 1, browser.pushes)
	require.Equal(t, 1, d.Badge())
	require.Len(t, d.PendingBatch(), 1)
}

func TestDismissResetsBatchWindowOnly(t *testing.T) {
	sink := &recordingSink{}
	d := NewAdminDispatcher(sink, nil, nil, logging.New("error"))

	d.Handle(orderEvent(store.EventAdded, "a", "user-1", models.StatusProcessing, mux.ClassNew))
	d.Handle(orderEvent(store.EventAdded, "b", "user-2", models.StatusProcessing, mux.ClassNew))
	require.Len(t, d.PendingBatch(), 2)

	d.Dismiss()
	require.Empty(t, d.PendingBatch())
	require.Equal(t, 2, d.Badge(), "badge survives dismissal")

	// Re-delivering a dismissed order stays deduplicated; a genuinely new
	// order starts a fresh batch.
	d.Handle(orderEvent(store.EventAdded, "a", "user-1", models.StatusProcessing, mux.ClassNew))
	require.Empty(t, d.PendingBatch())
	d.Handle(orderEvent(store.EventAdded, "c", "user-3", models.StatusProcessing, mux.ClassNew))
	require.Len(t, d.PendingBatch(), 1)
	require.Equal(t, "c", d.PendingBatch()[0].ID)
}

func TestBadgeFollowsProcessingTransitions(t *testing.T) {
	d := NewAdminDispatcher(&recordingSink{}, nil, nil, logging.New("error"))

	d.SeedProcessing([]models.Order{
		{ID: "a", Status: models.StatusProcessing},
		{ID: "b", Status: models.StatusProcessing},
		{ID: "c", Status: models.StatusDelivered},
	})
	require.Equal(t, 2, d.Badge())

	d.Handle(orderEvent(store.EventModified, "a", "user-1", models.StatusOutForDelivery, mux.ClassNew))
	require.Equal(t, 1, d.Badge())
}
