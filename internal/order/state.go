// Package order holds the pure order-status state machine. It performs no I/O;
// authorization and persistence are the caller's concern, and legality is
// re-checked against the stored status inside the transition write so a stale
// request can never overwrite a newer state.
package order

import (
	"fmt"

	"github.com/aquaflow/shop/internal/models"
)

// ErrInvalidTransition is returned for any requested edge outside the legal
// transition table, including self-transitions and moves out of a terminal
// state.
type ErrInvalidTransition struct {
	From, To models.OrderStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid order status transition %q -> %q", e.From, e.To)
}

var transitions = map[models.OrderStatus][]models.OrderStatus{
	models.StatusProcessing:     {models.StatusOutForDelivery, models.StatusCancelled},
	models.StatusOutForDelivery: {models.StatusDelivered, models.StatusCancelled},
	models.StatusDelivered:      nil,
	models.StatusCancelled:      nil,
}

// Transition validates current -> requested and returns the new status. It is
// a pure function over the transition table:
//
//	Processing      -> Out for Delivery | Cancelled
//	Out for Delivery -> Delivered | Cancelled
func Transition(current, requested models.OrderStatus) (models.OrderStatus, error) {
	for _, next := range transitions[current] {
		if next == requested {
			return requested, nil
		}
	}
	return "", &ErrInvalidTransition{From: current, To: requested}
}

// AllowedNext lists the legal targets from current. Admin surfaces use it so
// illegal actions are never offered.
func AllowedNext(current models.OrderStatus) []models.OrderStatus {
	return transitions[current]
}
