package service

import (
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/model"
)

// validOrderTransitions is the canonical order state machine. CANCELLED and
// REFUNDED are terminal.
var validOrderTransitions = map[string][]string{
	model.OrderStatusPending:    {model.OrderStatusConfirmed, model.OrderStatusCancelled},
	model.OrderStatusConfirmed:  {model.OrderStatusProcessing, model.OrderStatusShipped, model.OrderStatusCancelled},
	model.OrderStatusProcessing: {model.OrderStatusShipped, model.OrderStatusCancelled},
	model.OrderStatusShipped:    {model.OrderStatusDelivered, model.OrderStatusCancelled},
	model.OrderStatusDelivered:  {model.OrderStatusRefunded, model.OrderStatusCancelled},
	model.OrderStatusCancelled:  {},
	model.OrderStatusRefunded:   {},
}

// CanTransitionOrder reports whether an order may move from one status to
// another.
func CanTransitionOrder(from, to string) bool {
	for _, next := range validOrderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckOrderTransition returns ErrConflict for any transition the state
// machine does not allow.
func CheckOrderTransition(from, to string) error {
	if !CanTransitionOrder(from, to) {
		return fmt.Errorf("order transition %s -> %s: %w", from, to, apperr.ErrConflict)
	}
	return nil
}
