package service

import (
	"errors"
	"testing"

	"commerce-core/internal/apperr"
	"commerce-core/internal/model"
)

func TestOrderTransitions(t *testing.T) {
	allowed := []struct{ from, to string }{
		{model.OrderStatusPending, model.OrderStatusConfirmed},
		{model.OrderStatusPending, model.OrderStatusCancelled},
		{model.OrderStatusConfirmed, model.OrderStatusProcessing},
		{model.OrderStatusConfirmed, model.OrderStatusShipped},
		{model.OrderStatusConfirmed, model.OrderStatusCancelled},
		{model.OrderStatusProcessing, model.OrderStatusShipped},
		{model.OrderStatusShipped, model.OrderStatusDelivered},
		{model.OrderStatusDelivered, model.OrderStatusRefunded},
	}
	for _, tr := range allowed {
		if !CanTransitionOrder(tr.from, tr.to) {
			t.Errorf("%s -> %s should be allowed", tr.from, tr.to)
		}
	}

	rejected := []struct{ from, to string }{
		{model.OrderStatusPending, model.OrderStatusShipped},
		{model.OrderStatusPending, model.OrderStatusRefunded},
		{model.OrderStatusConfirmed, model.OrderStatusPending},
		{model.OrderStatusConfirmed, model.OrderStatusRefunded},
		{model.OrderStatusShipped, model.OrderStatusProcessing},
		{model.OrderStatusCancelled, model.OrderStatusPending},
		{model.OrderStatusCancelled, model.OrderStatusConfirmed},
		{model.OrderStatusRefunded, model.OrderStatusDelivered},
		{"UNKNOWN", model.OrderStatusConfirmed},
	}
	for _, tr := range rejected {
		if CanTransitionOrder(tr.from, tr.to) {
			t.Errorf("%s -> %s should be rejected", tr.from, tr.to)
		}
	}
}

func TestCheckOrderTransitionError(t *testing.T) {
	if err := CheckOrderTransition(model.OrderStatusPending, model.OrderStatusConfirmed); err != nil {
		t.Errorf("valid transition returned error: %v", err)
	}

	err := CheckOrderTransition(model.OrderStatusRefunded, model.OrderStatusPending)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("invalid transition error = %v, want ErrConflict", err)
	}
}
