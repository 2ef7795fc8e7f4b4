package service

import (
	"context"
	"encoding/json"
	"time"

	"commerce-core/internal/model"
	"commerce-core/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// retryBackoff is the schedule between attempts. After the last entry the
// operation is terminally FAILED.
var retryBackoff = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	4 * time.Hour,
	12 * time.Hour,
}

const maxRetryAttempts = 5

func backoffDelay(attempts int) time.Duration {
	if attempts >= len(retryBackoff) {
		return retryBackoff[len(retryBackoff)-1]
	}
	return retryBackoff[attempts]
}

// FulfillmentCoordinator owns the post-capture side effects. The effects are
// written to the durable ledger inside the reconciliation transaction, so the
// confirmed event and its pending work commit or roll back together. The
// urgent ones are executed right after commit; anything left over, including
// work stranded by a crash in between, is due immediately and is picked up by
// the retry scheduler. A captured payment is never reversed here.
type FulfillmentCoordinator struct {
	failedOpRepo repository.FailedOperationRepository
	handlers     map[string]SideEffectHandler
}

func NewFulfillmentCoordinator(failedOpRepo repository.FailedOperationRepository, handlers ...SideEffectHandler) *FulfillmentCoordinator {
	byType := make(map[string]SideEffectHandler, len(handlers))
	for _, h := range handlers {
		byType[h.Type()] = h
	}
	return &FulfillmentCoordinator{
		failedOpRepo: failedOpRepo,
		handlers:     byType,
	}
}

// EnqueueOnConfirmed writes the confirmed order's side effects to the ledger
// inside the caller's transaction. It returns the operations that should run
// as soon as the transaction commits: the confirmed stock deduction and the
// coupon accounting. Notification and outbound webhook delivery stay on the
// ledger as async work for the scheduler.
func (c *FulfillmentCoordinator) EnqueueOnConfirmed(ctx context.Context, tx *gorm.DB, order *model.Order) ([]*model.FailedOperation, error) {
	orderPayload, _ := json.Marshal(OrderEffectPayload{TenantID: order.TenantID, OrderID: order.ID})

	var immediate []*model.FailedOperation
	op, err := c.enqueue(ctx, tx, order.TenantID, model.OpTypeStockDeduction, orderPayload)
	if err != nil {
		return nil, err
	}
	immediate = append(immediate, op)

	if order.CouponCode != nil {
		op, err := c.enqueue(ctx, tx, order.TenantID, model.OpTypeCouponUsage, orderPayload)
		if err != nil {
			return nil, err
		}
		immediate = append(immediate, op)
	}

	notifPayload, _ := json.Marshal(NotificationPayload{
		TenantID: order.TenantID,
		OrderID:  order.ID,
		Email:    order.Email,
	})
	if _, err := c.enqueue(ctx, tx, order.TenantID, model.OpTypeNotification, notifPayload); err != nil {
		return nil, err
	}

	event, _ := json.Marshal(map[string]string{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       order.Status,
	})
	whPayload, _ := json.Marshal(WebhookDeliveryPayload{
		TenantID: order.TenantID,
		Event:    "order.confirmed",
		Body:     event,
	})
	if _, err := c.enqueue(ctx, tx, order.TenantID, model.OpTypeWebhookDelivery, whPayload); err != nil {
		return nil, err
	}

	return immediate, nil
}

// ExecuteNow runs staged operations after their transaction has committed.
// Each one is claimed through the same PENDING -> RETRYING guard the
// scheduler uses, so a concurrent sweep never runs an operation twice.
func (c *FulfillmentCoordinator) ExecuteNow(ctx context.Context, ops []*model.FailedOperation) {
	for _, op := range ops {
		runOperation(ctx, c.failedOpRepo, c.handlers, op)
	}
}

func (c *FulfillmentCoordinator) enqueue(ctx context.Context, tx *gorm.DB, tenantID, opType string, payload []byte) (*model.FailedOperation, error) {
	op := &model.FailedOperation{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Type:        opType,
		Payload:     string(payload),
		Status:      model.FailedOpStatusPending,
		Attempts:    0,
		MaxAttempts: maxRetryAttempts,
		NextRetryAt: time.Now(),
	}
	if err := c.failedOpRepo.Create(ctx, tx, op); err != nil {
		return nil, err
	}
	return op, nil
}
