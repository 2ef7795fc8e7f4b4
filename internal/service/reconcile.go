package service

import (
	"context"
	"errors"
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/dto"
	"commerce-core/internal/model"
	"commerce-core/internal/repository"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"gorm.io/gorm"
)

const (
	EventTypeCaptured = "payment.captured"
	EventTypeFailed   = "payment.failed"
	EventTypeRefunded = "payment.refunded"
)

// ReconcileService consumes asynchronous payment-provider events and advances
// order and payment state exactly once per provider event id.
type ReconcileService interface {
	HandleEvent(ctx context.Context, tenantID string, event *dto.WebhookEvent) error
}

type reconcileServiceImpl struct {
	db               *gorm.DB
	orderRepo        repository.OrderRepository
	paymentRepo      repository.PaymentRepository
	webhookEventRepo repository.WebhookEventRepository
	fulfillment      *FulfillmentCoordinator
}

func NewReconcileService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	webhookEventRepo repository.WebhookEventRepository,
	fulfillment *FulfillmentCoordinator,
) ReconcileService {
	return &reconcileServiceImpl{
		db:               db,
		orderRepo:        orderRepo,
		paymentRepo:      paymentRepo,
		webhookEventRepo: webhookEventRepo,
		fulfillment:      fulfillment,
	}
}

// HandleEvent records the event id, applies the state change and stages the
// fulfillment side effects in one transaction, so a crash at any point either
// keeps the event undelivered or leaves its pending work on the durable
// ledger for the scheduler. The staged effects are executed after commit,
// outside the transaction, so a slow inventory write cannot delay the
// acknowledgment to the provider.
func (s *reconcileServiceImpl) HandleEvent(ctx context.Context, tenantID string, event *dto.WebhookEvent) error {
	if event.ID == "" {
		return fmt.Errorf("event id missing: %w", apperr.ErrValidation)
	}

	var staged []*model.FailedOperation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := s.webhookEventRepo.MarkProcessed(ctx, tx, tenantID, event.ID, event.Type)
		if err != nil {
			return err
		}
		if !inserted {
			log.Debugf("event %s already processed, dropping", event.ID)
			return nil
		}

		switch event.Type {
		case EventTypeCaptured:
			confirmed, err := s.applyCapture(ctx, tx, tenantID, event)
			if err != nil || confirmed == nil {
				return err
			}
			staged, err = s.fulfillment.EnqueueOnConfirmed(ctx, tx, confirmed)
			return err
		case EventTypeFailed:
			return s.applyFailure(ctx, tx, tenantID, event)
		case EventTypeRefunded:
			return s.applyRefund(ctx, tx, tenantID, event)
		default:
			log.Infof("ignoring event %s of type %s", event.ID, event.Type)
			return nil
		}
	})
	if err != nil {
		return err
	}

	s.fulfillment.ExecuteNow(ctx, staged)
	return nil
}

func (s *reconcileServiceImpl) resolveOrder(ctx context.Context, tx *gorm.DB, tenantID string, event *dto.WebhookEvent) (*model.Order, error) {
	if event.Data.OrderID != "" {
		return s.orderRepo.FindByID(ctx, tx, tenantID, event.Data.OrderID)
	}
	if event.Data.IntentID != "" {
		return s.orderRepo.FindByIntentID(ctx, tx, event.Data.IntentID)
	}
	return nil, fmt.Errorf("event %s has no order reference: %w", event.ID, apperr.ErrValidation)
}

func (s *reconcileServiceImpl) applyCapture(ctx context.Context, tx *gorm.DB, tenantID string, event *dto.WebhookEvent) (*model.Order, error) {
	order, err := s.resolveOrder(ctx, tx, tenantID, event)
	if err != nil {
		return nil, err
	}

	// strict integer-cents comparison: a mismatched capture never confirms
	// the order
	if event.Data.AmountCents != order.GrandTotalCents {
		log.Warnf("capture amount %d does not match order %s grand total %d",
			event.Data.AmountCents, order.ID, order.GrandTotalCents)
		return nil, s.paymentRepo.Create(ctx, tx, &model.Payment{
			ID:              uuid.NewString(),
			TenantID:        tenantID,
			OrderID:         order.ID,
			IntentID:        event.Data.IntentID,
			Status:          model.PaymentStatusFailed,
			AmountCents:     event.Data.AmountCents,
			Currency:        event.Data.Currency,
			ProviderEventID: event.ID,
			FailureReason:   "captured amount does not match order total",
		})
	}

	if err := s.orderRepo.UpdateStatus(ctx, tx, order.ID, model.OrderStatusPending, model.OrderStatusConfirmed); err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			// a different event already moved the order; ack without a
			// second transition
			log.Warnf("capture for order %s ignored, order is %s", order.ID, order.Status)
			return nil, nil
		}
		return nil, err
	}

	if err := s.paymentRepo.Create(ctx, tx, &model.Payment{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		OrderID:         order.ID,
		IntentID:        event.Data.IntentID,
		Status:          model.PaymentStatusCaptured,
		AmountCents:     event.Data.AmountCents,
		Currency:        event.Data.Currency,
		ProviderEventID: event.ID,
	}); err != nil {
		return nil, err
	}

	order.Status = model.OrderStatusConfirmed
	return order, nil
}

func (s *reconcileServiceImpl) applyFailure(ctx context.Context, tx *gorm.DB, tenantID string, event *dto.WebhookEvent) error {
	order, err := s.resolveOrder(ctx, tx, tenantID, event)
	if err != nil {
		return err
	}

	// the order stays PENDING and payable; only the attempt is recorded
	return s.paymentRepo.Create(ctx, tx, &model.Payment{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		OrderID:         order.ID,
		IntentID:        event.Data.IntentID,
		Status:          model.PaymentStatusFailed,
		AmountCents:     event.Data.AmountCents,
		Currency:        event.Data.Currency,
		ProviderEventID: event.ID,
		FailureReason:   "capture failed at provider",
	})
}

func (s *reconcileServiceImpl) applyRefund(ctx context.Context, tx *gorm.DB, tenantID string, event *dto.WebhookEvent) error {
	order, err := s.resolveOrder(ctx, tx, tenantID, event)
	if err != nil {
		return err
	}

	refunded, err := s.paymentRepo.RefundedTotal(ctx, tx, order.ID)
	if err != nil {
		return err
	}

	// full means the cumulative refunds cover the grand total, so a series
	// of partials can still close the order out
	full := refunded+event.Data.AmountCents >= order.GrandTotalCents
	status := model.PaymentStatusPartiallyRefunded
	if full {
		status = model.PaymentStatusRefunded
	}

	if err := s.paymentRepo.Create(ctx, tx, &model.Payment{
		ID:              uuid.NewString(),
		TenantID:        tenantID,
		OrderID:         order.ID,
		IntentID:        event.Data.IntentID,
		Status:          status,
		AmountCents:     event.Data.AmountCents,
		Currency:        event.Data.Currency,
		ProviderEventID: event.ID,
	}); err != nil {
		return err
	}

	if full && CanTransitionOrder(order.Status, model.OrderStatusRefunded) {
		return s.orderRepo.UpdateStatus(ctx, tx, order.ID, order.Status, model.OrderStatusRefunded)
	}
	// partial refunds, or orders not yet delivered, keep their status; the
	// payment ledger carries the refunded amount
	return nil
}
