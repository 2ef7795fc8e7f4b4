package service

import (
	"context"
	"encoding/json"
	"fmt"

	"commerce-core/internal/apperr"
	"commerce-core/internal/client"
	"commerce-core/internal/model"
	"commerce-core/internal/repository"

	"gorm.io/gorm"
)

// SideEffectHandler executes one durable post-payment side effect from its
// serialized payload. The same handler instance serves both the synchronous
// fulfillment path and the retry scheduler, so a retried operation runs the
// exact primitive the primary path ran.
type SideEffectHandler interface {
	Type() string
	Execute(ctx context.Context, payload []byte) error
}

// OrderEffectPayload is the minimal payload for order-scoped effects.
type OrderEffectPayload struct {
	TenantID string `json:"tenant_id"`
	OrderID  string `json:"order_id"`
}

type NotificationPayload struct {
	TenantID string `json:"tenant_id"`
	OrderID  string `json:"order_id"`
	Email    string `json:"email"`
}

type WebhookDeliveryPayload struct {
	TenantID string          `json:"tenant_id"`
	Event    string          `json:"event"`
	Body     json.RawMessage `json:"body"`
}

// --- stock deduction ---

type stockDeductionHandler struct {
	db        *gorm.DB
	orderRepo repository.OrderRepository
	stockRepo repository.StockRepository
}

func NewStockDeductionHandler(db *gorm.DB, orderRepo repository.OrderRepository, stockRepo repository.StockRepository) SideEffectHandler {
	return &stockDeductionHandler{db: db, orderRepo: orderRepo, stockRepo: stockRepo}
}

func (h *stockDeductionHandler) Type() string { return model.OpTypeStockDeduction }

// Execute converts the order's reservations into confirmed deductions. The
// guarded RESERVED -> DEDUCTED status flip makes a replayed execution a no-op.
func (h *stockDeductionHandler) Execute(ctx context.Context, payload []byte) error {
	var p OrderEffectPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w: %v", apperr.ErrPermanent, err)
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reservations, err := h.orderRepo.Reservations(ctx, tx, p.OrderID, model.ReservationStatusReserved)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			claimed, err := h.orderRepo.UpdateReservationStatus(ctx, tx, res.ID,
				model.ReservationStatusReserved, model.ReservationStatusDeducted)
			if err != nil {
				return err
			}
			if !claimed {
				continue
			}
			if err := h.stockRepo.Deduct(ctx, tx, p.TenantID, res.ProductID, res.WarehouseID, res.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- coupon usage accounting ---

type couponUsageHandler struct {
	db         *gorm.DB
	orderRepo  repository.OrderRepository
	couponRepo repository.CouponRepository
}

func NewCouponUsageHandler(db *gorm.DB, orderRepo repository.OrderRepository, couponRepo repository.CouponRepository) SideEffectHandler {
	return &couponUsageHandler{db: db, orderRepo: orderRepo, couponRepo: couponRepo}
}

func (h *couponUsageHandler) Type() string { return model.OpTypeCouponUsage }

func (h *couponUsageHandler) Execute(ctx context.Context, payload []byte) error {
	var p OrderEffectPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w: %v", apperr.ErrPermanent, err)
	}

	return h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := h.orderRepo.FindByID(ctx, tx, p.TenantID, p.OrderID)
		if err != nil {
			return err
		}
		if order.CouponCode == nil {
			return nil
		}

		coupon, err := h.couponRepo.FindByCodeForUpdate(ctx, tx, p.TenantID, *order.CouponCode)
		if err != nil {
			return err
		}

		// the unique (coupon, order) index makes this exactly-once; replays
		// report inserted=false and change nothing
		_, err = h.couponRepo.RecordUsage(ctx, tx, &model.CouponUsage{
			CouponID:      coupon.ID,
			OrderID:       order.ID,
			TenantID:      p.TenantID,
			CustomerID:    order.CustomerID,
			DiscountCents: order.DiscountCents,
		})
		return err
	})
}

// --- notification send ---

type notificationHandler struct {
	notifier client.Notifier
}

func NewNotificationHandler(notifier client.Notifier) SideEffectHandler {
	return &notificationHandler{notifier: notifier}
}

func (h *notificationHandler) Type() string { return model.OpTypeNotification }

func (h *notificationHandler) Execute(ctx context.Context, payload []byte) error {
	var p NotificationPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w: %v", apperr.ErrPermanent, err)
	}
	return h.notifier.SendOrderConfirmation(ctx, p.TenantID, p.OrderID, p.Email)
}

// --- outbound webhook delivery ---

type webhookDeliveryHandler struct {
	notifier client.Notifier
}

func NewWebhookDeliveryHandler(notifier client.Notifier) SideEffectHandler {
	return &webhookDeliveryHandler{notifier: notifier}
}

func (h *webhookDeliveryHandler) Type() string { return model.OpTypeWebhookDelivery }

func (h *webhookDeliveryHandler) Execute(ctx context.Context, payload []byte) error {
	var p WebhookDeliveryPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w: %v", apperr.ErrPermanent, err)
	}
	return h.notifier.DeliverWebhook(ctx, p.TenantID, p.Event, p.Body)
}
