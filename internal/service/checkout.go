package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/client"
	"commerce-core/internal/config"
	"commerce-core/internal/dto"
	"commerce-core/internal/model"
	"commerce-core/internal/repository"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"gorm.io/gorm"
)

type CheckoutService interface {
	// CreateCheckout freezes the cart into an immutable order and requests a
	// payment intent. A gateway failure does not fail the checkout; the
	// order persists and the intent is repaired lazily.
	CreateCheckout(ctx context.Context, tenantID string, req *dto.CheckoutRequest) (*model.Order, error)
	// CancelCheckout is permitted only while payment is pending.
	CancelCheckout(ctx context.Context, tenantID, orderID string) error
	// GetOrder re-attempts intent creation when an earlier gateway call
	// failed, reusing the same idempotency key.
	GetOrder(ctx context.Context, tenantID, orderID string) (*model.Order, []*model.OrderItem, error)
	ListOrders(ctx context.Context, tenantID, customerID string, limit, offset int) ([]*model.Order, error)
	// RequestRefund asks the gateway for a refund capped at what is still
	// refundable on the order.
	RequestRefund(ctx context.Context, tenantID, orderID string, amountCents int64) error
	// OrderPayments lists the payment ledger rows recorded for an order.
	OrderPayments(ctx context.Context, tenantID, orderID string) ([]*model.Payment, error)
	// AdvanceOrder moves a confirmed order along the fulfillment pipeline.
	AdvanceOrder(ctx context.Context, tenantID, orderID, toStatus string) error
}

type checkoutServiceImpl struct {
	db          *gorm.DB
	cartRepo    repository.CartRepository
	orderRepo   repository.OrderRepository
	stockRepo   repository.StockRepository
	counterRepo repository.CounterRepository
	paymentRepo repository.PaymentRepository
	gateway     client.PaymentGateway
	pricing     *PricingCalculator

	txTimeout   time.Duration
	creditLimit int64
	cartTTL     time.Duration
}

func NewCheckoutService(
	db *gorm.DB,
	cartRepo repository.CartRepository,
	orderRepo repository.OrderRepository,
	stockRepo repository.StockRepository,
	counterRepo repository.CounterRepository,
	paymentRepo repository.PaymentRepository,
	gateway client.PaymentGateway,
	pricing *PricingCalculator,
	cfg *config.Checkout,
) CheckoutService {
	return &checkoutServiceImpl{
		db:          db,
		cartRepo:    cartRepo,
		orderRepo:   orderRepo,
		stockRepo:   stockRepo,
		counterRepo: counterRepo,
		paymentRepo: paymentRepo,
		gateway:     gateway,
		pricing:     pricing,
		txTimeout:   cfg.TxTimeout,
		creditLimit: cfg.CreditLimitCents,
		cartTTL:     cfg.CartTTL,
	}
}

// intentIdempotencyKey is deterministic per (tenant, order) so client retries
// and crash recovery never create a second charge attempt.
func intentIdempotencyKey(tenantID, orderID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("intent/"+tenantID+"/"+orderID)).String()
}

func refundIdempotencyKey(tenantID, orderID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("refund/"+tenantID+"/"+orderID)).String()
}

func (s *checkoutServiceImpl) CreateCheckout(ctx context.Context, tenantID string, req *dto.CheckoutRequest) (*model.Order, error) {
	// bound lock hold time; past the deadline the transaction aborts with a
	// retryable error
	txCtx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	// the number is allocated up front in its own committed increment; an
	// attempt that fails past this point burns its number instead of
	// handing it to a later order
	number, err := s.counterRepo.NextOrderNumber(txCtx, tenantID, time.Now())
	if err != nil {
		return nil, err
	}

	var order *model.Order
	err = s.db.WithContext(txCtx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.cartRepo.FindByIDForUpdate(txCtx, tx, tenantID, req.CartID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("cart %s: %w", req.CartID, apperr.ErrNotFound)
			}
			return err
		}
		if cart.Status != model.CartStatusActive {
			return fmt.Errorf("cart %s already %s: %w", cart.ID, cart.Status, apperr.ErrConflict)
		}

		items, err := s.cartRepo.Items(txCtx, tx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("cart %s is empty: %w", cart.ID, apperr.ErrValidation)
		}

		customerID := ""
		if cart.CustomerID != nil {
			customerID = *cart.CustomerID
		}
		billingEntityID := req.BillingEntityID
		if billingEntityID == "" {
			billingEntityID = customerID
		}

		if s.creditLimit > 0 && billingEntityID != "" {
			exposure, err := s.orderRepo.PendingExposure(txCtx, tx, tenantID, billingEntityID)
			if err != nil {
				return err
			}
			if exposure+cart.GrandTotalCents > s.creditLimit {
				return fmt.Errorf("credit limit exceeded for %s: %w", billingEntityID, apperr.ErrValidation)
			}
		}

		// stable lock acquisition order across multi-item carts
		sorted := make([]*model.CartItem, len(items))
		copy(sorted, items)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

		orderID := uuid.NewString()
		var reservations []*model.Reservation
		for _, item := range sorted {
			// the cart's provisional hold becomes the order's reservation:
			// release then re-reserve against current balances, recording
			// the warehouse split for the later deduction
			if err := s.stockRepo.Release(txCtx, tx, tenantID, item.ProductID, item.Quantity); err != nil {
				return err
			}
			allocations, err := s.stockRepo.Reserve(txCtx, tx, tenantID, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			for _, alloc := range allocations {
				reservations = append(reservations, &model.Reservation{
					TenantID:    tenantID,
					OrderID:     orderID,
					ProductID:   item.ProductID,
					WarehouseID: alloc.WarehouseID,
					Quantity:    alloc.Quantity,
					Status:      model.ReservationStatusReserved,
				})
			}
		}

		shippingAddr, _ := json.Marshal(req.ShippingAddress)
		billingAddr, _ := json.Marshal(req.BillingAddress)

		order = &model.Order{
			ID:              orderID,
			TenantID:        tenantID,
			OrderNumber:     number,
			CartID:          cart.ID,
			CustomerID:      customerID,
			BillingEntityID: billingEntityID,
			Status:          model.OrderStatusPending,
			CouponCode:      cart.CouponCode,
			SubtotalCents:   cart.SubtotalCents,
			DiscountCents:   cart.DiscountCents,
			ShippingCents:   cart.ShippingCents,
			TaxCents:        cart.TaxCents,
			GrandTotalCents: cart.GrandTotalCents,
			Currency:        s.pricing.Currency(),
			Email:           req.Email,
			ShippingAddress: string(shippingAddr),
			BillingAddress:  string(billingAddr),
		}
		if err := s.orderRepo.Create(txCtx, tx, order); err != nil {
			return err
		}

		orderItems := make([]*model.OrderItem, len(items))
		for i, item := range items {
			orderItems[i] = &model.OrderItem{
				OrderID:        orderID,
				ProductID:      item.ProductID,
				VariantID:      item.VariantID,
				Sku:            item.Sku,
				Name:           item.Name,
				Quantity:       item.Quantity,
				UnitPriceCents: item.UnitPriceCents,
			}
		}
		if err := s.orderRepo.CreateItems(txCtx, tx, orderItems); err != nil {
			return err
		}
		if err := s.orderRepo.CreateReservations(txCtx, tx, reservations); err != nil {
			return err
		}

		cart.Status = model.CartStatusConverted
		return s.cartRepo.Save(txCtx, tx, cart)
	})
	if err != nil {
		if txCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("checkout timed out: %w", apperr.ErrRetryable)
		}
		return nil, err
	}

	// intent creation happens outside the transaction; the order is already
	// durable and a failure here degrades to "payment not yet initialized"
	s.ensureIntent(ctx, order)
	return order, nil
}

func (s *checkoutServiceImpl) ensureIntent(ctx context.Context, order *model.Order) {
	if order.PaymentIntentID != nil || order.Status != model.OrderStatusPending {
		return
	}

	intent, err := s.gateway.CreateIntent(ctx, &client.IntentRequest{
		IdempotencyKey: intentIdempotencyKey(order.TenantID, order.ID),
		OrderNumber:    order.OrderNumber,
		AmountCents:    order.GrandTotalCents,
		Currency:       order.Currency,
	})
	if err != nil {
		log.Warnf("create intent for order %s: %v", order.ID, err)
		return
	}

	if err := s.orderRepo.AttachIntent(ctx, order.ID, intent.ID); err != nil {
		log.Errorf("attach intent %s to order %s: %v", intent.ID, order.ID, err)
		return
	}
	order.PaymentIntentID = &intent.ID
}

func (s *checkoutServiceImpl) GetOrder(ctx context.Context, tenantID, orderID string) (*model.Order, []*model.OrderItem, error) {
	order, err := s.orderRepo.FindByID(ctx, nil, tenantID, orderID)
	if err != nil {
		return nil, nil, err
	}

	// lazy repair path for orders whose gateway call failed at checkout
	s.ensureIntent(ctx, order)

	items, err := s.orderRepo.Items(ctx, nil, orderID)
	if err != nil {
		return nil, nil, err
	}
	return order, items, nil
}

func (s *checkoutServiceImpl) ListOrders(ctx context.Context, tenantID, customerID string, limit, offset int) ([]*model.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.orderRepo.ListByCustomer(ctx, tenantID, customerID, limit, offset)
}

func (s *checkoutServiceImpl) CancelCheckout(ctx context.Context, tenantID, orderID string) error {
	// cancel the outstanding intent first; voiding is idempotent at the
	// gateway and a failure leaves the order payable
	probe, err := s.orderRepo.FindByID(ctx, nil, tenantID, orderID)
	if err != nil {
		return err
	}
	if probe.Status != model.OrderStatusPending {
		return fmt.Errorf("order %s is %s: %w", orderID, probe.Status, apperr.ErrConflict)
	}
	if probe.PaymentIntentID != nil {
		if err := s.gateway.CancelIntent(ctx, *probe.PaymentIntentID); err != nil {
			return fmt.Errorf("cancel intent: %w: %v", apperr.ErrGateway, err)
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		if err := CheckOrderTransition(order.Status, model.OrderStatusCancelled); err != nil {
			return err
		}
		if order.Status != model.OrderStatusPending {
			return fmt.Errorf("order %s is %s: %w", orderID, order.Status, apperr.ErrConflict)
		}

		// release exactly what checkout reserved, warehouse by warehouse
		reservations, err := s.orderRepo.Reservations(ctx, tx, orderID, model.ReservationStatusReserved)
		if err != nil {
			return err
		}
		for _, res := range reservations {
			if err := s.stockRepo.ReleaseAllocation(ctx, tx, tenantID, res.ProductID, res.WarehouseID, res.Quantity); err != nil {
				return err
			}
			if _, err := s.orderRepo.UpdateReservationStatus(ctx, tx, res.ID,
				model.ReservationStatusReserved, model.ReservationStatusReleased); err != nil {
				return err
			}
		}

		if err := s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderStatusPending, model.OrderStatusCancelled); err != nil {
			return err
		}

		// reopen the originating cart so the buyer can try again. The
		// released stock is reserved back onto the cart lines, keeping the
		// invariant that every active cart line holds its own reservation.
		cart, err := s.cartRepo.FindByIDForUpdate(ctx, tx, tenantID, order.CartID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if cart.Status != model.CartStatusConverted {
			return nil
		}
		items, err := s.cartRepo.Items(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if _, err := s.stockRepo.Reserve(ctx, tx, tenantID, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		cart.Status = model.CartStatusActive
		cart.ExpiresAt = time.Now().Add(s.cartTTL)
		return s.cartRepo.Save(ctx, tx, cart)
	})
}

func (s *checkoutServiceImpl) RequestRefund(ctx context.Context, tenantID, orderID string, amountCents int64) error {
	order, err := s.orderRepo.FindByID(ctx, nil, tenantID, orderID)
	if err != nil {
		return err
	}
	if order.PaymentIntentID == nil {
		return fmt.Errorf("order %s has no captured payment: %w", orderID, apperr.ErrConflict)
	}

	refunded, err := s.paymentRepo.RefundedTotal(ctx, nil, orderID)
	if err != nil {
		return err
	}
	refundable := order.GrandTotalCents - refunded
	if refundable <= 0 {
		return fmt.Errorf("order %s already fully refunded: %w", orderID, apperr.ErrConflict)
	}
	if amountCents <= 0 || amountCents > refundable {
		amountCents = refundable
	}

	if _, err := s.gateway.CreateRefund(ctx, *order.PaymentIntentID, amountCents,
		refundIdempotencyKey(tenantID, orderID)); err != nil {
		return fmt.Errorf("create refund: %w: %v", apperr.ErrGateway, err)
	}
	// state advances when the provider's refund event arrives
	return nil
}

func (s *checkoutServiceImpl) OrderPayments(ctx context.Context, tenantID, orderID string) ([]*model.Payment, error) {
	if _, err := s.orderRepo.FindByID(ctx, nil, tenantID, orderID); err != nil {
		return nil, err
	}
	return s.paymentRepo.ListByOrder(ctx, orderID)
}

func (s *checkoutServiceImpl) AdvanceOrder(ctx context.Context, tenantID, orderID, toStatus string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, tenantID, orderID)
		if err != nil {
			return err
		}
		if err := CheckOrderTransition(order.Status, toStatus); err != nil {
			return err
		}
		return s.orderRepo.UpdateStatus(ctx, tx, orderID, order.Status, toStatus)
	})
}
