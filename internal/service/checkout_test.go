package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/config"
	"commerce-core/internal/dto"
	"commerce-core/internal/model"
	"commerce-core/internal/repository"
)

func checkoutReq(cartID string) *dto.CheckoutRequest {
	return &dto.CheckoutRequest{
		CartID: cartID,
		Email:  "buyer@example.com",
		ShippingAddress: dto.Address{
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
		BillingAddress: dto.Address{
			Line1:      "1 Main St",
			City:       "Springfield",
			PostalCode: "12345",
			Country:    "US",
		},
	}
}

// readyCart seeds a product with stock and returns a cart holding qty of it.
func readyCart(t *testing.T, s *testStack, customerID, productID string, qty int) *model.Cart {
	t.Helper()
	seedProduct(t, s.db, productID, 2500)
	seedBalance(t, s.db, productID, "wh1", 10)
	cart := customerCart(t, s, customerID)
	if _, err := s.carts.AddItem(context.Background(), testTenant, cart.ID, productID, "", qty); err != nil {
		t.Fatalf("add item: %v", err)
	}
	return cart
}

func TestCreateCheckout(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 2)

	order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if order.Status != model.OrderStatusPending {
		t.Errorf("status = %s, want PENDING", order.Status)
	}
	wantNumber := fmt.Sprintf("ORD-%s-00001", time.Now().Format("200601"))
	if order.OrderNumber != wantNumber {
		t.Errorf("order number = %s, want %s", order.OrderNumber, wantNumber)
	}
	if order.GrandTotalCents != 6000 {
		t.Errorf("grand total = %d, want 6000", order.GrandTotalCents)
	}
	if order.PaymentIntentID == nil {
		t.Error("payment intent not attached")
	}

	// the cart is frozen
	got, _, err := s.carts.GetCart(ctx, testTenant, cart.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if got.Status != model.CartStatusConverted {
		t.Errorf("cart status = %s, want converted", got.Status)
	}

	// reservations recorded per warehouse, still held
	var reservations []*model.Reservation
	if err := s.db.Where("order_id = ?", order.ID).Find(&reservations).Error; err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	if len(reservations) != 1 {
		t.Fatalf("reservation count = %d, want 1", len(reservations))
	}
	if reservations[0].Status != model.ReservationStatusReserved || reservations[0].Quantity != 2 {
		t.Errorf("reservation = %+v, want RESERVED qty 2", reservations[0])
	}
	if avail := available(t, s, "p1"); avail != 8 {
		t.Errorf("available = %d, want 8", avail)
	}
}

func TestCheckoutSameCartTwiceConflicts(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 1)

	if _, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID)); err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	_, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second checkout error = %v, want ErrConflict", err)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := customerCart(t, s, "cust-1")
	_, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty cart error = %v, want ErrValidation", err)
	}
}

func TestOrderNumbersStrictlyIncrease(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	seedProduct(t, s.db, "p1", 1000)
	seedBalance(t, s.db, "p1", "wh1", 50)

	var numbers []string
	for i := 0; i < 3; i++ {
		cart := customerCart(t, s, fmt.Sprintf("cust-%d", i))
		if _, err := s.carts.AddItem(ctx, testTenant, cart.ID, "p1", "", 1); err != nil {
			t.Fatalf("add item: %v", err)
		}
		order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
		if err != nil {
			t.Fatalf("checkout %d: %v", i, err)
		}
		numbers = append(numbers, order.OrderNumber)
	}

	for i := 1; i < len(numbers); i++ {
		if numbers[i] <= numbers[i-1] {
			t.Errorf("order numbers not strictly increasing: %v", numbers)
		}
	}
}

func TestGatewayFailureDegradesAndRepairs(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 1)

	s.gateway.failCreate = true
	order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("checkout with broken gateway: %v", err)
	}
	if order.PaymentIntentID != nil {
		t.Error("intent attached despite gateway failure")
	}
	if order.Status != model.OrderStatusPending {
		t.Errorf("status = %s, want PENDING", order.Status)
	}
	firstKey := s.gateway.lastIntent.IdempotencyKey

	// lazy repair on read once the gateway recovers
	s.gateway.failCreate = false
	repaired, _, err := s.checkout.GetOrder(ctx, testTenant, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if repaired.PaymentIntentID == nil {
		t.Fatal("intent not repaired")
	}
	if s.gateway.lastIntent.IdempotencyKey != firstKey {
		t.Errorf("repair used key %s, want the original %s", s.gateway.lastIntent.IdempotencyKey, firstKey)
	}

	// a further read must not create another intent
	calls := s.gateway.createCalls
	if _, _, err := s.checkout.GetOrder(ctx, testTenant, order.ID); err != nil {
		t.Fatalf("get order: %v", err)
	}
	if s.gateway.createCalls != calls {
		t.Errorf("intent re-created on read, calls = %d, want %d", s.gateway.createCalls, calls)
	}
}

func TestCancelCheckout(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 2)
	order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if err := s.checkout.CancelCheckout(ctx, testTenant, order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	got, _, err := s.checkout.GetOrder(ctx, testTenant, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != model.OrderStatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	if len(s.gateway.cancelled) != 1 {
		t.Errorf("intent cancellations = %d, want 1", len(s.gateway.cancelled))
	}

	// the order's reservations are released; the stock is held by the
	// reopened cart again, so availability stays at 10 minus the cart's 2
	if avail := available(t, s, "p1"); avail != 8 {
		t.Errorf("available = %d, want 8", avail)
	}
	var reservations []*model.Reservation
	if err := s.db.Where("order_id = ?", order.ID).Find(&reservations).Error; err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	for _, res := range reservations {
		if res.Status != model.ReservationStatusReleased {
			t.Errorf("reservation %d status = %s, want RELEASED", res.ID, res.Status)
		}
	}

	// the cart reopens for another attempt
	reopened, _, err := s.carts.GetCart(ctx, testTenant, cart.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if reopened.Status != model.CartStatusActive {
		t.Errorf("cart status = %s, want active", reopened.Status)
	}
}

func TestReopenedCartCanCheckOutAgain(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 2)
	first, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("first checkout: %v", err)
	}
	if err := s.checkout.CancelCheckout(ctx, testTenant, first.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	second, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("second checkout of reopened cart: %v", err)
	}
	if second.Status != model.OrderStatusPending {
		t.Errorf("status = %s, want PENDING", second.Status)
	}
	if second.OrderNumber <= first.OrderNumber {
		t.Errorf("second order number %s not after %s", second.OrderNumber, first.OrderNumber)
	}
	if avail := available(t, s, "p1"); avail != 8 {
		t.Errorf("available = %d, want 8", avail)
	}
}

func TestCancelledCheckoutKeepsItsHold(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	// a single unit, held by customer A's cart
	seedProduct(t, s.db, "p1", 2500)
	seedBalance(t, s.db, "p1", "wh1", 1)
	cartA := customerCart(t, s, "cust-a")
	if _, err := s.carts.AddItem(ctx, testTenant, cartA.ID, "p1", "", 1); err != nil {
		t.Fatalf("add item: %v", err)
	}

	order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cartA.ID))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if err := s.checkout.CancelCheckout(ctx, testTenant, order.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	// the unit went back onto A's reopened cart, so B cannot grab it
	cartB := customerCart(t, s, "cust-b")
	_, err = s.carts.AddItem(ctx, testTenant, cartB.ID, "p1", "", 1)
	if !errors.Is(err, apperr.ErrInsufficientStock) {
		t.Fatalf("competing add error = %v, want ErrInsufficientStock", err)
	}

	// and A can still complete the purchase
	if _, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cartA.ID)); err != nil {
		t.Fatalf("re-checkout: %v", err)
	}
}

func TestFailedCheckoutBurnsOrderNumber(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	// an attempt that fails validation still consumes its number
	empty := customerCart(t, s, "cust-1")
	if _, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(empty.ID)); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("empty cart error = %v, want ErrValidation", err)
	}

	cart := readyCart(t, s, "cust-2", "p1", 1)
	order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	want := fmt.Sprintf("ORD-%s-00002", time.Now().Format("200601"))
	if order.OrderNumber != want {
		t.Errorf("order number = %s, want %s (00001 burned by the failed attempt)", order.OrderNumber, want)
	}
}

func TestConcurrentCheckoutsCreateOneOrder(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 1)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
		}(i)
	}
	wg.Wait()

	var ok, conflict int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, apperr.ErrConflict):
			conflict++
		default:
			t.Fatalf("unexpected checkout error: %v", err)
		}
	}
	if ok != 1 || conflict != 1 {
		t.Errorf("results = %d ok / %d conflict, want 1/1", ok, conflict)
	}

	var orders int64
	if err := s.db.Model(&model.Order{}).Where("cart_id = ?", cart.ID).Count(&orders).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 1 {
		t.Errorf("orders for cart = %d, want 1", orders)
	}
}

func TestCancelAfterConfirmConflicts(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 1)
	order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if err := s.db.Model(&model.Order{}).Where("id = ?", order.ID).
		Update("status", model.OrderStatusConfirmed).Error; err != nil {
		t.Fatalf("confirm order: %v", err)
	}

	err = s.checkout.CancelCheckout(ctx, testTenant, order.ID)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("cancel after confirm error = %v, want ErrConflict", err)
	}
}

func TestAdvanceOrder(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 1)
	order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	// PENDING cannot jump to SHIPPED
	err = s.checkout.AdvanceOrder(ctx, testTenant, order.ID, model.OrderStatusShipped)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("invalid advance error = %v, want ErrConflict", err)
	}

	for _, to := range []string{
		model.OrderStatusConfirmed,
		model.OrderStatusProcessing,
		model.OrderStatusShipped,
		model.OrderStatusDelivered,
	} {
		if err := s.checkout.AdvanceOrder(ctx, testTenant, order.ID, to); err != nil {
			t.Fatalf("advance to %s: %v", to, err)
		}
	}

	got, _, err := s.checkout.GetOrder(ctx, testTenant, order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if got.Status != model.OrderStatusDelivered {
		t.Errorf("status = %s, want DELIVERED", got.Status)
	}
}

func TestCheckoutCreditLimit(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	// a separate checkout service with a limit below the cart's grand total
	pricing, err := NewPricingCalculator(&config.Pricing{
		TaxRate:                    "0.10",
		Currency:                   "USD",
		FreeShippingThresholdCents: 10000,
		FlatShippingRateCents:      500,
	})
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}
	limited := NewCheckoutService(
		s.db,
		s.cartRepo,
		s.orderRepo,
		s.stockRepo,
		repository.NewCounterRepository(s.db),
		repository.NewPaymentRepository(s.db),
		s.gateway,
		pricing,
		&config.Checkout{
			TxTimeout:        30 * time.Second,
			CartTTL:          72 * time.Hour,
			CreditLimitCents: 5000,
		},
	)

	cart := readyCart(t, s, "cust-1", "p1", 2) // grand total 6000

	_, err = limited.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("over-limit checkout error = %v, want ErrValidation", err)
	}

	// still an active cart, still reserved
	got, _, err := s.carts.GetCart(ctx, testTenant, cart.ID)
	if err != nil {
		t.Fatalf("get cart: %v", err)
	}
	if got.Status != model.CartStatusActive {
		t.Errorf("cart status = %s, want active", got.Status)
	}
}

func TestRequestRefundClampsToGrandTotal(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 1)
	order, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID))
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}

	if err := s.checkout.RequestRefund(ctx, testTenant, order.ID, order.GrandTotalCents+999); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if len(s.gateway.refunds) != 1 || s.gateway.refunds[0] != order.GrandTotalCents {
		t.Errorf("refund amounts = %v, want [%d]", s.gateway.refunds, order.GrandTotalCents)
	}

	// once the ledger shows a full refund, further requests are conflicts
	if err := s.db.Create(&model.Payment{
		ID:          "pay-refund",
		TenantID:    testTenant,
		OrderID:     order.ID,
		Status:      model.PaymentStatusRefunded,
		AmountCents: order.GrandTotalCents,
		Currency:    "USD",
	}).Error; err != nil {
		t.Fatalf("seed refund row: %v", err)
	}
	err = s.checkout.RequestRefund(ctx, testTenant, order.ID, 100)
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("refund on refunded order error = %v, want ErrConflict", err)
	}
}
