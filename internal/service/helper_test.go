package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"commerce-core/internal/client"
	"commerce-core/internal/config"
	"commerce-core/internal/model"
	"commerce-core/internal/repository"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testTenant = "acme"

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	// one shared in-memory database per test, named after the test so
	// parallel tests never collide
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.NewReplacer("/", "_", " ", "_").Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := client.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// sqlite allows one writer; a single pooled connection serializes the
	// transactions of concurrent goroutines instead of failing them
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// fakeGateway records calls and can be told to fail intent creation.
type fakeGateway struct {
	mu          sync.Mutex
	failCreate  bool
	createCalls int
	lastIntent  *client.IntentRequest
	cancelled   []string
	refunds     []int64
}

func (g *fakeGateway) CreateIntent(_ context.Context, req *client.IntentRequest) (*client.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	g.lastIntent = req
	if g.failCreate {
		return nil, errors.New("gateway unavailable")
	}
	return &client.Intent{
		ID:          "pi_" + req.IdempotencyKey,
		Status:      "requires_payment",
		AmountCents: req.AmountCents,
	}, nil
}

func (g *fakeGateway) GetIntent(_ context.Context, intentID string) (*client.Intent, error) {
	return &client.Intent{ID: intentID, Status: "requires_payment"}, nil
}

func (g *fakeGateway) CancelIntent(_ context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelled = append(g.cancelled, intentID)
	return nil
}

func (g *fakeGateway) CreateRefund(_ context.Context, _ string, amountCents int64, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, amountCents)
	return "re_1", nil
}

func (g *fakeGateway) VerifyWebhookSignature(http.Header, []byte) error { return nil }

type fakeNotifier struct {
	mu            sync.Mutex
	confirmations []string
	webhooks      []string
	fail          bool
}

func (n *fakeNotifier) SendOrderConfirmation(_ context.Context, _, orderID, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("notification service down")
	}
	n.confirmations = append(n.confirmations, orderID)
	return nil
}

func (n *fakeNotifier) DeliverWebhook(_ context.Context, _, event string, _ []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("notification service down")
	}
	n.webhooks = append(n.webhooks, event)
	return nil
}

type testStack struct {
	db          *gorm.DB
	gateway     *fakeGateway
	notifier    *fakeNotifier
	carts       CartService
	checkout    CheckoutService
	reconcile   ReconcileService
	scheduler   *RetryScheduler
	reaper      *CartExpiryReaper
	fulfillment *FulfillmentCoordinator

	cartRepo   repository.CartRepository
	orderRepo  repository.OrderRepository
	stockRepo  repository.StockRepository
	couponRepo repository.CouponRepository
	failedOps  repository.FailedOperationRepository
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := openTestDB(t)

	gateway := &fakeGateway{}
	notifier := &fakeNotifier{}

	cartRepo := repository.NewCartRepository(db)
	productRepo := repository.NewProductRepository(db)
	stockRepo := repository.NewStockRepository(db)
	couponRepo := repository.NewCouponRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	counterRepo := repository.NewCounterRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	webhookEventRepo := repository.NewWebhookEventRepository(db)
	failedOps := repository.NewFailedOperationRepository(db)

	pricing, err := NewPricingCalculator(&config.Pricing{
		TaxRate:                    "0.10",
		Currency:                   "USD",
		FreeShippingThresholdCents: 10000,
		FlatShippingRateCents:      500,
	})
	if err != nil {
		t.Fatalf("pricing: %v", err)
	}

	checkoutCfg := &config.Checkout{
		TxTimeout: 30 * time.Second,
		CartTTL:   72 * time.Hour,
	}

	handlers := []SideEffectHandler{
		NewStockDeductionHandler(db, orderRepo, stockRepo),
		NewCouponUsageHandler(db, orderRepo, couponRepo),
		NewNotificationHandler(notifier),
		NewWebhookDeliveryHandler(notifier),
	}
	fulfillment := NewFulfillmentCoordinator(failedOps, handlers...)

	return &testStack{
		db:          db,
		gateway:     gateway,
		notifier:    notifier,
		fulfillment: fulfillment,
		carts:       NewCartService(db, cartRepo, productRepo, stockRepo, couponRepo, pricing, checkoutCfg),
		checkout:    NewCheckoutService(db, cartRepo, orderRepo, stockRepo, counterRepo, paymentRepo, gateway, pricing, checkoutCfg),
		reconcile:   NewReconcileService(db, orderRepo, paymentRepo, webhookEventRepo, fulfillment),
		scheduler:   NewRetryScheduler(failedOps, &config.Retry{PollInterval: time.Minute, BatchSize: 50}, handlers...),
		reaper: NewCartExpiryReaper(db, cartRepo, stockRepo, &config.Reaper{
			SweepInterval: time.Minute,
			PurgeInterval: time.Hour,
			Retention:     720 * time.Hour,
		}),
		cartRepo:   cartRepo,
		orderRepo:  orderRepo,
		stockRepo:  stockRepo,
		couponRepo: couponRepo,
		failedOps:  failedOps,
	}
}

func seedProduct(t *testing.T, db *gorm.DB, productID string, priceCents int64) {
	t.Helper()
	err := db.Create(&model.Product{
		ID:         productID,
		TenantID:   testTenant,
		Sku:        "SKU-" + productID,
		Name:       "Product " + productID,
		PriceCents: priceCents,
		Currency:   "USD",
	}).Error
	if err != nil {
		t.Fatalf("seed product %s: %v", productID, err)
	}
}

func seedBalance(t *testing.T, db *gorm.DB, productID, warehouseID string, actual int) {
	t.Helper()
	err := db.Create(&model.WarehouseBalance{
		TenantID:    testTenant,
		ProductID:   productID,
		WarehouseID: warehouseID,
		ActualQty:   actual,
	}).Error
	if err != nil {
		t.Fatalf("seed balance %s/%s: %v", productID, warehouseID, err)
	}
}

func seedCoupon(t *testing.T, db *gorm.DB, coupon *model.Coupon) *model.Coupon {
	t.Helper()
	coupon.TenantID = testTenant
	if coupon.ValidFrom.IsZero() {
		coupon.ValidFrom = time.Now().Add(-time.Hour)
	}
	if coupon.ValidTo.IsZero() {
		coupon.ValidTo = time.Now().Add(24 * time.Hour)
	}
	if err := db.Create(coupon).Error; err != nil {
		t.Fatalf("seed coupon %s: %v", coupon.Code, err)
	}
	return coupon
}

// customerCart creates an active cart for the named customer.
func customerCart(t *testing.T, s *testStack, customerID string) *model.Cart {
	t.Helper()
	cart, err := s.carts.GetOrCreateCart(context.Background(), testTenant, &customerID, nil)
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	return cart
}

func available(t *testing.T, s *testStack, productID string) int {
	t.Helper()
	var got int
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		got, err = s.stockRepo.Available(context.Background(), tx, testTenant, productID)
		return err
	})
	if err != nil {
		t.Fatalf("available %s: %v", productID, err)
	}
	return got
}
