package service

import (
	"context"
	"testing"
	"time"

	"commerce-core/internal/model"
)

func expireCart(t *testing.T, s *testStack, cartID string) {
	t.Helper()
	err := s.db.Model(&model.Cart{}).Where("id = ?", cartID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("expire cart: %v", err)
	}
}

func TestSweepReleasesExpiredCart(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	seedProduct(t, s.db, "p1", 1000)
	seedBalance(t, s.db, "p1", "wh1", 10)
	cart := customerCart(t, s, "cust-1")
	if _, err := s.carts.AddItem(ctx, testTenant, cart.ID, "p1", "", 4); err != nil {
		t.Fatalf("add: %v", err)
	}
	expireCart(t, s, cart.ID)

	s.reaper.SweepExpired(ctx)

	var got model.Cart
	if err := s.db.First(&got, "id = ?", cart.ID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if got.Status != model.CartStatusAbandoned {
		t.Errorf("cart status = %s, want abandoned", got.Status)
	}
	if avail := available(t, s, "p1"); avail != 10 {
		t.Errorf("available = %d, want 10 after release", avail)
	}
}

func TestSweepLeavesLiveCartsAlone(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	seedProduct(t, s.db, "p1", 1000)
	seedBalance(t, s.db, "p1", "wh1", 10)
	cart := customerCart(t, s, "cust-1")
	if _, err := s.carts.AddItem(ctx, testTenant, cart.ID, "p1", "", 2); err != nil {
		t.Fatalf("add: %v", err)
	}

	s.reaper.SweepExpired(ctx)

	var got model.Cart
	if err := s.db.First(&got, "id = ?", cart.ID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if got.Status != model.CartStatusActive {
		t.Errorf("cart status = %s, want active", got.Status)
	}
	if avail := available(t, s, "p1"); avail != 8 {
		t.Errorf("available = %d, want 8", avail)
	}
}

func TestSweepSkipsConvertedCarts(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	cart := readyCart(t, s, "cust-1", "p1", 1)
	if _, err := s.checkout.CreateCheckout(ctx, testTenant, checkoutReq(cart.ID)); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	expireCart(t, s, cart.ID)

	s.reaper.SweepExpired(ctx)

	var got model.Cart
	if err := s.db.First(&got, "id = ?", cart.ID).Error; err != nil {
		t.Fatalf("load cart: %v", err)
	}
	if got.Status != model.CartStatusConverted {
		t.Errorf("cart status = %s, want converted", got.Status)
	}
	// the order's reservation is untouched
	if avail := available(t, s, "p1"); avail != 9 {
		t.Errorf("available = %d, want 9", avail)
	}
}

func TestPurgeAbandonedAfterRetention(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	seedProduct(t, s.db, "p1", 1000)
	seedBalance(t, s.db, "p1", "wh1", 10)
	cart := customerCart(t, s, "cust-1")
	if _, err := s.carts.AddItem(ctx, testTenant, cart.ID, "p1", "", 1); err != nil {
		t.Fatalf("add: %v", err)
	}
	expireCart(t, s, cart.ID)
	s.reaper.SweepExpired(ctx)

	// fresh abandonment survives the purge
	s.reaper.PurgeAbandoned(ctx)
	var count int64
	if err := s.db.Model(&model.Cart{}).Where("id = ?", cart.ID).Count(&count).Error; err != nil {
		t.Fatalf("count carts: %v", err)
	}
	if count != 1 {
		t.Fatal("cart purged before retention elapsed")
	}

	// age it past the retention window
	old := time.Now().Add(-1000 * time.Hour)
	if err := s.db.Model(&model.Cart{}).Where("id = ?", cart.ID).
		Update("updated_at", old).Error; err != nil {
		t.Fatalf("age cart: %v", err)
	}

	s.reaper.PurgeAbandoned(ctx)
	if err := s.db.Model(&model.Cart{}).Where("id = ?", cart.ID).Count(&count).Error; err != nil {
		t.Fatalf("count carts: %v", err)
	}
	if count != 0 {
		t.Error("cart not purged after retention")
	}
	if err := s.db.Model(&model.CartItem{}).Where("cart_id = ?", cart.ID).Count(&count).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}
	if count != 0 {
		t.Error("cart items not purged with the cart")
	}
}
