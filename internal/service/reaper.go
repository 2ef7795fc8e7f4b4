package service

import (
	"context"
	"time"

	"commerce-core/internal/config"
	"commerce-core/internal/model"
	"commerce-core/internal/repository"

	"github.com/labstack/gommon/log"
	"gorm.io/gorm"
)

const reaperBatchSize = 100

// CartExpiryReaper reclaims reservations from abandoned carts. It runs
// outside the hot path and takes the same per-item locks the cart mutations
// take, one cart at a time.
type CartExpiryReaper struct {
	db        *gorm.DB
	cartRepo  repository.CartRepository
	stockRepo repository.StockRepository

	sweepInterval time.Duration
	purgeInterval time.Duration
	retention     time.Duration
}

func NewCartExpiryReaper(db *gorm.DB, cartRepo repository.CartRepository, stockRepo repository.StockRepository, cfg *config.Reaper) *CartExpiryReaper {
	return &CartExpiryReaper{
		db:            db,
		cartRepo:      cartRepo,
		stockRepo:     stockRepo,
		sweepInterval: cfg.SweepInterval,
		purgeInterval: cfg.PurgeInterval,
		retention:     cfg.Retention,
	}
}

func (r *CartExpiryReaper) Run(ctx context.Context) {
	sweep := time.NewTicker(r.sweepInterval)
	purge := time.NewTicker(r.purgeInterval)
	defer sweep.Stop()
	defer purge.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweep.C:
			r.SweepExpired(ctx)
		case <-purge.C:
			r.PurgeAbandoned(ctx)
		}
	}
}

// SweepExpired releases the reservations of carts past expiry and marks them
// abandoned.
func (r *CartExpiryReaper) SweepExpired(ctx context.Context) {
	carts, err := r.cartRepo.ExpiredActive(ctx, time.Now(), reaperBatchSize)
	if err != nil {
		log.Errorf("reaper list expired carts: %v", err)
		return
	}

	for _, cart := range carts {
		if ctx.Err() != nil {
			return
		}
		if err := r.reapOne(ctx, cart.TenantID, cart.ID); err != nil {
			log.Errorf("reap cart %s: %v", cart.ID, err)
		}
	}
}

func (r *CartExpiryReaper) reapOne(ctx context.Context, tenantID, cartID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := r.cartRepo.FindByIDForUpdate(ctx, tx, tenantID, cartID)
		if err != nil {
			return err
		}
		// re-check under the lock: a checkout may have converted the cart
		// between the listing and now
		if cart.Status != model.CartStatusActive || cart.ExpiresAt.After(time.Now()) {
			return nil
		}

		items, err := r.cartRepo.Items(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := r.stockRepo.Release(ctx, tx, tenantID, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		cart.Status = model.CartStatusAbandoned
		return r.cartRepo.Save(ctx, tx, cart)
	})
}

// PurgeAbandoned hard-deletes abandoned carts past the retention window.
func (r *CartExpiryReaper) PurgeAbandoned(ctx context.Context) {
	cutoff := time.Now().Add(-r.retention)
	purged, err := r.cartRepo.PurgeAbandoned(ctx, cutoff, reaperBatchSize)
	if err != nil {
		log.Errorf("reaper purge: %v", err)
		return
	}
	if purged > 0 {
		log.Infof("purged %d abandoned carts", purged)
	}
}
