package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-core/internal/apperr"
	"commerce-core/internal/config"
	"commerce-core/internal/model"
	"commerce-core/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CartService interface {
	// GetOrCreateCart is an idempotent lookup-or-create by customer id or
	// anonymous session token.
	GetOrCreateCart(ctx context.Context, tenantID string, customerID, sessionToken *string) (*model.Cart, error)
	GetCart(ctx context.Context, tenantID, cartID string) (*model.Cart, []*model.CartItem, error)
	AddItem(ctx context.Context, tenantID, cartID, productID, variantID string, qty int) (*model.Cart, error)
	UpdateItem(ctx context.Context, tenantID, cartID, productID, variantID string, qty int) (*model.Cart, error)
	RemoveItem(ctx context.Context, tenantID, cartID, productID, variantID string) (*model.Cart, error)
	ApplyCoupon(ctx context.Context, tenantID, cartID, code string) (*model.Cart, error)
	RemoveCoupon(ctx context.Context, tenantID, cartID string) (*model.Cart, error)
	// MergeCarts folds an anonymous cart into the customer's cart on login.
	MergeCarts(ctx context.Context, tenantID, sessionToken, customerID string) (*model.Cart, error)
}

type cartServiceImpl struct {
	db          *gorm.DB
	cartRepo    repository.CartRepository
	productRepo repository.ProductRepository
	stockRepo   repository.StockRepository
	couponRepo  repository.CouponRepository
	pricing     *PricingCalculator
	cartTTL     time.Duration
}

func NewCartService(
	db *gorm.DB,
	cartRepo repository.CartRepository,
	productRepo repository.ProductRepository,
	stockRepo repository.StockRepository,
	couponRepo repository.CouponRepository,
	pricing *PricingCalculator,
	cfg *config.Checkout,
) CartService {
	return &cartServiceImpl{
		db:          db,
		cartRepo:    cartRepo,
		productRepo: productRepo,
		stockRepo:   stockRepo,
		couponRepo:  couponRepo,
		pricing:     pricing,
		cartTTL:     cfg.CartTTL,
	}
}

func (s *cartServiceImpl) GetOrCreateCart(ctx context.Context, tenantID string, customerID, sessionToken *string) (*model.Cart, error) {
	if customerID == nil && sessionToken == nil {
		return nil, fmt.Errorf("cart owner required: %w", apperr.ErrValidation)
	}

	now := time.Now()
	var cart *model.Cart
	var err error
	if customerID != nil {
		cart, err = s.cartRepo.FindActiveByCustomer(ctx, nil, tenantID, *customerID, now)
	} else {
		cart, err = s.cartRepo.FindActiveBySession(ctx, nil, tenantID, *sessionToken, now)
	}
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("find cart: %w", err)
	}

	cart = &model.Cart{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		CustomerID:   customerID,
		SessionToken: sessionToken,
		Status:       model.CartStatusActive,
		ExpiresAt:    now.Add(s.cartTTL),
	}
	if err := s.cartRepo.Create(ctx, nil, cart); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return cart, nil
}

func (s *cartServiceImpl) GetCart(ctx context.Context, tenantID, cartID string) (*model.Cart, []*model.CartItem, error) {
	cart, err := s.cartRepo.FindByID(ctx, nil, tenantID, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, fmt.Errorf("cart %s: %w", cartID, apperr.ErrNotFound)
		}
		return nil, nil, err
	}
	items, err := s.cartRepo.Items(ctx, nil, cartID)
	if err != nil {
		return nil, nil, err
	}
	return cart, items, nil
}

// activeCartForUpdate locks the cart row and checks it is still mutable.
func (s *cartServiceImpl) activeCartForUpdate(ctx context.Context, tx *gorm.DB, tenantID, cartID string) (*model.Cart, error) {
	cart, err := s.cartRepo.FindByIDForUpdate(ctx, tx, tenantID, cartID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cart %s: %w", cartID, apperr.ErrNotFound)
		}
		return nil, err
	}
	if cart.Status != model.CartStatusActive {
		return nil, fmt.Errorf("cart %s is %s: %w", cartID, cart.Status, apperr.ErrConflict)
	}
	if !cart.ExpiresAt.After(time.Now()) {
		return nil, fmt.Errorf("cart %s expired: %w", cartID, apperr.ErrConflict)
	}
	return cart, nil
}

func (s *cartServiceImpl) AddItem(ctx context.Context, tenantID, cartID, productID, variantID string, qty int) (*model.Cart, error) {
	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive: %w", apperr.ErrValidation)
	}

	var out *model.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.activeCartForUpdate(ctx, tx, tenantID, cartID)
		if err != nil {
			return err
		}

		product, err := s.productRepo.FindByID(ctx, tx, tenantID, productID)
		if err != nil {
			return err
		}

		existing, err := s.cartRepo.FindItem(ctx, tx, cartID, productID, variantID)
		if err != nil {
			return err
		}

		// Available locks the balance rows, so the check and the reserve
		// below are serialized per item across handlers.
		available, err := s.stockRepo.Available(ctx, tx, tenantID, productID)
		if err != nil {
			return err
		}
		if qty > available {
			return fmt.Errorf("product %s: requested %d, available %d: %w",
				productID, qty, available, apperr.ErrInsufficientStock)
		}

		if existing != nil {
			existing.Quantity += qty
			if err := s.cartRepo.SaveItem(ctx, tx, existing); err != nil {
				return err
			}
		} else {
			item := &model.CartItem{
				CartID:         cartID,
				ProductID:      productID,
				VariantID:      variantID,
				Sku:            product.Sku,
				Name:           product.Name,
				Quantity:       qty,
				UnitPriceCents: product.PriceCents,
			}
			if err := s.cartRepo.SaveItem(ctx, tx, item); err != nil {
				return err
			}
		}

		if _, err := s.stockRepo.Reserve(ctx, tx, tenantID, productID, qty); err != nil {
			return err
		}

		out, err = s.recomputeTotals(ctx, tx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *cartServiceImpl) UpdateItem(ctx context.Context, tenantID, cartID, productID, variantID string, qty int) (*model.Cart, error) {
	if qty < 0 {
		return nil, fmt.Errorf("quantity must not be negative: %w", apperr.ErrValidation)
	}
	if qty == 0 {
		return s.RemoveItem(ctx, tenantID, cartID, productID, variantID)
	}

	var out *model.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.activeCartForUpdate(ctx, tx, tenantID, cartID)
		if err != nil {
			return err
		}

		item, err := s.cartRepo.FindItem(ctx, tx, cartID, productID, variantID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("cart line %s: %w", productID, apperr.ErrNotFound)
		}

		available, err := s.stockRepo.Available(ctx, tx, tenantID, productID)
		if err != nil {
			return err
		}
		// the line's own reservation counts toward what this cart may hold
		if qty > available+item.Quantity {
			return fmt.Errorf("product %s: requested %d, available %d: %w",
				productID, qty, available+item.Quantity, apperr.ErrInsufficientStock)
		}

		delta := qty - item.Quantity
		item.Quantity = qty
		if err := s.cartRepo.SaveItem(ctx, tx, item); err != nil {
			return err
		}

		switch {
		case delta > 0:
			if _, err := s.stockRepo.Reserve(ctx, tx, tenantID, productID, delta); err != nil {
				return err
			}
		case delta < 0:
			if err := s.stockRepo.Release(ctx, tx, tenantID, productID, -delta); err != nil {
				return err
			}
		}

		out, err = s.recomputeTotals(ctx, tx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *cartServiceImpl) RemoveItem(ctx context.Context, tenantID, cartID, productID, variantID string) (*model.Cart, error) {
	var out *model.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.activeCartForUpdate(ctx, tx, tenantID, cartID)
		if err != nil {
			return err
		}

		item, err := s.cartRepo.FindItem(ctx, tx, cartID, productID, variantID)
		if err != nil {
			return err
		}
		if item == nil {
			return fmt.Errorf("cart line %s: %w", productID, apperr.ErrNotFound)
		}

		if err := s.stockRepo.Release(ctx, tx, tenantID, productID, item.Quantity); err != nil {
			return err
		}
		if err := s.cartRepo.DeleteItem(ctx, tx, item.ID); err != nil {
			return err
		}

		out, err = s.recomputeTotals(ctx, tx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *cartServiceImpl) ApplyCoupon(ctx context.Context, tenantID, cartID, code string) (*model.Cart, error) {
	var out *model.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.activeCartForUpdate(ctx, tx, tenantID, cartID)
		if err != nil {
			return err
		}

		// exclusive lock on the coupon row serializes concurrent redemption
		// checks on the same code
		coupon, err := s.couponRepo.FindByCodeForUpdate(ctx, tx, tenantID, code)
		if err != nil {
			return err
		}

		items, err := s.cartRepo.Items(ctx, tx, cartID)
		if err != nil {
			return err
		}
		subtotal := int64(0)
		for _, item := range items {
			subtotal += item.UnitPriceCents * int64(item.Quantity)
		}

		if err := s.validateCoupon(ctx, tx, coupon, cart, subtotal); err != nil {
			return err
		}

		cart.CouponCode = &coupon.Code
		out, err = s.recomputeTotals(ctx, tx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *cartServiceImpl) validateCoupon(ctx context.Context, tx *gorm.DB, coupon *model.Coupon, cart *model.Cart, subtotalCents int64) error {
	now := time.Now()
	if !coupon.Active || now.Before(coupon.ValidFrom) || now.After(coupon.ValidTo) {
		return fmt.Errorf("coupon %s not active: %w", coupon.Code, apperr.ErrValidation)
	}
	if subtotalCents < coupon.MinOrderCents {
		return fmt.Errorf("coupon %s requires a minimum order of %d cents: %w",
			coupon.Code, coupon.MinOrderCents, apperr.ErrValidation)
	}
	if coupon.UsageLimit > 0 && coupon.UsedCount >= coupon.UsageLimit {
		return fmt.Errorf("coupon %s exhausted: %w", coupon.Code, apperr.ErrValidation)
	}
	if coupon.PerCustomerLimit > 0 && cart.CustomerID != nil {
		used, err := s.couponRepo.CustomerUsageCount(ctx, tx, coupon.ID, *cart.CustomerID)
		if err != nil {
			return err
		}
		if used >= int64(coupon.PerCustomerLimit) {
			return fmt.Errorf("coupon %s already used: %w", coupon.Code, apperr.ErrValidation)
		}
	}
	return nil
}

func (s *cartServiceImpl) RemoveCoupon(ctx context.Context, tenantID, cartID string) (*model.Cart, error) {
	var out *model.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cart, err := s.activeCartForUpdate(ctx, tx, tenantID, cartID)
		if err != nil {
			return err
		}
		cart.CouponCode = nil
		out, err = s.recomputeTotals(ctx, tx, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *cartServiceImpl) MergeCarts(ctx context.Context, tenantID, sessionToken, customerID string) (*model.Cart, error) {
	var out *model.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		anon, err := s.cartRepo.FindActiveBySession(ctx, tx, tenantID, sessionToken, now)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("anonymous cart: %w", apperr.ErrNotFound)
			}
			return err
		}

		target, err := s.cartRepo.FindActiveByCustomer(ctx, tx, tenantID, customerID, now)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// no authenticated cart: re-own the anonymous one in place
			anon.CustomerID = &customerID
			anon.SessionToken = nil
			if err := s.cartRepo.Save(ctx, tx, anon); err != nil {
				return err
			}
			out = anon
			return nil
		}
		if err != nil {
			return err
		}

		// fold each anonymous line into the authenticated cart; stock stays
		// reserved, only ownership of the reservation moves
		anonItems, err := s.cartRepo.Items(ctx, tx, anon.ID)
		if err != nil {
			return err
		}
		for _, line := range anonItems {
			existing, err := s.cartRepo.FindItem(ctx, tx, target.ID, line.ProductID, line.VariantID)
			if err != nil {
				return err
			}
			if existing != nil {
				existing.Quantity += line.Quantity
				if err := s.cartRepo.SaveItem(ctx, tx, existing); err != nil {
					return err
				}
			} else {
				if err := s.cartRepo.SaveItem(ctx, tx, &model.CartItem{
					CartID:         target.ID,
					ProductID:      line.ProductID,
					VariantID:      line.VariantID,
					Sku:            line.Sku,
					Name:           line.Name,
					Quantity:       line.Quantity,
					UnitPriceCents: line.UnitPriceCents,
				}); err != nil {
					return err
				}
			}
		}

		if err := s.cartRepo.DeleteItems(ctx, tx, anon.ID); err != nil {
			return err
		}
		if err := s.cartRepo.Delete(ctx, tx, anon.ID); err != nil {
			return err
		}

		out, err = s.recomputeTotals(ctx, tx, target)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// recomputeTotals reloads the lines, re-derives all totals and persists the
// cart. Called at the end of every mutating operation, inside its transaction.
func (s *cartServiceImpl) recomputeTotals(ctx context.Context, tx *gorm.DB, cart *model.Cart) (*model.Cart, error) {
	items, err := s.cartRepo.Items(ctx, tx, cart.ID)
	if err != nil {
		return nil, err
	}

	var coupon *model.Coupon
	if cart.CouponCode != nil {
		coupon, err = s.couponRepo.FindByCode(ctx, tx, cart.TenantID, *cart.CouponCode)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				// coupon deleted since application; drop it from the cart
				cart.CouponCode = nil
				coupon = nil
			} else {
				return nil, err
			}
		}
	}

	totals := s.pricing.Compute(items, coupon)
	cart.SubtotalCents = totals.SubtotalCents
	cart.DiscountCents = totals.DiscountCents
	cart.ShippingCents = totals.ShippingCents
	cart.TaxCents = totals.TaxCents
	cart.GrandTotalCents = totals.GrandTotalCents

	if err := s.cartRepo.Save(ctx, tx, cart); err != nil {
		return nil, err
	}
	return cart, nil
}
