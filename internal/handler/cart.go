package handler

import (
	"net/http"

	"commerce-core/internal/dto"
	"commerce-core/internal/middleware"
	"commerce-core/internal/model"
	"commerce-core/internal/service"

	"github.com/labstack/echo/v4"
)

type CartHandler struct {
	cartService service.CartService
}

func NewCartHandler(cartService service.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

func cartResponse(cart *model.Cart, items []*model.CartItem) dto.CartResponse {
	resp := dto.CartResponse{
		CartID:          cart.ID,
		Status:          cart.Status,
		SubtotalCents:   cart.SubtotalCents,
		DiscountCents:   cart.DiscountCents,
		ShippingCents:   cart.ShippingCents,
		TaxCents:        cart.TaxCents,
		GrandTotalCents: cart.GrandTotalCents,
		Items:           []dto.CartItemResponse{},
	}
	if cart.CouponCode != nil {
		resp.CouponCode = *cart.CouponCode
	}
	for _, item := range items {
		resp.Items = append(resp.Items, dto.CartItemResponse{
			ProductID:      item.ProductID,
			VariantID:      item.VariantID,
			Sku:            item.Sku,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return resp
}

func (h *CartHandler) GetOrCreateCart(c echo.Context) error {
	ctx := c.Request().Context()

	var customerID, sessionToken *string
	if v := middleware.Customer(c); v != "" {
		customerID = &v
	}
	if v := middleware.Session(c); v != "" {
		sessionToken = &v
	}

	cart, err := h.cartService.GetOrCreateCart(ctx, middleware.Tenant(c), customerID, sessionToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartResponse(cart, nil))
}

func (h *CartHandler) GetCart(c echo.Context) error {
	ctx := c.Request().Context()

	cart, items, err := h.cartService.GetCart(ctx, middleware.Tenant(c), c.Param("cartID"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartResponse(cart, items))
}

func (h *CartHandler) AddItem(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.AddItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cart, err := h.cartService.AddItem(ctx, middleware.Tenant(c), c.Param("cartID"), req.ProductID, req.VariantID, req.Quantity)
	if err != nil {
		return err
	}

	items, err := h.cartItems(c, cart.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartResponse(cart, items))
}

func (h *CartHandler) UpdateItem(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.UpdateItemRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cart, err := h.cartService.UpdateItem(ctx, middleware.Tenant(c), c.Param("cartID"),
		c.Param("productID"), c.QueryParam("variant_id"), req.Quantity)
	if err != nil {
		return err
	}

	items, err := h.cartItems(c, cart.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartResponse(cart, items))
}

func (h *CartHandler) RemoveItem(c echo.Context) error {
	ctx := c.Request().Context()

	cart, err := h.cartService.RemoveItem(ctx, middleware.Tenant(c), c.Param("cartID"),
		c.Param("productID"), c.QueryParam("variant_id"))
	if err != nil {
		return err
	}

	items, err := h.cartItems(c, cart.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartResponse(cart, items))
}

func (h *CartHandler) ApplyCoupon(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.ApplyCouponRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	cart, err := h.cartService.ApplyCoupon(ctx, middleware.Tenant(c), c.Param("cartID"), req.Code)
	if err != nil {
		return err
	}

	items, err := h.cartItems(c, cart.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartResponse(cart, items))
}

func (h *CartHandler) RemoveCoupon(c echo.Context) error {
	ctx := c.Request().Context()

	cart, err := h.cartService.RemoveCoupon(ctx, middleware.Tenant(c), c.Param("cartID"))
	if err != nil {
		return err
	}

	items, err := h.cartItems(c, cart.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartResponse(cart, items))
}

func (h *CartHandler) MergeCarts(c echo.Context) error {
	ctx := c.Request().Context()

	customerID := middleware.Customer(c)
	sessionToken := middleware.Session(c)
	if customerID == "" || sessionToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "merge requires both X-Customer-Id and X-Session-Token")
	}

	cart, err := h.cartService.MergeCarts(ctx, middleware.Tenant(c), sessionToken, customerID)
	if err != nil {
		return err
	}

	items, err := h.cartItems(c, cart.ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, cartResponse(cart, items))
}

func (h *CartHandler) cartItems(c echo.Context, cartID string) ([]*model.CartItem, error) {
	_, items, err := h.cartService.GetCart(c.Request().Context(), middleware.Tenant(c), cartID)
	return items, err
}
