package handler

import (
	"net/http"
	"strconv"

	"commerce-core/internal/dto"
	"commerce-core/internal/middleware"
	"commerce-core/internal/model"
	"commerce-core/internal/service"

	"github.com/labstack/echo/v4"
)

type CheckoutHandler struct {
	checkoutService service.CheckoutService
}

func NewCheckoutHandler(checkoutService service.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutService: checkoutService}
}

func checkoutResponse(order *model.Order) dto.CheckoutResponse {
	resp := dto.CheckoutResponse{
		OrderID:         order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          order.Status,
		GrandTotalCents: order.GrandTotalCents,
		PaymentPending:  order.PaymentIntentID == nil,
	}
	if order.PaymentIntentID != nil {
		resp.PaymentIntentID = *order.PaymentIntentID
	}
	return resp
}

func (h *CheckoutHandler) CreateCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}
	if req.CartID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "cart_id required")
	}

	order, err := h.checkoutService.CreateCheckout(ctx, middleware.Tenant(c), &req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, checkoutResponse(order))
}

func (h *CheckoutHandler) CancelCheckout(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.checkoutService.CancelCheckout(ctx, middleware.Tenant(c), c.Param("orderID")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *CheckoutHandler) GetOrder(c echo.Context) error {
	ctx := c.Request().Context()

	order, items, err := h.checkoutService.GetOrder(ctx, middleware.Tenant(c), c.Param("orderID"))
	if err != nil {
		return err
	}

	resp := checkoutResponse(order)
	type orderItem struct {
		ProductID      string `json:"product_id"`
		Sku            string `json:"sku"`
		Name           string `json:"name"`
		Quantity       int    `json:"quantity"`
		UnitPriceCents int64  `json:"unit_price_cents"`
	}
	out := struct {
		dto.CheckoutResponse
		Items []orderItem `json:"items"`
	}{CheckoutResponse: resp}
	for _, item := range items {
		out.Items = append(out.Items, orderItem{
			ProductID:      item.ProductID,
			Sku:            item.Sku,
			Name:           item.Name,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) ListOrders(c echo.Context) error {
	ctx := c.Request().Context()

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))

	orders, err := h.checkoutService.ListOrders(ctx, middleware.Tenant(c), middleware.Customer(c), limit, offset)
	if err != nil {
		return err
	}

	out := make([]dto.CheckoutResponse, 0, len(orders))
	for _, order := range orders {
		out = append(out, checkoutResponse(order))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) ListPayments(c echo.Context) error {
	ctx := c.Request().Context()

	payments, err := h.checkoutService.OrderPayments(ctx, middleware.Tenant(c), c.Param("orderID"))
	if err != nil {
		return err
	}

	type paymentRow struct {
		Status        string `json:"status"`
		AmountCents   int64  `json:"amount_cents"`
		Currency      string `json:"currency"`
		FailureReason string `json:"failure_reason,omitempty"`
	}
	out := make([]paymentRow, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentRow{
			Status:        p.Status,
			AmountCents:   p.AmountCents,
			Currency:      p.Currency,
			FailureReason: p.FailureReason,
		})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) RequestRefund(c echo.Context) error {
	ctx := c.Request().Context()

	var req dto.RefundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if err := h.checkoutService.RequestRefund(ctx, middleware.Tenant(c), c.Param("orderID"), req.AmountCents); err != nil {
		return err
	}
	return c.NoContent(http.StatusAccepted)
}

func (h *CheckoutHandler) AdvanceOrder(c echo.Context) error {
	ctx := c.Request().Context()

	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid req body")
	}

	if err := h.checkoutService.AdvanceOrder(ctx, middleware.Tenant(c), c.Param("orderID"), req.Status); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
