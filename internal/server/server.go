package server

import (
	"errors"
	"net/http"

	"commerce-core/internal/apperr"
	"commerce-core/internal/client"
	"commerce-core/internal/handler"
	appmw "commerce-core/internal/middleware"
	"commerce-core/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Server struct {
	echo            *echo.Echo
	cartHandler     *handler.CartHandler
	checkoutHandler *handler.CheckoutHandler
	webhookHandler  *handler.WebhookHandler
}

func NewServer(
	cartService service.CartService,
	checkoutService service.CheckoutService,
	reconcileService service.ReconcileService,
	gateway client.PaymentGateway,
) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.HTTPErrorHandler = errorHandler(e)

	s := &Server{
		echo:            e,
		cartHandler:     handler.NewCartHandler(cartService),
		checkoutHandler: handler.NewCheckoutHandler(checkoutService),
		webhookHandler:  handler.NewWebhookHandler(gateway, reconcileService),
	}

	s.setupRoutes()
	return s
}

// errorHandler maps the core's error taxonomy onto HTTP statuses.
func errorHandler(e *echo.Echo) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		switch {
		case errors.Is(err, apperr.ErrValidation):
			err = echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, apperr.ErrNotFound):
			err = echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrInsufficientStock):
			err = echo.NewHTTPError(http.StatusConflict, err.Error())
		case errors.Is(err, apperr.ErrRetryable):
			err = echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, apperr.ErrGateway):
			err = echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
		e.DefaultHTTPErrorHandler(err, c)
	}
}

func (s *Server) setupRoutes() {
	api := s.echo.Group("/api", appmw.Identity())

	api.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{"status": "ok"})
	})

	// -------- carts --------
	api.POST("/carts", s.cartHandler.GetOrCreateCart)
	api.GET("/carts/:cartID", s.cartHandler.GetCart)
	api.POST("/carts/:cartID/items", s.cartHandler.AddItem)
	api.PUT("/carts/:cartID/items/:productID", s.cartHandler.UpdateItem)
	api.DELETE("/carts/:cartID/items/:productID", s.cartHandler.RemoveItem)
	api.POST("/carts/:cartID/coupon", s.cartHandler.ApplyCoupon)
	api.DELETE("/carts/:cartID/coupon", s.cartHandler.RemoveCoupon)
	api.POST("/carts/merge", s.cartHandler.MergeCarts)

	// -------- checkout / orders --------
	api.POST("/checkout", s.checkoutHandler.CreateCheckout)
	api.GET("/orders", s.checkoutHandler.ListOrders)
	api.GET("/orders/:orderID", s.checkoutHandler.GetOrder)
	api.GET("/orders/:orderID/payments", s.checkoutHandler.ListPayments)
	api.POST("/orders/:orderID/cancel", s.checkoutHandler.CancelCheckout)
	api.POST("/orders/:orderID/refund", s.checkoutHandler.RequestRefund)
	api.PATCH("/orders/:orderID/status", s.checkoutHandler.AdvanceOrder)

	// -------- provider webhooks --------
	api.POST("/webhooks/payment", s.webhookHandler.PaymentWebhook)
}

func (s *Server) Start(address string) error {
	return s.echo.Start(address)
}

func (s *Server) Shutdown() error {
	return s.echo.Close()
}
