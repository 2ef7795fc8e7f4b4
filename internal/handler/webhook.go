package handler

import (
	"encoding/json"
	"io"
	"net/http"

	"commerce-core/internal/client"
	"commerce-core/internal/dto"
	"commerce-core/internal/middleware"
	"commerce-core/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"
)

type WebhookHandler struct {
	gateway          client.PaymentGateway
	reconcileService service.ReconcileService
}

func NewWebhookHandler(gateway client.PaymentGateway, reconcileService service.ReconcileService) *WebhookHandler {
	return &WebhookHandler{
		gateway:          gateway,
		reconcileService: reconcileService,
	}
}

// PaymentWebhook verifies the provider signature over the raw body before
// anything in the event is trusted, then hands it to the reconciler. The
// endpoint acknowledges idempotently so the provider never storms us with
// redeliveries.
func (h *WebhookHandler) PaymentWebhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}

	if err := h.gateway.VerifyWebhookSignature(c.Request().Header, body); err != nil {
		log.Warnf("webhook signature rejected: %v", err)
		return echo.NewHTTPError(http.StatusBadRequest, "invalid signature")
	}

	var event dto.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "decode webhook payload")
	}

	if err := h.reconcileService.HandleEvent(c.Request().Context(), middleware.Tenant(c), &event); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
