package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"commerce-core/internal/config"
)

// Notifier delivers order lifecycle notifications and outbound webhooks to
// the downstream notification service.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, tenantID, orderID, email string) error
	DeliverWebhook(ctx context.Context, tenantID, event string, payload []byte) error
}

type notifierImpl struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

func NewNotifier(cfg *config.Notifier) Notifier {
	return &notifierImpl{
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
	}
}

func (c *notifierImpl) post(ctx context.Context, path string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notifier error %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (c *notifierImpl) SendOrderConfirmation(ctx context.Context, tenantID, orderID, email string) error {
	return c.post(ctx, "/v1/notifications", map[string]string{
		"tenant_id": tenantID,
		"order_id":  orderID,
		"email":     email,
		"template":  "order_confirmation",
	})
}

func (c *notifierImpl) DeliverWebhook(ctx context.Context, tenantID, event string, payload []byte) error {
	return c.post(ctx, "/v1/webhooks/deliver", map[string]interface{}{
		"tenant_id": tenantID,
		"event":     event,
		"payload":   json.RawMessage(payload),
	})
}
