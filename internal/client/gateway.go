package client

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"commerce-core/internal/config"

	"github.com/shopspring/decimal"
)

// PaymentGateway is the outbound surface every provider implementation must
// cover. Every mutating call is keyed by a caller-supplied idempotency key so
// retries and crash recovery never produce a duplicate charge.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error)
	GetIntent(ctx context.Context, intentID string) (*Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
	CreateRefund(ctx context.Context, intentID string, amountCents int64, idempotencyKey string) (string, error)
	VerifyWebhookSignature(headers http.Header, body []byte) error
}

type IntentRequest struct {
	IdempotencyKey string
	OrderNumber    string
	AmountCents    int64
	Currency       string
}

type Intent struct {
	ID          string
	Status      string
	AmountCents int64
	ApproveURL  string
}

const webhookSignatureHeader = "X-Webhook-Signature"

type httpGatewayImpl struct {
	httpClient    *http.Client
	baseApiURL    string
	clientID      string
	clientSecret  string
	webhookSecret string
}

func NewHTTPGateway(cfg *config.Gateway) PaymentGateway {
	return &httpGatewayImpl{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseApiURL:    cfg.BaseApiURL,
		clientID:      cfg.ClientID,
		clientSecret:  cfg.ClientSecret,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (c *httpGatewayImpl) getAccessToken(ctx context.Context) (string, error) {
	auth := base64.StdEncoding.EncodeToString(
		[]byte(c.clientID + ":" + c.clientSecret),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseApiURL+"/v1/oauth2/token",
		bytes.NewBufferString("grant_type=client_credentials"))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Basic "+auth)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http client do: %w", err)
	}
	defer resp.Body.Close()

	var res struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}

	return res.AccessToken, nil
}

// amountString renders integer cents as the "12.34" string the provider API
// expects.
func amountString(cents int64) string {
	return decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).StringFixed(2)
}

type intentResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount struct {
		Value    string `json:"value"`
		Currency string `json:"currency_code"`
	} `json:"amount"`
	Links []struct {
		Rel  string `json:"rel"`
		Href string `json:"href"`
	} `json:"links"`
}

func (r *intentResult) toIntent() (*Intent, error) {
	out := &Intent{ID: r.ID, Status: r.Status}
	if r.Amount.Value != "" {
		dec, err := decimal.NewFromString(r.Amount.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid amount in gateway response: %w", err)
		}
		out.AmountCents = dec.Mul(decimal.NewFromInt(100)).IntPart()
	}
	for _, link := range r.Links {
		if link.Rel == "approve" {
			out.ApproveURL = link.Href
		}
	}
	return out, nil
}

func (c *httpGatewayImpl) CreateIntent(ctx context.Context, intentReq *IntentRequest) (*Intent, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gateway access token: %w", err)
	}

	payload := map[string]interface{}{
		"intent":    "CAPTURE",
		"reference": intentReq.OrderNumber,
		"amount": map[string]string{
			"currency_code": intentReq.Currency,
			"value":         amountString(intentReq.AmountCents),
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal req payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseApiURL+"/v2/payment-intents",
		bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", intentReq.IdempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway create intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(b))
	}

	var result intentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	return result.toIntent()
}

func (c *httpGatewayImpl) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gateway access token: %w", err)
	}

	url := fmt.Sprintf("%s/v2/payment-intents/%s", c.baseApiURL, intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway get intent: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gateway error %d: %s", resp.StatusCode, string(b))
	}

	var result intentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode gateway response: %w", err)
	}

	return result.toIntent()
}

func (c *httpGatewayImpl) CancelIntent(ctx context.Context, intentID string) error {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return fmt.Errorf("get gateway access token: %w", err)
	}

	url := fmt.Sprintf("%s/v2/payment-intents/%s/cancel", c.baseApiURL, intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway cancel intent: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway cancel failed: status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}

func (c *httpGatewayImpl) CreateRefund(ctx context.Context, intentID string, amountCents int64, idempotencyKey string) (string, error) {
	accessToken, err := c.getAccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("get gateway access token: %w", err)
	}

	payload := map[string]interface{}{
		"amount": map[string]string{
			"value": amountString(amountCents),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal req payload: %w", err)
	}

	url := fmt.Sprintf("%s/v2/payment-intents/%s/refund", c.baseApiURL, intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("http new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gateway create refund: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("gateway refund failed: status=%d body=%s", resp.StatusCode, string(b))
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode gateway response: %w", err)
	}
	return result.ID, nil
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw body against
// the shared webhook secret. Nothing in the event is trusted before this.
func (c *httpGatewayImpl) VerifyWebhookSignature(headers http.Header, body []byte) error {
	sig := headers.Get(webhookSignatureHeader)
	if sig == "" {
		return fmt.Errorf("missing %s header", webhookSignatureHeader)
	}

	mac := hmac.New(sha256.New, []byte(c.webhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return fmt.Errorf("webhook signature mismatch")
	}
	return nil
}
