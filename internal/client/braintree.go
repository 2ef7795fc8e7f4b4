package client

import (
	"context"
	"fmt"
	"net/http"

	"commerce-core/internal/config"

	"github.com/braintree-go/braintree-go"
	"github.com/shopspring/decimal"
)

// braintreeGatewayImpl adapts the Braintree SDK to the PaymentGateway
// interface. An intent maps to an authorized (not yet settled) transaction.
type braintreeGatewayImpl struct {
	gateway *braintree.Braintree
}

func NewBraintreeGateway(cfg *config.Braintree) PaymentGateway {
	env := braintree.Sandbox
	if cfg.Environment == "production" {
		env = braintree.Production
	}

	gateway := braintree.New(
		env,
		cfg.MerchantID,
		cfg.PublicKey,
		cfg.PrivateKey,
	)

	return &braintreeGatewayImpl{
		gateway: gateway,
	}
}

// btAmount converts integer cents to Braintree's decimal format.
// NewDecimal(unscaled, scale): 5000 cents -> NewDecimal(5000, 2) -> "50.00".
func btAmount(cents int64) *braintree.Decimal {
	return braintree.NewDecimal(cents, 2)
}

func (c *braintreeGatewayImpl) CreateIntent(ctx context.Context, req *IntentRequest) (*Intent, error) {
	tx, err := c.gateway.Transaction().Create(ctx, &braintree.TransactionRequest{
		Type:    "sale",
		Amount:  btAmount(req.AmountCents),
		OrderId: req.OrderNumber,
		Options: &braintree.TransactionOptions{
			// authorize only; capture is driven by the provider webhook
			SubmitForSettlement: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("braintree transaction create: %w", err)
	}

	if tx.Status == braintree.TransactionStatusProcessorDeclined {
		return nil, fmt.Errorf("transaction declined by processor: %s", tx.ProcessorResponseText)
	}

	return &Intent{
		ID:          tx.Id,
		Status:      string(tx.Status),
		AmountCents: req.AmountCents,
	}, nil
}

func (c *braintreeGatewayImpl) GetIntent(ctx context.Context, intentID string) (*Intent, error) {
	tx, err := c.gateway.Transaction().Find(ctx, intentID)
	if err != nil {
		return nil, fmt.Errorf("braintree transaction find: %w", err)
	}

	out := &Intent{
		ID:     tx.Id,
		Status: string(tx.Status),
	}
	if tx.Amount != nil {
		dec, err := decimal.NewFromString(tx.Amount.String())
		if err != nil {
			return nil, fmt.Errorf("invalid braintree amount: %w", err)
		}
		out.AmountCents = dec.Mul(decimal.NewFromInt(100)).IntPart()
	}
	return out, nil
}

func (c *braintreeGatewayImpl) CancelIntent(ctx context.Context, intentID string) error {
	_, err := c.gateway.Transaction().Void(ctx, intentID)
	if err != nil {
		return fmt.Errorf("braintree transaction void: %w", err)
	}
	return nil
}

func (c *braintreeGatewayImpl) CreateRefund(ctx context.Context, intentID string, amountCents int64, _ string) (string, error) {
	// Braintree keys refund idempotence on the transaction itself, so the
	// caller's key is not forwarded.
	tx, err := c.gateway.Transaction().Refund(ctx, intentID, btAmount(amountCents))
	if err != nil {
		return "", fmt.Errorf("braintree transaction refund: %w", err)
	}
	return tx.Id, nil
}

func (c *braintreeGatewayImpl) VerifyWebhookSignature(headers http.Header, body []byte) error {
	sig := headers.Get("Bt-Signature")
	if sig == "" {
		return fmt.Errorf("missing Bt-Signature header")
	}
	if _, err := c.gateway.WebhookNotification().Parse(sig, string(body)); err != nil {
		return fmt.Errorf("verify braintree webhook: %w", err)
	}
	return nil
}
