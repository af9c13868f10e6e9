package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"einvoice-dispatch/config"

	"github.com/google/uuid"
)

// PaymentClient charges stored payment tokens for credit-package purchases.
// Used by the auto-purchase sweep; a returned error means the charge did not
// happen and the wallet must not be topped up.
type PaymentClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewPaymentClient creates a payment client from configuration.
func NewPaymentClient(cfg config.PaymentsConfig) *PaymentClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &PaymentClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

type chargeRequest struct {
	OrgID        string `json:"org_id"`
	PaymentToken string `json:"payment_token"`
	Credits      int64  `json:"credits"`
}

type chargeResponse struct {
	Status  string `json:"status"` // "succeeded" or "failed"
	Message string `json:"message"`
}

// Charge initiates a charge against the stored token for the given credit
// amount.
func (c *PaymentClient) Charge(ctx context.Context, orgID uuid.UUID, paymentTokenEnc string, credits int64) error {
	body, err := json.Marshal(chargeRequest{
		OrgID:        orgID.String(),
		PaymentToken: paymentTokenEnc,
		Credits:      credits,
	})
	if err != nil {
		return fmt.Errorf("marshal charge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/charges", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build charge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payment call: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read payment response: %w", err)
	}
	if res.StatusCode != http.StatusOK && res.StatusCode != http.StatusCreated {
		return fmt.Errorf("payment call: unexpected status %d", res.StatusCode)
	}

	var resp chargeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("decode payment response: %w", err)
	}
	if resp.Status != "succeeded" {
		return fmt.Errorf("charge declined: %s", resp.Message)
	}
	return nil
}
