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
	"einvoice-dispatch/internal/core/ports"
)

// KolaysoftClient talks to the external e-invoicing provider over HTTP.
// It normalizes every provider response into a ports.SendResult; a returned
// error means the call itself failed (connect, timeout, malformed reply), not
// a provider-side rejection.
type KolaysoftClient struct {
	baseURL  string
	username string
	password string
	http     *http.Client
}

// NewKolaysoftClient creates a provider client from configuration.
func NewKolaysoftClient(cfg config.ProviderConfig) *KolaysoftClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KolaysoftClient{
		baseURL:  cfg.BaseURL,
		username: cfg.Username,
		password: cfg.Password,
		http:     &http.Client{Timeout: timeout},
	}
}

type sendDocumentRequest struct {
	DocID       string `json:"doc_id"`
	ETTN        string `json:"ettn"`
	Content     string `json:"content"` // base64 by encoding/json of []byte
	TargetAlias string `json:"target_alias,omitempty"`
	TargetEmail string `json:"target_email,omitempty"`
}

type sendDocumentResponse struct {
	Code        string `json:"code"`
	Explanation string `json:"explanation"`
	Cause       string `json:"cause"`
}

// SendDocument submits an invoice or voucher payload and returns the
// provider's normalized result code.
func (c *KolaysoftClient) SendDocument(ctx context.Context, req ports.ProviderSendRequest) (*ports.SendResult, error) {
	var resp sendDocumentResponse
	if err := c.post(ctx, "/sendDocument", sendDocumentRequest{
		DocID:       req.DocID,
		ETTN:        req.ETTN,
		Content:     string(req.Payload),
		TargetAlias: req.TargetAlias,
		TargetEmail: req.TargetEmail,
	}, &resp); err != nil {
		return nil, err
	}

	return &ports.SendResult{
		Code:        resp.Code,
		Explanation: resp.Explanation,
		Cause:       resp.Cause,
	}, nil
}

// SendDespatch submits a despatch advice. The despatch endpoint reports a
// plain accepted/rejected flag rather than a result code.
func (c *KolaysoftClient) SendDespatch(ctx context.Context, req ports.ProviderSendRequest) (bool, error) {
	var resp struct {
		Success     bool   `json:"success"`
		Explanation string `json:"explanation"`
	}
	if err := c.post(ctx, "/sendDespatch", sendDocumentRequest{
		DocID:       req.DocID,
		ETTN:        req.ETTN,
		Content:     string(req.Payload),
		TargetAlias: req.TargetAlias,
	}, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// Validate runs the provider's schema check against a built payload without
// submitting it.
func (c *KolaysoftClient) Validate(ctx context.Context, payload []byte) error {
	var resp sendDocumentResponse
	if err := c.post(ctx, "/validate", map[string]string{"content": string(payload)}, &resp); err != nil {
		return err
	}
	if resp.Code != ports.ProviderSuccessCode {
		return fmt.Errorf("document validation failed: %s (%s)", resp.Explanation, resp.Code)
	}
	return nil
}

func (c *KolaysoftClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.username, c.password)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("provider call %s: %w", path, err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		return fmt.Errorf("provider call %s: unexpected status %d", path, res.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
