// Package paymentprovider is the single network dependency of the capture
// engine: a JSON-over-HTTP client for the external charge provider. It is
// deliberately small; tokenization and 3-D Secure flows live with the
// provider, not here.
package paymentprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeDeclined  Outcome = "declined"
)

type ChargeResult struct {
	ID      string          `json:"id"`
	Outcome Outcome         `json:"outcome"`
	Raw     json.RawMessage `json:"-"`
}

type chargeRequest struct {
	Token       string            `json:"token"`
	AmountCents int64             `json:"amount_cents"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type chargeResponse struct {
	Data struct {
		ID            string `json:"id"`
		Outcome       string `json:"outcome"`
		DeclineReason string `json:"decline_reason,omitempty"`
	} `json:"data"`
}

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	logger     *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		logger:     logger,
	}
}

// Charge submits one charge attempt. The error split matters to the caller:
// a non-nil error means the outcome is UNKNOWN (timeout, transport failure,
// provider 5xx) and the charge may still have landed; a declined result comes
// back with a nil error because the provider did answer.
func (c *Client) Charge(ctx context.Context, token string, amountCents int64, metadata map[string]string) (*ChargeResult, error) {
	reqBody, err := json.Marshal(chargeRequest{
		Token:       token,
		AmountCents: amountCents,
		Currency:    "USD",
		Metadata:    metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal charge request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/charges", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create charge request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	c.logger.Info("sending charge request", "url", url, "amount_cents", amountCents)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// timeout or transport failure: the provider may have processed the
		// charge anyway, so this is not a decline
		c.logger.Error("charge request failed", "error", err)
		return nil, fmt.Errorf("charge request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read charge response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		c.logger.Error("provider returned server error", "status", resp.StatusCode, "response", string(respBody))
		return nil, fmt.Errorf("provider error: status %d", resp.StatusCode)
	}

	var chargeResp chargeResponse
	if err := json.Unmarshal(respBody, &chargeResp); err != nil {
		return nil, fmt.Errorf("unmarshal charge response: %w", err)
	}

	result := &ChargeResult{
		ID:  chargeResp.Data.ID,
		Raw: respBody,
	}
	if resp.StatusCode == http.StatusOK && chargeResp.Data.Outcome == string(OutcomeSucceeded) {
		result.Outcome = OutcomeSucceeded
	} else {
		result.Outcome = OutcomeDeclined
	}

	c.logger.Info("charge response received",
		"charge_id", result.ID,
		"outcome", result.Outcome,
		"status", resp.StatusCode)

	return result, nil
}
