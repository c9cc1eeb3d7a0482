// Package gateway is the HTTP client for the hosted wallet payment provider.
// The provider runs a two-phase protocol: creating a payment returns a
// redirect target where the user authorizes in their wallet app, and the
// charge is finalized with an explicit capture call.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/songsmith/backend/internal/config"
	"github.com/songsmith/backend/internal/errs"
)

// Payment states as reported by the provider.
const (
	StateCreated    = "CREATED"
	StateAuthorized = "AUTHORIZED"
	StateAborted    = "ABORTED"
	StateTerminated = "TERMINATED"
	StateExpired    = "EXPIRED"
)

type CreatePaymentRequest struct {
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	ReturnURL   string `json:"returnUrl"`
	Description string `json:"description"`
}

type CreatePaymentResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

type PaymentDetails struct {
	Reference string `json:"reference"`
	State     string `json:"state"`
	Amount    int64  `json:"amount"`
}

// Client talks to the gateway over HTTP. Every call is bounded by the
// configured timeout; callers never hold database locks across these calls.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg *config.GatewayConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout},
	}
}

// CreatePayment opens a hosted payment and returns the redirect target.
func (c *Client) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResponse, error) {
	var resp CreatePaymentResponse
	if err := c.post(ctx, "/v1/payments", req, &resp); err != nil {
		return nil, err
	}
	if resp.RedirectURL == "" {
		return nil, errs.E(errs.KindGatewayUnavailable, "gateway.create", req.Reference,
			fmt.Errorf("gateway returned no redirect url"))
	}
	return &resp, nil
}

// GetPayment fetches the authoritative state of a payment. Webhook
// notifications are only a prompt to call this; they are never trusted as
// fact themselves.
func (c *Client) GetPayment(ctx context.Context, reference string) (*PaymentDetails, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/payments/"+reference, nil)
	if err != nil {
		return nil, errs.E(errs.KindGatewayUnavailable, "gateway.get", reference, err)
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errs.E(errs.KindGatewayUnavailable, "gateway.get", reference, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errs.E(errs.KindGatewayUnavailable, "gateway.get", reference,
			fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	var details PaymentDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, errs.E(errs.KindGatewayUnavailable, "gateway.get", reference, err)
	}
	return &details, nil
}

// CapturePayment finalizes an authorized charge for the given amount.
func (c *Client) CapturePayment(ctx context.Context, reference string, amount int64) error {
	body := map[string]int64{"amount": amount}
	payload, err := json.Marshal(body)
	if err != nil {
		return errs.E(errs.KindGatewayUnavailable, "gateway.capture", reference, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/payments/"+reference+"/capture", bytes.NewReader(payload))
	if err != nil {
		return errs.E(errs.KindGatewayUnavailable, "gateway.capture", reference, err)
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errs.E(errs.KindGatewayUnavailable, "gateway.capture", reference, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return errs.E(errs.KindCaptureFailed, "gateway.capture", reference,
			fmt.Errorf("gateway rejected capture with status %d", resp.StatusCode))
	default:
		return errs.E(errs.KindGatewayUnavailable, "gateway.capture", reference,
			fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errs.E(errs.KindGatewayUnavailable, "gateway.post", path, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errs.E(errs.KindGatewayUnavailable, "gateway.post", path, err)
	}
	c.setHeaders(httpReq)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return errs.E(errs.KindGatewayUnavailable, "gateway.post", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return errs.E(errs.KindGatewayUnavailable, "gateway.post", path,
			fmt.Errorf("gateway returned status %d", resp.StatusCode))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}
