package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	apppayment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/payment"
	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/payment"
)

// Client talks to one payment provider's REST API. One instance per
// provider; the resolver in main picks the right one per payment.
type Client struct {
	provider domain.Provider
	baseURL  string
	apiKey   string
	http     *http.Client
}

func NewClient(provider domain.Provider, baseURL, apiKey string) *Client {
	return &Client{
		provider: provider,
		baseURL:  baseURL,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// statusMap translates provider wire statuses to the internal payment
// lifecycle. Unknown statuses stay pending so nothing is completed on guess.
var statusMap = map[string]domain.Status{
	"CREATED":   domain.StatusPending,
	"PENDING":   domain.StatusPending,
	"APPROVED":  domain.StatusApproved,
	"COMPLETED": domain.StatusCompleted,
	"CAPTURED":  domain.StatusCompleted,
	"CANCELLED": domain.StatusCancelled,
	"VOIDED":    domain.StatusCancelled,
	"FAILED":    domain.StatusFailed,
	"DECLINED":  domain.StatusFailed,
}

func (c *Client) CreateCheckout(ctx context.Context, req apppayment.CheckoutRequest) (*apppayment.CheckoutSession, error) {
	body := map[string]any{
		"amount":     req.Amount.StringFixed(2),
		"currency":   req.Currency,
		"return_url": req.ReturnURL,
		"cancel_url": req.CancelURL,
	}
	var resp struct {
		ID          string `json:"id"`
		ApprovalURL string `json:"approval_url"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/checkouts", body, &resp); err != nil {
		return nil, err
	}
	return &apppayment.CheckoutSession{ProviderRef: resp.ID, ApprovalURL: resp.ApprovalURL}, nil
}

func (c *Client) Capture(ctx context.Context, providerRef string) (domain.Status, error) {
	var resp struct {
		Status string `json:"status"`
	}
	path := "/v1/checkouts/" + url.PathEscape(providerRef) + "/capture"
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return "", err
	}
	if st, ok := statusMap[resp.Status]; ok {
		return st, nil
	}
	return domain.StatusPending, nil
}

func (c *Client) Cancel(ctx context.Context, providerRef string) error {
	path := "/v1/checkouts/" + url.PathEscape(providerRef) + "/cancel"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("gateway %s: marshal: %w", c.provider, err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("gateway %s: build request: %w", c.provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway %s: %s %s: %w", c.provider, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("gateway %s: %s %s: status %d: %s", c.provider, method, path, resp.StatusCode, apiErr.Message)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gateway %s: decode response: %w", c.provider, err)
	}
	return nil
}
