package carrier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/shopspring/decimal"

	appshipment "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/application/shipment"
	domorder "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/order"
)

// Client is the HTTP carrier integration. Every failure is surfaced as a
// *shipment.CarrierError so the orchestrator can classify it for retry.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

type addressPayload struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type packagePayload struct {
	WeightKg float64 `json:"weight_kg"`
	Pieces   int     `json:"pieces"`
}

type quoteResponse struct {
	Rates []struct {
		CarrierCode   string `json:"carrier_code"`
		ServiceName   string `json:"service_name"`
		Fee           string `json:"fee"`
		DaysInTransit int    `json:"days_in_transit"`
	} `json:"rates"`
}

type generateResponse struct {
	ShipmentID        string     `json:"shipment_id"`
	TrackingNumber    string     `json:"tracking_number"`
	LabelURL          string     `json:"label_url"`
	Status            string     `json:"status"`
	EstimatedDelivery *time.Time `json:"estimated_delivery"`
}

type trackResponse struct {
	Status string `json:"status"`
	Events []struct {
		Status      string    `json:"status"`
		Description string    `json:"description"`
		Location    string    `json:"location"`
		Timestamp   time.Time `json:"timestamp"`
	} `json:"events"`
}

func (c *Client) Quote(ctx context.Context, origin, destination domorder.Address, packages []appshipment.Package) ([]appshipment.Rate, error) {
	body := map[string]any{
		"origin":      toAddressPayload(origin),
		"destination": toAddressPayload(destination),
		"packages":    toPackagePayloads(packages),
	}
	var resp quoteResponse
	if err := c.do(ctx, http.MethodPost, "/v1/quotes", body, &resp); err != nil {
		return nil, err
	}

	rates := make([]appshipment.Rate, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		fee, err := decimal.NewFromString(r.Fee)
		if err != nil {
			return nil, &appshipment.CarrierError{Err: fmt.Errorf("parse fee %q: %w", r.Fee, err)}
		}
		rates = append(rates, appshipment.Rate{
			CarrierCode:   r.CarrierCode,
			ServiceName:   r.ServiceName,
			Fee:           fee,
			DaysInTransit: r.DaysInTransit,
		})
	}
	return rates, nil
}

func (c *Client) Generate(ctx context.Context, req appshipment.GenerateRequest) (*appshipment.GenerateResponse, error) {
	body := map[string]any{
		"reference":    req.OrderNumber,
		"destination":  toAddressPayload(req.Destination),
		"carrier_code": req.CarrierCode,
		"service_name": req.ServiceName,
		"packages":     toPackagePayloads(req.Packages),
	}
	var resp generateResponse
	if err := c.do(ctx, http.MethodPost, "/v1/shipments", body, &resp); err != nil {
		return nil, err
	}
	return &appshipment.GenerateResponse{
		ShipmentID:        resp.ShipmentID,
		TrackingNumber:    resp.TrackingNumber,
		LabelURL:          resp.LabelURL,
		Status:            resp.Status,
		EstimatedDelivery: resp.EstimatedDelivery,
	}, nil
}

func (c *Client) Track(ctx context.Context, trackingNumber string) (*appshipment.TrackResponse, error) {
	var resp trackResponse
	path := "/v1/tracking/" + url.PathEscape(trackingNumber)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	out := &appshipment.TrackResponse{Status: resp.Status}
	for _, e := range resp.Events {
		out.Events = append(out.Events, appshipment.TrackEvent{
			Status:      e.Status,
			Description: e.Description,
			Location:    e.Location,
			Timestamp:   e.Timestamp,
		})
	}
	return out, nil
}

func (c *Client) Cancel(ctx context.Context, carrierShipmentID string) error {
	path := "/v1/shipments/" + url.PathEscape(carrierShipmentID) + "/cancel"
	return c.do(ctx, http.MethodPost, path, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return &appshipment.CarrierError{Err: err}
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &appshipment.CarrierError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return &appshipment.CarrierError{
			Timeout: isTimeout(err),
			Err:     err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return &appshipment.CarrierError{
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s %s: %s", method, path, apiErr.Message),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &appshipment.CarrierError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

func toAddressPayload(a domorder.Address) addressPayload {
	return addressPayload{
		Street:     a.Street,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}

func toPackagePayloads(packages []appshipment.Package) []packagePayload {
	out := make([]packagePayload, 0, len(packages))
	for _, p := range packages {
		out = append(out, packagePayload{WeightKg: p.WeightKg, Pieces: p.Pieces})
	}
	return out
}
