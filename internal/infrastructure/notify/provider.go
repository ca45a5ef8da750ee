package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	domain "github.com/SoftDevDigital/backend-nabra-xr1-sub000/internal/domain/notification"
)

// HTTPProvider posts notifications to a channel delivery service (an email
// relay, SMS gateway or push broker) and hands back the external message id.
// One instance per channel endpoint.
type HTTPProvider struct {
	channel  domain.Channel
	endpoint string
	apiKey   string
	http     *http.Client
}

func NewHTTPProvider(channel domain.Channel, endpoint, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		channel:  channel,
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 15 * time.Second},
	}
}

type sendPayload struct {
	UserID  string `json:"user_id"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Title   string `json:"title"`
	Body    string `json:"body"`
}

func (p *HTTPProvider) Send(ctx context.Context, n *domain.Notification) (string, error) {
	raw, err := json.Marshal(sendPayload{
		UserID:  n.UserID,
		Type:    string(n.Type),
		Channel: string(n.Channel),
		Title:   n.Title,
		Body:    n.Body,
	})
	if err != nil {
		return "", fmt.Errorf("notify %s: marshal: %w", p.channel, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("notify %s: build request: %w", p.channel, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("notify %s: send: %w", p.channel, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("notify %s: status %d", p.channel, resp.StatusCode)
	}

	var out struct {
		MessageID string `json:"message_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("notify %s: decode response: %w", p.channel, err)
	}
	return out.MessageID, nil
}
