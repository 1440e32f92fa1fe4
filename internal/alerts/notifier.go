package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/market-tracker/internal/logging"
	"github.com/market-tracker/internal/types"
)

// Notifier delivers a fired alert somewhere the user will see it.
type Notifier interface {
	Notify(ctx context.Context, event *types.AlertEvent) error
}

// LogNotifier writes fired alerts to the structured log.
type LogNotifier struct{}

// Notify logs the event.
func (LogNotifier) Notify(ctx context.Context, event *types.AlertEvent) error {
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"rule":      event.RuleID,
		"asset":     event.AssetKey,
		"kind":      string(event.Kind),
		"threshold": event.Threshold,
		"price":     event.Price,
	}).Info(event.Message)
	return nil
}

// WebhookNotifier POSTs fired alerts as JSON to a configured URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for the given URL.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify posts the event payload.
func (n *WebhookNotifier) Notify(ctx context.Context, event *types.AlertEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
