package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"vendormatch-engine/internal/matching"
)

// WebhookNotifier POSTs routed offers as JSON to the vendor's webhook.
//
// Offers for vendors without a NotifyURL fall back to the DefaultURL (e.g., a
// shared vendor-portal inbox); with neither set, delivery is skipped and
// logged, never failed.
type WebhookNotifier struct {
	Client     *http.Client
	DefaultURL string
	Log        *slog.Logger
}

func NewWebhookNotifier(defaultURL string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &WebhookNotifier{
		Client:     &http.Client{Timeout: timeout},
		DefaultURL: defaultURL,
	}
}

func (n *WebhookNotifier) NotifyRouted(ctx context.Context, offer matching.Offer) error {
	url := offer.NotifyURL
	if url == "" {
		url = n.DefaultURL
	}
	if url == "" {
		n.logger().Info("no webhook configured for vendor offer; skipping",
			"routing_id", offer.RoutingID, "vendor_id", offer.VendorID)
		return nil
	}

	body, err := json.Marshal(offer)
	if err != nil {
		return fmt.Errorf("encode offer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build offer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver offer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("deliver offer: vendor endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (n *WebhookNotifier) logger() *slog.Logger {
	if n.Log != nil {
		return n.Log
	}
	return slog.Default()
}
