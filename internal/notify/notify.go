// Package notify delivers the run summary to a configured webhook.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nethserver/gitops-updater/internal/report"
)

// Notifier posts the JSON report to a webhook URL. An empty URL disables
// delivery.
type Notifier struct {
	URL    string
	client *http.Client
}

// New creates a Notifier.
func New(url string) *Notifier {
	return &Notifier{
		URL:    url,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send posts the report. Delivery failures are logged, not fatal: the
// run already succeeded, only the notification is lost.
func (n *Notifier) Send(ctx context.Context, rep *report.Report) error {
	if n.URL == "" {
		return nil
	}
	body, err := rep.JSON()
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("[WARN] webhook delivery failed: %v", err)
		return fmt.Errorf("webhook delivery failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.Printf("[WARN] webhook returned status %d", resp.StatusCode)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
