package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook delivers notification jobs to an external gateway (SMS/email/
// push is that gateway's concern). When Skip is set, deliveries are
// acknowledged without a network call, for dev environments.
type Webhook struct {
	URL  string
	HTTP *http.Client
	Skip bool
}

// NewWebhook creates a delivery client.
func NewWebhook(url string, skip bool) *Webhook {
	return &Webhook{
		URL:  url,
		Skip: skip,
		HTTP: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts one job to the gateway.
func (w *Webhook) Send(ctx context.Context, job Job) error {
	if w.Skip {
		return nil
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, msg)
	}
	return nil
}
