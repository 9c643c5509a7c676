// Package report publishes run reports to an external HTTP endpoint.
package report

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/price-alerts/internal/config"
	"github.com/price-alerts/internal/logging"
	"github.com/price-alerts/internal/retry"
	"github.com/price-alerts/internal/service"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature"

// WebhookReporter POSTs each run report as JSON.
type WebhookReporter struct {
	url    string
	secret []byte
	client *http.Client
	policy *retry.RetryConfig
}

// NewWebhookReporter creates a reporter for cfg.URL. A nil client gets a 10s timeout.
func NewWebhookReporter(cfg *config.WebhookConfig, client *http.Client) *WebhookReporter {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	policy := retry.DefaultRetryConfig()
	policy.MaxAttempts = 3
	policy.MaxDelay = 5 * time.Second

	return &WebhookReporter{
		url:    cfg.URL,
		secret: []byte(cfg.Secret),
		client: client,
		policy: policy,
	}
}

// WithRetryPolicy replaces the delivery retry policy.
func (w *WebhookReporter) WithRetryPolicy(policy *retry.RetryConfig) *WebhookReporter {
	w.policy = policy
	return w
}

// Report delivers report, retrying transport errors and non-2xx answers.
func (w *WebhookReporter) Report(ctx context.Context, report *service.RunReport) error {
	body, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal run report: %w", err)
	}

	err = retry.Run(ctx, w.policy, func(ctx context.Context, attempt int) error {
		return w.post(ctx, body)
	})
	if err != nil {
		return fmt.Errorf("failed to deliver run report: %w", err)
	}

	logging.FromContext(ctx).WithField("url", w.url).Debug("Run report delivered")
	return nil
}

func (w *WebhookReporter) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(w.secret) > 0 {
		req.Header.Set(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
