package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/price-alerts/internal/config"
	apperrors "github.com/price-alerts/internal/errors"
	"github.com/price-alerts/internal/retry"
)

// ImageProber checks that an image URL answers 200 before the email that
// embeds it goes out. Uploads can lag behind product creation.
type ImageProber struct {
	client *http.Client
	policy *retry.RetryConfig
}

// NewImageProber creates a prober with the configured attempt ceiling and interval
func NewImageProber(cfg *config.ProbeConfig, client *http.Client) *ImageProber {
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &ImageProber{
		client: client,
		policy: retry.FixedInterval(cfg.MaxAttempts, cfg.Interval),
	}
}

// Probe polls url until it answers 200 OK. It returns a probe error after the
// last attempt; callers treat that as a warning.
func (p *ImageProber) Probe(ctx context.Context, url string) error {
	result := retry.Do(ctx, p.policy, func(ctx context.Context, attempt int) error {
		return p.check(ctx, url)
	})
	if !result.Success {
		return apperrors.NewProbeError(url, fmt.Errorf("gave up after %d attempts: %w", result.Attempts, result.LastError))
	}
	return nil
}

func (p *ImageProber) check(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
