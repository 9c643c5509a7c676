package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/price-alerts/internal/circuitbreaker"
	apperrors "github.com/price-alerts/internal/errors"
	"github.com/price-alerts/internal/logging"
	"github.com/price-alerts/internal/models"
	"github.com/price-alerts/internal/notify"
)

// ImageProber confirms an image URL is reachable.
type ImageProber interface {
	Probe(ctx context.Context, url string) error
}

// NotifyResult counts the outcome of a notification pass.
type NotifyResult struct {
	Notified int `json:"notified"`
	Skipped  int `json:"skipped"` // missing user or product
	Failed   int `json:"failed"`  // render or send failure, alert stays pending
	DryRun   int `json:"dryRun"`
}

// NotifyServiceConfig holds the collaborators of a NotifyService.
type NotifyServiceConfig struct {
	Users    UserStore
	Products ProductStore
	Alerts   AlertStore
	Renderer *notify.Renderer
	Mailer   notify.Mailer

	// Prober is optional; nil skips the image check.
	Prober ImageProber
	// Limiter paces sends; nil sends as fast as the transport allows.
	Limiter *rate.Limiter
	// Breaker is optional; nil never short-circuits.
	Breaker *circuitbreaker.CircuitBreaker

	// DeleteAfterSend deletes the alert once marked notified.
	DeleteAfterSend bool
	// DryRun renders and logs but neither sends nor mutates.
	DryRun bool
}

// Validate checks that the required collaborators are present.
func (c *NotifyServiceConfig) Validate() error {
	switch {
	case c.Users == nil:
		return errors.New("user store is required")
	case c.Products == nil:
		return errors.New("product store is required")
	case c.Alerts == nil:
		return errors.New("alert store is required")
	case c.Renderer == nil:
		return errors.New("renderer is required")
	case c.Mailer == nil && !c.DryRun:
		return errors.New("mailer is required")
	}
	return nil
}

// NotifyService emails the owners of matched alerts and retires the alerts
type NotifyService struct {
	cfg NotifyServiceConfig
}

// NewNotifyService creates a new notify service
func NewNotifyService(cfg NotifyServiceConfig) (*NotifyService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &NotifyService{cfg: cfg}, nil
}

// NotifyAll handles every match independently. Per-alert problems are logged
// and counted; only store failures and cancellation are returned.
func (s *NotifyService) NotifyAll(ctx context.Context, matches []models.Match) (*NotifyResult, error) {
	result := &NotifyResult{}

	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := s.notifyOne(ctx, match, result); err != nil {
			return result, err
		}
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"notified": result.Notified,
		"skipped":  result.Skipped,
		"failed":   result.Failed,
	}).Infof("Notified %d price alert(s)", result.Notified)

	return result, nil
}

func (s *NotifyService) notifyOne(ctx context.Context, match models.Match, result *NotifyResult) error {
	alert := match.Alert
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"alert_id":   alert.ID,
		"user_id":    alert.UserID,
		"product_id": alert.ProductID,
	})

	user, err := s.cfg.Users.GetByID(ctx, alert.UserID)
	if err != nil {
		if apperrors.IsFatal(err) {
			return fmt.Errorf("failed to load user %d: %w", alert.UserID, err)
		}
		logger.WithError(err).Warn("User not found for price alert, skipping")
		result.Skipped++
		return nil
	}

	product, err := s.cfg.Products.GetByID(ctx, alert.ProductID)
	if err != nil {
		if apperrors.IsFatal(err) {
			return fmt.Errorf("failed to load product %d: %w", alert.ProductID, err)
		}
		logger.WithError(err).Warn("Product not found for price alert, skipping")
		result.Skipped++
		return nil
	}

	msg, err := s.cfg.Renderer.Render(user, product, alert, match.Price)
	if err != nil {
		logger.WithError(apperrors.NewNotificationError("render", err)).Error("Failed to render price alert email")
		result.Failed++
		return nil
	}

	if s.cfg.DryRun {
		logger.WithFields(map[string]interface{}{
			"to":      msg.To,
			"subject": msg.Subject,
		}).Info("Dry run: would send price alert email")
		result.DryRun++
		return nil
	}

	if s.cfg.Prober != nil {
		imageURL := s.cfg.Renderer.ImageURL(product)
		if err := s.cfg.Prober.Probe(ctx, imageURL); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.WithError(err).Warn("Product image not confirmed, sending anyway")
		}
	}

	if s.cfg.Limiter != nil {
		if err := s.cfg.Limiter.Wait(ctx); err != nil {
			return err
		}
	}

	send := func() error { return s.cfg.Mailer.Send(ctx, msg) }
	if s.cfg.Breaker != nil {
		err = s.cfg.Breaker.Execute(ctx, send)
	} else {
		err = send()
	}
	if err != nil {
		logger.WithError(apperrors.NewNotificationError("send", err)).Error("Failed to send price alert email")
		result.Failed++
		return nil
	}

	if err := s.cfg.Alerts.Retire(ctx, alert.ID, s.cfg.DeleteAfterSend); err != nil {
		if apperrors.IsNotFound(err) {
			logger.Warn("Price alert was retired by another run after the email was sent")
			result.Notified++
			return nil
		}
		return fmt.Errorf("failed to retire alert %d: %w", alert.ID, err)
	}

	result.Notified++
	logger.WithField("to", msg.To).Info("Price alert email sent")
	return nil
}
