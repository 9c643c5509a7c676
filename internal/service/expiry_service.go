package service

import (
	"context"
	"fmt"
	"time"

	"github.com/price-alerts/internal/logging"
)

// SweepResult counts what a sweep removed.
type SweepResult struct {
	Expired int64 `json:"expired"`
	Cleaned int64 `json:"cleaned"` // notified alerts left by mark retire mode
}

// ExpiryService deletes alerts whose expiry has passed
type ExpiryService struct {
	alerts        AlertStore
	cleanNotified bool
}

// NewExpiryService creates a new expiry service. cleanNotified also removes
// alerts already marked notified, which only exist in mark retire mode.
func NewExpiryService(alerts AlertStore, cleanNotified bool) *ExpiryService {
	return &ExpiryService{alerts: alerts, cleanNotified: cleanNotified}
}

// Sweep deletes every alert with expires_at before now. Store errors are
// returned unchanged and abort the run.
func (s *ExpiryService) Sweep(ctx context.Context, now time.Time) (*SweepResult, error) {
	logger := logging.FromContext(ctx)
	result := &SweepResult{}

	expired, err := s.alerts.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired alerts: %w", err)
	}
	result.Expired = expired

	if expired == 0 {
		logger.Info("No expired price alerts found")
	} else {
		logger.Infof("Deleted %d expired price alert(s)", expired)
	}

	if s.cleanNotified {
		cleaned, err := s.alerts.DeleteNotified(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to delete notified alerts: %w", err)
		}
		result.Cleaned = cleaned
		if cleaned > 0 {
			logger.Infof("Deleted %d already-notified price alert(s)", cleaned)
		}
	}

	return result, nil
}
