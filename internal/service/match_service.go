package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/price-alerts/internal/logging"
	"github.com/price-alerts/internal/models"
	"github.com/price-alerts/internal/pricing"
)

// MatchResult is the outcome of one matching pass.
type MatchResult struct {
	Pending  int            `json:"pending"`
	Unpriced int            `json:"unpriced"` // alerts whose product has no qualifying box
	Matches  []models.Match `json:"matches"`
}

// MatchService pairs pending alerts with their product's current price
type MatchService struct {
	alerts   AlertStore
	products ProductStore
}

// NewMatchService creates a new match service
func NewMatchService(alerts AlertStore, products ProductStore) *MatchService {
	return &MatchService{alerts: alerts, products: products}
}

// FindMatches lists every pending alert and keeps those whose target price is
// at or above the lowest qualifying box price. Prices are resolved once per
// product per pass.
func (s *MatchService) FindMatches(ctx context.Context) (*MatchResult, error) {
	logger := logging.FromContext(ctx)

	pending, err := s.alerts.ListPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending alerts: %w", err)
	}

	result := &MatchResult{Pending: len(pending)}
	prices := make(map[int64]*decimal.Decimal)

	for _, alert := range pending {
		price, seen := prices[alert.ProductID]
		if !seen {
			box, err := s.products.LowestQualifyingBox(ctx, alert.ProductID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve price for product %d: %w", alert.ProductID, err)
			}
			if box != nil {
				p := box.PriceINRUnit
				price = &p
			}
			prices[alert.ProductID] = price
		}

		if price == nil {
			result.Unpriced++
			logger.WithFields(map[string]interface{}{
				"alert_id":   alert.ID,
				"product_id": alert.ProductID,
			}).Debug("Product has no qualifying box, skipping alert")
			continue
		}

		if pricing.Matches(alert.TargetPrice, *price) {
			result.Matches = append(result.Matches, models.Match{Alert: alert, Price: *price})
		}
	}

	logger.WithFields(map[string]interface{}{
		"pending":  result.Pending,
		"unpriced": result.Unpriced,
		"matched":  len(result.Matches),
	}).Infof("Matched %d of %d pending price alert(s)", len(result.Matches), result.Pending)

	return result, nil
}
