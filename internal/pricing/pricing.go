// Package pricing holds the price resolution and matching rules shared by the
// store-backed resolver and its tests.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/price-alerts/internal/models"
)

// Qualifies reports whether a box counts toward its product's price: the box is
// active and its shipment has arrived.
func Qualifies(box models.Box, shipmentArrived bool) bool {
	return box.IsActive && shipmentArrived
}

// LowestQualifyingBox returns the cheapest qualifying box, or nil when none
// qualifies. arrived maps shipment id to its has_arrived flag; unknown
// shipments are treated as not arrived.
func LowestQualifyingBox(boxes []models.Box, arrived map[int64]bool) *models.Box {
	var best *models.Box
	for i := range boxes {
		b := boxes[i]
		if !Qualifies(b, arrived[b.ShipmentID]) {
			continue
		}
		if best == nil || b.PriceINRUnit.LessThan(best.PriceINRUnit) {
			best = &b
		}
	}
	return best
}

// Matches reports whether target is at or above the current price.
func Matches(target, current decimal.Decimal) bool {
	return target.GreaterThanOrEqual(current)
}

// Currency formats amounts as a symbol followed by a two-decimal fixed-point value.
type Currency struct {
	Symbol string
}

// Format renders d as e.g. "₹1299.50".
func (c Currency) Format(d decimal.Decimal) string {
	return c.Symbol + d.StringFixed(2)
}
