package pricing

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/price-alerts/internal/models"
)

func box(id, shipment int64, price string, active bool) models.Box {
	return models.Box{
		ID:           id,
		ProductID:    1,
		ShipmentID:   shipment,
		PriceINRUnit: decimal.RequireFromString(price),
		IsActive:     active,
	}
}

func TestLowestQualifyingBox(t *testing.T) {
	arrived := map[int64]bool{10: true, 20: false}

	tests := []struct {
		name   string
		boxes  []models.Box
		wantID int64 // 0 means no price
	}{
		{name: "no boxes", boxes: nil},
		{
			name:  "inactive box on arrived shipment",
			boxes: []models.Box{box(1, 10, "5.00", false)},
		},
		{
			name:  "active box on shipment in transit",
			boxes: []models.Box{box(1, 20, "5.00", true)},
		},
		{
			name:  "unknown shipment counts as not arrived",
			boxes: []models.Box{box(1, 99, "5.00", true)},
		},
		{
			name: "cheapest qualifying wins over cheaper non-qualifying",
			boxes: []models.Box{
				box(1, 20, "1.00", true),
				box(2, 10, "9.50", true),
				box(3, 10, "8.75", false),
				box(4, 10, "12.00", true),
			},
			wantID: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LowestQualifyingBox(tt.boxes, arrived)
			if tt.wantID == 0 {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestMatches(t *testing.T) {
	target := decimal.RequireFromString("10.00")

	assert.True(t, Matches(target, decimal.RequireFromString("9.50")))
	assert.True(t, Matches(target, decimal.RequireFromString("10")))
	assert.False(t, Matches(target, decimal.RequireFromString("10.01")))
}

func TestCurrencyFormat(t *testing.T) {
	assert.Equal(t, "₹9.50", Currency{Symbol: "₹"}.Format(decimal.RequireFromString("9.5")))
	assert.Equal(t, "£1200.00", Currency{Symbol: "£"}.Format(decimal.NewFromInt(1200)))
	assert.Equal(t, "£0.13", Currency{Symbol: "£"}.Format(decimal.RequireFromString("0.125")))
}

func TestLowestQualifyingBoxProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genBoxes := gen.SliceOf(gopter.CombineGens(
		gen.Int64Range(1, 100000),
		gen.Bool(),
		gen.Bool(),
	)).Map(func(rows [][]interface{}) []models.Box {
		boxes := make([]models.Box, len(rows))
		for i, row := range rows {
			shipment := int64(1)
			if row[2].(bool) {
				shipment = 2
			}
			boxes[i] = models.Box{
				ID:           int64(i + 1),
				ShipmentID:   shipment,
				PriceINRUnit: decimal.New(row[0].(int64), -2),
				IsActive:     row[1].(bool),
			}
		}
		return boxes
	})

	arrived := map[int64]bool{1: true, 2: false}

	properties.Property("result is qualifying and no qualifying box is cheaper", prop.ForAll(
		func(boxes []models.Box) bool {
			best := LowestQualifyingBox(boxes, arrived)
			for _, b := range boxes {
				if !Qualifies(b, arrived[b.ShipmentID]) {
					continue
				}
				if best == nil || b.PriceINRUnit.LessThan(best.PriceINRUnit) {
					return false
				}
			}
			return best == nil || Qualifies(*best, arrived[best.ShipmentID])
		},
		genBoxes,
	))

	properties.Property("any target at or above the lowest price matches", prop.ForAll(
		func(boxes []models.Box, slack int64) bool {
			best := LowestQualifyingBox(boxes, arrived)
			if best == nil {
				return true
			}
			target := best.PriceINRUnit.Add(decimal.New(slack, -2))
			below := best.PriceINRUnit.Sub(decimal.New(slack+1, -2))
			return Matches(target, best.PriceINRUnit) && !Matches(below, best.PriceINRUnit)
		},
		genBoxes,
		gen.Int64Range(0, 1000),
	))

	properties.TestingRun(t)
}
