package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceAlert is a user's standing request to be told when a product drops to
// TargetPrice or below. Created by the web application, consumed by this job.
type PriceAlert struct {
	ID          int64           `json:"id" db:"id"`
	UserID      int64           `json:"userId" db:"user_id"`
	ProductID   int64           `json:"productId" db:"product_id"`
	TargetPrice decimal.Decimal `json:"targetPrice" db:"target_price"`
	ExpiresAt   time.Time       `json:"expiresAt" db:"expires_at"`
	Notified    bool            `json:"notified" db:"notified"`
}

// Expired reports whether the alert's expiry is strictly before now.
func (a *PriceAlert) Expired(now time.Time) bool {
	return a.ExpiresAt.Before(now)
}

// Match pairs a pending alert with the price that satisfied it.
type Match struct {
	Alert *PriceAlert     `json:"alert"`
	Price decimal.Decimal `json:"price"`
}
