// Package models provides data models for the price alert job.
package models

import "github.com/shopspring/decimal"

// User is the owner of price alerts. Managed by the web application.
type User struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Email string `json:"email" db:"email"`
}

// Product is a catalog entry. Image holds a file name, not a URL.
type Product struct {
	ID    int64   `json:"id" db:"id"`
	Name  string  `json:"name" db:"name"`
	Image *string `json:"image,omitempty" db:"image"`
}

// ImageName returns the stored image name or fallback when none is set.
func (p *Product) ImageName(fallback string) string {
	if p.Image == nil || *p.Image == "" {
		return fallback
	}
	return *p.Image
}

// Shipment is a batch of inbound inventory.
type Shipment struct {
	ID         int64 `json:"id" db:"id"`
	HasArrived bool  `json:"hasArrived" db:"has_arrived"`
}

// Box is a priced inventory unit of one product arriving with one shipment.
type Box struct {
	ID           int64           `json:"id" db:"id"`
	ProductID    int64           `json:"productId" db:"product_id"`
	ShipmentID   int64           `json:"shipmentId" db:"shipment_id"`
	PriceINRUnit decimal.Decimal `json:"priceInrUnit" db:"price_inr_unit"`
	IsActive     bool            `json:"isActive" db:"is_active"`
}
