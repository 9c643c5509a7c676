package service

import (
	"context"
	"time"

	"github.com/price-alerts/internal/models"
)

// AlertStore is the subset of storage.AlertRepository the job needs.
type AlertStore interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteNotified(ctx context.Context) (int64, error)
	ListPending(ctx context.Context) ([]*models.PriceAlert, error)
	Retire(ctx context.Context, id int64, deleteAfter bool) error
}

// ProductStore is the subset of storage.ProductRepository the job needs.
type ProductStore interface {
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	LowestQualifyingBox(ctx context.Context, productID int64) (*models.Box, error)
}

// UserStore is the subset of storage.UserRepository the job needs.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}
