package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/price-alerts/internal/errors"
	"github.com/price-alerts/internal/models"
)

// UserRepository reads users owned by the web application
type UserRepository struct {
	db *PostgresDB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *PostgresDB) *UserRepository {
	return &UserRepository{db: db}
}

// GetByID retrieves a user by ID. A missing user yields a missing reference error.
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, name, email FROM "user" WHERE id = $1`, id,
	).Scan(&user.ID, &user.Name, &user.Email)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewMissingReferenceError("user", id)
		}
		return nil, apperrors.NewDatabaseError("get user", err)
	}
	return &user, nil
}

// ProductRepository reads products and their inventory
type ProductRepository struct {
	db *PostgresDB
}

// NewProductRepository creates a new product repository
func NewProductRepository(db *PostgresDB) *ProductRepository {
	return &ProductRepository{db: db}
}

// GetByID retrieves a product by ID. A missing product yields a missing reference error.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := r.db.Pool().QueryRow(ctx,
		`SELECT id, COALESCE(name, ''), image FROM product WHERE id = $1`, id,
	).Scan(&product.ID, &product.Name, &product.Image)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewMissingReferenceError("product", id)
		}
		return nil, apperrors.NewDatabaseError("get product", err)
	}
	return &product, nil
}

// LowestQualifyingBox returns the cheapest active box of productID whose
// shipment has arrived, or nil when there is none.
func (r *ProductRepository) LowestQualifyingBox(ctx context.Context, productID int64) (*models.Box, error) {
	query := `
		SELECT b.id, b.product_id, b.shipment_id, b.price_inr_unit, b.is_active
		FROM box b
		JOIN shipment s ON s.id = b.shipment_id
		WHERE b.product_id = $1
		  AND b.is_active
		  AND s.has_arrived
		  AND b.price_inr_unit IS NOT NULL
		ORDER BY b.price_inr_unit ASC, b.id ASC
		LIMIT 1
	`

	var box models.Box
	err := r.db.Pool().QueryRow(ctx, query, productID).Scan(
		&box.ID,
		&box.ProductID,
		&box.ShipmentID,
		&box.PriceINRUnit,
		&box.IsActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.NewDatabaseError("resolve lowest price", err)
	}
	return &box, nil
}
