package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	apperrors "github.com/price-alerts/internal/errors"
	"github.com/price-alerts/internal/models"
)

// AlertRepository handles price_alert persistence
type AlertRepository struct {
	db *PostgresDB
}

// NewAlertRepository creates a new alert repository
func NewAlertRepository(db *PostgresDB) *AlertRepository {
	return &AlertRepository{db: db}
}

// DeleteExpired removes every alert with expires_at strictly before now and
// returns how many rows went. The delete and commit are one unit.
func (r *AlertRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var deleted int64
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM price_alert WHERE expires_at < $1`, now.UTC())
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperrors.NewDatabaseError("delete expired alerts", err)
	}
	return deleted, nil
}

// DeleteNotified removes alerts left behind in mark retire mode.
func (r *AlertRepository) DeleteNotified(ctx context.Context) (int64, error) {
	var deleted int64
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM price_alert WHERE notified = true`)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, apperrors.NewDatabaseError("delete notified alerts", err)
	}
	return deleted, nil
}

// ListPending returns all alerts not yet notified, ordered by id.
func (r *AlertRepository) ListPending(ctx context.Context) ([]*models.PriceAlert, error) {
	query := `
		SELECT id, user_id, product_id, target_price, expires_at, notified
		FROM price_alert
		WHERE notified = false
		ORDER BY id
	`

	rows, err := r.db.Pool().Query(ctx, query)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list pending alerts", err)
	}
	defer rows.Close()

	var alerts []*models.PriceAlert
	for rows.Next() {
		var a models.PriceAlert
		if err := rows.Scan(
			&a.ID,
			&a.UserID,
			&a.ProductID,
			&a.TargetPrice,
			&a.ExpiresAt,
			&a.Notified,
		); err != nil {
			return nil, apperrors.NewDatabaseError("scan pending alert", err)
		}
		alerts = append(alerts, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewDatabaseError("list pending alerts", err)
	}

	return alerts, nil
}

// Retire marks an alert notified and, when deleteAfter is set, deletes it in
// the same transaction. Returns ErrNotFound if the alert is gone or was already
// marked by someone else.
func (r *AlertRepository) Retire(ctx context.Context, id int64, deleteAfter bool) error {
	err := r.db.InTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE price_alert SET notified = true WHERE id = $1 AND notified = false`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return apperrors.ErrNotFound
		}

		if deleteAfter {
			if _, err := tx.Exec(ctx, `DELETE FROM price_alert WHERE id = $1`, id); err != nil {
				return err
			}
		}
		return nil
	})

	if apperrors.IsNotFound(err) {
		return fmt.Errorf("alert %d: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return apperrors.NewDatabaseError("retire alert", err)
	}
	return nil
}
