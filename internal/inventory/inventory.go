// Package inventory owns every change to product stock. Callers pass the
// transaction the change belongs to.
package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

// Decrement takes quantity off productID's stock. The row lock taken by the
// UPDATE serialises concurrent buyers; no prior read is needed.
func Decrement(ctx context.Context, q database.DBTX, productID int64, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, database.NewError(database.ErrValidation, "quantity must be positive")
	}

	var remaining int
	err := q.QueryRowContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity - $1,
		     status = CASE WHEN stock_quantity - $1 = 0 THEN $3 ELSE status END,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		   AND stock_quantity >= $1
		 RETURNING stock_quantity`,
		quantity, productID, models.ProductStatusOutOfStock).Scan(&remaining)
	if err == nil {
		return remaining, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("decrement stock: %w", err)
	}

	exists, err := productExists(ctx, q, productID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, database.ErrProductNotFound
	}
	return 0, database.ErrInsufficientStock
}

// Restore puts quantity back, reactivating a product that had sold out.
func Restore(ctx context.Context, q database.DBTX, productID int64, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, database.NewError(database.ErrValidation, "quantity must be positive")
	}

	var stock int
	err := q.QueryRowContext(ctx,
		`UPDATE products
		 SET stock_quantity = stock_quantity + $1,
		     status = CASE WHEN status = $3 THEN $4 ELSE status END,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2
		 RETURNING stock_quantity`,
		quantity, productID, models.ProductStatusOutOfStock, models.ProductStatusActive).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, database.ErrProductNotFound
		}
		return 0, fmt.Errorf("restore stock: %w", err)
	}
	return stock, nil
}

func productExists(ctx context.Context, q database.DBTX, productID int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM products WHERE id = $1)", productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check product exists: %w", err)
	}
	return exists, nil
}
