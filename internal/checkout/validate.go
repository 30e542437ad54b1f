package checkout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
)

type LineRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// ValidatedLine is a requested line matched against the buyer's cart and the
// product as it stands now.
type ValidatedLine struct {
	LineRequest
	CartItem *models.CartItem
	Product  *models.Product
}

// ValidateCart checks lines against userID's cart and current stock without
// changing anything. Matched cart lines stay locked until tx ends, taken in
// product id order, which is also the order of the result.
func ValidateCart(ctx context.Context, tx *sql.Tx, userID int64, lines []LineRequest) ([]ValidatedLine, error) {
	if len(lines) == 0 {
		return nil, database.NewError(database.ErrValidation, "order must contain at least one item")
	}

	sorted := make([]LineRequest, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	validated := make([]ValidatedLine, 0, len(sorted))
	for i, line := range sorted {
		if line.Quantity <= 0 {
			return nil, database.NewError(database.ErrValidation,
				fmt.Sprintf("quantity for product %d must be positive", line.ProductID))
		}
		if i > 0 && sorted[i-1].ProductID == line.ProductID {
			return nil, database.NewError(database.ErrValidation,
				fmt.Sprintf("product %d is listed more than once", line.ProductID))
		}

		item, err := store.LockCartItemByUser(ctx, tx, userID, line.ProductID)
		if err != nil {
			if errors.Is(err, database.ErrCartItemNotFound) {
				return nil, database.NewError(database.ErrValidation,
					fmt.Sprintf("product %d is not in the cart", line.ProductID))
			}
			return nil, err
		}
		if line.Quantity > item.Quantity {
			return nil, database.NewError(database.ErrValidation,
				fmt.Sprintf("only %d units of product %d are in the cart", item.Quantity, line.ProductID))
		}

		product, err := store.GetProduct(ctx, tx, line.ProductID)
		if err != nil {
			return nil, err
		}
		if product.Status == models.ProductStatusInactive {
			return nil, database.NewError(database.ErrConflict,
				fmt.Sprintf("product %d is not available", line.ProductID))
		}
		if product.StockQuantity < line.Quantity {
			return nil, fmt.Errorf("product %d: %w", line.ProductID, database.ErrInsufficientStock)
		}

		validated = append(validated, ValidatedLine{LineRequest: line, CartItem: item, Product: product})
	}

	return validated, nil
}
