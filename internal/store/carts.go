package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/shopspring/decimal"
)

// GetOrCreateCart returns the user's cart, creating an empty one on first use.
func GetOrCreateCart(ctx context.Context, q database.DBTX, userID int64) (*models.Cart, error) {
	cart := &models.Cart{}

	_, err := q.ExecContext(ctx,
		`INSERT INTO carts (user_id, total_price, item_count, created_at, updated_at)
		 VALUES ($1, 0, 0, NOW(), NOW())
		 ON CONFLICT (user_id) DO NOTHING`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}

	err = q.QueryRowContext(ctx,
		`SELECT id, user_id, total_price, item_count, created_at, updated_at
		 FROM carts WHERE user_id = $1`,
		userID).Scan(
		&cart.ID,
		&cart.UserID,
		&cart.TotalPrice,
		&cart.ItemCount,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get cart: %w", err)
	}

	items, err := ListCartItems(ctx, q, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items

	return cart, nil
}

func ListCartItems(ctx context.Context, q database.DBTX, cartID int64) ([]models.CartItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, cart_id, product_id, quantity, unit_price
		 FROM cart_items
		 WHERE cart_id = $1
		 ORDER BY product_id`,
		cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	defer rows.Close()

	items := []models.CartItem{}
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan cart item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

const cartItemByUserQuery = `SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity, ci.unit_price
	 FROM cart_items ci
	 JOIN carts c ON c.id = ci.cart_id
	 WHERE c.user_id = $1 AND ci.product_id = $2`

// GetCartItemByUser looks up the cart line for productID in userID's cart.
func GetCartItemByUser(ctx context.Context, q database.DBTX, userID, productID int64) (*models.CartItem, error) {
	return getCartItem(ctx, q, cartItemByUserQuery, userID, productID)
}

// LockCartItemByUser is GetCartItemByUser holding the line's row lock until tx ends.
// A line deleted by a concurrent checkout is reported as not found.
func LockCartItemByUser(ctx context.Context, tx *sql.Tx, userID, productID int64) (*models.CartItem, error) {
	return getCartItem(ctx, tx, cartItemByUserQuery+` FOR UPDATE OF ci`, userID, productID)
}

func getCartItem(ctx context.Context, q database.DBTX, query string, userID, productID int64) (*models.CartItem, error) {
	item := &models.CartItem{}

	err := q.QueryRowContext(ctx, query, userID, productID).
		Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity, &item.UnitPrice)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCartItemNotFound
		}
		return nil, fmt.Errorf("get cart item: %w", err)
	}

	return item, nil
}

// AddCartItem merges quantity into an existing line or creates one, snapshotting unitPrice.
func AddCartItem(ctx context.Context, q database.DBTX, cartID, productID int64, quantity int, unitPrice decimal.Decimal) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, quantity, unit_price, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NOW(), NOW())
		 ON CONFLICT (cart_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity,
		               unit_price = EXCLUDED.unit_price,
		               updated_at = NOW()`,
		cartID, productID, quantity, unitPrice)
	if err != nil {
		return fmt.Errorf("add cart item: %w", err)
	}
	return RecalculateCart(ctx, q, cartID)
}

func RemoveCartItem(ctx context.Context, q database.DBTX, cartID, productID int64) error {
	result, err := q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID)
	if err != nil {
		return fmt.Errorf("remove cart item: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return database.ErrCartItemNotFound
	}

	return RecalculateCart(ctx, q, cartID)
}

// SetCartItemQuantity replaces the quantity of productID's line in the cart.
func SetCartItemQuantity(ctx context.Context, q database.DBTX, cartID, productID int64, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE cart_items
		 SET quantity = $3, updated_at = NOW()
		 WHERE cart_id = $1 AND product_id = $2`,
		cartID, productID, quantity)
	if err != nil {
		return fmt.Errorf("set cart item quantity: %w", err)
	}
	if err := expectOneRow(result, database.ErrCartItemNotFound); err != nil {
		return err
	}
	return RecalculateCart(ctx, q, cartID)
}

func ClearCart(ctx context.Context, q database.DBTX, cartID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return RecalculateCart(ctx, q, cartID)
}

// ConsumeCartItem takes quantity off a cart line after it has been ordered,
// deleting the line once nothing is left. It fails with ErrCartItemChanged
// if the line no longer holds quantity units.
func ConsumeCartItem(ctx context.Context, q database.DBTX, itemID int64, quantity int) error {
	result, err := q.ExecContext(ctx,
		`UPDATE cart_items
		 SET quantity = quantity - $2, updated_at = NOW()
		 WHERE id = $1 AND quantity > $2`,
		itemID, quantity)
	if err != nil {
		return fmt.Errorf("reduce cart item: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 1 {
		return nil
	}

	result, err = q.ExecContext(ctx,
		`DELETE FROM cart_items WHERE id = $1 AND quantity = $2`,
		itemID, quantity)
	if err != nil {
		return fmt.Errorf("delete consumed cart item: %w", err)
	}
	return expectOneRow(result, database.ErrCartItemChanged)
}

func RecalculateCart(ctx context.Context, q database.DBTX, cartID int64) error {
	_, err := q.ExecContext(ctx,
		`UPDATE carts
		 SET total_price = COALESCE((SELECT SUM(quantity * unit_price) FROM cart_items WHERE cart_id = $1), 0),
		     item_count  = COALESCE((SELECT SUM(quantity) FROM cart_items WHERE cart_id = $1), 0),
		     updated_at  = NOW()
		 WHERE id = $1`,
		cartID)
	if err != nil {
		return fmt.Errorf("recalculate cart: %w", err)
	}
	return nil
}
