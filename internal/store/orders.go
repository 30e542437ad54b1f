package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/shopspring/decimal"
)

const orderColumns = `id, user_id, order_number, status, total_amount, discount_amount, shipping_amount,
	final_amount, recipient_name, street, city, state, zip_code, country, phone_number,
	payment_status, coupon_id, transaction_id, placed_at, shipped_at, delivered_at,
	created_at, updated_at, version`

func scanOrder(row rowScanner) (*models.Order, error) {
	o := &models.Order{}
	err := row.Scan(
		&o.ID,
		&o.UserID,
		&o.OrderNumber,
		&o.Status,
		&o.TotalAmount,
		&o.DiscountAmount,
		&o.ShippingAmount,
		&o.FinalAmount,
		&o.Shipping.RecipientName,
		&o.Shipping.Street,
		&o.Shipping.City,
		&o.Shipping.State,
		&o.Shipping.ZipCode,
		&o.Shipping.Country,
		&o.Shipping.PhoneNumber,
		&o.PaymentStatus,
		&o.CouponID,
		&o.TransactionID,
		&o.PlacedAt,
		&o.ShippedAt,
		&o.DeliveredAt,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.Version,
	)
	return o, err
}

// InsertOrder writes the order header and fills in the generated columns.
func InsertOrder(ctx context.Context, q database.DBTX, o *models.Order) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, order_number, status, total_amount, discount_amount, shipping_amount,
		                     final_amount, recipient_name, street, city, state, zip_code, country, phone_number,
		                     payment_status, coupon_id, placed_at, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW(), NOW(), 1)
		 RETURNING id, placed_at, created_at, updated_at, version`,
		o.UserID, o.OrderNumber, o.Status, o.TotalAmount, o.DiscountAmount, o.ShippingAmount,
		o.FinalAmount, o.Shipping.RecipientName, o.Shipping.Street, o.Shipping.City, o.Shipping.State,
		o.Shipping.ZipCode, o.Shipping.Country, o.Shipping.PhoneNumber, o.PaymentStatus, o.CouponID,
	).Scan(&o.ID, &o.PlacedAt, &o.CreatedAt, &o.UpdatedAt, &o.Version)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

func InsertSellerOrder(ctx context.Context, q database.DBTX, so *models.SellerOrder) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO seller_orders (order_id, seller_id, subtotal, commission_amount, payout_amount, status, created_at, updated_at)
		 VALUES ($1, $2, $3, 0, 0, $4, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		so.OrderID, so.SellerID, so.Subtotal, so.Status,
	).Scan(&so.ID, &so.CreatedAt, &so.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create seller order: %w", err)
	}
	return nil
}

func InsertOrderItem(ctx context.Context, q database.DBTX, item *models.OrderItem) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO order_items (order_id, seller_order_id, product_id, quantity, unit_price, subtotal, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW())
		 RETURNING id, created_at`,
		item.OrderID, item.SellerOrderID, item.ProductID, item.Quantity, item.UnitPrice, item.Subtotal,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("create order item: %w", err)
	}
	return nil
}

// GetOrder loads the order with its seller orders and lines.
func GetOrder(ctx context.Context, q database.DBTX, id int64) (*models.Order, error) {
	return getOrder(ctx, q, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// LockOrder is GetOrder with the order row locked for the rest of the transaction.
func LockOrder(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	return getOrder(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func getOrder(ctx context.Context, q database.DBTX, query string, id int64) (*models.Order, error) {
	order, err := scanOrder(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.SellerOrders, err = listSellerOrders(ctx, q, id); err != nil {
		return nil, err
	}
	if order.Items, err = listOrderItems(ctx, q, id); err != nil {
		return nil, err
	}

	return order, nil
}

func listSellerOrders(ctx context.Context, q database.DBTX, orderID int64) ([]models.SellerOrder, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, seller_id, subtotal, commission_amount, payout_amount, status, created_at, updated_at
		 FROM seller_orders
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get seller orders: %w", err)
	}
	defer rows.Close()

	var sellerOrders []models.SellerOrder
	for rows.Next() {
		var so models.SellerOrder
		err := rows.Scan(
			&so.ID,
			&so.OrderID,
			&so.SellerID,
			&so.Subtotal,
			&so.CommissionAmount,
			&so.PayoutAmount,
			&so.Status,
			&so.CreatedAt,
			&so.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan seller order: %w", err)
		}
		sellerOrders = append(sellerOrders, so)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return sellerOrders, nil
}

func listOrderItems(ctx context.Context, q database.DBTX, orderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, order_id, seller_order_id, product_id, quantity, unit_price, subtotal, created_at
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY product_id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		err := rows.Scan(
			&item.ID,
			&item.OrderID,
			&item.SellerOrderID,
			&item.ProductID,
			&item.Quantity,
			&item.UnitPrice,
			&item.Subtotal,
			&item.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// SetOrderStatus writes status and stamps shipped_at / delivered_at on those transitions.
func SetOrderStatus(ctx context.Context, q database.DBTX, id int64, status string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET status = $1::text,
		     shipped_at = CASE WHEN $1::text = 'SHIPPED' THEN NOW() ELSE shipped_at END,
		     delivered_at = CASE WHEN $1::text = 'DELIVERED' THEN NOW() ELSE delivered_at END,
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $2`,
		status, id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectOneRow(result, database.ErrOrderNotFound)
}

// SetOrderPayment records the outcome of a payment on the order header.
// An empty orderStatus leaves the status unchanged.
func SetOrderPayment(ctx context.Context, q database.DBTX, id int64, orderStatus, paymentStatus string, transactionID *string) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders
		 SET status = COALESCE(NULLIF($1::text, ''), status),
		     payment_status = $2,
		     transaction_id = COALESCE($3, transaction_id),
		     updated_at = NOW(),
		     version = version + 1
		 WHERE id = $4`,
		orderStatus, paymentStatus, transactionID, id)
	if err != nil {
		return fmt.Errorf("update order payment: %w", err)
	}
	return expectOneRow(result, database.ErrOrderNotFound)
}

func SetSellerOrdersStatus(ctx context.Context, q database.DBTX, orderID int64, status string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE seller_orders SET status = $1, updated_at = NOW() WHERE order_id = $2`,
		status, orderID)
	if err != nil {
		return fmt.Errorf("update seller orders: %w", err)
	}
	return nil
}

func MarkSellerOrderPaidOut(ctx context.Context, q database.DBTX, id int64, commission, payout decimal.Decimal) error {
	_, err := q.ExecContext(ctx,
		`UPDATE seller_orders
		 SET commission_amount = $1, payout_amount = $2, status = $3, updated_at = NOW()
		 WHERE id = $4`,
		commission, payout, models.SellerOrderStatusPaidOut, id)
	if err != nil {
		return fmt.Errorf("update seller order payout: %w", err)
	}
	return nil
}

func CountDeliveredOrders(ctx context.Context, q database.DBTX, userID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1 AND status = $2`,
		userID, models.OrderStatusDelivered).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count delivered orders: %w", err)
	}
	return n, nil
}

// OrderFilter scopes a listing. Nil ids mean no restriction on that column.
type OrderFilter struct {
	UserID   *int64
	SellerID *int64
	Status   string
}

func ListOrdersCursor(ctx context.Context, q database.DBTX, filter OrderFilter, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, database.NewError(database.ErrValidation, "invalid cursor")
	}

	stmt := psql.Select(orderColumns).
		From("orders").
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit + 1))

	if cursorData != nil {
		stmt = stmt.Where("(created_at, id) < (?, ?)", cursorData.CreatedAt, cursorData.ID)
	}

	if filter.UserID != nil {
		stmt = stmt.Where(sq.Eq{"user_id": *filter.UserID})
	}
	if filter.SellerID != nil {
		stmt = stmt.Where("EXISTS (SELECT 1 FROM seller_orders so WHERE so.order_id = orders.id AND so.seller_id = ?)", *filter.SellerID)
	}
	if filter.Status != "" {
		stmt = stmt.Where(sq.Eq{"status": filter.Status})
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			CreatedAt: lastOrder.CreatedAt,
			ID:        lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

func expectOneRow(result sql.Result, notFound error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return notFound
	}
	return nil
}
