package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

const couponColumns = `id, code, name, discount_type, discount_value, max_discount_amount, min_order_amount,
	usage_limit, used_count, expiry_date, active, for_new_users, created_at, updated_at`

func scanCoupon(row rowScanner) (*models.DiscountCoupon, error) {
	c := &models.DiscountCoupon{}
	err := row.Scan(
		&c.ID,
		&c.Code,
		&c.Name,
		&c.DiscountType,
		&c.DiscountValue,
		&c.MaxDiscountAmount,
		&c.MinOrderAmount,
		&c.UsageLimit,
		&c.UsedCount,
		&c.ExpiryDate,
		&c.Active,
		&c.ForNewUsers,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

func InsertCoupon(ctx context.Context, q database.DBTX, c *models.DiscountCoupon) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO discount_coupons (code, name, discount_type, discount_value, max_discount_amount,
		                               min_order_amount, usage_limit, used_count, expiry_date, active,
		                               for_new_users, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10, NOW(), NOW())
		 RETURNING id, used_count, created_at, updated_at`,
		c.Code, c.Name, c.DiscountType, c.DiscountValue, c.MaxDiscountAmount,
		c.MinOrderAmount, c.UsageLimit, c.ExpiryDate, c.Active, c.ForNewUsers,
	).Scan(&c.ID, &c.UsedCount, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return database.ErrCouponExists
		}
		return fmt.Errorf("create coupon: %w", err)
	}
	return nil
}

// GetCouponByCode matches codes case-insensitively; codes are stored upper-case.
func GetCouponByCode(ctx context.Context, q database.DBTX, code string) (*models.DiscountCoupon, error) {
	return getCoupon(ctx, q, `SELECT `+couponColumns+` FROM discount_coupons WHERE code = $1`,
		strings.ToUpper(strings.TrimSpace(code)))
}

func GetCoupon(ctx context.Context, q database.DBTX, id int64) (*models.DiscountCoupon, error) {
	return getCoupon(ctx, q, `SELECT `+couponColumns+` FROM discount_coupons WHERE id = $1`, id)
}

func getCoupon(ctx context.Context, q database.DBTX, query string, arg any) (*models.DiscountCoupon, error) {
	coupon, err := scanCoupon(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrCouponNotFound
		}
		return nil, fmt.Errorf("get coupon: %w", err)
	}

	return coupon, nil
}

// UpdateCoupon writes the editable fields of c back to its row. Code and
// used_count never change here.
func UpdateCoupon(ctx context.Context, q database.DBTX, c *models.DiscountCoupon) error {
	err := q.QueryRowContext(ctx,
		`UPDATE discount_coupons
		 SET name = $2, discount_type = $3, discount_value = $4, max_discount_amount = $5,
		     min_order_amount = $6, usage_limit = $7, expiry_date = $8, active = $9,
		     for_new_users = $10, updated_at = NOW()
		 WHERE id = $1
		 RETURNING used_count, updated_at`,
		c.ID, c.Name, c.DiscountType, c.DiscountValue, c.MaxDiscountAmount,
		c.MinOrderAmount, c.UsageLimit, c.ExpiryDate, c.Active, c.ForNewUsers,
	).Scan(&c.UsedCount, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrCouponNotFound
		}
		return fmt.Errorf("update coupon: %w", err)
	}
	return nil
}

func DeactivateCoupon(ctx context.Context, q database.DBTX, id int64) error {
	result, err := q.ExecContext(ctx,
		`UPDATE discount_coupons SET active = FALSE, updated_at = NOW() WHERE id = $1`,
		id)
	if err != nil {
		return fmt.Errorf("deactivate coupon: %w", err)
	}
	return expectOneRow(result, database.ErrCouponNotFound)
}

func ListCoupons(ctx context.Context, q database.DBTX, activeOnly bool) ([]models.DiscountCoupon, error) {
	stmt := psql.Select(couponColumns).From("discount_coupons").OrderBy("created_at DESC")
	if activeOnly {
		stmt = stmt.Where(sq.Eq{"active": true}).Where("expiry_date > NOW()")
	}

	query, args, err := stmt.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build coupon query: %w", err)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	defer rows.Close()

	coupons := []models.DiscountCoupon{}
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coupon: %w", err)
		}
		coupons = append(coupons, *coupon)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return coupons, nil
}
