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

const productColumns = "id, seller_id, sku, name, description, price, stock_quantity, status, created_at, updated_at, version"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*models.Product, error) {
	p := &models.Product{}
	err := row.Scan(
		&p.ID,
		&p.SellerID,
		&p.SKU,
		&p.Name,
		&p.Description,
		&p.Price,
		&p.StockQuantity,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Version,
	)
	return p, err
}

type CreateProductParams struct {
	SellerID    int64
	SKU         string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
}

func CreateProduct(ctx context.Context, q database.DBTX, params CreateProductParams) (*models.Product, error) {
	status := models.ProductStatusActive
	if params.Stock == 0 {
		status = models.ProductStatusOutOfStock
	}

	query := `
		INSERT INTO products (seller_id, sku, name, description, price, stock_quantity, status, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW(), 1)
		RETURNING ` + productColumns

	product, err := scanProduct(q.QueryRowContext(ctx, query,
		params.SellerID, params.SKU, params.Name, params.Description, params.Price, params.Stock, status))
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, database.NewError(database.ErrConflict, "product sku already exists")
		}
		return nil, fmt.Errorf("create product: %w", err)
	}

	return product, nil
}

func GetProduct(ctx context.Context, q database.DBTX, id int64) (*models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE id = $1`

	product, err := scanProduct(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrProductNotFound
		}
		return nil, fmt.Errorf("get product: %w", err)
	}

	return product, nil
}

type ProductFilter struct {
	SellerID *int64
	Status   string
}

func ListProducts(ctx context.Context, q database.DBTX, filter ProductFilter, page, pageSize int) (*OffsetPage, error) {
	where := sq.And{}
	if filter.SellerID != nil {
		where = append(where, sq.Eq{"seller_id": *filter.SellerID})
	}
	if filter.Status != "" {
		where = append(where, sq.Eq{"status": filter.Status})
	}

	countSQL, countArgs, err := psql.Select("COUNT(*)").From("products").Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	if err := q.QueryRowContext(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count products: %w", err)
	}

	listSQL, listArgs, err := psql.Select(productColumns).
		From("products").
		Where(where).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(pageSize)).
		Offset(uint64((page - 1) * pageSize)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list query: %w", err)
	}

	rows, err := q.QueryContext(ctx, listSQL, listArgs...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, *product)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return newOffsetPage(products, total, page, pageSize), nil
}
