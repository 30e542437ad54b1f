// Package pgtest starts a throwaway Postgres for package tests and seeds
// common fixtures.
package pgtest

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

var (
	once    sync.Once
	shared  *sql.DB
	initErr error
)

const tables = "payments, order_items, seller_orders, orders, cart_items, carts, discount_coupons, bank_accounts, products, users"

// New returns a migrated database with every table emptied. The container is
// shared by all tests in the package and reaped when the test binary exits.
func New(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	once.Do(func() { shared, initErr = start(context.Background()) })
	require.NoError(t, initErr)

	_, err := shared.Exec("TRUNCATE " + tables + " RESTART IDENTITY CASCADE")
	require.NoError(t, err)
	return shared
}

func start(ctx context.Context) (*sql.DB, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("container dsn: %w", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := database.MigrateUp(db); err != nil {
		return nil, err
	}
	return db, nil
}

func User(t *testing.T, db *sql.DB, role models.Role) *models.User {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))

	u, err := store.CreateUser(context.Background(), db,
		fmt.Sprintf("user%d@example.com", n+1), fmt.Sprintf("User %d", n+1), role)
	require.NoError(t, err)
	return u
}

func Product(t *testing.T, db *sql.DB, sellerID int64, price string, stock int) *models.Product {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM products`).Scan(&n))

	p, err := store.CreateProduct(context.Background(), db, store.CreateProductParams{
		SellerID: sellerID,
		SKU:      fmt.Sprintf("SKU-%03d", n+1),
		Name:     fmt.Sprintf("Product %d", n+1),
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
	})
	require.NoError(t, err)
	return p
}

// InCart puts quantity of product into the user's cart at the product's price.
func InCart(t *testing.T, db *sql.DB, userID int64, product *models.Product, quantity int) {
	t.Helper()
	ctx := context.Background()

	cart, err := store.GetOrCreateCart(ctx, db, userID)
	require.NoError(t, err)
	require.NoError(t, store.AddCartItem(ctx, db, cart.ID, product.ID, quantity, product.Price))
}

func Account(t *testing.T, db *sql.DB, number string, userID *int64, role, balance string) *models.BankAccount {
	t.Helper()
	a := &models.BankAccount{
		AccountNumber: number,
		HolderName:    "Holder " + number,
		UserID:        userID,
		Role:          role,
		Balance:       decimal.RequireFromString(balance),
		Active:        true,
	}
	require.NoError(t, store.CreateAccount(context.Background(), db, a))
	return a
}

func Balance(t *testing.T, db *sql.DB, number string) decimal.Decimal {
	t.Helper()
	a, err := store.GetAccountByNumber(context.Background(), db, number)
	require.NoError(t, err)
	return a.Balance
}

func Stock(t *testing.T, db *sql.DB, productID int64) int {
	t.Helper()
	p, err := store.GetProduct(context.Background(), db, productID)
	require.NoError(t, err)
	return p.StockQuantity
}
