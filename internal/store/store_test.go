package store_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/safar/go-marketplace/internal/testutil/pgtest"
	"github.com/shopspring/decimal"
)

func insertOrder(t *testing.T, db *sql.DB, userID, sellerID int64, n int) *models.Order {
	t.Helper()
	ctx := context.Background()

	order := &models.Order{
		UserID:         userID,
		OrderNumber:    fmt.Sprintf("ORD%08d", n),
		Status:         models.OrderStatusPending,
		TotalAmount:    decimal.NewFromInt(100),
		DiscountAmount: decimal.Zero,
		ShippingAmount: decimal.Zero,
		FinalAmount:    decimal.NewFromInt(100),
		PaymentStatus:  models.PaymentStatusPending,
	}
	if err := store.InsertOrder(ctx, db, order); err != nil {
		t.Fatalf("Insert order %d: %v", n, err)
	}

	so := &models.SellerOrder{
		OrderID:  order.ID,
		SellerID: sellerID,
		Subtotal: decimal.NewFromInt(100),
		Status:   models.SellerOrderStatusPending,
	}
	if err := store.InsertSellerOrder(ctx, db, so); err != nil {
		t.Fatalf("Insert seller order %d: %v", n, err)
	}
	return order
}

func TestListOrdersCursor(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()

	seller := pgtest.User(t, db, models.RoleSeller)
	user := pgtest.User(t, db, models.RoleCustomer)
	other := pgtest.User(t, db, models.RoleCustomer)

	for i := 0; i < 15; i++ {
		insertOrder(t, db, user.ID, seller.ID, i)
	}
	insertOrder(t, db, other.ID, seller.ID, 100)

	filter := store.OrderFilter{UserID: &user.ID}
	page1, err := store.ListOrdersCursor(ctx, db, filter, "", 10)
	if err != nil {
		t.Fatalf("List orders page 1: %v", err)
	}

	if !page1.HasMore {
		t.Error("Page 1 should have more results")
	}
	if page1.NextCursor == "" {
		t.Error("Page 1 should have a next cursor")
	}

	page2, err := store.ListOrdersCursor(ctx, db, filter, page1.NextCursor, 10)
	if err != nil {
		t.Fatalf("List orders page 2: %v", err)
	}

	if page2.HasMore {
		t.Error("Page 2 should not have more results")
	}

	first := page1.Items.([]models.Order)
	second := page2.Items.([]models.Order)
	if len(first) != 10 || len(second) != 5 {
		t.Fatalf("Expected pages of 10 and 5, got %d and %d", len(first), len(second))
	}

	seen := map[int64]bool{}
	for _, o := range append(first, second...) {
		if o.UserID != user.ID {
			t.Errorf("Order %d belongs to user %d", o.ID, o.UserID)
		}
		if seen[o.ID] {
			t.Errorf("Order %d listed twice", o.ID)
		}
		seen[o.ID] = true
	}
	if first[0].ID < first[1].ID {
		t.Error("Orders should be newest first")
	}
}

func TestListOrdersBySellerAndStatus(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()

	sellerA := pgtest.User(t, db, models.RoleSeller)
	sellerB := pgtest.User(t, db, models.RoleSeller)
	user := pgtest.User(t, db, models.RoleCustomer)

	insertOrder(t, db, user.ID, sellerA.ID, 1)
	insertOrder(t, db, user.ID, sellerA.ID, 2)
	shipped := insertOrder(t, db, user.ID, sellerB.ID, 3)
	if err := store.SetOrderStatus(ctx, db, shipped.ID, models.OrderStatusShipped); err != nil {
		t.Fatalf("Set status: %v", err)
	}

	page, err := store.ListOrdersCursor(ctx, db, store.OrderFilter{SellerID: &sellerA.ID}, "", 10)
	if err != nil {
		t.Fatalf("List by seller: %v", err)
	}
	if n := len(page.Items.([]models.Order)); n != 2 {
		t.Errorf("Expected 2 orders for seller A, got %d", n)
	}

	page, err = store.ListOrdersCursor(ctx, db, store.OrderFilter{Status: models.OrderStatusShipped}, "", 10)
	if err != nil {
		t.Fatalf("List by status: %v", err)
	}
	orders := page.Items.([]models.Order)
	if len(orders) != 1 || orders[0].ID != shipped.ID {
		t.Errorf("Expected only order %d, got %+v", shipped.ID, orders)
	}
	if orders[0].ShippedAt == nil {
		t.Error("Shipped order should have shipped_at set")
	}
}

func TestListOrdersFirstPageIncludesFutureTimestamps(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()

	seller := pgtest.User(t, db, models.RoleSeller)
	user := pgtest.User(t, db, models.RoleCustomer)

	older := insertOrder(t, db, user.ID, seller.ID, 1)
	ahead := insertOrder(t, db, user.ID, seller.ID, 2)
	if _, err := db.ExecContext(ctx, "UPDATE orders SET created_at = NOW() + interval '2 hours' WHERE id = $1", ahead.ID); err != nil {
		t.Fatalf("Shift created_at: %v", err)
	}

	page, err := store.ListOrdersCursor(ctx, db, store.OrderFilter{UserID: &user.ID}, "", 10)
	if err != nil {
		t.Fatalf("List orders: %v", err)
	}
	orders := page.Items.([]models.Order)
	if len(orders) != 2 {
		t.Fatalf("Expected 2 orders, got %d", len(orders))
	}
	if orders[0].ID != ahead.ID || orders[1].ID != older.ID {
		t.Errorf("Expected order %d before %d, got %d and %d", ahead.ID, older.ID, orders[0].ID, orders[1].ID)
	}
}

func TestDecodeEmptyCursor(t *testing.T) {
	cursor, err := store.DecodeCursor("")
	if err != nil || cursor != nil {
		t.Errorf("Expected no cursor for the first page, got %+v, %v", cursor, err)
	}
}

func TestListOrdersBadCursor(t *testing.T) {
	db := pgtest.New(t)

	_, err := store.ListOrdersCursor(context.Background(), db, store.OrderFilter{}, "not-a-cursor!", 10)
	if !errors.Is(err, database.ErrValidation) {
		t.Errorf("Expected validation error, got: %v", err)
	}
}

func TestCreateProductDuplicateSKU(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	seller := pgtest.User(t, db, models.RoleSeller)

	params := store.CreateProductParams{
		SellerID: seller.ID,
		SKU:      "TEST-001",
		Name:     "Test Product",
		Price:    decimal.NewFromInt(100),
		Stock:    0,
	}
	product, err := store.CreateProduct(ctx, db, params)
	if err != nil {
		t.Fatalf("Create product: %v", err)
	}
	if product.Status != models.ProductStatusOutOfStock {
		t.Errorf("Product without stock should be OUT_OF_STOCK, got %s", product.Status)
	}

	_, err = store.CreateProduct(ctx, db, params)
	if !errors.Is(err, database.ErrConflict) {
		t.Errorf("Expected conflict for duplicate sku, got: %v", err)
	}
}

func TestListProducts(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	sellerA := pgtest.User(t, db, models.RoleSeller)
	sellerB := pgtest.User(t, db, models.RoleSeller)

	for i := 0; i < 3; i++ {
		pgtest.Product(t, db, sellerA.ID, "10.00", 5)
	}
	pgtest.Product(t, db, sellerB.ID, "10.00", 0)

	page, err := store.ListProducts(ctx, db, store.ProductFilter{SellerID: &sellerA.ID}, 1, 2)
	if err != nil {
		t.Fatalf("List products: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 {
		t.Errorf("Expected 3 products over 2 pages, got %d over %d", page.Total, page.TotalPages)
	}
	if n := len(page.Items.([]models.Product)); n != 2 {
		t.Errorf("Expected 2 products on page 1, got %d", n)
	}

	page, err = store.ListProducts(ctx, db, store.ProductFilter{Status: models.ProductStatusOutOfStock}, 1, 10)
	if err != nil {
		t.Fatalf("List products by status: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("Expected 1 out of stock product, got %d", page.Total)
	}
}

func TestCartLifecycle(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	seller := pgtest.User(t, db, models.RoleSeller)
	user := pgtest.User(t, db, models.RoleCustomer)
	product := pgtest.Product(t, db, seller.ID, "12.50", 10)

	cart, err := store.GetOrCreateCart(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}
	again, err := store.GetOrCreateCart(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Get cart again: %v", err)
	}
	if cart.ID != again.ID {
		t.Errorf("Expected the same cart, got %d and %d", cart.ID, again.ID)
	}

	if err := store.AddCartItem(ctx, db, cart.ID, product.ID, 2, product.Price); err != nil {
		t.Fatalf("Add item: %v", err)
	}
	if err := store.AddCartItem(ctx, db, cart.ID, product.ID, 1, product.Price); err != nil {
		t.Fatalf("Add item again: %v", err)
	}

	cart, err = store.GetOrCreateCart(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Reload cart: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].Quantity != 3 {
		t.Fatalf("Expected one line of 3, got %+v", cart.Items)
	}
	if cart.ItemCount != 3 || !cart.TotalPrice.Equal(decimal.RequireFromString("37.50")) {
		t.Errorf("Expected 3 items totalling 37.50, got %d totalling %s", cart.ItemCount, cart.TotalPrice)
	}

	if err := store.ConsumeCartItem(ctx, db, cart.Items[0].ID, 1); err != nil {
		t.Fatalf("Consume item: %v", err)
	}
	item, err := store.GetCartItemByUser(ctx, db, user.ID, product.ID)
	if err != nil {
		t.Fatalf("Get cart item: %v", err)
	}
	if item.Quantity != 2 {
		t.Errorf("Expected 2 left, got %d", item.Quantity)
	}

	if err := store.RemoveCartItem(ctx, db, cart.ID, product.ID); err != nil {
		t.Fatalf("Remove item: %v", err)
	}
	if err := store.RemoveCartItem(ctx, db, cart.ID, product.ID); !errors.Is(err, database.ErrCartItemNotFound) {
		t.Errorf("Expected cart item not found, got: %v", err)
	}
}

func TestConsumeCartItemRejectsMoreThanHeld(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	user := pgtest.User(t, db, models.RoleCustomer)
	seller := pgtest.User(t, db, models.RoleSeller)
	product := pgtest.Product(t, db, seller.ID, "10.00", 10)
	pgtest.InCart(t, db, user.ID, product, 2)

	item, err := store.GetCartItemByUser(ctx, db, user.ID, product.ID)
	if err != nil {
		t.Fatalf("Get cart item: %v", err)
	}

	if err := store.ConsumeCartItem(ctx, db, item.ID, 3); !errors.Is(err, database.ErrCartItemChanged) {
		t.Fatalf("Expected cart item changed, got: %v", err)
	}
	if err := store.ConsumeCartItem(ctx, db, item.ID, 2); err != nil {
		t.Fatalf("Consume whole line: %v", err)
	}
	if _, err := store.GetCartItemByUser(ctx, db, user.ID, product.ID); !errors.Is(err, database.ErrCartItemNotFound) {
		t.Errorf("Expected line to be gone, got: %v", err)
	}
	if err := store.ConsumeCartItem(ctx, db, item.ID, 1); !errors.Is(err, database.ErrCartItemChanged) {
		t.Errorf("Expected consuming a deleted line to fail, got: %v", err)
	}
}

func TestSetCartItemQuantityAndClear(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()
	user := pgtest.User(t, db, models.RoleCustomer)
	seller := pgtest.User(t, db, models.RoleSeller)
	mug := pgtest.Product(t, db, seller.ID, "10.00", 10)
	cup := pgtest.Product(t, db, seller.ID, "4.00", 10)
	pgtest.InCart(t, db, user.ID, mug, 1)
	pgtest.InCart(t, db, user.ID, cup, 1)

	cart, err := store.GetOrCreateCart(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Get cart: %v", err)
	}

	if err := store.SetCartItemQuantity(ctx, db, cart.ID, mug.ID, 4); err != nil {
		t.Fatalf("Set quantity: %v", err)
	}
	cart, err = store.GetOrCreateCart(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Reload cart: %v", err)
	}
	if cart.ItemCount != 5 || !cart.TotalPrice.Equal(decimal.RequireFromString("44.00")) {
		t.Errorf("Expected 5 items totalling 44.00, got %d totalling %s", cart.ItemCount, cart.TotalPrice)
	}

	if err := store.SetCartItemQuantity(ctx, db, cart.ID, 999, 1); !errors.Is(err, database.ErrCartItemNotFound) {
		t.Errorf("Expected cart item not found, got: %v", err)
	}

	if err := store.ClearCart(ctx, db, cart.ID); err != nil {
		t.Fatalf("Clear cart: %v", err)
	}
	cart, err = store.GetOrCreateCart(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Reload cart: %v", err)
	}
	if len(cart.Items) != 0 || cart.ItemCount != 0 || !cart.TotalPrice.IsZero() {
		t.Errorf("Expected an empty cart, got %+v", cart)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	db := pgtest.New(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, db, "dup@example.com", "First", models.RoleCustomer)
	if err != nil {
		t.Fatalf("Create user: %v", err)
	}
	if _, err := store.CreateUser(ctx, db, "dup@example.com", "Second", models.RoleCustomer); err == nil {
		t.Error("Expected duplicate email to fail")
	}

	got, err := store.GetUser(ctx, db, user.ID)
	if err != nil {
		t.Fatalf("Get user: %v", err)
	}
	if got.Role != models.RoleCustomer {
		t.Errorf("Expected role CUSTOMER, got %s", got.Role)
	}

	if _, err := store.GetUser(ctx, db, 9999); !errors.Is(err, database.ErrUserNotFound) {
		t.Errorf("Expected user not found, got: %v", err)
	}
}
