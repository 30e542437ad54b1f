package fulfillment

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/checkout"
	"github.com/safar/go-marketplace/internal/config"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/discount"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/safar/go-marketplace/internal/testutil/notifytest"
	"github.com/safar/go-marketplace/internal/testutil/pgtest"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeReleaser struct {
	released []int64
	err      error
}

func (f *fakeReleaser) ReleaseEscrow(_ context.Context, orderID int64) error {
	f.released = append(f.released, orderID)
	return f.err
}

type fixture struct {
	db       *sql.DB
	svc      *Service
	releaser *fakeReleaser
	notes    *notifytest.Recorder
	buyer    authz.Actor
	seller   authz.Actor
	product  *models.Product
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := pgtest.New(t)
	seller := pgtest.User(t, db, models.RoleSeller)
	buyer := pgtest.User(t, db, models.RoleCustomer)

	f := &fixture{
		db:       db,
		releaser: &fakeReleaser{},
		notes:    &notifytest.Recorder{},
		buyer:    authz.Actor{UserID: buyer.ID, Role: models.RoleCustomer},
		seller:   authz.Actor{UserID: seller.ID, Role: models.RoleSeller},
		product:  pgtest.Product(t, db, seller.ID, "20.00", 5),
	}
	f.svc = NewService(db, f.releaser, f.notes, zaptest.NewLogger(t))
	return f
}

// placeOrder buys quantity units through checkout, so stock and seller orders
// are real.
func (f *fixture) placeOrder(t *testing.T, quantity int) *models.Order {
	t.Helper()
	pgtest.InCart(t, f.db, f.buyer.UserID, f.product, quantity)

	pricing := config.PricingConfig{FreeShippingThreshold: decimal.NewFromInt(50), ShippingFee: decimal.RequireFromString("5.99")}
	co := checkout.NewService(f.db, discount.NewEngine(decimal.NewFromInt(50), decimal.NewFromInt(10)), pricing, &notifytest.Recorder{}, zaptest.NewLogger(t))
	order, err := co.CreateOrder(context.Background(), f.buyer, checkout.CreateOrderRequest{
		UserID:          f.buyer.UserID,
		Items:           []checkout.LineRequest{{ProductID: f.product.ID, Quantity: quantity}},
		ShippingAddress: models.ShippingAddress{Street: "1 Main St", City: "Springfield", Country: "US"},
	})
	require.NoError(t, err)
	return order
}

func (f *fixture) markPaid(t *testing.T, orderID int64) {
	t.Helper()
	txn := "TXNPAID0001"
	require.NoError(t, store.SetOrderPayment(context.Background(), f.db, orderID,
		models.OrderStatusConfirmed, models.PaymentStatusCompleted, &txn))
}

func TestShipAndDeliver(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.placeOrder(t, 2)
	f.markPaid(t, order.ID)

	shipped, err := f.svc.UpdateStatus(ctx, f.seller, order.ID, "shipped")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)
	assert.NotNil(t, shipped.ShippedAt)

	delivered, err := f.svc.UpdateStatus(ctx, f.seller, order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
	assert.NotNil(t, delivered.DeliveredAt)

	assert.Equal(t, []int64{order.ID}, f.releaser.released)
	assert.Equal(t, []string{"shipping", "admin"}, f.notes.Kinds())
	assert.Equal(t, "Order delivered", f.notes.Last().Subject)
}

func TestDeliveryKeepsStatusWhenReleaseFails(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.placeOrder(t, 1)
	f.markPaid(t, order.ID)
	f.releaser.err = errors.New("seller has no bank account")

	_, err := f.svc.UpdateStatus(ctx, f.seller, order.ID, models.OrderStatusShipped)
	require.NoError(t, err)
	delivered, err := f.svc.UpdateStatus(ctx, f.seller, order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusDelivered, delivered.Status)

	assert.Equal(t, "Escrow release failed", f.notes.Last().Subject)
	assert.Contains(t, f.notes.Last().Message, order.OrderNumber)
}

func TestShipRequiresCompletedPayment(t *testing.T) {
	f := setup(t)
	order := f.placeOrder(t, 1)

	_, err := f.svc.UpdateStatus(context.Background(), f.seller, order.ID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, database.ErrIllegalTransition)

	_, err = f.db.Exec(`UPDATE orders SET status = $1 WHERE id = $2`, models.OrderStatusConfirmed, order.ID)
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(context.Background(), f.seller, order.ID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, database.ErrPaymentNotCompleted)
}

func TestUpdateStatusPermissions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.placeOrder(t, 1)
	f.markPaid(t, order.ID)

	_, err := f.svc.UpdateStatus(ctx, f.buyer, order.ID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, database.ErrForbidden)

	stranger := authz.Actor{UserID: f.seller.UserID + 100, Role: models.RoleSeller}
	_, err = f.svc.UpdateStatus(ctx, stranger, order.ID, models.OrderStatusShipped)
	assert.ErrorIs(t, err, database.ErrForbidden)

	admin := authz.Actor{UserID: 1, Role: models.RoleAdmin}
	_, err = f.svc.UpdateStatus(ctx, admin, order.ID, models.OrderStatusShipped)
	assert.NoError(t, err)
}

func TestUpdateStatusRejectsPaymentOwnedStatuses(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.placeOrder(t, 1)

	_, err := f.svc.UpdateStatus(ctx, f.buyer, order.ID, models.OrderStatusConfirmed)
	assert.ErrorIs(t, err, database.ErrState)
	_, err = f.svc.UpdateStatus(ctx, f.buyer, order.ID, models.OrderStatusRefunded)
	assert.ErrorIs(t, err, database.ErrState)
	_, err = f.svc.UpdateStatus(ctx, f.buyer, order.ID, "LOST")
	assert.ErrorIs(t, err, database.ErrValidation)
	_, err = f.svc.UpdateStatus(ctx, f.buyer, 9999, models.OrderStatusShipped)
	assert.ErrorIs(t, err, database.ErrOrderNotFound)
}

func TestCancelRestoresStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.placeOrder(t, 5)
	assert.Equal(t, 0, pgtest.Stock(t, f.db, f.product.ID))

	cancelled, err := f.svc.UpdateStatus(ctx, f.buyer, order.ID, "cancelled")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
	for _, so := range cancelled.SellerOrders {
		assert.Equal(t, models.SellerOrderStatusCancelled, so.Status)
	}

	p, err := store.GetProduct(ctx, f.db, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, p.StockQuantity)
	assert.Equal(t, models.ProductStatusActive, p.Status)
	assert.Empty(t, f.notes.Kinds())

	_, err = f.svc.Cancel(ctx, f.buyer, order.ID)
	assert.ErrorIs(t, err, database.ErrIllegalTransition)
	assert.Equal(t, 5, pgtest.Stock(t, f.db, f.product.ID))
}

func TestCancelPaidOrderAsksForRefund(t *testing.T) {
	f := setup(t)
	order := f.placeOrder(t, 1)
	f.markPaid(t, order.ID)

	_, err := f.svc.Cancel(context.Background(), f.buyer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Refund required", f.notes.Last().Subject)
}

func TestCancelRejectedOnceShipped(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	order := f.placeOrder(t, 2)
	f.markPaid(t, order.ID)

	_, err := f.svc.UpdateStatus(ctx, f.seller, order.ID, models.OrderStatusShipped)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.buyer, order.ID)
	assert.ErrorIs(t, err, database.ErrIllegalTransition)

	_, err = f.svc.UpdateStatus(ctx, f.seller, order.ID, models.OrderStatusDelivered)
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, f.buyer, order.ID)
	assert.ErrorIs(t, err, database.ErrIllegalTransition)

	assert.Equal(t, 3, pgtest.Stock(t, f.db, f.product.ID))
}

func TestSellerCannotCancel(t *testing.T) {
	f := setup(t)
	order := f.placeOrder(t, 1)

	_, err := f.svc.Cancel(context.Background(), f.seller, order.ID)
	assert.ErrorIs(t, err, database.ErrForbidden)
}
