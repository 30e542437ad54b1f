// Package checkout turns a buyer's cart into an order.
package checkout

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/config"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/discount"
	"github.com/safar/go-marketplace/internal/inventory"
	"github.com/safar/go-marketplace/internal/metrics"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/notify"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type CreateOrderRequest struct {
	UserID          int64                  `json:"user_id"`
	Items           []LineRequest          `json:"items"`
	ShippingAddress models.ShippingAddress `json:"shipping_address"`
	CouponCode      string                 `json:"coupon_code,omitempty"`
}

type Service struct {
	db        *sql.DB
	discounts *discount.Engine
	pricing   config.PricingConfig
	notifier  notify.Notifier
	log       *zap.Logger
}

func NewService(db *sql.DB, discounts *discount.Engine, pricing config.PricingConfig, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{
		db:        db,
		discounts: discounts,
		pricing:   pricing,
		notifier:  notifier,
		log:       log.Named("checkout"),
	}
}

// Shipping is free from the configured threshold upwards, a flat fee below it.
func Shipping(total decimal.Decimal, pricing config.PricingConfig) decimal.Decimal {
	if total.GreaterThanOrEqual(pricing.FreeShippingThreshold) {
		return decimal.Zero
	}
	return pricing.ShippingFee
}

// CreateOrder places one order for the requested cart lines. Stock, coupon
// usage, the order rows and the cart all change in one transaction.
func (s *Service) CreateOrder(ctx context.Context, actor authz.Actor, req CreateOrderRequest) (*models.Order, error) {
	if err := authz.RequireSelf(actor, req.UserID); err != nil {
		return nil, err
	}
	if err := validateAddress(req.ShippingAddress); err != nil {
		return nil, err
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		var err error
		order, err = s.placeOrder(ctx, tx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderCreated()
	s.log.Info("order placed",
		zap.Int64("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", order.UserID),
		zap.Int("sellers", len(order.SellerOrders)),
		zap.String("final_amount", order.FinalAmount.StringFixed(2)))

	s.notifier.SendOrderConfirmation(ctx, order)
	return order, nil
}

func (s *Service) placeOrder(ctx context.Context, tx *sql.Tx, req CreateOrderRequest) (*models.Order, error) {
	exists, err := store.UserExists(ctx, tx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, database.ErrUserNotFound
	}

	lines, err := ValidateCart(ctx, tx, req.UserID, req.Items)
	if err != nil {
		return nil, err
	}

	total := decimal.Zero
	bySeller := make(map[int64][]ValidatedLine)
	for _, line := range lines {
		if _, err := inventory.Decrement(ctx, tx, line.ProductID, line.Quantity); err != nil {
			return nil, err
		}
		total = total.Add(lineTotal(line))
		bySeller[line.Product.SellerID] = append(bySeller[line.Product.SellerID], line)
	}

	order := &models.Order{
		UserID:         req.UserID,
		OrderNumber:    newOrderNumber(),
		Status:         models.OrderStatusPending,
		TotalAmount:    total,
		DiscountAmount: decimal.Zero,
		ShippingAmount: Shipping(total, s.pricing),
		Shipping:       req.ShippingAddress,
		PaymentStatus:  models.PaymentStatusPending,
	}

	var coupon *models.DiscountCoupon
	if strings.TrimSpace(req.CouponCode) != "" {
		coupon, err = s.discounts.Validate(ctx, tx, req.CouponCode, req.UserID)
		if err != nil {
			return nil, err
		}
		if err := discount.CheckMinimum(total, coupon); err != nil {
			return nil, err
		}
		order.DiscountAmount = s.discounts.Calculate(total, coupon)
		order.CouponID = &coupon.ID
	}
	order.FinalAmount = order.TotalAmount.Add(order.ShippingAmount).Sub(order.DiscountAmount)

	if err := store.InsertOrder(ctx, tx, order); err != nil {
		return nil, err
	}

	for _, sellerID := range sortedSellers(bySeller) {
		sellerLines := bySeller[sellerID]
		sellerOrder := &models.SellerOrder{
			OrderID:  order.ID,
			SellerID: sellerID,
			Subtotal: decimal.Zero,
			Status:   models.SellerOrderStatusPending,
		}
		for _, line := range sellerLines {
			sellerOrder.Subtotal = sellerOrder.Subtotal.Add(lineTotal(line))
		}
		if err := store.InsertSellerOrder(ctx, tx, sellerOrder); err != nil {
			return nil, err
		}

		for _, line := range sellerLines {
			item := &models.OrderItem{
				OrderID:       order.ID,
				SellerOrderID: sellerOrder.ID,
				ProductID:     line.ProductID,
				Quantity:      line.Quantity,
				UnitPrice:     line.Product.Price,
				Subtotal:      lineTotal(line),
			}
			if err := store.InsertOrderItem(ctx, tx, item); err != nil {
				return nil, err
			}
		}
	}

	if coupon != nil {
		if err := discount.ApplyUsage(ctx, tx, coupon.Code); err != nil {
			return nil, err
		}
	}

	for _, line := range lines {
		if err := store.ConsumeCartItem(ctx, tx, line.CartItem.ID, line.Quantity); err != nil {
			return nil, err
		}
	}
	if err := store.RecalculateCart(ctx, tx, lines[0].CartItem.CartID); err != nil {
		return nil, err
	}

	return store.GetOrder(ctx, tx, order.ID)
}

func lineTotal(line ValidatedLine) decimal.Decimal {
	return line.Product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))).Round(2)
}

func sortedSellers(bySeller map[int64][]ValidatedLine) []int64 {
	ids := make([]int64, 0, len(bySeller))
	for id := range bySeller {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func newOrderNumber() string {
	return "ORD" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func validateAddress(addr models.ShippingAddress) error {
	missing := []string{}
	if strings.TrimSpace(addr.Street) == "" {
		missing = append(missing, "street")
	}
	if strings.TrimSpace(addr.City) == "" {
		missing = append(missing, "city")
	}
	if strings.TrimSpace(addr.Country) == "" {
		missing = append(missing, "country")
	}
	if len(missing) > 0 {
		return database.NewError(database.ErrValidation,
			"shipping address is missing "+strings.Join(missing, ", "))
	}
	return nil
}
