package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleSeller   Role = "SELLER"
	RoleAdmin    Role = "ADMIN"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

const (
	ProductStatusActive     = "ACTIVE"
	ProductStatusOutOfStock = "OUT_OF_STOCK"
	ProductStatusInactive   = "INACTIVE"
)

type Product struct {
	ID            int64           `json:"id"`
	SellerID      int64           `json:"seller_id"`
	SKU           string          `json:"sku"`
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

type Cart struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	ItemCount  int             `json:"item_count"`
	Items      []CartItem      `json:"items"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type CartItem struct {
	ID        int64           `json:"id"`
	CartID    int64           `json:"cart_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type ShippingAddress struct {
	RecipientName string `json:"recipient_name"`
	Street        string `json:"street"`
	City          string `json:"city"`
	State         string `json:"state"`
	ZipCode       string `json:"zip_code"`
	Country       string `json:"country"`
	PhoneNumber   string `json:"phone_number"`
}

type Order struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	OrderNumber    string          `json:"order_number"`
	Status         string          `json:"status"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	ShippingAmount decimal.Decimal `json:"shipping_amount"`
	FinalAmount    decimal.Decimal `json:"final_amount"`
	Shipping       ShippingAddress `json:"shipping_address"`
	PaymentStatus  string          `json:"payment_status"`
	CouponID       *int64          `json:"coupon_id,omitempty"`
	TransactionID  *string         `json:"transaction_id,omitempty"`
	PlacedAt       time.Time       `json:"placed_at"`
	ShippedAt      *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt    *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	Version        int             `json:"version"`
	SellerOrders   []SellerOrder   `json:"seller_orders,omitempty"`
	Items          []OrderItem     `json:"items,omitempty"`
}

// HasSeller reports whether sellerID fulfils part of the order.
// SellerOrders must be loaded.
func (o *Order) HasSeller(sellerID int64) bool {
	for _, so := range o.SellerOrders {
		if so.SellerID == sellerID {
			return true
		}
	}
	return false
}

const (
	SellerOrderStatusPending   = "PENDING"
	SellerOrderStatusPaidOut   = "PAID_OUT"
	SellerOrderStatusCancelled = "CANCELLED"
)

type SellerOrder struct {
	ID               int64           `json:"id"`
	OrderID          int64           `json:"order_id"`
	SellerID         int64           `json:"seller_id"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	PayoutAmount     decimal.Decimal `json:"payout_amount"`
	Status           string          `json:"status"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

type OrderItem struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	SellerOrderID int64           `json:"seller_order_id"`
	ProductID     int64           `json:"product_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	CreatedAt     time.Time       `json:"created_at"`
}

const (
	OrderStatusPending   = "PENDING"
	OrderStatusConfirmed = "CONFIRMED"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusDelivered = "DELIVERED"
	OrderStatusCancelled = "CANCELLED"
	OrderStatusRefunded  = "REFUNDED"
)

const (
	DiscountTypePercentage = "PERCENTAGE"
	DiscountTypeFixed      = "FIXED"
)

type DiscountCoupon struct {
	ID                int64            `json:"id"`
	Code              string           `json:"code"`
	Name              string           `json:"name"`
	DiscountType      string           `json:"discount_type"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount,omitempty"`
	MinOrderAmount    decimal.Decimal  `json:"min_order_amount"`
	UsageLimit        *int             `json:"usage_limit,omitempty"`
	UsedCount         int              `json:"used_count"`
	ExpiryDate        time.Time        `json:"expiry_date"`
	Active            bool             `json:"active"`
	ForNewUsers       bool             `json:"for_new_users"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

const (
	AccountRoleCustomer = "CUSTOMER"
	AccountRoleSeller   = "SELLER"
	AccountRoleEscrow   = "ESCROW"
	AccountRolePlatform = "PLATFORM"
)

type BankAccount struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"account_number"`
	HolderName    string          `json:"holder_name"`
	UserID        *int64          `json:"user_id,omitempty"`
	Role          string          `json:"role"`
	Balance       decimal.Decimal `json:"balance"`
	Active        bool            `json:"active"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Version       int             `json:"version"`
}

const (
	PaymentStatusPending           = "PENDING"
	PaymentStatusCompleted         = "COMPLETED"
	PaymentStatusFailed            = "FAILED"
	PaymentStatusRefunded          = "REFUNDED"
	PaymentStatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

type Payment struct {
	ID               int64           `json:"id"`
	TransactionID    string          `json:"transaction_id"`
	OrderID          int64           `json:"order_id"`
	Amount           decimal.Decimal `json:"amount"`
	Status           string          `json:"status"`
	EscrowHeld       bool            `json:"escrow_held"`
	EscrowReleased   bool            `json:"escrow_released"`
	RefundedAmount   decimal.Decimal `json:"refunded_amount"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	AccountNumber    string          `json:"account_number"`
	BankReference    string          `json:"bank_reference,omitempty"`
	PaymentDate      time.Time       `json:"payment_date"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Refundable is what is still held in escrow for this payment.
func (p *Payment) Refundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}
