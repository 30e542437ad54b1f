package discount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

type Engine struct {
	newUserMax     decimal.Decimal
	welcomePercent decimal.Decimal
	now            func() time.Time
}

// NewEngine returns an engine that caps new-user percentage coupons at
// newUserMax. Welcome coupons take welcomePercent off.
func NewEngine(newUserMax, welcomePercent decimal.Decimal) *Engine {
	return &Engine{newUserMax: newUserMax, welcomePercent: welcomePercent, now: time.Now}
}

// Validate resolves code and checks it can be used by userID right now.
func (e *Engine) Validate(ctx context.Context, q database.DBTX, code string, userID int64) (*models.DiscountCoupon, error) {
	coupon, err := store.GetCouponByCode(ctx, q, code)
	if err != nil {
		return nil, err
	}

	if !coupon.Active {
		return nil, database.ErrCouponInactive
	}
	if !coupon.ExpiryDate.After(e.now()) {
		return nil, database.ErrCouponExpired
	}
	if coupon.UsageLimit != nil && coupon.UsedCount >= *coupon.UsageLimit {
		return nil, database.ErrCouponLimitReached
	}

	if coupon.ForNewUsers {
		delivered, err := store.CountDeliveredOrders(ctx, q, userID)
		if err != nil {
			return nil, err
		}
		if delivered > 0 {
			return nil, database.ErrCouponNewUsersOnly
		}
	}

	return coupon, nil
}

// Calculate returns the discount coupon grants on orderAmount, rounded to cents.
// The result never exceeds orderAmount.
func (e *Engine) Calculate(orderAmount decimal.Decimal, coupon *models.DiscountCoupon) decimal.Decimal {
	if !orderAmount.IsPositive() {
		return decimal.Zero
	}

	var amount decimal.Decimal
	switch coupon.DiscountType {
	case models.DiscountTypePercentage:
		amount = orderAmount.Mul(coupon.DiscountValue).Div(hundred).Round(2)
		if coupon.MaxDiscountAmount != nil {
			amount = decimal.Min(amount, *coupon.MaxDiscountAmount)
		}
		if coupon.ForNewUsers {
			amount = decimal.Min(amount, e.newUserMax)
		}
	case models.DiscountTypeFixed:
		amount = coupon.DiscountValue.Round(2)
	default:
		return decimal.Zero
	}

	return decimal.Min(amount, orderAmount)
}

func CheckMinimum(orderAmount decimal.Decimal, coupon *models.DiscountCoupon) error {
	if orderAmount.LessThan(coupon.MinOrderAmount) {
		return database.NewError(database.ErrValidation,
			fmt.Sprintf("order total must be at least %s to use coupon %s", coupon.MinOrderAmount.StringFixed(2), coupon.Code))
	}
	return nil
}

// ApplyUsage counts one use of code. The limit check and the increment are a
// single statement, so two buyers cannot both take the last use.
func ApplyUsage(ctx context.Context, q database.DBTX, code string) error {
	code = normalizeCode(code)

	result, err := q.ExecContext(ctx,
		`UPDATE discount_coupons
		 SET used_count = used_count + 1, updated_at = NOW()
		 WHERE code = $1
		   AND active
		   AND (usage_limit IS NULL OR used_count < usage_limit)`,
		code)
	if err != nil {
		return fmt.Errorf("apply coupon usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	coupon, err := store.GetCouponByCode(ctx, q, code)
	if err != nil {
		return err
	}
	if !coupon.Active {
		return database.ErrCouponInactive
	}
	return database.ErrCouponLimitReached
}

type CreateCouponParams struct {
	Code              string
	Name              string
	DiscountType      string
	DiscountValue     decimal.Decimal
	MaxDiscountAmount *decimal.Decimal
	MinOrderAmount    decimal.Decimal
	UsageLimit        *int
	ExpiryDate        time.Time
	ForNewUsers       bool
}

// CreateCoupon stores a new active coupon. A blank code is replaced by a generated one.
func (e *Engine) CreateCoupon(ctx context.Context, q database.DBTX, params CreateCouponParams) (*models.DiscountCoupon, error) {
	if normalizeCode(params.Code) == "" {
		code, err := GenerateCode(ctx, q)
		if err != nil {
			return nil, err
		}
		params.Code = code
	}
	if err := e.validateParams(params); err != nil {
		return nil, err
	}

	coupon := &models.DiscountCoupon{
		Code:              normalizeCode(params.Code),
		Name:              params.Name,
		DiscountType:      params.DiscountType,
		DiscountValue:     params.DiscountValue,
		MaxDiscountAmount: params.MaxDiscountAmount,
		MinOrderAmount:    params.MinOrderAmount,
		UsageLimit:        params.UsageLimit,
		ExpiryDate:        params.ExpiryDate,
		Active:            true,
		ForNewUsers:       params.ForNewUsers,
	}
	if err := store.InsertCoupon(ctx, q, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

// CreateWelcomeCoupon issues the single-use new-user coupon, valid for a month.
func (e *Engine) CreateWelcomeCoupon(ctx context.Context, q database.DBTX) (*models.DiscountCoupon, error) {
	once := 1
	return e.CreateCoupon(ctx, q, CreateCouponParams{
		Code:          "WELCOME" + e.welcomePercent.String(),
		Name:          fmt.Sprintf("Welcome %s%% Off", e.welcomePercent),
		DiscountType:  models.DiscountTypePercentage,
		DiscountValue: e.welcomePercent,
		UsageLimit:    &once,
		ExpiryDate:    e.now().AddDate(0, 1, 0),
		ForNewUsers:   true,
	})
}

// UpdateCoupon replaces the terms of coupon id. The code cannot be changed;
// params.Code is ignored.
func (e *Engine) UpdateCoupon(ctx context.Context, q database.DBTX, id int64, params CreateCouponParams, active bool) (*models.DiscountCoupon, error) {
	coupon, err := store.GetCoupon(ctx, q, id)
	if err != nil {
		return nil, err
	}

	params.Code = coupon.Code
	if err := e.validateParams(params); err != nil {
		return nil, err
	}

	coupon.Name = params.Name
	coupon.DiscountType = params.DiscountType
	coupon.DiscountValue = params.DiscountValue
	coupon.MaxDiscountAmount = params.MaxDiscountAmount
	coupon.MinOrderAmount = params.MinOrderAmount
	coupon.UsageLimit = params.UsageLimit
	coupon.ExpiryDate = params.ExpiryDate
	coupon.ForNewUsers = params.ForNewUsers
	coupon.Active = active
	if err := store.UpdateCoupon(ctx, q, coupon); err != nil {
		return nil, err
	}
	return coupon, nil
}

// Deactivate stops coupon id from being redeemed. Orders already placed keep it.
func (e *Engine) Deactivate(ctx context.Context, q database.DBTX, id int64) error {
	return store.DeactivateCoupon(ctx, q, id)
}

// GenerateCode returns a DISC-prefixed code no coupon uses yet.
func GenerateCode(ctx context.Context, q database.DBTX) (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		code := "DISC" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
		_, err := store.GetCouponByCode(ctx, q, code)
		if errors.Is(err, database.ErrCouponNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("generate coupon code: no free code after 5 attempts")
}

func (e *Engine) validateParams(params CreateCouponParams) error {
	invalid := func(msg string) error { return database.NewError(database.ErrValidation, msg) }

	if normalizeCode(params.Code) == "" {
		return invalid("coupon code is required")
	}
	switch params.DiscountType {
	case models.DiscountTypePercentage:
		if params.DiscountValue.GreaterThan(hundred) {
			return invalid("percentage discount cannot exceed 100")
		}
	case models.DiscountTypeFixed:
	default:
		return invalid("discount type must be PERCENTAGE or FIXED")
	}
	if !params.DiscountValue.IsPositive() {
		return invalid("discount value must be positive")
	}
	if params.MaxDiscountAmount != nil && !params.MaxDiscountAmount.IsPositive() {
		return invalid("max discount amount must be positive")
	}
	if params.MinOrderAmount.IsNegative() {
		return invalid("min order amount cannot be negative")
	}
	if params.UsageLimit != nil && *params.UsageLimit < 0 {
		return invalid("usage limit cannot be negative")
	}
	if !params.ExpiryDate.After(e.now()) {
		return invalid("expiry date must be in the future")
	}
	return nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
