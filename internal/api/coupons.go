package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/discount"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
)

type couponRequest struct {
	Code              string           `json:"code"`
	Name              string           `json:"name"`
	DiscountType      string           `json:"discount_type" binding:"required"`
	DiscountValue     decimal.Decimal  `json:"discount_value"`
	MaxDiscountAmount *decimal.Decimal `json:"max_discount_amount"`
	MinOrderAmount    decimal.Decimal  `json:"min_order_amount"`
	UsageLimit        *int             `json:"usage_limit"`
	ExpiryDate        time.Time        `json:"expiry_date" binding:"required"`
	ForNewUsers       bool             `json:"for_new_users"`
	Active            *bool            `json:"active"`
}

func (r couponRequest) params() discount.CreateCouponParams {
	return discount.CreateCouponParams{
		Code:              r.Code,
		Name:              r.Name,
		DiscountType:      r.DiscountType,
		DiscountValue:     r.DiscountValue,
		MaxDiscountAmount: r.MaxDiscountAmount,
		MinOrderAmount:    r.MinOrderAmount,
		UsageLimit:        r.UsageLimit,
		ExpiryDate:        r.ExpiryDate,
		ForNewUsers:       r.ForNewUsers,
	}
}

// createCoupon generates a code when none is given.
func (h *Handler) createCoupon(c *gin.Context) {
	if err := authz.RequireRole(actorFrom(c), models.RoleAdmin); err != nil {
		h.handleError(c, err)
		return
	}

	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "discount_type and expiry_date are required")
		return
	}

	coupon, err := h.discounts.CreateCoupon(c.Request.Context(), h.db, req.params())
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, coupon)
}

func (h *Handler) createWelcomeCoupon(c *gin.Context) {
	if err := authz.RequireRole(actorFrom(c), models.RoleAdmin); err != nil {
		h.handleError(c, err)
		return
	}

	coupon, err := h.discounts.CreateWelcomeCoupon(c.Request.Context(), h.db)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, coupon)
}

// updateCoupon replaces a coupon's terms. Leaving out active keeps it active.
func (h *Handler) updateCoupon(c *gin.Context) {
	if err := authz.RequireRole(actorFrom(c), models.RoleAdmin); err != nil {
		h.handleError(c, err)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req couponRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "discount_type and expiry_date are required")
		return
	}
	active := req.Active == nil || *req.Active

	coupon, err := h.discounts.UpdateCoupon(c.Request.Context(), h.db, id, req.params(), active)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, coupon)
}

func (h *Handler) deactivateCoupon(c *gin.Context) {
	if err := authz.RequireRole(actorFrom(c), models.RoleAdmin); err != nil {
		h.handleError(c, err)
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.discounts.Deactivate(c.Request.Context(), h.db, id); err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"id": id, "active": false})
}

func (h *Handler) listCoupons(c *gin.Context) {
	if err := authz.RequireRole(actorFrom(c), models.RoleAdmin); err != nil {
		h.handleError(c, err)
		return
	}

	coupons, err := store.ListCoupons(c.Request.Context(), h.db, c.Query("active") == "true")
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, coupons)
}

// validateCoupon tells the caller whether a code applies to them and, given
// an amount, what it would take off.
func (h *Handler) validateCoupon(c *gin.Context) {
	coupon, err := h.discounts.Validate(c.Request.Context(), h.db, c.Param("code"), actorFrom(c).UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}

	result := gin.H{"coupon": coupon}
	if raw := c.Query("amount"); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			badRequest(c, "invalid amount")
			return
		}
		if err := discount.CheckMinimum(amount, coupon); err != nil {
			h.handleError(c, err)
			return
		}
		result["discount"] = h.discounts.Calculate(amount, coupon)
	}

	respondJSON(c, http.StatusOK, result)
}
