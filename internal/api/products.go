package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
)

func (h *Handler) createProduct(c *gin.Context) {
	actor := actorFrom(c)
	if err := authz.RequireRole(actor, models.RoleSeller, models.RoleAdmin); err != nil {
		h.handleError(c, err)
		return
	}

	var req struct {
		SellerID      int64           `json:"seller_id"`
		SKU           string          `json:"sku" binding:"required"`
		Name          string          `json:"name" binding:"required"`
		Description   string          `json:"description"`
		Price         decimal.Decimal `json:"price"`
		StockQuantity int             `json:"stock_quantity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "sku and name are required")
		return
	}
	if req.Price.IsNegative() || req.StockQuantity < 0 {
		badRequest(c, "price and stock_quantity cannot be negative")
		return
	}

	sellerID := actor.UserID
	if actor.IsAdmin() && req.SellerID != 0 {
		sellerID = req.SellerID
	}

	product, err := store.CreateProduct(c.Request.Context(), h.db, store.CreateProductParams{
		SellerID:    sellerID,
		SKU:         strings.TrimSpace(req.SKU),
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price.Round(2),
		Stock:       req.StockQuantity,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, product)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := store.GetProduct(c.Request.Context(), h.db, id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, product)
}

func (h *Handler) listProducts(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	page, pageSize = store.ClampPage(page, pageSize)

	filter := store.ProductFilter{Status: strings.ToUpper(c.Query("status"))}
	if raw := c.Query("seller_id"); raw != "" {
		sellerID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			badRequest(c, "invalid seller_id")
			return
		}
		filter.SellerID = &sellerID
	}

	result, err := store.ListProducts(c.Request.Context(), h.db, filter, page, pageSize)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, result)
}
