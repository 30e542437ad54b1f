package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/checkout"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/fulfillment"
	"github.com/safar/go-marketplace/internal/metrics"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"go.uber.org/zap"
)

const idempotencyHeader = "X-Idempotency-Key"

func (h *Handler) createOrder(c *gin.Context) {
	actor := actorFrom(c)

	var req checkout.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.UserID == 0 {
		req.UserID = actor.UserID
	}

	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if key == "" || h.idem == nil {
		order, err := h.orders.CreateOrder(c.Request.Context(), actor, req)
		if err != nil {
			h.handleError(c, err)
			return
		}
		respondJSON(c, http.StatusCreated, order)
		return
	}

	h.createOrderOnce(c, actor, key, req)
}

// createOrderOnce places the order at most once per user and key. A repeat of
// a finished request gets the stored response back.
func (h *Handler) createOrderOnce(c *gin.Context, actor authz.Actor, key string, req checkout.CreateOrderRequest) {
	ctx := c.Request.Context()
	scope := strconv.FormatInt(actor.UserID, 10)

	stored, found, err := h.idem.Recall(ctx, scope, key)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if found {
		metrics.IdempotentReplay()
		c.Data(http.StatusCreated, "application/json; charset=utf-8", []byte(stored))
		return
	}

	locked, err := h.idem.TryLock(ctx, scope, key)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if !locked {
		h.handleError(c, database.ErrDuplicateRequest)
		return
	}

	order, err := h.orders.CreateOrder(ctx, actor, req)
	if err != nil {
		if unlockErr := h.idem.Unlock(ctx, scope, key); unlockErr != nil {
			h.log.Warn("release idempotency key", zap.String("key", key), zap.Error(unlockErr))
		}
		h.handleError(c, err)
		return
	}

	body, err := json.Marshal(response{Success: true, Data: order})
	if err != nil {
		h.handleError(c, err)
		return
	}
	if err := h.idem.Remember(ctx, scope, key, string(body)); err != nil {
		h.log.Warn("store idempotent response", zap.String("key", key), zap.Error(err))
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", body)
}

func (h *Handler) getOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := store.GetOrder(c.Request.Context(), h.db, id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	if err := authz.Require(order, actorFrom(c), authz.ActionView); err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, order)
}

// listOrders shows buyers their purchases, sellers the orders they take part
// in and admins everything.
func (h *Handler) listOrders(c *gin.Context) {
	actor := actorFrom(c)

	filter := store.OrderFilter{Status: strings.ToUpper(c.Query("status"))}
	if filter.Status != "" && !fulfillment.IsKnownStatus(filter.Status) {
		badRequest(c, "unknown status")
		return
	}

	switch actor.Role {
	case models.RoleAdmin:
		if raw := c.Query("user_id"); raw != "" {
			userID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				badRequest(c, "invalid user_id")
				return
			}
			filter.UserID = &userID
		}
	case models.RoleSeller:
		filter.SellerID = &actor.UserID
	default:
		filter.UserID = &actor.UserID
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	_, limit = store.ClampPage(1, limit)

	page, err := store.ListOrdersCursor(c.Request.Context(), h.db, filter, c.Query("cursor"), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, page)
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "status is required")
		return
	}

	order, err := h.fulfillment.UpdateStatus(c.Request.Context(), actorFrom(c), id, req.Status)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, order)
}

func (h *Handler) cancelOrder(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.fulfillment.Cancel(c.Request.Context(), actorFrom(c), id)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, order)
}
