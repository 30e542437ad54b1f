package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-marketplace/internal/payment"
)

func (h *Handler) processPayment(c *gin.Context) {
	var req payment.ProcessRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID <= 0 {
		badRequest(c, "order_id is required")
		return
	}

	p, err := h.payments.ProcessPayment(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, p)
}

func (h *Handler) releaseEscrow(c *gin.Context) {
	var req struct {
		OrderID int64 `json:"order_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID <= 0 {
		badRequest(c, "order_id is required")
		return
	}

	if err := h.payments.Release(c.Request.Context(), actorFrom(c), req.OrderID); err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"order_id": req.OrderID, "released": true})
}

func (h *Handler) refund(c *gin.Context) {
	var req payment.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID <= 0 {
		badRequest(c, "order_id is required")
		return
	}

	p, err := h.payments.Refund(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, p)
}

func (h *Handler) getPayment(c *gin.Context) {
	p, err := h.payments.GetByTransactionID(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, p)
}
