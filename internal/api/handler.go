package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/checkout"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/discount"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/payment"
	"go.uber.org/zap"
)

type OrderCreator interface {
	CreateOrder(ctx context.Context, actor authz.Actor, req checkout.CreateOrderRequest) (*models.Order, error)
}

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, actor authz.Actor, orderID int64, target string) (*models.Order, error)
	Cancel(ctx context.Context, actor authz.Actor, orderID int64) (*models.Order, error)
}

type PaymentProcessor interface {
	ProcessPayment(ctx context.Context, actor authz.Actor, req payment.ProcessRequest) (*models.Payment, error)
	Release(ctx context.Context, actor authz.Actor, orderID int64) error
	Refund(ctx context.Context, actor authz.Actor, req payment.RefundRequest) (*models.Payment, error)
	GetByTransactionID(ctx context.Context, actor authz.Actor, transactionID string) (*models.Payment, error)
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Unlock(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

type Deps struct {
	DB          *sql.DB
	Orders      OrderCreator
	Fulfillment StatusUpdater
	Payments    PaymentProcessor
	Discounts   *discount.Engine
	Idempotency IdempotencyStore // optional
	JWTSecret   string
	Logger      *zap.Logger
}

type Handler struct {
	db          *sql.DB
	orders      OrderCreator
	fulfillment StatusUpdater
	payments    PaymentProcessor
	discounts   *discount.Engine
	idem        IdempotencyStore
	jwtSecret   []byte
	log         *zap.Logger
}

func NewHandler(d Deps) *Handler {
	return &Handler{
		db:          d.DB,
		orders:      d.Orders,
		fulfillment: d.Fulfillment,
		payments:    d.Payments,
		discounts:   d.Discounts,
		idem:        d.Idempotency,
		jwtSecret:   []byte(d.JWTSecret),
		log:         d.Logger.Named("api"),
	}
}

type response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Every business error kind is a client error; only the auth kinds get their own status.
var errorStatusMap = map[error]int{
	database.ErrValidation:   http.StatusBadRequest,
	database.ErrNotFound:     http.StatusBadRequest,
	database.ErrConflict:     http.StatusBadRequest,
	database.ErrState:        http.StatusBadRequest,
	database.ErrForbidden:    http.StatusForbidden,
	database.ErrUnauthorized: http.StatusUnauthorized,
}

func statusFor(err error) (int, bool) {
	for kind, status := range errorStatusMap {
		if errors.Is(err, kind) {
			return status, true
		}
	}
	return http.StatusInternalServerError, false
}

func (h *Handler) handleError(c *gin.Context, err error) {
	status, known := statusFor(err)
	if !known {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		respondError(c, status, "internal server error")
		return
	}
	_ = c.Error(err)
	respondError(c, status, err.Error())
}

func respondJSON(c *gin.Context, status int, data any) {
	c.JSON(status, response{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, response{Success: false, Message: message})
}

func badRequest(c *gin.Context, message string) {
	respondError(c, http.StatusBadRequest, message)
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *Handler) health(c *gin.Context) {
	if err := h.db.PingContext(c.Request.Context()); err != nil {
		h.log.Warn("health check", zap.Error(err))
		respondError(c, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"status": "ok"})
}
