package api

import (
	"github.com/gin-gonic/gin"
	"github.com/safar/go-marketplace/internal/metrics"
)

func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(h.log), metrics.Middleware())

	r.GET("/healthz", h.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	r.GET("/products", h.listProducts)
	r.GET("/products/:id", h.getProduct)

	auth := r.Group("/", h.Authenticate())

	auth.POST("/products", h.createProduct)

	auth.GET("/cart", h.getCart)
	auth.POST("/cart/items", h.addCartItem)
	auth.PUT("/cart/items/:productId", h.updateCartItem)
	auth.DELETE("/cart/items/:productId", h.removeCartItem)
	auth.DELETE("/cart", h.clearCart)

	auth.POST("/bank/accounts", h.openAccount)
	auth.GET("/bank/accounts/me", h.myAccount)

	auth.POST("/coupons", h.createCoupon)
	auth.POST("/coupons/welcome", h.createWelcomeCoupon)
	auth.GET("/coupons", h.listCoupons)
	auth.PUT("/coupons/:id", h.updateCoupon)
	auth.DELETE("/coupons/:id", h.deactivateCoupon)
	auth.GET("/coupons/:code/validate", h.validateCoupon)

	auth.POST("/orders", h.createOrder)
	auth.GET("/orders", h.listOrders)
	auth.GET("/orders/:id", h.getOrder)
	auth.PUT("/orders/:id/status", h.updateOrderStatus)
	auth.POST("/orders/:id/cancel", h.cancelOrder)

	auth.POST("/payments/process", h.processPayment)
	auth.POST("/payments/escrow/release", h.releaseEscrow)
	auth.POST("/payments/refund", h.refund)
	auth.GET("/payments/transaction/:id", h.getPayment)

	return r
}
