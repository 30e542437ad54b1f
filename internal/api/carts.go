package api

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
)

func (h *Handler) getCart(c *gin.Context) {
	cart, err := store.GetOrCreateCart(c.Request.Context(), h.db, actorFrom(c).UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, cart)
}

func (h *Handler) addCartItem(c *gin.Context) {
	ctx := c.Request.Context()
	userID := actorFrom(c).UserID

	var req struct {
		ProductID int64 `json:"product_id" binding:"required"`
		Quantity  int   `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "product_id and quantity are required")
		return
	}
	if req.Quantity <= 0 {
		badRequest(c, "quantity must be positive")
		return
	}

	var cart *models.Cart
	err := database.WithTransaction(ctx, h.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		product, err := store.GetProduct(ctx, tx, req.ProductID)
		if err != nil {
			return err
		}
		if product.Status == models.ProductStatusInactive {
			return database.NewError(database.ErrConflict, "product is not available")
		}

		cart, err = store.GetOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		inCart := 0
		existing, err := store.GetCartItemByUser(ctx, tx, userID, req.ProductID)
		switch {
		case err == nil:
			inCart = existing.Quantity
		case !errors.Is(err, database.ErrCartItemNotFound):
			return err
		}
		if product.StockQuantity < inCart+req.Quantity {
			return database.ErrInsufficientStock
		}

		if err := store.AddCartItem(ctx, tx, cart.ID, product.ID, req.Quantity, product.Price); err != nil {
			return err
		}
		cart, err = store.GetOrCreateCart(ctx, tx, userID)
		return err
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, cart)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	ctx := c.Request.Context()
	userID := actorFrom(c).UserID

	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}

	var cart *models.Cart
	err := database.WithTransaction(ctx, h.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := store.GetOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := store.RemoveCartItem(ctx, tx, current.ID, productID); err != nil {
			return err
		}
		cart, err = store.GetOrCreateCart(ctx, tx, userID)
		return err
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, cart)
}

// updateCartItem sets a line's quantity; zero or less removes the line.
func (h *Handler) updateCartItem(c *gin.Context) {
	ctx := c.Request.Context()
	userID := actorFrom(c).UserID

	productID, ok := pathID(c, "productId")
	if !ok {
		return
	}
	var req struct {
		Quantity *int `json:"quantity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "quantity is required")
		return
	}

	var cart *models.Cart
	err := database.WithTransaction(ctx, h.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := store.GetOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}

		if *req.Quantity <= 0 {
			err = store.RemoveCartItem(ctx, tx, current.ID, productID)
		} else {
			var product *models.Product
			product, err = store.GetProduct(ctx, tx, productID)
			if err != nil {
				return err
			}
			if product.StockQuantity < *req.Quantity {
				return database.ErrInsufficientStock
			}
			err = store.SetCartItemQuantity(ctx, tx, current.ID, productID, *req.Quantity)
		}
		if err != nil {
			return err
		}

		cart, err = store.GetOrCreateCart(ctx, tx, userID)
		return err
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, cart)
}

func (h *Handler) clearCart(c *gin.Context) {
	ctx := c.Request.Context()
	userID := actorFrom(c).UserID

	var cart *models.Cart
	err := database.WithTransaction(ctx, h.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := store.GetOrCreateCart(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := store.ClearCart(ctx, tx, current.ID); err != nil {
			return err
		}
		cart, err = store.GetOrCreateCart(ctx, tx, userID)
		return err
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, cart)
}
