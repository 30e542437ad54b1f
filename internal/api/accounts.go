package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
)

// openAccount registers the caller's bank account. The balance stands in for
// an external bank; there is no deposit flow.
func (h *Handler) openAccount(c *gin.Context) {
	actor := actorFrom(c)

	var req struct {
		AccountNumber  string          `json:"account_number"`
		HolderName     string          `json:"holder_name" binding:"required"`
		InitialBalance decimal.Decimal `json:"initial_balance"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "holder_name is required")
		return
	}
	if req.InitialBalance.IsNegative() {
		badRequest(c, "initial_balance cannot be negative")
		return
	}

	number := strings.ToUpper(strings.TrimSpace(req.AccountNumber))
	if number == "" {
		number = "ACC" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	}

	role := models.AccountRoleCustomer
	if actor.Role == models.RoleSeller {
		role = models.AccountRoleSeller
	}

	userID := actor.UserID
	account := &models.BankAccount{
		AccountNumber: number,
		HolderName:    req.HolderName,
		UserID:        &userID,
		Role:          role,
		Balance:       req.InitialBalance.Round(2),
		Active:        true,
	}
	if err := store.CreateAccount(c.Request.Context(), h.db, account); err != nil {
		h.handleError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, account)
}

func (h *Handler) myAccount(c *gin.Context) {
	account, err := store.GetAccountByUser(c.Request.Context(), h.db, actorFrom(c).UserID)
	if err != nil {
		h.handleError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, account)
}
