// Package authz decides what an authenticated actor may do to an order.
package authz

import (
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

type Actor struct {
	UserID int64
	Role   models.Role
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

type Action string

const (
	ActionView    Action = "view"
	ActionPay     Action = "pay"
	ActionCancel  Action = "cancel"
	ActionShip    Action = "ship"
	ActionDeliver Action = "deliver"
	ActionSettle  Action = "settle" // escrow release and refunds
)

type rule func(order *models.Order, actor Actor, action Action) bool

var rules = map[models.Role]rule{
	models.RoleCustomer: buyerRule,
	models.RoleSeller: func(order *models.Order, actor Actor, action Action) bool {
		return buyerRule(order, actor, action) || sellerRule(order, actor, action)
	},
	models.RoleAdmin: func(*models.Order, Actor, Action) bool { return true },
}

func buyerRule(order *models.Order, actor Actor, action Action) bool {
	if order.UserID != actor.UserID {
		return false
	}
	switch action {
	case ActionView, ActionPay, ActionCancel:
		return true
	}
	return false
}

// sellerRule needs order.SellerOrders loaded.
func sellerRule(order *models.Order, actor Actor, action Action) bool {
	if !order.HasSeller(actor.UserID) {
		return false
	}
	switch action {
	case ActionView, ActionShip, ActionDeliver:
		return true
	}
	return false
}

// CanManage reports whether actor may perform action on order.
func CanManage(order *models.Order, actor Actor, action Action) bool {
	r, ok := rules[actor.Role]
	if !ok {
		return false
	}
	return r(order, actor, action)
}

func Require(order *models.Order, actor Actor, action Action) error {
	if !CanManage(order, actor, action) {
		return database.NewError(database.ErrForbidden, "not allowed to "+string(action)+" this order")
	}
	return nil
}

// RequireSelf allows actor to act for userID: themselves, or anyone when admin.
func RequireSelf(actor Actor, userID int64) error {
	if actor.IsAdmin() || actor.UserID == userID {
		return nil
	}
	return database.NewError(database.ErrForbidden, "cannot act on behalf of another user")
}

func RequireRole(actor Actor, roles ...models.Role) error {
	for _, r := range roles {
		if actor.Role == r {
			return nil
		}
	}
	return database.NewError(database.ErrForbidden, "role "+string(actor.Role)+" is not allowed here")
}
