package authz

import (
	"errors"
	"testing"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCanManage(t *testing.T) {
	order := &models.Order{
		ID:     1,
		UserID: 10,
		SellerOrders: []models.SellerOrder{
			{SellerID: 20},
			{SellerID: 21},
		},
	}

	buyer := Actor{UserID: 10, Role: models.RoleCustomer}
	stranger := Actor{UserID: 11, Role: models.RoleCustomer}
	seller := Actor{UserID: 21, Role: models.RoleSeller}
	otherSeller := Actor{UserID: 22, Role: models.RoleSeller}
	admin := Actor{UserID: 1, Role: models.RoleAdmin}

	tests := []struct {
		name   string
		actor  Actor
		action Action
		want   bool
	}{
		{"buyer views", buyer, ActionView, true},
		{"buyer pays", buyer, ActionPay, true},
		{"buyer cancels", buyer, ActionCancel, true},
		{"buyer cannot ship", buyer, ActionShip, false},
		{"buyer cannot settle", buyer, ActionSettle, false},
		{"stranger cannot view", stranger, ActionView, false},
		{"seller views", seller, ActionView, true},
		{"seller ships", seller, ActionShip, true},
		{"seller delivers", seller, ActionDeliver, true},
		{"seller cannot cancel", seller, ActionCancel, false},
		{"seller cannot pay", seller, ActionPay, false},
		{"unrelated seller cannot ship", otherSeller, ActionShip, false},
		{"admin settles", admin, ActionSettle, true},
		{"admin ships", admin, ActionShip, true},
		{"unknown role", Actor{UserID: 10, Role: "GUEST"}, ActionView, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanManage(order, tt.actor, tt.action))
		})
	}
}

func TestSellerBuyingFromAnotherSeller(t *testing.T) {
	order := &models.Order{UserID: 30, SellerOrders: []models.SellerOrder{{SellerID: 20}}}
	buyer := Actor{UserID: 30, Role: models.RoleSeller}

	assert.True(t, CanManage(order, buyer, ActionPay))
	assert.False(t, CanManage(order, buyer, ActionShip))
}

func TestRequireReturnsForbidden(t *testing.T) {
	order := &models.Order{UserID: 10}
	err := Require(order, Actor{UserID: 11, Role: models.RoleCustomer}, ActionView)

	assert.True(t, errors.Is(err, database.ErrForbidden))
	assert.NoError(t, Require(order, Actor{UserID: 10, Role: models.RoleCustomer}, ActionView))
}

func TestRequireSelf(t *testing.T) {
	assert.NoError(t, RequireSelf(Actor{UserID: 5, Role: models.RoleCustomer}, 5))
	assert.NoError(t, RequireSelf(Actor{UserID: 1, Role: models.RoleAdmin}, 5))
	assert.ErrorIs(t, RequireSelf(Actor{UserID: 6, Role: models.RoleCustomer}, 5), database.ErrForbidden)
}

func TestRequireRole(t *testing.T) {
	admin := Actor{UserID: 1, Role: models.RoleAdmin}
	customer := Actor{UserID: 2, Role: models.RoleCustomer}

	assert.NoError(t, RequireRole(admin, models.RoleSeller, models.RoleAdmin))
	assert.ErrorIs(t, RequireRole(customer, models.RoleSeller, models.RoleAdmin), database.ErrForbidden)
}
