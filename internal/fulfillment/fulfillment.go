// Package fulfillment drives an order through its status lifecycle after it
// has been placed.
package fulfillment

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/inventory"
	"github.com/safar/go-marketplace/internal/metrics"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/notify"
	"github.com/safar/go-marketplace/internal/store"
	"go.uber.org/zap"
)

// EscrowReleaser pays a delivered order's sellers out of escrow.
type EscrowReleaser interface {
	ReleaseEscrow(ctx context.Context, orderID int64) error
}

type Service struct {
	db       *sql.DB
	releaser EscrowReleaser
	notifier notify.Notifier
	log      *zap.Logger
}

func NewService(db *sql.DB, releaser EscrowReleaser, notifier notify.Notifier, log *zap.Logger) *Service {
	return &Service{
		db:       db,
		releaser: releaser,
		notifier: notifier,
		log:      log.Named("fulfillment"),
	}
}

// UpdateStatus applies a status change requested through the API.
// CONFIRMED and REFUNDED are reached only through the payment flow.
func (s *Service) UpdateStatus(ctx context.Context, actor authz.Actor, orderID int64, target string) (*models.Order, error) {
	target = strings.ToUpper(strings.TrimSpace(target))

	var action authz.Action
	switch target {
	case models.OrderStatusCancelled:
		return s.Cancel(ctx, actor, orderID)
	case models.OrderStatusShipped:
		action = authz.ActionShip
	case models.OrderStatusDelivered:
		action = authz.ActionDeliver
	case models.OrderStatusConfirmed, models.OrderStatusRefunded:
		return nil, database.NewError(database.ErrState,
			fmt.Sprintf("status %s is set by the payment flow", target))
	default:
		return nil, database.NewError(database.ErrValidation, fmt.Sprintf("unknown order status %q", target))
	}

	var order *models.Order
	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := authz.Require(current, actor, action); err != nil {
			return err
		}
		if err := CheckTransition(current.Status, target, current.PaymentStatus); err != nil {
			return err
		}
		if err := store.SetOrderStatus(ctx, tx, orderID, target); err != nil {
			return err
		}
		order, err = store.GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransition(target)
	s.log.Info("order status changed",
		zap.Int64("order_id", orderID),
		zap.String("status", target),
		zap.Int64("actor", actor.UserID))

	switch target {
	case models.OrderStatusShipped:
		s.notifier.SendShippingUpdate(ctx, order)
	case models.OrderStatusDelivered:
		s.afterDelivery(ctx, order)
	}

	return order, nil
}

// afterDelivery runs once the DELIVERED status is committed. A failed release
// leaves the money in escrow for an admin to release by hand.
func (s *Service) afterDelivery(ctx context.Context, order *models.Order) {
	if err := s.releaser.ReleaseEscrow(ctx, order.ID); err != nil {
		s.log.Error("release escrow after delivery",
			zap.Int64("order_id", order.ID),
			zap.Error(err))
		s.notifier.SendAdminNotification(ctx,
			"Escrow release failed",
			fmt.Sprintf("Order %s was delivered but escrow release failed: %v", order.OrderNumber, err))
		return
	}

	s.notifier.SendAdminNotification(ctx,
		"Order delivered",
		fmt.Sprintf("Order %s was delivered and sellers were paid out.", order.OrderNumber))
}

// Cancel cancels a PENDING or CONFIRMED order and puts every line's stock back.
func (s *Service) Cancel(ctx context.Context, actor authz.Actor, orderID int64) (*models.Order, error) {
	var order *models.Order
	var wasPaid bool

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		current, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := authz.Require(current, actor, authz.ActionCancel); err != nil {
			return err
		}
		if err := CheckTransition(current.Status, models.OrderStatusCancelled, current.PaymentStatus); err != nil {
			return err
		}

		for _, item := range current.Items {
			if _, err := inventory.Restore(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}

		if err := store.SetSellerOrdersStatus(ctx, tx, orderID, models.SellerOrderStatusCancelled); err != nil {
			return err
		}
		if err := store.SetOrderStatus(ctx, tx, orderID, models.OrderStatusCancelled); err != nil {
			return err
		}

		wasPaid = current.PaymentStatus == models.PaymentStatusCompleted
		order, err = store.GetOrder(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.OrderTransition(models.OrderStatusCancelled)
	s.log.Info("order cancelled",
		zap.Int64("order_id", orderID),
		zap.Int64("actor", actor.UserID),
		zap.Bool("paid", wasPaid))

	if wasPaid {
		s.notifier.SendAdminNotification(ctx,
			"Refund required",
			fmt.Sprintf("Paid order %s was cancelled; its payment is still held in escrow.", order.OrderNumber))
	}

	return order, nil
}
