package fulfillment

import (
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

var transitions = map[string][]string{
	models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
	models.OrderStatusConfirmed: {models.OrderStatusShipped, models.OrderStatusCancelled, models.OrderStatusRefunded},
	models.OrderStatusShipped:   {models.OrderStatusDelivered, models.OrderStatusRefunded},
	models.OrderStatusDelivered: {models.OrderStatusRefunded},
	models.OrderStatusCancelled: {models.OrderStatusRefunded},
	models.OrderStatusRefunded:  {},
}

func IsKnownStatus(status string) bool {
	_, ok := transitions[status]
	return ok
}

func CanTransition(from, to string) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckTransition validates moving from one status to another given the
// order's payment status. Confirming and shipping need a completed payment.
func CheckTransition(from, to, paymentStatus string) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", database.ErrIllegalTransition, from, to)
	}

	switch to {
	case models.OrderStatusConfirmed, models.OrderStatusShipped:
		if paymentStatus != models.PaymentStatusCompleted {
			return fmt.Errorf("%w: cannot move order to %s with payment %s",
				database.ErrPaymentNotCompleted, to, paymentStatus)
		}
	}
	return nil
}
