package fulfillment

import (
	"errors"
	"testing"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := map[string][]string{
		models.OrderStatusPending:   {models.OrderStatusConfirmed, models.OrderStatusCancelled},
		models.OrderStatusConfirmed: {models.OrderStatusShipped, models.OrderStatusCancelled, models.OrderStatusRefunded},
		models.OrderStatusShipped:   {models.OrderStatusDelivered, models.OrderStatusRefunded},
		models.OrderStatusDelivered: {models.OrderStatusRefunded},
		models.OrderStatusCancelled: {models.OrderStatusRefunded},
		models.OrderStatusRefunded:  nil,
	}
	all := []string{
		models.OrderStatusPending, models.OrderStatusConfirmed, models.OrderStatusShipped,
		models.OrderStatusDelivered, models.OrderStatusCancelled, models.OrderStatusRefunded,
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, next := range allowed[from] {
				if next == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		to      string
		payment string
		want    error
	}{
		{"confirm paid", models.OrderStatusPending, models.OrderStatusConfirmed, models.PaymentStatusCompleted, nil},
		{"confirm unpaid", models.OrderStatusPending, models.OrderStatusConfirmed, models.PaymentStatusPending, database.ErrPaymentNotCompleted},
		{"ship paid", models.OrderStatusConfirmed, models.OrderStatusShipped, models.PaymentStatusCompleted, nil},
		{"ship refunded payment", models.OrderStatusConfirmed, models.OrderStatusShipped, models.PaymentStatusPartiallyRefunded, database.ErrPaymentNotCompleted},
		{"ship pending order", models.OrderStatusPending, models.OrderStatusShipped, models.PaymentStatusCompleted, database.ErrIllegalTransition},
		{"deliver", models.OrderStatusShipped, models.OrderStatusDelivered, models.PaymentStatusCompleted, nil},
		{"cancel unpaid", models.OrderStatusPending, models.OrderStatusCancelled, models.PaymentStatusPending, nil},
		{"cancel shipped", models.OrderStatusShipped, models.OrderStatusCancelled, models.PaymentStatusCompleted, database.ErrIllegalTransition},
		{"cancel delivered", models.OrderStatusDelivered, models.OrderStatusCancelled, models.PaymentStatusCompleted, database.ErrIllegalTransition},
		{"refund cancelled", models.OrderStatusCancelled, models.OrderStatusRefunded, models.PaymentStatusCompleted, nil},
		{"nothing after refund", models.OrderStatusRefunded, models.OrderStatusPending, models.PaymentStatusRefunded, database.ErrIllegalTransition},
		{"unknown source", "LOST", models.OrderStatusShipped, models.PaymentStatusCompleted, database.ErrIllegalTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckTransition(tt.from, tt.to, tt.payment)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, errors.Is(err, database.ErrState))
		})
	}
}

func TestIsKnownStatus(t *testing.T) {
	assert.True(t, IsKnownStatus(models.OrderStatusDelivered))
	assert.False(t, IsKnownStatus("delivered"))
	assert.False(t, IsKnownStatus(""))
}
