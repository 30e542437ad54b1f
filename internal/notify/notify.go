// Package notify hands order events to a message broker once the
// transaction that produced them has committed.
package notify

import (
	"context"
	"time"

	"github.com/safar/go-marketplace/internal/metrics"
	"github.com/safar/go-marketplace/internal/models"
	"go.uber.org/zap"
)

const (
	EventOrderConfirmation = "order.confirmation"
	EventShippingUpdate    = "order.shipping_update"
	EventAdminNotification = "admin.notification"
)

// Notifier is called after commit. Delivery problems are logged, never returned.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order)
	SendShippingUpdate(ctx context.Context, order *models.Order)
	SendAdminNotification(ctx context.Context, subject, message string)
}

type Event struct {
	Type        string    `json:"type"`
	OrderID     int64     `json:"order_id,omitempty"`
	OrderNumber string    `json:"order_number,omitempty"`
	UserID      int64     `json:"user_id,omitempty"`
	Status      string    `json:"status,omitempty"`
	FinalAmount string    `json:"final_amount,omitempty"`
	Recipient   string    `json:"recipient,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	Message     string    `json:"message,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type Service struct {
	pub        Publisher
	adminEmail string
	timeout    time.Duration
	log        *zap.Logger
}

func NewService(pub Publisher, adminEmail string, log *zap.Logger) *Service {
	return &Service{
		pub:        pub,
		adminEmail: adminEmail,
		timeout:    5 * time.Second,
		log:        log.Named("notify"),
	}
}

func (s *Service) SendOrderConfirmation(ctx context.Context, order *models.Order) {
	s.publish(ctx, orderEvent(EventOrderConfirmation, order))
}

func (s *Service) SendShippingUpdate(ctx context.Context, order *models.Order) {
	s.publish(ctx, orderEvent(EventShippingUpdate, order))
}

func (s *Service) SendAdminNotification(ctx context.Context, subject, message string) {
	s.publish(ctx, Event{
		Type:       EventAdminNotification,
		Recipient:  s.adminEmail,
		Subject:    subject,
		Message:    message,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *Service) publish(ctx context.Context, event Event) {
	// The request may already be finished; the event should still go out.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.pub.Publish(ctx, event); err != nil {
		metrics.NotificationFailed(event.Type)
		s.log.Error("publish notification",
			zap.String("type", event.Type),
			zap.Int64("order_id", event.OrderID),
			zap.Error(err))
	}
}

func orderEvent(eventType string, order *models.Order) Event {
	return Event{
		Type:        eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Status:      order.Status,
		FinalAmount: order.FinalAmount.StringFixed(2),
		OccurredAt:  time.Now().UTC(),
	}
}
