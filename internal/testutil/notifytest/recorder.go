// Package notifytest records notifications instead of publishing them.
package notifytest

import (
	"context"
	"sync"

	"github.com/safar/go-marketplace/internal/models"
)

type Sent struct {
	Kind    string
	OrderID int64
	Subject string
	Message string
}

type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func (r *Recorder) SendOrderConfirmation(_ context.Context, order *models.Order) {
	r.add(Sent{Kind: "confirmation", OrderID: order.ID})
}

func (r *Recorder) SendShippingUpdate(_ context.Context, order *models.Order) {
	r.add(Sent{Kind: "shipping", OrderID: order.ID})
}

func (r *Recorder) SendAdminNotification(_ context.Context, subject, message string) {
	r.add(Sent{Kind: "admin", Subject: subject, Message: message})
}

func (r *Recorder) add(s Sent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, s)
}

// Kinds lists the kinds sent so far, in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	for i, s := range r.sent {
		out[i] = s.Kind
	}
	return out
}

func (r *Recorder) Last() Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return Sent{}
	}
	return r.sent[len(r.sent)-1]
}
