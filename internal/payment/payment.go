// Package payment moves an order's money through escrow: paying in, paying
// sellers out after delivery, and refunding the buyer.
package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/safar/go-marketplace/internal/authz"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/escrow"
	"github.com/safar/go-marketplace/internal/fulfillment"
	"github.com/safar/go-marketplace/internal/metrics"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type ProcessRequest struct {
	OrderID       int64            `json:"order_id"`
	AccountNumber string           `json:"account_number,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
}

type RefundRequest struct {
	OrderID int64            `json:"order_id"`
	Amount  *decimal.Decimal `json:"amount,omitempty"`
}

type Service struct {
	db     *sql.DB
	ledger *escrow.Ledger
	log    *zap.Logger
}

func NewService(db *sql.DB, ledger *escrow.Ledger, log *zap.Logger) *Service {
	return &Service{db: db, ledger: ledger, log: log.Named("payment")}
}

// ProcessPayment moves the order's final amount from the buyer into escrow
// and confirms the order. A hold that fails is recorded as a FAILED payment
// and the order stays PENDING.
func (s *Service) ProcessPayment(ctx context.Context, actor authz.Actor, req ProcessRequest) (*models.Payment, error) {
	var payment, failed *models.Payment

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		failed = nil

		order, err := store.LockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if err := authz.Require(order, actor, authz.ActionPay); err != nil {
			return err
		}
		if err := fulfillment.CheckTransition(order.Status, models.OrderStatusConfirmed, models.PaymentStatusCompleted); err != nil {
			return err
		}
		if req.Amount != nil && !req.Amount.Equal(order.FinalAmount) {
			return database.NewError(database.ErrValidation,
				fmt.Sprintf("payment amount %s does not match order total %s",
					req.Amount.StringFixed(2), order.FinalAmount.StringFixed(2)))
		}

		account, err := s.payerAccount(ctx, tx, order, req.AccountNumber)
		if err != nil {
			return err
		}

		p := &models.Payment{
			TransactionID: newTransactionID(),
			OrderID:       order.ID,
			Amount:        order.FinalAmount,
			AccountNumber: account.AccountNumber,
		}
		if err := s.ledger.Hold(ctx, tx, account.AccountNumber, order.FinalAmount); err != nil {
			failed = p
			return err
		}

		p.Status = models.PaymentStatusCompleted
		p.EscrowHeld = true
		if err := store.InsertPayment(ctx, tx, p); err != nil {
			return err
		}
		if err := store.SetOrderPayment(ctx, tx, order.ID,
			models.OrderStatusConfirmed, models.PaymentStatusCompleted, &p.TransactionID); err != nil {
			return err
		}

		payment = p
		return nil
	})
	if err != nil {
		if failed != nil {
			s.recordFailure(ctx, failed, err)
		}
		return nil, err
	}

	metrics.Payment(models.PaymentStatusCompleted)
	metrics.RecordEscrow(metrics.EscrowHold, payment.Amount)
	s.log.Info("payment held in escrow",
		zap.Int64("order_id", payment.OrderID),
		zap.String("transaction_id", payment.TransactionID),
		zap.String("amount", payment.Amount.StringFixed(2)))

	return payment, nil
}

func (s *Service) payerAccount(ctx context.Context, q database.DBTX, order *models.Order, number string) (*models.BankAccount, error) {
	if strings.TrimSpace(number) == "" {
		return store.GetAccountByUser(ctx, q, order.UserID)
	}

	account, err := store.GetAccountByNumber(ctx, q, number)
	if err != nil {
		return nil, err
	}
	if account.UserID == nil || *account.UserID != order.UserID {
		return nil, database.NewError(database.ErrForbidden, "account does not belong to the buyer")
	}
	return account, nil
}

// recordFailure stores the failed attempt in its own transaction; the
// attempt's transaction has already rolled back.
func (s *Service) recordFailure(ctx context.Context, attempt *models.Payment, cause error) {
	failed := *attempt
	failed.Status = models.PaymentStatusFailed
	failed.BankReference = truncate(cause.Error(), 64)

	err := database.WithTransaction(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		if err := store.InsertPayment(ctx, tx, &failed); err != nil {
			return err
		}
		return store.SetOrderPayment(ctx, tx, failed.OrderID, "", models.PaymentStatusFailed, nil)
	})

	metrics.Payment(models.PaymentStatusFailed)
	if err != nil {
		s.log.Error("record failed payment",
			zap.Int64("order_id", failed.OrderID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	s.log.Warn("payment failed",
		zap.Int64("order_id", failed.OrderID),
		zap.String("transaction_id", failed.TransactionID),
		zap.Error(cause))
}

// Release is the manual entry point for paying out a delivered order.
func (s *Service) Release(ctx context.Context, actor authz.Actor, orderID int64) error {
	order, err := store.GetOrder(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if err := authz.Require(order, actor, authz.ActionSettle); err != nil {
		return err
	}
	return s.ReleaseEscrow(ctx, orderID)
}

// ReleaseEscrow pays what is left of a delivered order's escrow to its
// sellers, split by each seller's share of the goods total.
func (s *Service) ReleaseEscrow(ctx context.Context, orderID int64) error {
	var released, commission decimal.Decimal

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		released, commission = decimal.Zero, decimal.Zero

		order, err := store.LockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusDelivered {
			return database.NewError(database.ErrState,
				fmt.Sprintf("escrow is released only for delivered orders, order is %s", order.Status))
		}

		payment, err := lockReleasablePayment(ctx, tx, orderID)
		if err != nil {
			return err
		}

		releasable := payment.Refundable()
		sellers := payableSellerOrders(order.SellerOrders)
		if len(sellers) == 0 {
			return database.NewError(database.ErrState, "order has no seller orders to pay out")
		}

		for i, share := range SplitProRata(releasable, sellers) {
			so := sellers[i]
			if !share.IsPositive() {
				continue
			}
			account, err := store.GetAccountByUser(ctx, tx, so.SellerID)
			if err != nil {
				return fmt.Errorf("seller %d: %w", so.SellerID, err)
			}
			cut, payout, err := s.ledger.Release(ctx, tx, account.AccountNumber, share)
			if err != nil {
				return err
			}
			if err := store.MarkSellerOrderPaidOut(ctx, tx, so.ID, cut, payout); err != nil {
				return err
			}
			commission = commission.Add(cut)
		}

		released = releasable
		return store.MarkPaymentReleased(ctx, tx, payment.ID, commission)
	})
	if err != nil {
		return err
	}

	metrics.RecordEscrow(metrics.EscrowRelease, released)
	s.log.Info("escrow released",
		zap.Int64("order_id", orderID),
		zap.String("amount", released.StringFixed(2)),
		zap.String("commission", commission.StringFixed(2)))
	return nil
}

// Refund returns money held in escrow to the account that paid. A nil amount
// refunds everything still held.
func (s *Service) Refund(ctx context.Context, actor authz.Actor, req RefundRequest) (*models.Payment, error) {
	var payment *models.Payment
	var amount decimal.Decimal

	err := database.WithRetry(ctx, s.db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		order, err := store.LockOrder(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}
		if err := authz.Require(order, actor, authz.ActionSettle); err != nil {
			return err
		}

		current, err := lockReleasablePayment(ctx, tx, req.OrderID)
		if err != nil {
			return err
		}

		remaining := current.Refundable()
		amount = remaining
		if req.Amount != nil {
			amount = req.Amount.Round(2)
		}
		if !amount.IsPositive() {
			return database.NewError(database.ErrValidation, "refund amount must be positive")
		}
		if amount.GreaterThan(remaining) {
			return database.NewError(database.ErrValidation,
				fmt.Sprintf("refund amount %s exceeds refundable %s", amount.StringFixed(2), remaining.StringFixed(2)))
		}

		full := amount.Equal(remaining)
		if full {
			if err := fulfillment.CheckTransition(order.Status, models.OrderStatusRefunded, order.PaymentStatus); err != nil {
				return err
			}
		}

		if err := s.ledger.Refund(ctx, tx, current.AccountNumber, amount); err != nil {
			return err
		}

		status := models.PaymentStatusPartiallyRefunded
		orderStatus := ""
		if full {
			status = models.PaymentStatusRefunded
			orderStatus = models.OrderStatusRefunded
		}

		refunded := current.RefundedAmount.Add(amount)
		if err := store.SetPaymentRefund(ctx, tx, current.ID, refunded, status); err != nil {
			return err
		}
		if err := store.SetOrderPayment(ctx, tx, order.ID, orderStatus, status, nil); err != nil {
			return err
		}

		payment, err = store.GetPaymentByTransactionID(ctx, tx, current.TransactionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.Payment(payment.Status)
	metrics.RecordEscrow(metrics.EscrowRefund, amount)
	if payment.Status == models.PaymentStatusRefunded {
		metrics.OrderTransition(models.OrderStatusRefunded)
	}
	s.log.Info("payment refunded",
		zap.Int64("order_id", req.OrderID),
		zap.String("transaction_id", payment.TransactionID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("status", payment.Status))

	return payment, nil
}

// GetByTransactionID returns a payment to its buyer or an admin.
func (s *Service) GetByTransactionID(ctx context.Context, actor authz.Actor, transactionID string) (*models.Payment, error) {
	payment, err := store.GetPaymentByTransactionID(ctx, s.db, transactionID)
	if err != nil {
		return nil, err
	}

	order, err := store.GetOrder(ctx, s.db, payment.OrderID)
	if err != nil {
		return nil, err
	}
	if err := authz.Require(order, actor, authz.ActionPay); err != nil {
		return nil, err
	}
	return payment, nil
}

func lockReleasablePayment(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Payment, error) {
	payment, err := store.LockHeldPayment(ctx, tx, orderID)
	if err != nil {
		if errors.Is(err, database.ErrPaymentNotFound) {
			return nil, database.ErrEscrowNotHeld
		}
		return nil, err
	}
	if payment.EscrowReleased || !payment.Refundable().IsPositive() {
		return nil, database.ErrEscrowNotHeld
	}
	return payment, nil
}

func payableSellerOrders(all []models.SellerOrder) []models.SellerOrder {
	var out []models.SellerOrder
	for _, so := range all {
		if so.Status == models.SellerOrderStatusPending {
			out = append(out, so)
		}
	}
	return out
}

// SplitProRata divides amount across seller orders in proportion to their
// subtotals, rounded to cents. The last seller absorbs the rounding remainder
// so the shares always sum to amount.
func SplitProRata(amount decimal.Decimal, sellers []models.SellerOrder) []decimal.Decimal {
	shares := make([]decimal.Decimal, len(sellers))
	if len(sellers) == 0 {
		return shares
	}

	total := decimal.Zero
	for _, so := range sellers {
		total = total.Add(so.Subtotal)
	}

	allocated := decimal.Zero
	for i := 0; i < len(sellers)-1; i++ {
		if total.IsZero() {
			shares[i] = amount.Div(decimal.NewFromInt(int64(len(sellers)))).Round(2)
		} else {
			shares[i] = amount.Mul(sellers[i].Subtotal).Div(total).Round(2)
		}
		allocated = allocated.Add(shares[i])
	}
	shares[len(sellers)-1] = amount.Sub(allocated)

	return shares
}

func newTransactionID() string {
	return "TXN" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
