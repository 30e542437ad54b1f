package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/shopspring/decimal"
)

const paymentColumns = `id, transaction_id, order_id, amount, status, escrow_held, escrow_released,
	refunded_amount, commission_amount, account_number, bank_reference, payment_date, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	err := row.Scan(
		&p.ID,
		&p.TransactionID,
		&p.OrderID,
		&p.Amount,
		&p.Status,
		&p.EscrowHeld,
		&p.EscrowReleased,
		&p.RefundedAmount,
		&p.CommissionAmount,
		&p.AccountNumber,
		&p.BankReference,
		&p.PaymentDate,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

func InsertPayment(ctx context.Context, q database.DBTX, p *models.Payment) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO payments (transaction_id, order_id, amount, status, escrow_held, escrow_released,
		                       refunded_amount, commission_amount, account_number, bank_reference,
		                       payment_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, FALSE, 0, 0, $6, $7, NOW(), NOW(), NOW())
		 RETURNING id, payment_date, created_at, updated_at`,
		p.TransactionID, p.OrderID, p.Amount, p.Status, p.EscrowHeld, p.AccountNumber, p.BankReference,
	).Scan(&p.ID, &p.PaymentDate, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

func GetPaymentByTransactionID(ctx context.Context, q database.DBTX, transactionID string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE transaction_id = $1`

	payment, err := scanPayment(q.QueryRowContext(ctx, query, transactionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return payment, nil
}

// LockHeldPayment returns the order's payment whose funds sit in escrow, locked for update.
func LockHeldPayment(ctx context.Context, tx *sql.Tx, orderID int64) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE order_id = $1 AND escrow_held
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE`

	payment, err := scanPayment(tx.QueryRowContext(ctx, query, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("lock payment: %w", err)
	}
	return payment, nil
}

func MarkPaymentReleased(ctx context.Context, q database.DBTX, id int64, commission decimal.Decimal) error {
	_, err := q.ExecContext(ctx,
		`UPDATE payments
		 SET escrow_released = TRUE, commission_amount = $1, updated_at = NOW()
		 WHERE id = $2`,
		commission, id)
	if err != nil {
		return fmt.Errorf("mark payment released: %w", err)
	}
	return nil
}

func SetPaymentRefund(ctx context.Context, q database.DBTX, id int64, refunded decimal.Decimal, status string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE payments
		 SET refunded_amount = $1, status = $2, updated_at = NOW()
		 WHERE id = $3`,
		refunded, status, id)
	if err != nil {
		return fmt.Errorf("update payment refund: %w", err)
	}
	return nil
}
