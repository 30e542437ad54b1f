// Package escrow moves money between customer, escrow and seller bank
// accounts. Each movement locks both accounts, checks them and applies the
// debit and credit inside one transaction.
package escrow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/safar/go-marketplace/internal/config"
	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
	"github.com/safar/go-marketplace/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Ledger struct {
	db             *sql.DB
	accountNumber  string
	holderName     string
	commissionRate decimal.Decimal
	log            *zap.Logger
}

func NewLedger(db *sql.DB, cfg config.EscrowConfig, log *zap.Logger) *Ledger {
	return &Ledger{
		db:             db,
		accountNumber:  cfg.AccountNumber,
		holderName:     cfg.HolderName,
		commissionRate: cfg.CommissionRate,
		log:            log.Named("escrow"),
	}
}

func (l *Ledger) AccountNumber() string { return l.accountNumber }

// Commission splits a released amount into the platform's cut and the seller payout.
func (l *Ledger) Commission(amount decimal.Decimal) (commission, payout decimal.Decimal) {
	commission = amount.Mul(l.commissionRate).Round(2)
	return commission, amount.Sub(commission)
}

// EnsureEscrowAccount creates the escrow account if this is a fresh database.
func (l *Ledger) EnsureEscrowAccount(ctx context.Context) (*models.BankAccount, error) {
	account, err := store.GetAccountByNumber(ctx, l.db, l.accountNumber)
	if err == nil {
		if account.Role != models.AccountRoleEscrow {
			return nil, fmt.Errorf("account %s exists with role %s", l.accountNumber, account.Role)
		}
		return account, nil
	}
	if !errors.Is(err, database.ErrAccountNotFound) {
		return nil, err
	}

	account = &models.BankAccount{
		AccountNumber: l.accountNumber,
		HolderName:    l.holderName,
		Role:          models.AccountRoleEscrow,
		Balance:       decimal.Zero,
		Active:        true,
	}
	if err := store.CreateAccount(ctx, l.db, account); err != nil {
		if errors.Is(err, database.ErrAccountExists) {
			return store.GetAccountByNumber(ctx, l.db, l.accountNumber)
		}
		return nil, err
	}

	l.log.Info("escrow account created", zap.String("account", l.accountNumber))
	return account, nil
}

// Hold moves amount from the customer's account into escrow within tx.
func (l *Ledger) Hold(ctx context.Context, tx *sql.Tx, customerAccount string, amount decimal.Decimal) error {
	return l.transfer(ctx, tx, customerAccount, l.accountNumber, amount, amount)
}

// Release debits amount from escrow and credits the seller the payout after commission.
func (l *Ledger) Release(ctx context.Context, tx *sql.Tx, sellerAccount string, amount decimal.Decimal) (commission, payout decimal.Decimal, err error) {
	commission, payout = l.Commission(amount)
	if err := l.transfer(ctx, tx, l.accountNumber, sellerAccount, amount, payout); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return commission, payout, nil
}

// Refund returns amount from escrow to the customer within tx.
func (l *Ledger) Refund(ctx context.Context, tx *sql.Tx, customerAccount string, amount decimal.Decimal) error {
	return l.transfer(ctx, tx, l.accountNumber, customerAccount, amount, amount)
}

func (l *Ledger) transfer(ctx context.Context, tx *sql.Tx, from, to string, debit, credit decimal.Decimal) error {
	if !debit.IsPositive() {
		return database.NewError(database.ErrValidation, "amount must be positive")
	}
	if from == to {
		return database.NewError(database.ErrValidation, "source and destination accounts must differ")
	}

	accounts, err := lockAccounts(ctx, tx, from, to)
	if err != nil {
		return err
	}

	src, dst := accounts[from], accounts[to]
	if src == nil || dst == nil {
		return database.ErrAccountNotFound
	}
	if !src.Active || !dst.Active {
		return database.ErrAccountInactive
	}
	if src.Balance.LessThan(debit) {
		return database.ErrInsufficientFunds
	}

	if err := addBalance(ctx, tx, from, debit.Neg()); err != nil {
		return err
	}
	if err := addBalance(ctx, tx, to, credit); err != nil {
		return err
	}

	l.log.Debug("escrow transfer",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("debit", debit.StringFixed(2)),
		zap.String("credit", credit.StringFixed(2)))
	return nil
}

// lockAccounts takes row locks in account-number order so that two transfers
// touching the same pair cannot deadlock.
func lockAccounts(ctx context.Context, tx *sql.Tx, numbers ...string) (map[string]*models.BankAccount, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id, account_number, balance, active
		 FROM bank_accounts
		 WHERE account_number = ANY($1)
		 ORDER BY account_number
		 FOR UPDATE`,
		pq.Array(numbers))
	if err != nil {
		return nil, fmt.Errorf("lock accounts: %w", err)
	}
	defer rows.Close()

	accounts := make(map[string]*models.BankAccount, len(numbers))
	for rows.Next() {
		a := &models.BankAccount{}
		if err := rows.Scan(&a.ID, &a.AccountNumber, &a.Balance, &a.Active); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		accounts[a.AccountNumber] = a
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return accounts, nil
}

func addBalance(ctx context.Context, tx *sql.Tx, number string, delta decimal.Decimal) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE bank_accounts
		 SET balance = balance + $1, updated_at = NOW(), version = version + 1
		 WHERE account_number = $2`,
		delta, number)
	if err != nil {
		return fmt.Errorf("update balance of %s: %w", number, err)
	}
	return nil
}
