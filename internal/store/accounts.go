package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/safar/go-marketplace/internal/database"
	"github.com/safar/go-marketplace/internal/models"
)

const accountColumns = "id, account_number, holder_name, user_id, role, balance, active, created_at, updated_at, version"

func scanAccount(row rowScanner) (*models.BankAccount, error) {
	a := &models.BankAccount{}
	err := row.Scan(
		&a.ID,
		&a.AccountNumber,
		&a.HolderName,
		&a.UserID,
		&a.Role,
		&a.Balance,
		&a.Active,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.Version,
	)
	return a, err
}

func CreateAccount(ctx context.Context, q database.DBTX, a *models.BankAccount) error {
	err := q.QueryRowContext(ctx,
		`INSERT INTO bank_accounts (account_number, holder_name, user_id, role, balance, active, created_at, updated_at, version)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		 RETURNING id, created_at, updated_at, version`,
		a.AccountNumber, a.HolderName, a.UserID, a.Role, a.Balance, a.Active,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt, &a.Version)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return database.ErrAccountExists
		}
		return fmt.Errorf("create bank account: %w", err)
	}
	return nil
}

func GetAccountByUser(ctx context.Context, q database.DBTX, userID int64) (*models.BankAccount, error) {
	return getAccount(ctx, q, `SELECT `+accountColumns+` FROM bank_accounts WHERE user_id = $1`, userID)
}

func GetAccountByNumber(ctx context.Context, q database.DBTX, number string) (*models.BankAccount, error) {
	return getAccount(ctx, q, `SELECT `+accountColumns+` FROM bank_accounts WHERE account_number = $1`, number)
}

func getAccount(ctx context.Context, q database.DBTX, query string, arg any) (*models.BankAccount, error) {
	account, err := scanAccount(q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrAccountNotFound
		}
		return nil, fmt.Errorf("get bank account: %w", err)
	}
	return account, nil
}
