package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetBalance returns the projected balance for an account and currency
func (s *SubledgerService) GetBalance(ctx context.Context, accountId, currency string) (decimal.Decimal, error) {
	return getBalance(ctx, s.db, accountId, currency)
}

func getBalance(ctx context.Context, q querier, accountId, currency string) (decimal.Decimal, error) {
	var balanceStr string
	err := q.QueryRowContext(ctx, queryGetBalance, accountId, currency).Scan(&balanceStr)
	if errors.Is(err, sql.ErrNoRows) {
		// No balance record means zero balance
		return decimal.Zero, nil
	}
	if err != nil {
		zap.L().Error("Failed to get balance", zap.String("account_id", accountId), zap.String("currency", currency), zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}

	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		zap.L().Error("Failed to parse balance", zap.String("balance_str", balanceStr), zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to parse balance: %w", err)
	}

	return balance, nil
}

// sumLedger folds the transaction log for an account and currency. Amounts
// are TEXT so the sum is done with decimal rather than SQLite floats.
func sumLedger(ctx context.Context, q querier, accountId, currency string) (decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx, queryListAccountAmounts, accountId, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to read ledger: %w", err)
	}
	defer closeRows(rows)

	sum := decimal.Zero
	for rows.Next() {
		var amountStr string
		if err := rows.Scan(&amountStr); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(amountStr)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
		}
		sum = sum.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating ledger rows: %w", err)
	}
	return sum, nil
}

// GetAllBalances returns all non-zero balances for an account
func (s *SubledgerService) GetAllBalances(ctx context.Context, accountId string) ([]models.AccountBalance, error) {
	zap.L().Debug("Getting all balances", zap.String("account_id", accountId))

	rows, err := s.db.QueryContext(ctx, queryGetAllAccountBalances, accountId)
	if err != nil {
		zap.L().Error("Failed to get all balances", zap.String("account_id", accountId), zap.Error(err))
		return nil, fmt.Errorf("failed to get all balances: %w", err)
	}
	defer closeRows(rows)

	var balances []models.AccountBalance
	for rows.Next() {
		var balance models.AccountBalance
		var balanceStr string
		var updatedAt int64
		err := rows.Scan(&balance.Id, &balance.AccountId, &balance.Currency, &balanceStr,
			&balance.LastTransactionId, &balance.Version, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		balance.UpdatedAt = fromNanos(updatedAt)

		balance.Balance, err = decimal.NewFromString(balanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse balance '%s': %w", balanceStr, err)
		}
		if balance.Balance.IsZero() {
			continue
		}

		balances = append(balances, balance)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during balance row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating balance rows: %w", err)
	}

	zap.L().Debug("Retrieved all balances", zap.String("account_id", accountId), zap.Int("count", len(balances)))
	return balances, nil
}

// ReconcileBalance verifies that the projected balance matches the sum of
// all transactions
func (s *SubledgerService) ReconcileBalance(ctx context.Context, accountId, currency string) error {
	currentBalance, err := s.GetBalance(ctx, accountId, currency)
	if err != nil {
		return fmt.Errorf("failed to get current balance: %w", err)
	}

	calculatedBalance, err := sumLedger(ctx, s.db, accountId, currency)
	if err != nil {
		return fmt.Errorf("failed to calculate balance from transactions: %w", err)
	}

	// Check if balances match (exact decimal comparison)
	if !currentBalance.Equal(calculatedBalance) {
		zap.L().Error("Balance reconciliation failed",
			zap.String("account_id", accountId),
			zap.String("currency", currency),
			zap.String("current_balance", currentBalance.String()),
			zap.String("calculated_balance", calculatedBalance.String()),
			zap.String("difference", currentBalance.Sub(calculatedBalance).String()))
		return fmt.Errorf("%w: balance mismatch: current=%s, calculated=%s",
			store.ErrLedgerInvariant, currentBalance.String(), calculatedBalance.String())
	}

	zap.L().Debug("Balance reconciliation successful",
		zap.String("account_id", accountId),
		zap.String("currency", currency),
		zap.String("balance", currentBalance.String()))
	return nil
}

// RebuildBalance overwrites the projection with the sum of the log. The
// log is authoritative.
func (s *SubledgerService) RebuildBalance(ctx context.Context, accountId, currency string, now time.Time) (decimal.Decimal, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	sum, err := sumLedger(ctx, tx, accountId, currency)
	if err != nil {
		return decimal.Zero, err
	}

	res, err := tx.ExecContext(ctx, queryOverwriteAccountBalance, sum.String(), toNanos(now), accountId, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to overwrite balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		if _, err := tx.ExecContext(ctx, queryInsertAccountBalance, uuid.New().String(), accountId, currency, sum.String(), 1, toNanos(now)); err != nil {
			return decimal.Zero, fmt.Errorf("failed to create account balance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit rebuild: %w", err)
	}

	zap.L().Info("Balance projection rebuilt from ledger",
		zap.String("account_id", accountId),
		zap.String("currency", currency),
		zap.String("balance", sum.String()))
	return sum, nil
}
