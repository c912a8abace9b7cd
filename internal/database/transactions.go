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

// ProcessTransaction atomically appends a ledger transaction and moves the
// balance projection.
func (s *SubledgerService) ProcessTransaction(ctx context.Context, params store.AppendParams, now time.Time) (*models.LedgerTransaction, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(tx)

	transaction, err := s.appendInTx(ctx, tx, params, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return transaction, nil
}

// appendInTx records one ledger transaction inside an open database
// transaction. Every caller that changes value goes through here so the log,
// the projection, the journal and the outbox move together.
func (s *SubledgerService) appendInTx(ctx context.Context, tx *sql.Tx, params store.AppendParams, now time.Time) (*models.LedgerTransaction, error) {
	zap.L().Debug("Appending ledger transaction",
		zap.String("account_id", params.AccountId),
		zap.String("currency", params.Currency),
		zap.String("reason", string(params.Reason)),
		zap.String("amount", params.Amount.String()))

	// Get current balance
	var currentBalanceStr string
	var balanceId string
	var version int64

	err := tx.QueryRowContext(ctx, queryGetAccountBalance, params.AccountId, params.Currency).Scan(&balanceId, &currentBalanceStr, &version)

	var currentBalance decimal.Decimal
	if errors.Is(err, sql.ErrNoRows) {
		// Create new account balance record
		balanceId = uuid.New().String()
		currentBalance = decimal.Zero
		version = 1

		_, err = tx.ExecContext(ctx, queryInsertAccountBalance, balanceId, params.AccountId, params.Currency, "0", 1, toNanos(now))
		if err != nil {
			return nil, fmt.Errorf("failed to create account balance: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to get current balance: %w", err)
	} else {
		currentBalance, err = decimal.NewFromString(currentBalanceStr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse current balance '%s': %w", currentBalanceStr, err)
		}
	}

	newBalance := currentBalance.Add(params.Amount)

	transaction := &models.LedgerTransaction{
		Id:                  uuid.New().String(),
		AccountId:           params.AccountId,
		Amount:              params.Amount,
		Currency:            params.Currency,
		Reason:              params.Reason,
		RelatedInstrumentId: params.RelatedInstrumentId,
		RelatedPoolId:       params.RelatedPoolId,
		BalanceBefore:       currentBalance,
		BalanceAfter:        newBalance,
		CreatedAt:           now.UTC(),
	}

	_, err = tx.ExecContext(ctx, queryInsertTransaction,
		transaction.Id, transaction.AccountId, transaction.Amount.String(), transaction.Currency,
		string(transaction.Reason), transaction.RelatedInstrumentId, transaction.RelatedPoolId,
		currentBalance.String(), newBalance.String(), toNanos(now))
	if err != nil {
		return nil, fmt.Errorf("failed to insert transaction: %w", err)
	}

	// Update account balance (with optimistic locking)
	result, err := tx.ExecContext(ctx, queryUpdateAccountBalance,
		newBalance.String(), transaction.Id, toNanos(now), params.AccountId, params.Currency, version)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	if err := rowsAffected(result, "balance update failed"); err != nil {
		return nil, err
	}

	if err := s.addJournalEntries(ctx, tx, transaction); err != nil {
		return nil, fmt.Errorf("failed to add journal entries: %w", err)
	}

	if err := insertEvent(ctx, tx, models.EventLedgerAppended, transaction.AccountId, models.LedgerAppendedPayload{
		TransactionId:       transaction.Id,
		AccountId:           transaction.AccountId,
		Amount:              transaction.Amount.String(),
		Currency:            transaction.Currency,
		Reason:              transaction.Reason,
		RelatedInstrumentId: transaction.RelatedInstrumentId,
		RelatedPoolId:       transaction.RelatedPoolId,
		CreatedAt:           transaction.CreatedAt,
	}, now); err != nil {
		return nil, err
	}

	return transaction, nil
}

type journalEntry struct {
	accountType  string
	accountId    string
	debitAmount  decimal.Decimal
	creditAmount decimal.Decimal
}

// addJournalEntries creates double-entry bookkeeping entries. A positive
// amount debits the user's reward account and credits the counter account
// (platform rewards liability, or the pool for stakes and settlements).
func (s *SubledgerService) addJournalEntries(ctx context.Context, tx *sql.Tx, transaction *models.LedgerTransaction) error {
	userAccount := fmt.Sprintf("%s_%s", transaction.AccountId, transaction.Currency)
	counterType, counterAccount := "platform_rewards", fmt.Sprintf("rewards_%s", transaction.Currency)
	if transaction.Reason == models.ReasonStake || transaction.Reason == models.ReasonSettle {
		counterType, counterAccount = "pool", fmt.Sprintf("%s_%s", transaction.RelatedPoolId, transaction.Currency)
	}

	amount := transaction.Amount.Abs()
	var entries []journalEntry
	if transaction.Amount.IsPositive() {
		entries = []journalEntry{
			{"user_reward", userAccount, amount, decimal.Zero},
			{counterType, counterAccount, decimal.Zero, amount},
		}
	} else {
		entries = []journalEntry{
			{"user_reward", userAccount, decimal.Zero, amount},
			{counterType, counterAccount, amount, decimal.Zero},
		}
	}

	for _, entry := range entries {
		_, err := tx.ExecContext(ctx, queryInsertJournalEntry,
			uuid.New().String(), transaction.Id, entry.accountType, entry.accountId,
			entry.debitAmount.String(), entry.creditAmount.String(), toNanos(transaction.CreatedAt))
		if err != nil {
			return err
		}
	}

	return nil
}

// GetTransactionHistory returns paginated transaction history, newest first
func (s *SubledgerService) GetTransactionHistory(ctx context.Context, accountId, currency string, limit, offset int) ([]models.LedgerTransaction, error) {
	zap.L().Debug("Getting transaction history",
		zap.String("account_id", accountId),
		zap.String("currency", currency),
		zap.Int("limit", limit),
		zap.Int("offset", offset))

	rows, err := s.db.QueryContext(ctx, queryGetTransactionHistory, accountId, currency, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction history: %w", err)
	}
	defer closeRows(rows)

	var transactions []models.LedgerTransaction
	for rows.Next() {
		t, err := scanLedgerTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}

	// Check for errors during iteration
	if err := rows.Err(); err != nil {
		zap.L().Error("Error during transaction row iteration", zap.Error(err))
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}

	return transactions, nil
}

func scanLedgerTransaction(rows *sql.Rows) (*models.LedgerTransaction, error) {
	var t models.LedgerTransaction
	var reason, amountStr, beforeStr, afterStr string
	var createdAt int64
	err := rows.Scan(&t.Id, &t.AccountId, &amountStr, &t.Currency, &reason,
		&t.RelatedInstrumentId, &t.RelatedPoolId, &beforeStr, &afterStr, &createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}
	t.Reason = models.LedgerReason(reason)
	t.CreatedAt = fromNanos(createdAt)

	if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("failed to parse amount '%s': %w", amountStr, err)
	}
	if t.BalanceBefore, err = decimal.NewFromString(beforeStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance before '%s': %w", beforeStr, err)
	}
	if t.BalanceAfter, err = decimal.NewFromString(afterStr); err != nil {
		return nil, fmt.Errorf("failed to parse balance after '%s': %w", afterStr, err)
	}
	return &t, nil
}
