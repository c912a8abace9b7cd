/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"context"
	"fmt"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AppendTransaction records a standalone ledger transaction. Instrument and
// pool operations append their own entries inside their transactions.
func (s *Service) AppendTransaction(ctx context.Context, params store.AppendParams) (*models.LedgerTransaction, error) {
	if err := s.validateAppend(params); err != nil {
		return nil, err
	}

	transaction, err := s.subledger.ProcessTransaction(ctx, params, s.Now())
	if err != nil {
		return nil, fmt.Errorf("error appending ledger transaction: %w", err)
	}

	zap.L().Info("Ledger transaction appended",
		zap.String("transaction_id", transaction.Id),
		zap.String("account_id", transaction.AccountId),
		zap.String("currency", transaction.Currency),
		zap.String("reason", string(transaction.Reason)),
		zap.String("amount", transaction.Amount.String()),
		zap.String("new_balance", transaction.BalanceAfter.String()))
	return transaction, nil
}

func (s *Service) validateAppend(params store.AppendParams) error {
	if params.AccountId == "" {
		return fmt.Errorf("%w: account id is required", store.ErrInvalidValue)
	}
	if params.Amount.IsZero() {
		return fmt.Errorf("%w: amount must be non-zero", store.ErrInvalidValue)
	}
	if !s.catalog.IsMonetary(params.Currency) {
		return fmt.Errorf("%w: %q is not a monetary unit", store.ErrInvalidValue, params.Currency)
	}
	switch params.Reason {
	case models.ReasonIssue, models.ReasonRedeem, models.ReasonSettle,
		models.ReasonVoid, models.ReasonExpire, models.ReasonStake:
	default:
		return fmt.Errorf("%w: unknown ledger reason %q", store.ErrInvalidValue, params.Reason)
	}
	if err := s.checkPrecision(params.Amount, params.Currency); err != nil {
		return err
	}
	return nil
}

// checkPrecision rejects amounts finer than the unit's smallest subdivision.
func (s *Service) checkPrecision(amount decimal.Decimal, unit string) error {
	precision := s.catalog.Precision(unit)
	if !amount.Equal(amount.Truncate(precision)) {
		return fmt.Errorf("%w: %s has more than %d decimal places for %s", store.ErrInvalidValue, amount, precision, unit)
	}
	return nil
}

func (s *Service) BalanceOf(ctx context.Context, accountId, currency string) (decimal.Decimal, error) {
	return s.subledger.GetBalance(ctx, accountId, currency)
}

func (s *Service) GetAllBalances(ctx context.Context, accountId string) ([]models.AccountBalance, error) {
	return s.subledger.GetAllBalances(ctx, accountId)
}

func (s *Service) GetTransactionHistory(ctx context.Context, accountId, currency string, limit, offset int) ([]models.LedgerTransaction, error) {
	return s.subledger.GetTransactionHistory(ctx, accountId, currency, limit, offset)
}

func (s *Service) ReconcileBalance(ctx context.Context, accountId, currency string) error {
	return s.subledger.ReconcileBalance(ctx, accountId, currency)
}

func (s *Service) RebuildBalance(ctx context.Context, accountId, currency string) (decimal.Decimal, error) {
	return s.subledger.RebuildBalance(ctx, accountId, currency, s.Now())
}
