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

package api

import (
	"context"
	"errors"
	"fmt"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// GetBalance returns the projected balance for an account and currency
func (s *RewardService) GetBalance(ctx context.Context, accountId, currency string) (decimal.Decimal, error) {
	if accountId == "" || currency == "" {
		return decimal.Zero, fmt.Errorf("%w: account_id and currency are required", store.ErrInvalidValue)
	}

	balance, err := s.store.BalanceOf(ctx, accountId, currency)
	if err != nil {
		zap.L().Error("Failed to get balance",
			zap.String("account_id", accountId),
			zap.String("currency", currency),
			zap.Error(err))
		return decimal.Zero, fmt.Errorf("failed to retrieve balance: %w", err)
	}

	return balance, nil
}

// AuditBalance reconciles the projection against the log. On divergence
// the projection is rebuilt from the log and the rebuilt value returned.
func (s *RewardService) AuditBalance(ctx context.Context, accountId, currency string) (decimal.Decimal, error) {
	if accountId == "" || currency == "" {
		return decimal.Zero, fmt.Errorf("%w: account_id and currency are required", store.ErrInvalidValue)
	}

	err := s.store.ReconcileBalance(ctx, accountId, currency)
	if err == nil {
		return s.store.BalanceOf(ctx, accountId, currency)
	}
	if !errors.Is(err, store.ErrLedgerInvariant) {
		return decimal.Zero, err
	}

	zap.L().Error("Balance projection diverged from ledger, rebuilding",
		zap.String("account_id", accountId),
		zap.String("currency", currency),
		zap.Error(err))
	return s.store.RebuildBalance(ctx, accountId, currency)
}

// GetBalances returns all non-zero balances for an account
func (s *RewardService) GetBalances(ctx context.Context, accountId string) ([]models.BalanceRecord, error) {
	if accountId == "" {
		return nil, fmt.Errorf("%w: account_id is required", store.ErrInvalidValue)
	}

	balances, err := s.store.GetAllBalances(ctx, accountId)
	if err != nil {
		zap.L().Error("Failed to get balances", zap.String("account_id", accountId), zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve balances: %w", err)
	}

	result := make([]models.BalanceRecord, len(balances))
	for i, balance := range balances {
		result[i] = models.BalanceRecord{
			AccountId: balance.AccountId,
			Currency:  balance.Currency,
			Balance:   balance.Balance,
		}
	}

	return result, nil
}

// GetTransactionHistory returns paginated transaction history for an account and currency
func (s *RewardService) GetTransactionHistory(ctx context.Context, accountId, currency string, limit, offset int) ([]models.TransactionRecord, error) {
	if accountId == "" || currency == "" {
		return nil, fmt.Errorf("%w: account_id and currency are required", store.ErrInvalidValue)
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	transactions, err := s.store.GetTransactionHistory(ctx, accountId, currency, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get transaction history",
			zap.String("account_id", accountId),
			zap.String("currency", currency),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve transaction history: %w", err)
	}

	result := make([]models.TransactionRecord, len(transactions))
	for i, tx := range transactions {
		result[i] = models.TransactionRecord{
			Id:                  tx.Id,
			Reason:              tx.Reason,
			Currency:            tx.Currency,
			Amount:              tx.Amount,
			RelatedInstrumentId: tx.RelatedInstrumentId,
			RelatedPoolId:       tx.RelatedPoolId,
			CreatedAt:           tx.CreatedAt,
		}
	}

	return result, nil
}
