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

	"reward-ledger-go/internal/metrics"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func (s *RewardService) CreatePool(ctx context.Context, params store.CreatePoolParams) (*models.Pool, error) {
	pool, err := s.store.CreatePool(ctx, params)
	if err != nil {
		zap.L().Warn("Pool creation rejected", zap.String("subject_id", params.SubjectId), zap.Error(err))
		return nil, err
	}
	return pool, nil
}

func (s *RewardService) GetPool(ctx context.Context, id string) (*models.Pool, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: pool id is required", store.ErrInvalidValue)
	}
	return s.store.GetPool(ctx, id)
}

// AcquireUnits grants pool units to an owner. Conflicts are retried.
func (s *RewardService) AcquireUnits(ctx context.Context, params store.AcquireParams) (*models.PoolEntry, error) {
	var entry *models.PoolEntry
	err := s.withRetry(ctx, "acquire", func() error {
		var err error
		entry, err = s.store.AcquireUnits(ctx, params)
		return err
	})
	if err != nil {
		return nil, err
	}
	if pool, err := s.store.GetPool(ctx, entry.PoolId); err == nil {
		metrics.RecordIssued(string(pool.Kind.InstrumentKind()))
	}
	return entry, nil
}

// SettlePool settles a pool against the observed metric.
func (s *RewardService) SettlePool(ctx context.Context, poolId string, actualMetric decimal.Decimal) (*models.SettlementResult, error) {
	var result *models.SettlementResult
	err := s.withRetry(ctx, "settle", func() error {
		var err error
		result, err = s.store.Settle(ctx, poolId, actualMetric)
		return err
	})
	metrics.RecordSettlement(outcome(err))
	if err != nil {
		if errors.Is(err, store.ErrLedgerInvariant) {
			zap.L().Error("Settlement halted on ledger invariant violation", zap.String("pool_id", poolId), zap.Error(err))
		}
		return nil, err
	}

	s.cache.Invalidate(result.SettledInstrumentIds...)
	return result, nil
}
