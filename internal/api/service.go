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
	"time"

	"reward-ledger-go/internal/cache"
	"reward-ledger-go/internal/metrics"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"
	"reward-ledger-go/internal/units"
	"reward-ledger-go/internal/voucher"

	"go.uber.org/zap"
)

const (
	defaultMaxRetries   = 3
	defaultRetryBackoff = 20 * time.Millisecond
)

// RewardService is the entry point for callers of the reward ledger. It
// validates requests, retries optimistic conflicts, throttles code attempts
// and shapes instruments into per-requester views.
type RewardService struct {
	store   store.RewardStore
	cache   *cache.InstrumentCache
	catalog *units.Catalog
	coder   *voucher.Coder
	guard   *redemptionGuard
	now     func() time.Time

	maxRetries   int
	retryBackoff time.Duration
}

func NewRewardService(st store.RewardStore, catalog *units.Catalog, coder *voucher.Coder, cfg models.RedemptionConfig, cacheCfg models.CacheConfig) (*RewardService, error) {
	instruments := cache.New(st, cacheCfg.Size, cacheCfg.TTL)

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = defaultRetryBackoff
	}

	guard, err := newRedemptionGuard(cfg.CodeAttemptsPerMinute, cfg.CodeAttemptBurst)
	if err != nil {
		return nil, err
	}

	return &RewardService{
		store:        st,
		cache:        instruments,
		catalog:      catalog,
		coder:        coder,
		guard:        guard,
		now:          time.Now,
		maxRetries:   maxRetries,
		retryBackoff: backoff,
	}, nil
}

// SetClock replaces the time source used for views and throttling.
func (s *RewardService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *RewardService) HealthCheck(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Invalidate drops cached instruments; used by background writers.
func (s *RewardService) Invalidate(ids ...string) {
	s.cache.Invalidate(ids...)
}

// withRetry runs op again while it reports an optimistic conflict, then
// gives up with ErrTransient.
func (s *RewardService) withRetry(ctx context.Context, name string, op func() error) error {
	for attempt := 0; ; attempt++ {
		err := op()
		if !errors.Is(err, store.ErrConcurrencyConflict) {
			return err
		}
		if attempt >= s.maxRetries {
			zap.L().Warn("Giving up after repeated conflicts",
				zap.String("operation", name),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return fmt.Errorf("%w: %s conflicted %d times: %v", store.ErrTransient, name, attempt+1, err)
		}
		metrics.RecordConflictRetry(name)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryBackoff * time.Duration(attempt+1)):
		}
	}
}

// outcome classifies an error for metrics labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, store.ErrAlreadyRedeemed):
		return "already_redeemed"
	case errors.Is(err, store.ErrExpired):
		return "expired"
	case errors.Is(err, store.ErrNotYetValid):
		return "not_yet_valid"
	case errors.Is(err, store.ErrCodeMismatch):
		return "code_mismatch"
	case errors.Is(err, store.ErrTooManyAttempts):
		return "throttled"
	case errors.Is(err, store.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, store.ErrMilestoneNotReached):
		return "milestone_not_reached"
	case errors.Is(err, store.ErrLedgerInvariant):
		return "invariant_violation"
	case errors.Is(err, store.ErrTransient):
		return "transient"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, store.ErrInvalidValue), errors.Is(err, store.ErrInvalidTransition):
		return "rejected"
	}
	return "error"
}
