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

package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"reward-ledger-go/internal/metrics"
	"reward-ledger-go/internal/models"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultSchedule  = "@every 5m"
	defaultBatchSize = 500
)

// Expirer persists lazy expiries for instruments whose window has closed.
type Expirer interface {
	ExpireDue(ctx context.Context, limit int) ([]string, error)
}

// Sweeper runs the expiry sweep on a cron schedule. Expiry is already
// enforced on read, so a delayed sweep only delays the persisted state.
type Sweeper struct {
	expirer   Expirer
	schedule  cron.Schedule
	batchSize int
	cron      *cron.Cron

	mu      sync.Mutex
	started bool
}

// New validates the schedule and builds a stopped sweeper.
func New(expirer Expirer, cfg models.SweeperConfig) (*Sweeper, error) {
	expr := cfg.Schedule
	if expr == "" {
		expr = defaultSchedule
	}
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", expr, err)
	}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	logger := cronLogger{}
	return &Sweeper{
		expirer:   expirer,
		schedule:  schedule,
		batchSize: batch,
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}, nil
}

// Start schedules the sweep. Runs stop when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Sweep(ctx); err != nil {
			zap.L().Error("Expiry sweep failed", zap.Error(err))
		}
	}))
	s.cron.Start()

	zap.L().Info("Expiry sweeper started", zap.Int("batch_size", s.batchSize))
}

// Stop halts the schedule and waits for a running sweep to return.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	zap.L().Info("Expiry sweeper stopped")
}

// Sweep expires due instruments in batches until a short batch signals
// nothing is left, and returns how many were expired.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := time.Now()
	total := 0

	for {
		ids, err := s.expirer.ExpireDue(ctx, s.batchSize)
		total += len(ids)
		if err != nil {
			metrics.RecordSweep(total, time.Since(start), false)
			return total, fmt.Errorf("expiry batch failed after %d expiries: %w", total, err)
		}
		if len(ids) < s.batchSize {
			break
		}
	}

	metrics.RecordSweep(total, time.Since(start), true)
	if total > 0 {
		zap.L().Info("Expiry sweep completed",
			zap.Int("expired", total),
			zap.Duration("duration", time.Since(start)))
	}
	return total, nil
}

// cronLogger routes cron's internal logging to zap.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	zap.S().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	zap.S().Errorw(msg, append(keysAndValues, "error", err)...)
}
