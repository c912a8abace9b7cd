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
	"fmt"
	"sync"
	"time"

	"reward-ledger-go/internal/store"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"
)

const (
	defaultAttemptsPerMinute = 10
	defaultAttemptBurst      = 5
	maxTrackedInstruments    = 10000
)

// redemptionGuard throttles failed code attempts per instrument and tracks
// redemptions that are in flight. The in-flight set is a display
// projection only; the store decides the outcome.
type redemptionGuard struct {
	limiters *lru.Cache[string, *rate.Limiter]
	limit    rate.Limit
	burst    int

	mu      sync.Mutex
	limMu   sync.Mutex
	pending map[string]int
}

func newRedemptionGuard(perMinute, burst int) (*redemptionGuard, error) {
	if perMinute <= 0 {
		perMinute = defaultAttemptsPerMinute
	}
	if burst <= 0 {
		burst = defaultAttemptBurst
	}
	limiters, err := lru.New[string, *rate.Limiter](maxTrackedInstruments)
	if err != nil {
		return nil, fmt.Errorf("failed to create attempt limiter: %w", err)
	}
	return &redemptionGuard{
		limiters: limiters,
		limit:    rate.Limit(float64(perMinute) / 60),
		burst:    burst,
		pending:  make(map[string]int),
	}, nil
}

// limiter returns the attempt limiter for instrumentId, creating it on
// first use.
func (g *redemptionGuard) limiter(instrumentId string) *rate.Limiter {
	g.limMu.Lock()
	defer g.limMu.Unlock()
	limiter, ok := g.limiters.Get(instrumentId)
	if !ok {
		limiter = rate.NewLimiter(g.limit, g.burst)
		g.limiters.Add(instrumentId, limiter)
	}
	return limiter
}

// allow reports whether instrumentId may try another code. It does not
// spend an attempt; only failed code checks do.
func (g *redemptionGuard) allow(instrumentId string, now time.Time) error {
	if g.limiter(instrumentId).TokensAt(now) < 1 {
		return fmt.Errorf("%w: instrument %s", store.ErrTooManyAttempts, instrumentId)
	}
	return nil
}

// fail spends one attempt for a rejected code.
func (g *redemptionGuard) fail(instrumentId string, now time.Time) {
	g.limiter(instrumentId).AllowN(now, 1)
}

// begin marks instrumentId in flight and returns the matching release.
func (g *redemptionGuard) begin(instrumentId string) func() {
	g.mu.Lock()
	g.pending[instrumentId]++
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.pending[instrumentId] <= 1 {
			delete(g.pending, instrumentId)
			return
		}
		g.pending[instrumentId]--
	}
}

func (g *redemptionGuard) isPending(instrumentId string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[instrumentId] > 0
}
