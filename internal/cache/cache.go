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

// Package cache is a read-through cache in front of the instrument store.
// It is never a second source of truth: every write to an instrument made
// through this process invalidates its entry, loads that raced with an
// invalidation are discarded, and entries expire after a short TTL so
// writes from other processes sharing the database become visible.
package cache

import (
	"context"
	"sync/atomic"
	"time"

	"reward-ledger-go/internal/metrics"
	"reward-ledger-go/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultSize = 4096
	DefaultTTL  = 2 * time.Second
)

// InstrumentSource loads instruments from durable storage
type InstrumentSource interface {
	Get(ctx context.Context, id string) (*models.Instrument, error)
}

type InstrumentCache struct {
	source     InstrumentSource
	entries    *expirable.LRU[string, models.Instrument]
	group      singleflight.Group
	generation atomic.Uint64
}

func New(source InstrumentSource, size int, ttl time.Duration) *InstrumentCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &InstrumentCache{
		source:  source,
		entries: expirable.NewLRU[string, models.Instrument](size, nil, ttl),
	}
}

// Get returns a copy of the instrument, loading it on a miss. Concurrent
// misses for the same id share one load.
func (c *InstrumentCache) Get(ctx context.Context, id string) (*models.Instrument, error) {
	if inst, ok := c.entries.Get(id); ok {
		metrics.RecordCacheLookup(true)
		return &inst, nil
	}
	metrics.RecordCacheLookup(false)

	v, err, _ := c.group.Do(id, func() (any, error) {
		gen := c.generation.Load()
		inst, err := c.source.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.generation.Load() == gen {
			c.entries.Add(id, *inst)
		}
		return *inst, nil
	})
	if err != nil {
		return nil, err
	}
	inst := v.(models.Instrument)
	return &inst, nil
}

// Invalidate drops the given ids. Loads already in flight will not be
// stored.
func (c *InstrumentCache) Invalidate(ids ...string) {
	c.generation.Add(1)
	for _, id := range ids {
		c.entries.Remove(id)
		c.group.Forget(id)
	}
}

// Purge drops every entry.
func (c *InstrumentCache) Purge() {
	c.generation.Add(1)
	c.entries.Purge()
}

func (c *InstrumentCache) Len() int {
	return c.entries.Len()
}
