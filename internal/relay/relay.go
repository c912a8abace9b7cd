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

package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"reward-ledger-go/internal/metrics"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"go.uber.org/zap"
)

const (
	defaultPollingInterval = 2 * time.Second
	defaultBatchSize       = 100
)

// Config contains configuration for Relay
type Config struct {
	Store           store.OutboxStore
	Notifier        Notifier
	Mirror          Mirror
	PollingInterval time.Duration
	BatchSize       int
}

// Relay polls the outbox and hands committed events to the notifier and
// the ledger mirror. Delivery is at least once and in commit order.
type Relay struct {
	store    store.OutboxStore
	notifier Notifier
	mirror   Mirror

	pollingInterval time.Duration
	batchSize       int

	// Control channels
	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// New creates a new outbox relay
func New(cfg Config) *Relay {
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = LogNotifier{}
	}
	interval := cfg.PollingInterval
	if interval <= 0 {
		interval = defaultPollingInterval
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}

	return &Relay{
		store:           cfg.Store,
		notifier:        notifier,
		mirror:          cfg.Mirror,
		pollingInterval: interval,
		batchSize:       batch,
		stopChan:        make(chan struct{}),
		doneChan:        make(chan struct{}),
	}
}

// Start begins polling in the background
func (r *Relay) Start(ctx context.Context) {
	zap.L().Info("Starting outbox relay",
		zap.Duration("polling_interval", r.pollingInterval),
		zap.Int("batch_size", r.batchSize),
		zap.Bool("mirror_enabled", r.mirror != nil))

	go r.pollLoop(ctx)
}

// Stop halts polling and waits for the in-flight batch to finish. Start
// must have been called.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		zap.L().Info("Stopping outbox relay")
		close(r.stopChan)
	})
	<-r.doneChan
	zap.L().Info("Outbox relay stopped")
}

func (r *Relay) pollLoop(ctx context.Context) {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.pollingInterval)
	defer ticker.Stop()

	r.drain(ctx)

	for {
		select {
		case <-ticker.C:
			r.drain(ctx)
		case <-r.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

// drain delivers full batches until the outbox is empty or a delivery fails.
func (r *Relay) drain(ctx context.Context) {
	for {
		delivered, err := r.DeliverPending(ctx)
		if err != nil {
			zap.L().Warn("Outbox delivery interrupted", zap.Int("delivered", delivered), zap.Error(err))
			return
		}
		if delivered < r.batchSize {
			return
		}
	}
}

// DeliverPending delivers one batch of pending events and returns how many
// were acknowledged. The batch stops at the first failing event so later
// events are never delivered ahead of it.
func (r *Relay) DeliverPending(ctx context.Context) (int, error) {
	events, err := r.store.PendingEvents(ctx, r.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load pending events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	delivered := make([]int64, 0, len(events))
	var deliverErr error
	for _, event := range events {
		if err := r.deliver(ctx, event); err != nil {
			metrics.RecordOutboxFailure()
			deliverErr = fmt.Errorf("event %d (%s): %w", event.Seq, event.Type, err)
			break
		}
		metrics.RecordOutboxDelivery(string(event.Type))
		delivered = append(delivered, event.Seq)
	}

	if len(delivered) > 0 {
		if err := r.store.MarkEventsDelivered(ctx, delivered); err != nil {
			return 0, fmt.Errorf("failed to acknowledge %d events: %w", len(delivered), err)
		}
	}

	zap.L().Debug("Outbox batch delivered",
		zap.Int("pending", len(events)),
		zap.Int("delivered", len(delivered)))
	return len(delivered), deliverErr
}

func (r *Relay) deliver(ctx context.Context, event models.Event) error {
	if event.Type != models.EventLedgerAppended {
		return r.notifier.Notify(ctx, event)
	}
	if r.mirror == nil {
		return nil
	}

	var tx models.LedgerAppendedPayload
	if err := json.Unmarshal(event.Payload, &tx); err != nil {
		// A malformed payload can never be mirrored; skip it rather than stall the outbox.
		zap.L().Error("Dropping malformed ledger event",
			zap.Int64("seq", event.Seq),
			zap.String("aggregate_id", event.AggregateId),
			zap.Error(err))
		return nil
	}
	return r.mirror.MirrorTransaction(ctx, tx)
}
