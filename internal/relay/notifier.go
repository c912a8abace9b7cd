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

	"reward-ledger-go/internal/models"

	"go.uber.org/zap"
)

// Notifier delivers instrument and pool events to users.
type Notifier interface {
	Notify(ctx context.Context, event models.Event) error
}

// Mirror receives committed ledger transactions.
type Mirror interface {
	MirrorTransaction(ctx context.Context, tx models.LedgerAppendedPayload) error
}

// LogNotifier writes every event to the global logger.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, event models.Event) error {
	zap.L().Info("Event",
		zap.String("type", string(event.Type)),
		zap.String("aggregate_id", event.AggregateId),
		zap.Int64("seq", event.Seq),
		zap.ByteString("payload", event.Payload))
	return nil
}
