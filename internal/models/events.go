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

package models

import (
	"encoding/json"
	"time"
)

// EventType names a domain event emitted for external subscribers
type EventType string

const (
	EventInstrumentIssued   EventType = "InstrumentIssued"
	EventInstrumentRedeemed EventType = "InstrumentRedeemed"
	EventInstrumentExpired  EventType = "InstrumentExpired"
	EventInstrumentVoided   EventType = "InstrumentVoided"
	EventPoolSettled        EventType = "PoolSettled"
	// EventLedgerAppended is consumed by the ledger mirror, not the notifier.
	EventLedgerAppended EventType = "LedgerAppended"
)

// Event is an outbox row. Payload is the JSON form of one of the payload
// structs below.
type Event struct {
	Seq         int64           `db:"seq"`
	Type        EventType       `db:"event_type"`
	AggregateId string          `db:"aggregate_id"`
	Payload     json.RawMessage `db:"payload"`
	CreatedAt   time.Time       `db:"created_at"`
}

// InstrumentEventPayload is the payload of all Instrument* events
type InstrumentEventPayload struct {
	InstrumentId string          `json:"instrument_id"`
	OwnerId      string          `json:"owner_id"`
	Kind         InstrumentKind  `json:"kind"`
	FaceValue    Money           `json:"face_value"`
	State        InstrumentState `json:"state"`
	Channel      string          `json:"channel,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// PoolSettledPayload is the payload of PoolSettled
type PoolSettledPayload struct {
	PoolId       string    `json:"pool_id"`
	SubjectId    string    `json:"subject_id"`
	PoolValue    Money     `json:"pool_value"`
	Distributed  string    `json:"distributed"`
	Retained     string    `json:"retained"`
	Participants int       `json:"participants"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// LedgerAppendedPayload carries one committed ledger transaction
type LedgerAppendedPayload struct {
	TransactionId       string       `json:"transaction_id"`
	AccountId           string       `json:"account_id"`
	Amount              string       `json:"amount"`
	Currency            string       `json:"currency"`
	Reason              LedgerReason `json:"reason"`
	RelatedInstrumentId string       `json:"related_instrument_id,omitempty"`
	RelatedPoolId       string       `json:"related_pool_id,omitempty"`
	CreatedAt           time.Time    `json:"created_at"`
}
