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
	"time"

	"github.com/shopspring/decimal"
)

// Visibility is the externally visible availability of a gated item
type Visibility string

const (
	VisibilityLocked    Visibility = "locked"
	VisibilityCountdown Visibility = "countdown"
	VisibilityAvailable Visibility = "available"
	VisibilityMissed    Visibility = "missed"
)

// GatedContent is a time-windowed piece of drop content
type GatedContent struct {
	Id           string     `json:"id"`
	ValidFrom    *time.Time `json:"valid_from,omitempty"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
	RequiredRank int        `json:"required_rank"`
}

// InstrumentView is an instrument as presented to a requester
type InstrumentView struct {
	Id            string          `json:"id"`
	OwnerId       string          `json:"owner_id"`
	Kind          InstrumentKind  `json:"kind"`
	FaceValue     Money           `json:"face_value"`
	SourceLabel   string          `json:"source_label"`
	ValidFrom     *time.Time      `json:"valid_from,omitempty"`
	ValidUntil    *time.Time      `json:"valid_until,omitempty"`
	State         InstrumentState `json:"state"`
	Visibility    Visibility      `json:"visibility"`
	Pending       bool            `json:"pending"`
	RedeemedAt    *time.Time      `json:"redeemed_at,omitempty"`
	Channel       string          `json:"channel,omitempty"`
	Code          string          `json:"code,omitempty"`
	ScanPayload   string          `json:"scan_payload,omitempty"`
	TimeRemaining time.Duration   `json:"time_remaining_ns,omitempty"`
	IssuedAt      time.Time       `json:"issued_at"`
}

// SettlementResult summarises a completed settlement
type SettlementResult struct {
	PoolId               string              `json:"pool_id"`
	Transactions         []LedgerTransaction `json:"transactions"`
	Distributed          decimal.Decimal     `json:"distributed"`
	Retained             decimal.Decimal     `json:"retained"`
	SettledInstrumentIds []string            `json:"settled_instrument_ids"`
	MilestoneReachedAt   time.Time           `json:"milestone_reached_at"`
}

// BalanceRecord is a balance as returned to callers
type BalanceRecord struct {
	AccountId string          `json:"account_id"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
}

// TransactionRecord represents a transaction in an account's history
type TransactionRecord struct {
	Id                  string          `json:"id"`
	Reason              LedgerReason    `json:"reason"`
	Currency            string          `json:"currency"`
	Amount              decimal.Decimal `json:"amount"`
	RelatedInstrumentId string          `json:"related_instrument_id,omitempty"`
	RelatedPoolId       string          `json:"related_pool_id,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}
