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
	"fmt"

	"github.com/shopspring/decimal"
)

// InstrumentKind is the closed set of reward instrument variants
type InstrumentKind string

const (
	KindCoupon        InstrumentKind = "coupon"
	KindTicket        InstrumentKind = "ticket"
	KindContentShare  InstrumentKind = "content_share"
	KindForecastStake InstrumentKind = "forecast_stake"
)

func (k InstrumentKind) Valid() bool {
	switch k {
	case KindCoupon, KindTicket, KindContentShare, KindForecastStake:
		return true
	}
	return false
}

// PoolBacked reports whether instruments of this kind are created by pool
// acquisitions rather than direct issuance.
func (k InstrumentKind) PoolBacked() bool {
	switch k {
	case KindContentShare, KindForecastStake:
		return true
	case KindCoupon, KindTicket:
		return false
	}
	return false
}

// InstrumentState is the lifecycle state of an instrument
type InstrumentState string

const (
	StateIssued   InstrumentState = "issued"
	StateRedeemed InstrumentState = "redeemed"
	StateExpired  InstrumentState = "expired"
	StateVoided   InstrumentState = "voided"
)

// Terminal reports whether no transition can leave s.
func (s InstrumentState) Terminal() bool {
	switch s {
	case StateRedeemed, StateExpired, StateVoided:
		return true
	case StateIssued:
		return false
	}
	return false
}

// PoolKind selects the payout rule applied at settlement
type PoolKind string

const (
	PoolContentShare PoolKind = "content_share"
	PoolForecast     PoolKind = "forecast"
)

func (k PoolKind) Valid() bool {
	return k == PoolContentShare || k == PoolForecast
}

// InstrumentKind returns the kind of instrument granted per acquisition.
func (k PoolKind) InstrumentKind() InstrumentKind {
	if k == PoolForecast {
		return KindForecastStake
	}
	return KindContentShare
}

// ForecastSide is the predicted side of a forecast stake
type ForecastSide string

const (
	SideNone  ForecastSide = ""
	SideOver  ForecastSide = "over"
	SideUnder ForecastSide = "under"
)

func (s ForecastSide) Valid() bool {
	return s == SideOver || s == SideUnder
}

// LedgerReason is the business reason for a ledger transaction
type LedgerReason string

const (
	ReasonIssue  LedgerReason = "issue"
	ReasonRedeem LedgerReason = "redeem"
	ReasonSettle LedgerReason = "settle"
	ReasonVoid   LedgerReason = "void"
	ReasonExpire LedgerReason = "expire"
	ReasonStake  LedgerReason = "stake"
)

// Money is an amount in a unit from the unit catalog (USD, GEMS, PERCENT_OFF...)
type Money struct {
	Amount decimal.Decimal `json:"amount"`
	Unit   string          `json:"unit"`
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Amount.String(), m.Unit)
}

// UnitConfig describes one unit in the catalog
type UnitConfig struct {
	Symbol    string `yaml:"symbol"`
	Precision int32  `yaml:"precision"`
	Monetary  bool   `yaml:"monetary"`
}
