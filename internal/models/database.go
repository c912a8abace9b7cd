package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument is one grant of value to one user (coupon, ticket, share, stake)
type Instrument struct {
	Id              string           `db:"id"`
	OwnerId         string           `db:"owner_id"`
	Kind            InstrumentKind   `db:"kind"`
	FaceValue       Money            `db:"-"`
	SourceLabel     string           `db:"source_label"`
	ValidFrom       *time.Time       `db:"valid_from"`
	ValidUntil      *time.Time       `db:"valid_until"`
	RequiredRank    int              `db:"required_rank"`
	PoolId          string           `db:"pool_id"`
	State           InstrumentState  `db:"state"`
	RedeemedAt      *time.Time       `db:"redeemed_at"`
	RedemptionProof *RedemptionProof `db:"-"`
	Version         int64            `db:"version"`
	IssuedAt        time.Time        `db:"issued_at"`
}

// RedemptionProof records what was presented when an instrument was redeemed
type RedemptionProof struct {
	Code    string `json:"code"`
	Channel string `json:"channel"`
}

// EffectiveState returns the state a reader should see at now. An issued
// instrument past its validUntil reads as expired before the transition is
// persisted.
func (i *Instrument) EffectiveState(now time.Time) InstrumentState {
	if i.State == StateIssued && i.ValidUntil != nil && now.After(*i.ValidUntil) {
		return StateExpired
	}
	return i.State
}

// WithinWindow reports whether now falls inside [validFrom, validUntil].
func (i *Instrument) WithinWindow(now time.Time) bool {
	if i.ValidFrom != nil && now.Before(*i.ValidFrom) {
		return false
	}
	if i.ValidUntil != nil && now.After(*i.ValidUntil) {
		return false
	}
	return true
}

// Pool is a shared reward container tied to a piece of content or a forecast
type Pool struct {
	Id                 string          `db:"id"`
	SubjectId          string          `db:"subject_id"`
	Kind               PoolKind        `db:"kind"`
	TotalUnits         decimal.Decimal `db:"total_units"`
	PoolValue          Money           `db:"-"`
	MilestoneTarget    decimal.Decimal `db:"milestone_target"`
	MilestoneReachedAt *time.Time      `db:"milestone_reached_at"`
	Settled            bool            `db:"settled"`
	Version            int64           `db:"version"`
	CreatedAt          time.Time       `db:"created_at"`
}

// PoolEntry is one acquisition of units (shares or a stake) against a pool
type PoolEntry struct {
	Id           string          `db:"id"`
	PoolId       string          `db:"pool_id"`
	OwnerId      string          `db:"owner_id"`
	InstrumentId string          `db:"instrument_id"`
	Units        decimal.Decimal `db:"units"`
	Side         ForecastSide    `db:"side"`
	Odds         decimal.Decimal `db:"odds"`
	CreatedAt    time.Time       `db:"created_at"`
}

// AccountBalance represents current balance state (hot data)
type AccountBalance struct {
	Id                string          `db:"id"`
	AccountId         string          `db:"account_id"`
	Currency          string          `db:"currency"`
	Balance           decimal.Decimal `db:"balance"`
	LastTransactionId string          `db:"last_transaction_id"`
	Version           int64           `db:"version"`
	UpdatedAt         time.Time       `db:"updated_at"`
}

// LedgerTransaction is an immutable balance change (cold data)
type LedgerTransaction struct {
	Id                  string          `db:"id"`
	AccountId           string          `db:"account_id"`
	Amount              decimal.Decimal `db:"amount"`
	Currency            string          `db:"currency"`
	Reason              LedgerReason    `db:"reason"`
	RelatedInstrumentId string          `db:"related_instrument_id"`
	RelatedPoolId       string          `db:"related_pool_id"`
	BalanceBefore       decimal.Decimal `db:"balance_before"`
	BalanceAfter        decimal.Decimal `db:"balance_after"`
	CreatedAt           time.Time       `db:"created_at"`
}
