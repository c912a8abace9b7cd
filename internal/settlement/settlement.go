// Package settlement computes pool payouts. It performs no I/O; the database
// layer persists a Plan inside a single transaction.
package settlement

import (
	"fmt"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

// Participant is one pool entry taking part in settlement
type Participant struct {
	EntryId      string
	OwnerId      string
	InstrumentId string
	Units        decimal.Decimal
	Side         models.ForecastSide
	Odds         decimal.Decimal
}

// Payout is the amount owed to one participant
type Payout struct {
	Participant
	Amount decimal.Decimal
}

// Plan is the complete outcome of a settlement
type Plan struct {
	Payouts     []Payout
	Distributed decimal.Decimal
	Retained    decimal.Decimal
}

// FromEntries converts pool entries into participants.
func FromEntries(entries []models.PoolEntry) []Participant {
	participants := make([]Participant, len(entries))
	for i, e := range entries {
		participants[i] = Participant{
			EntryId:      e.Id,
			OwnerId:      e.OwnerId,
			InstrumentId: e.InstrumentId,
			Units:        e.Units,
			Side:         e.Side,
			Odds:         e.Odds,
		}
	}
	return participants
}

// ContentShare splits poolValue proportionally to units. Each payout is
// rounded down to precision; the remainder stays in the pool.
func ContentShare(poolValue, totalUnits decimal.Decimal, precision int32, participants []Participant) (*Plan, error) {
	if poolValue.IsNegative() {
		return nil, fmt.Errorf("%w: negative pool value %s", store.ErrInvalidValue, poolValue)
	}

	sum := decimal.Zero
	for _, p := range participants {
		if !p.Units.IsPositive() {
			return nil, fmt.Errorf("%w: entry %s has non-positive units %s", store.ErrInvalidValue, p.EntryId, p.Units)
		}
		sum = sum.Add(p.Units)
	}
	if !sum.Equal(totalUnits) {
		return nil, fmt.Errorf("%w: entries sum to %s units but pool records %s", store.ErrLedgerInvariant, sum, totalUnits)
	}

	weights := make([]decimal.Decimal, len(participants))
	for i, p := range participants {
		weights[i] = p.Units
	}
	return split(poolValue, precision, participants, weights, sum)
}

// Forecast settles an over/under forecast against line. Winners split
// poolValue weighted by stake × odds. If the metric lands on the line or
// nobody picked the winning side, every stake is refunded.
func Forecast(poolValue, line, metric decimal.Decimal, precision int32, participants []Participant) (*Plan, error) {
	if poolValue.IsNegative() {
		return nil, fmt.Errorf("%w: negative pool value %s", store.ErrInvalidValue, poolValue)
	}

	stakes := decimal.Zero
	for _, p := range participants {
		if !p.Units.IsPositive() {
			return nil, fmt.Errorf("%w: entry %s has non-positive stake %s", store.ErrInvalidValue, p.EntryId, p.Units)
		}
		if !p.Side.Valid() {
			return nil, fmt.Errorf("%w: entry %s has no side", store.ErrInvalidValue, p.EntryId)
		}
		if !p.Odds.IsPositive() {
			return nil, fmt.Errorf("%w: entry %s has non-positive odds %s", store.ErrInvalidValue, p.EntryId, p.Odds)
		}
		stakes = stakes.Add(p.Units)
	}
	if stakes.GreaterThan(poolValue) {
		return nil, fmt.Errorf("%w: stakes %s exceed pool value %s", store.ErrLedgerInvariant, stakes, poolValue)
	}

	var winner models.ForecastSide
	switch metric.Cmp(line) {
	case 1:
		winner = models.SideOver
	case -1:
		winner = models.SideUnder
	}

	weights := make([]decimal.Decimal, len(participants))
	total := decimal.Zero
	for i, p := range participants {
		if p.Side == winner {
			weights[i] = p.Units.Mul(p.Odds)
			total = total.Add(weights[i])
		} else {
			weights[i] = decimal.Zero
		}
	}

	if winner == models.SideNone || total.IsZero() {
		return refund(poolValue, precision, participants)
	}
	return split(poolValue, precision, participants, weights, total)
}

func split(poolValue decimal.Decimal, precision int32, participants []Participant, weights []decimal.Decimal, total decimal.Decimal) (*Plan, error) {
	plan := &Plan{Payouts: make([]Payout, 0, len(participants)), Distributed: decimal.Zero}
	for i, p := range participants {
		amount := decimal.Zero
		if total.IsPositive() && weights[i].IsPositive() {
			// QuoRem truncates toward zero at precision, which is a floor for
			// positive operands and never rounds up past the exact share.
			amount, _ = poolValue.Mul(weights[i]).QuoRem(total, precision)
		}
		if err := checkRepresentable(amount, precision); err != nil {
			return nil, fmt.Errorf("entry %s: %w", p.EntryId, err)
		}
		plan.Payouts = append(plan.Payouts, Payout{Participant: p, Amount: amount})
		plan.Distributed = plan.Distributed.Add(amount)
	}
	return finish(plan, poolValue)
}

func refund(poolValue decimal.Decimal, precision int32, participants []Participant) (*Plan, error) {
	plan := &Plan{Payouts: make([]Payout, 0, len(participants)), Distributed: decimal.Zero}
	for _, p := range participants {
		amount := p.Units.Truncate(precision)
		if err := checkRepresentable(amount, precision); err != nil {
			return nil, fmt.Errorf("entry %s: %w", p.EntryId, err)
		}
		plan.Payouts = append(plan.Payouts, Payout{Participant: p, Amount: amount})
		plan.Distributed = plan.Distributed.Add(amount)
	}
	return finish(plan, poolValue)
}

func finish(plan *Plan, poolValue decimal.Decimal) (*Plan, error) {
	if plan.Distributed.GreaterThan(poolValue) {
		return nil, fmt.Errorf("%w: distributed %s exceeds pool value %s", store.ErrLedgerInvariant, plan.Distributed, poolValue)
	}
	plan.Retained = poolValue.Sub(plan.Distributed)
	return plan, nil
}

// checkRepresentable rejects payouts that do not fit in int64 smallest
// units; downstream ledgers store amounts that way.
func checkRepresentable(amount decimal.Decimal, precision int32) error {
	if !amount.Shift(precision).BigInt().IsInt64() {
		return fmt.Errorf("%w: payout %s overflows smallest-unit range", store.ErrInvalidValue, amount)
	}
	return nil
}
