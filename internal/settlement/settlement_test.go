package settlement

import (
	"errors"
	"testing"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func share(id string, units string) Participant {
	return Participant{EntryId: id, OwnerId: "owner-" + id, Units: d(units)}
}

func stake(id string, units string, side models.ForecastSide, odds string) Participant {
	return Participant{EntryId: id, OwnerId: "owner-" + id, Units: d(units), Side: side, Odds: d(odds)}
}

func TestContentShareProportional(t *testing.T) {
	// 1000 units, pool 5000, A holds 100 -> 500
	participants := []Participant{share("A", "100"), share("B", "650"), share("C", "250")}
	plan, err := ContentShare(d("5000"), d("1000"), 0, participants)
	require.NoError(t, err)

	assert.True(t, plan.Payouts[0].Amount.Equal(d("500")), "A got %s", plan.Payouts[0].Amount)
	assert.True(t, plan.Payouts[1].Amount.Equal(d("3250")))
	assert.True(t, plan.Payouts[2].Amount.Equal(d("1250")))
	assert.True(t, plan.Distributed.Equal(d("5000")))
	assert.True(t, plan.Retained.IsZero())
}

func TestContentShareRoundsDownAndRetainsRemainder(t *testing.T) {
	participants := []Participant{share("A", "1"), share("B", "1"), share("C", "1")}
	plan, err := ContentShare(d("100"), d("3"), 0, participants)
	require.NoError(t, err)

	for _, p := range plan.Payouts {
		assert.True(t, p.Amount.Equal(d("33")), "got %s", p.Amount)
	}
	assert.True(t, plan.Distributed.Equal(d("99")))
	assert.True(t, plan.Retained.Equal(d("1")))
}

func TestContentShareRespectsPrecision(t *testing.T) {
	participants := []Participant{share("A", "1"), share("B", "2")}
	plan, err := ContentShare(d("10.00"), d("3"), 2, participants)
	require.NoError(t, err)

	assert.True(t, plan.Payouts[0].Amount.Equal(d("3.33")))
	assert.True(t, plan.Payouts[1].Amount.Equal(d("6.66")))
	assert.True(t, plan.Retained.Equal(d("0.01")))
}

func TestContentShareConservation(t *testing.T) {
	units := []string{"7", "13", "29", "31", "1", "3"}
	total := decimal.Zero
	var participants []Participant
	for i, u := range units {
		participants = append(participants, share(string(rune('A'+i)), u))
		total = total.Add(d(u))
	}
	for _, pool := range []string{"1", "97", "1000", "123457", "0"} {
		plan, err := ContentShare(d(pool), total, 0, participants)
		require.NoError(t, err)
		assert.True(t, plan.Distributed.LessThanOrEqual(d(pool)), "pool %s distributed %s", pool, plan.Distributed)
		assert.True(t, plan.Distributed.Add(plan.Retained).Equal(d(pool)))
	}
}

func TestContentShareRejectsUnitMismatch(t *testing.T) {
	_, err := ContentShare(d("100"), d("10"), 0, []Participant{share("A", "5")})
	assert.True(t, errors.Is(err, store.ErrLedgerInvariant), "got %v", err)
}

func TestContentShareRejectsNonPositiveUnits(t *testing.T) {
	_, err := ContentShare(d("100"), d("0"), 0, []Participant{share("A", "0")})
	assert.True(t, errors.Is(err, store.ErrInvalidValue), "got %v", err)
}

func TestContentShareOverflowRejectsWholePlan(t *testing.T) {
	participants := []Participant{share("A", "1"), share("B", "1")}
	_, err := ContentShare(d("1e30"), d("2"), 0, participants)
	assert.True(t, errors.Is(err, store.ErrInvalidValue), "got %v", err)
}

func TestForecastWinnersSplitByStakeTimesOdds(t *testing.T) {
	participants := []Participant{
		stake("A", "100", models.SideOver, "2"),
		stake("B", "100", models.SideOver, "1"),
		stake("C", "100", models.SideUnder, "1.5"),
	}
	// pool = all stakes
	plan, err := Forecast(d("300"), d("50"), d("75"), 0, participants)
	require.NoError(t, err)

	assert.True(t, plan.Payouts[0].Amount.Equal(d("200")), "A got %s", plan.Payouts[0].Amount)
	assert.True(t, plan.Payouts[1].Amount.Equal(d("100")), "B got %s", plan.Payouts[1].Amount)
	assert.True(t, plan.Payouts[2].Amount.IsZero(), "loser got %s", plan.Payouts[2].Amount)
	assert.True(t, plan.Retained.IsZero())
}

func TestForecastUnderWins(t *testing.T) {
	participants := []Participant{
		stake("A", "40", models.SideOver, "1"),
		stake("B", "60", models.SideUnder, "1"),
	}
	plan, err := Forecast(d("100"), d("10"), d("3"), 0, participants)
	require.NoError(t, err)
	assert.True(t, plan.Payouts[0].Amount.IsZero())
	assert.True(t, plan.Payouts[1].Amount.Equal(d("100")))
}

func TestForecastPushRefundsStakes(t *testing.T) {
	participants := []Participant{
		stake("A", "40", models.SideOver, "1"),
		stake("B", "60", models.SideUnder, "3"),
	}
	plan, err := Forecast(d("110"), d("10"), d("10"), 0, participants)
	require.NoError(t, err)
	assert.True(t, plan.Payouts[0].Amount.Equal(d("40")))
	assert.True(t, plan.Payouts[1].Amount.Equal(d("60")))
	assert.True(t, plan.Retained.Equal(d("10")))
}

func TestForecastEmptyWinningSideRefunds(t *testing.T) {
	participants := []Participant{stake("A", "25", models.SideUnder, "1")}
	plan, err := Forecast(d("25"), d("10"), d("11"), 0, participants)
	require.NoError(t, err)
	assert.True(t, plan.Payouts[0].Amount.Equal(d("25")))
}

func TestForecastRejectsStakesAbovePool(t *testing.T) {
	participants := []Participant{stake("A", "25", models.SideUnder, "1")}
	_, err := Forecast(d("10"), d("10"), d("1"), 0, participants)
	assert.True(t, errors.Is(err, store.ErrLedgerInvariant), "got %v", err)
}

func TestForecastRejectsMissingSide(t *testing.T) {
	participants := []Participant{stake("A", "25", models.SideNone, "1")}
	_, err := Forecast(d("25"), d("10"), d("1"), 0, participants)
	assert.True(t, errors.Is(err, store.ErrInvalidValue), "got %v", err)
}

func TestFromEntries(t *testing.T) {
	entries := []models.PoolEntry{{Id: "e1", OwnerId: "u1", InstrumentId: "i1", Units: d("5"), Side: models.SideOver, Odds: d("1.2")}}
	p := FromEntries(entries)
	require.Len(t, p, 1)
	assert.Equal(t, "u1", p[0].OwnerId)
	assert.Equal(t, "i1", p[0].InstrumentId)
	assert.True(t, p[0].Odds.Equal(d("1.2")))
}
