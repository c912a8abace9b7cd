package database

import (
	"context"
	"errors"
	"sync"
	"testing"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/shopspring/decimal"
)

func TestSettle_ContentSharePaysProportionally(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	pool, err := service.CreatePool(ctx, store.CreatePoolParams{
		SubjectId:       "video-42",
		Kind:            models.PoolContentShare,
		PoolValue:       money("5000", "GEMS"),
		MilestoneTarget: dec("1000000"),
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	a, err := service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: "alice", Units: dec("100")})
	if err != nil {
		t.Fatalf("AcquireUnits failed: %v", err)
	}
	if _, err := service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: "bob", Units: dec("900")}); err != nil {
		t.Fatalf("AcquireUnits failed: %v", err)
	}

	stored, err := service.GetPool(ctx, pool.Id)
	if err != nil {
		t.Fatalf("GetPool failed: %v", err)
	}
	if !stored.TotalUnits.Equal(dec("1000")) {
		t.Fatalf("Expected 1000 total units, got %s", stored.TotalUnits)
	}

	result, err := service.Settle(ctx, pool.Id, dec("1000000"))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("Expected 2 payout transactions, got %d", len(result.Transactions))
	}
	if !result.Distributed.Equal(dec("5000")) || !result.Retained.IsZero() {
		t.Errorf("Unexpected totals: distributed %s retained %s", result.Distributed, result.Retained)
	}

	aliceBalance, _ := service.BalanceOf(ctx, "alice", "GEMS")
	if !aliceBalance.Equal(dec("500")) {
		t.Errorf("Expected alice payout 500, got %s", aliceBalance)
	}
	bobBalance, _ := service.BalanceOf(ctx, "bob", "GEMS")
	if !bobBalance.Equal(dec("4500")) {
		t.Errorf("Expected bob payout 4500, got %s", bobBalance)
	}

	share, err := service.Get(ctx, a.InstrumentId)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if share.Kind != models.KindContentShare || share.State != models.StateRedeemed {
		t.Errorf("Expected settled content share, got %s/%s", share.Kind, share.State)
	}
	if share.RedemptionProof == nil || share.RedemptionProof.Channel != "settlement" {
		t.Errorf("Expected settlement proof, got %+v", share.RedemptionProof)
	}

	if _, err := service.Settle(ctx, pool.Id, dec("1000000")); !errors.Is(err, store.ErrAlreadySettled) {
		t.Errorf("Expected ErrAlreadySettled, got %v", err)
	}
	_, err = service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: "carol", Units: dec("1")})
	if !errors.Is(err, store.ErrPoolSettled) {
		t.Errorf("Expected ErrPoolSettled, got %v", err)
	}
}

func TestSettle_ConcurrentCallsSettleOnce(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	pool, err := service.CreatePool(ctx, store.CreatePoolParams{
		SubjectId:       "video-99",
		Kind:            models.PoolContentShare,
		PoolValue:       money("900", "GEMS"),
		MilestoneTarget: dec("10"),
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}
	owners := []string{"alice", "bob", "carol"}
	for _, owner := range owners {
		if _, err := service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: owner, Units: dec("1")}); err != nil {
			t.Fatalf("AcquireUnits failed: %v", err)
		}
	}

	const attempts = 12
	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0
	var unexpected []error

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Settle(ctx, pool.Id, dec("10"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, store.ErrAlreadySettled), errors.Is(err, store.ErrConcurrencyConflict):
			default:
				unexpected = append(unexpected, err)
			}
		}()
	}
	wg.Wait()

	if len(unexpected) > 0 {
		t.Fatalf("Unexpected errors: %v", unexpected)
	}
	if successes != 1 {
		t.Fatalf("Expected exactly 1 successful settlement, got %d", successes)
	}

	for _, owner := range owners {
		history, err := service.GetTransactionHistory(ctx, owner, "GEMS", 100, 0)
		if err != nil {
			t.Fatalf("GetTransactionHistory failed: %v", err)
		}
		settles := 0
		for _, tx := range history {
			if tx.Reason == models.ReasonSettle {
				settles++
			}
		}
		if settles != 1 {
			t.Errorf("Expected exactly 1 settle entry for %s, got %d", owner, settles)
		}
		balance, _ := service.BalanceOf(ctx, owner, "GEMS")
		if !balance.Equal(dec("300")) {
			t.Errorf("Expected %s paid 300 once, got %s", owner, balance)
		}
	}

	if _, err := service.Settle(ctx, pool.Id, dec("10")); !errors.Is(err, store.ErrAlreadySettled) {
		t.Errorf("Expected ErrAlreadySettled after the race, got %v", err)
	}
}

func TestSettle_RetainsRoundingRemainder(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	pool, err := service.CreatePool(ctx, store.CreatePoolParams{
		SubjectId: "post-7",
		Kind:      models.PoolContentShare,
		PoolValue: money("100", "GEMS"),
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}
	for _, owner := range []string{"a", "b", "c"} {
		if _, err := service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: owner, Units: dec("1")}); err != nil {
			t.Fatalf("AcquireUnits failed: %v", err)
		}
	}

	result, err := service.Settle(ctx, pool.Id, decimal.Zero)
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if !result.Distributed.Equal(dec("99")) || !result.Retained.Equal(dec("1")) {
		t.Errorf("Expected 99 distributed and 1 retained, got %s and %s", result.Distributed, result.Retained)
	}
	if result.Distributed.GreaterThan(pool.PoolValue.Amount) {
		t.Errorf("Distributed %s exceeds pool value", result.Distributed)
	}
}

func TestSettle_MilestoneNotReached(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	pool, err := service.CreatePool(ctx, store.CreatePoolParams{
		SubjectId:       "video-1",
		Kind:            models.PoolContentShare,
		PoolValue:       money("10", "USD"),
		MilestoneTarget: dec("500"),
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	if _, err := service.Settle(ctx, pool.Id, dec("499")); !errors.Is(err, store.ErrMilestoneNotReached) {
		t.Fatalf("Expected ErrMilestoneNotReached, got %v", err)
	}

	stored, _ := service.GetPool(ctx, pool.Id)
	if stored.Settled {
		t.Error("Pool must stay open after a rejected settlement")
	}
}

func TestForecast_StakeAndSettle(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	for _, owner := range []string{"alice", "bob"} {
		if _, err := service.AppendTransaction(ctx, store.AppendParams{
			AccountId: owner, Amount: dec("100"), Currency: "GEMS", Reason: models.ReasonIssue,
		}); err != nil {
			t.Fatalf("AppendTransaction failed: %v", err)
		}
	}

	pool, err := service.CreatePool(ctx, store.CreatePoolParams{
		SubjectId:       "match-9-goals",
		Kind:            models.PoolForecast,
		PoolValue:       money("0", "GEMS"),
		MilestoneTarget: dec("2.5"),
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	if _, err := service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: "alice",
		Units: dec("100"), Side: models.SideOver, Odds: dec("2")}); err != nil {
		t.Fatalf("AcquireUnits failed: %v", err)
	}
	if _, err := service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: "bob",
		Units: dec("100"), Side: models.SideUnder, Odds: dec("1")}); err != nil {
		t.Fatalf("AcquireUnits failed: %v", err)
	}

	_, err = service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: "bob",
		Units: dec("1"), Side: models.SideUnder, Odds: dec("1")})
	if !errors.Is(err, store.ErrInsufficientBalance) {
		t.Fatalf("Expected ErrInsufficientBalance, got %v", err)
	}

	stored, _ := service.GetPool(ctx, pool.Id)
	if !stored.PoolValue.Amount.Equal(dec("200")) {
		t.Fatalf("Expected stakes to fund the pool to 200, got %s", stored.PoolValue.Amount)
	}

	result, err := service.Settle(ctx, pool.Id, dec("3"))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if len(result.Transactions) != 1 {
		t.Fatalf("Expected a single winner payout, got %d", len(result.Transactions))
	}

	aliceBalance, _ := service.BalanceOf(ctx, "alice", "GEMS")
	bobBalance, _ := service.BalanceOf(ctx, "bob", "GEMS")
	if !aliceBalance.Equal(dec("200")) || !bobBalance.IsZero() {
		t.Errorf("Expected alice 200 and bob 0, got %s and %s", aliceBalance, bobBalance)
	}
	if total := aliceBalance.Add(bobBalance); !total.Equal(dec("200")) {
		t.Errorf("Forecast must be zero-sum: balances total %s, staked 200", total)
	}
}

func TestForecast_PushRefundsStakes(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := service.AppendTransaction(ctx, store.AppendParams{
		AccountId: "alice", Amount: dec("40"), Currency: "GEMS", Reason: models.ReasonIssue,
	}); err != nil {
		t.Fatalf("AppendTransaction failed: %v", err)
	}
	pool, err := service.CreatePool(ctx, store.CreatePoolParams{
		SubjectId: "race-1", Kind: models.PoolForecast, PoolValue: money("0", "GEMS"), MilestoneTarget: dec("5"),
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}
	if _, err := service.AcquireUnits(ctx, store.AcquireParams{PoolId: pool.Id, OwnerId: "alice",
		Units: dec("40"), Side: models.SideOver, Odds: dec("1.5")}); err != nil {
		t.Fatalf("AcquireUnits failed: %v", err)
	}

	result, err := service.Settle(ctx, pool.Id, dec("5"))
	if err != nil {
		t.Fatalf("Settle failed: %v", err)
	}
	if !result.Distributed.Equal(dec("40")) || !result.Retained.IsZero() {
		t.Errorf("Expected full refund of 40, got %s distributed and %s retained", result.Distributed, result.Retained)
	}
	balance, _ := service.BalanceOf(ctx, "alice", "GEMS")
	if !balance.Equal(dec("40")) {
		t.Errorf("Expected stake refunded, got %s", balance)
	}
}

func TestAcquireUnits_Validation(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()
	ctx := context.Background()

	forecast, err := service.CreatePool(ctx, store.CreatePoolParams{
		SubjectId: "f", Kind: models.PoolForecast, PoolValue: money("0", "GEMS"), MilestoneTarget: dec("1"),
	})
	if err != nil {
		t.Fatalf("CreatePool failed: %v", err)
	}

	tests := []struct {
		name   string
		params store.AcquireParams
		want   error
	}{
		{"unknown pool", store.AcquireParams{PoolId: "nope", OwnerId: "u", Units: dec("1")}, store.ErrNotFound},
		{"zero units", store.AcquireParams{PoolId: forecast.Id, OwnerId: "u", Units: decimal.Zero}, store.ErrInvalidValue},
		{"missing side", store.AcquireParams{PoolId: forecast.Id, OwnerId: "u", Units: dec("1"), Odds: dec("1")}, store.ErrInvalidValue},
		{"zero odds", store.AcquireParams{PoolId: forecast.Id, OwnerId: "u", Units: dec("1"), Side: models.SideOver}, store.ErrInvalidValue},
		{"fractional gems", store.AcquireParams{PoolId: forecast.Id, OwnerId: "u", Units: dec("0.5"), Side: models.SideOver, Odds: dec("1")}, store.ErrInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.AcquireUnits(ctx, tt.params); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestCreatePool_Validation(t *testing.T) {
	service, _, cleanup := setupTestService(t)
	defer cleanup()

	tests := []struct {
		name   string
		params store.CreatePoolParams
	}{
		{"non-monetary unit", store.CreatePoolParams{SubjectId: "s", Kind: models.PoolContentShare, PoolValue: money("5", "PERCENT_OFF")}},
		{"empty content pool", store.CreatePoolParams{SubjectId: "s", Kind: models.PoolContentShare, PoolValue: money("0", "USD")}},
		{"unknown kind", store.CreatePoolParams{SubjectId: "s", Kind: "lottery", PoolValue: money("5", "USD")}},
		{"missing subject", store.CreatePoolParams{Kind: models.PoolForecast, PoolValue: money("5", "USD")}},
		{"seeded forecast pool", store.CreatePoolParams{SubjectId: "s", Kind: models.PoolForecast, PoolValue: money("1000", "GEMS"), MilestoneTarget: dec("10")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.CreatePool(context.Background(), tt.params); !errors.Is(err, store.ErrInvalidValue) {
				t.Errorf("Expected ErrInvalidValue, got %v", err)
			}
		})
	}
}
