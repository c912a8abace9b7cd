package api

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"reward-ledger-go/internal/database"
	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"
	"reward-ledger-go/internal/units"
	"reward-ledger-go/internal/voucher"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "api-test-secret"

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	service *RewardService
	db      *database.Service
	clock   *testClock
	coder   *voucher.Coder
}

// setupTestEnv builds a RewardService over a temp-file database. wrap, when
// set, decorates the store seen by the service.
func setupTestEnv(t *testing.T, cfg models.RedemptionConfig, wrap func(store.RewardStore) store.RewardStore) *testEnv {
	t.Helper()

	coder := voucher.NewCoder(testSecret)
	catalog := units.Default()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "rewards.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	}, catalog, coder)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	clock := &testClock{now: time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)}
	db.SetClock(clock.Now)

	var st store.RewardStore = db
	if wrap != nil {
		st = wrap(db)
	}

	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = time.Millisecond
	}
	service, err := NewRewardService(st, catalog, coder, cfg, models.CacheConfig{Size: 128})
	require.NoError(t, err)
	service.SetClock(clock.Now)

	return &testEnv{service: service, db: db, clock: clock, coder: coder}
}

func ptr[T any](v T) *T {
	return &v
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// issueJanuaryCoupon issues a 25% coupon valid through January 2025.
func issueJanuaryCoupon(t *testing.T, env *testEnv, owner string) *models.InstrumentView {
	t.Helper()

	view, err := env.service.IssueInstrument(context.Background(), store.IssueParams{
		OwnerId:     owner,
		Kind:        models.KindCoupon,
		FaceValue:   models.Money{Amount: dec("25"), Unit: "PERCENT_OFF"},
		ValidFrom:   ptr(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)),
		ValidUntil:  ptr(time.Date(2025, 1, 31, 23, 59, 59, 0, time.UTC)),
		SourceLabel: "new-year-promo",
	})
	require.NoError(t, err)
	return view
}

// conflictStore fails the first failures redeems with a concurrency conflict.
type conflictStore struct {
	store.RewardStore

	mu       sync.Mutex
	failures int
	calls    int
}

func (c *conflictStore) Redeem(ctx context.Context, params store.RedeemParams) (*models.Instrument, error) {
	c.mu.Lock()
	c.calls++
	fail := c.failures < 0 || c.calls <= c.failures
	c.mu.Unlock()

	if fail {
		return nil, store.ErrConcurrencyConflict
	}
	return c.RewardStore.Redeem(ctx, params)
}

func (c *conflictStore) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// blockingStore holds redeems until release is closed.
type blockingStore struct {
	store.RewardStore

	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) Redeem(ctx context.Context, params store.RedeemParams) (*models.Instrument, error) {
	close(b.entered)
	<-b.release
	return b.RewardStore.Redeem(ctx, params)
}
