package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/units"
	"reward-ledger-go/internal/voucher"

	"github.com/shopspring/decimal"
)

const testSecret = "test-secret"

// testClock is a settable clock shared by one test's service
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func setupTestService(t *testing.T) (*Service, *testClock, func()) {
	t.Helper()

	cfg := models.DatabaseConfig{
		Path:         filepath.Join(t.TempDir(), "rewards.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
		BusyTimeout:  10 * time.Second,
	}

	service, err := NewService(context.Background(), cfg, units.Default(), voucher.NewCoder(testSecret))
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	clock := &testClock{now: date(2025, 1, 15)}
	service.SetClock(clock.Now)

	cleanup := func() {
		service.Close()
	}

	return service, clock, cleanup
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 12, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func money(amount, unit string) models.Money {
	return models.Money{Amount: dec(amount), Unit: unit}
}

func ptr(t time.Time) *time.Time {
	return &t
}
