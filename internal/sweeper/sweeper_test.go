package sweeper

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"reward-ledger-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	mu        sync.Mutex
	remaining int
	calls     int
	failAfter int
}

func (f *fakeExpirer) ExpireDue(_ context.Context, limit int) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.failAfter > 0 && f.calls > f.failAfter {
		return nil, errors.New("database is locked")
	}

	n := min(limit, f.remaining)
	f.remaining -= n
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("inst-%d-%d", f.calls, i)
	}
	return ids, nil
}

func (f *fakeExpirer) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remaining
}

func TestSweepDrainsInBatches(t *testing.T) {
	expirer := &fakeExpirer{remaining: 25}
	s, err := New(expirer, models.SweeperConfig{BatchSize: 10})
	require.NoError(t, err)

	total, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, total)
	assert.Equal(t, 3, expirer.calls)
}

func TestSweepStopsAfterExactBatch(t *testing.T) {
	expirer := &fakeExpirer{remaining: 20}
	s, err := New(expirer, models.SweeperConfig{BatchSize: 10})
	require.NoError(t, err)

	total, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 20, total)
	assert.Equal(t, 3, expirer.calls)
}

func TestSweepReportsPartialProgress(t *testing.T) {
	expirer := &fakeExpirer{remaining: 50, failAfter: 2}
	s, err := New(expirer, models.SweeperConfig{BatchSize: 10})
	require.NoError(t, err)

	total, err := s.Sweep(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 20, total)
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(&fakeExpirer{}, models.SweeperConfig{Schedule: "every now and then"})
	assert.Error(t, err)

	s, err := New(&fakeExpirer{}, models.SweeperConfig{})
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, s.batchSize)
}

func TestStartRunsOnSchedule(t *testing.T) {
	expirer := &fakeExpirer{remaining: 3}
	s, err := New(expirer, models.SweeperConfig{Schedule: "@every 1s", BatchSize: 10})
	require.NoError(t, err)

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return expirer.Remaining() == 0 }, 5*time.Second, 50*time.Millisecond)
}
