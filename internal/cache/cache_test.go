package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reward-ledger-go/internal/models"
	"reward-ledger-go/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	items map[string]models.Instrument
	loads atomic.Int32
	delay time.Duration
}

func (f *fakeSource) Get(_ context.Context, id string) (*models.Instrument, error) {
	f.loads.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	inst, ok := f.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &inst, nil
}

func (f *fakeSource) set(inst models.Instrument) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[inst.Id] = inst
}

func TestGetReadsThrough(t *testing.T) {
	src := &fakeSource{items: map[string]models.Instrument{"a": {Id: "a", State: models.StateIssued}}}
	c := New(src, 8, time.Minute)

	first, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	second, err := c.Get(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), src.loads.Load())

	// Callers get copies
	first.State = models.StateVoided
	third, _ := c.Get(context.Background(), "a")
	assert.Equal(t, models.StateIssued, third.State)
}

func TestInvalidateForcesReload(t *testing.T) {
	src := &fakeSource{items: map[string]models.Instrument{"a": {Id: "a", State: models.StateIssued}}}
	c := New(src, 8, time.Minute)

	_, err := c.Get(context.Background(), "a")
	require.NoError(t, err)

	src.set(models.Instrument{Id: "a", State: models.StateRedeemed})
	c.Invalidate("a")

	inst, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.StateRedeemed, inst.State)
	assert.Equal(t, int32(2), src.loads.Load())
}

func TestErrorsAreNotCached(t *testing.T) {
	src := &fakeSource{items: map[string]models.Instrument{}}
	c := New(src, 8, time.Minute)

	_, err := c.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = c.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, int32(2), src.loads.Load())
	assert.Equal(t, 0, c.Len())
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	src := &fakeSource{items: map[string]models.Instrument{"a": {Id: "a"}}, delay: 50 * time.Millisecond}
	c := New(src, 8, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "a")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, src.loads.Load(), int32(10))
}

func TestLoadRacingInvalidationIsDiscarded(t *testing.T) {
	src := &fakeSource{items: map[string]models.Instrument{"a": {Id: "a", State: models.StateIssued}}, delay: 50 * time.Millisecond}
	c := New(src, 8, time.Minute)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.Get(context.Background(), "a")
	}()
	time.Sleep(10 * time.Millisecond)
	c.Invalidate("a")
	<-done

	assert.Equal(t, 0, c.Len())
}

func TestEntriesExpire(t *testing.T) {
	src := &fakeSource{items: map[string]models.Instrument{"a": {Id: "a", State: models.StateIssued}}}
	c := New(src, 8, 50*time.Millisecond)

	_, err := c.Get(context.Background(), "a")
	require.NoError(t, err)

	// Written by another process; nothing here invalidates the entry.
	src.set(models.Instrument{Id: "a", State: models.StateRedeemed})

	inst, err := c.Get(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, models.StateIssued, inst.State)

	require.Eventually(t, func() bool {
		inst, err := c.Get(context.Background(), "a")
		return err == nil && inst.State == models.StateRedeemed
	}, 2*time.Second, 20*time.Millisecond)
}
