package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/polyphonica/booking/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExpirer struct {
	mu      sync.Mutex
	calls   int
	limit   int
	results []*service.SweepResult
	err     error
}

func (f *fakeExpirer) ExpireStaleHolds(ctx context.Context, limit int) (*service.SweepResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	if len(f.results) == 0 {
		return &service.SweepResult{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

func (f *fakeExpirer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestDefaultHoldSweeperConfig(t *testing.T) {
	config := DefaultHoldSweeperConfig()

	if config.ScanInterval != 5*time.Minute {
		t.Errorf("ScanInterval = %v, want %v", config.ScanInterval, 5*time.Minute)
	}
	if config.BatchSize != 100 {
		t.Errorf("BatchSize = %v, want %v", config.BatchSize, 100)
	}
}

func TestHoldSweeper_AccumulatesStats(t *testing.T) {
	expirer := &fakeExpirer{results: []*service.SweepResult{
		{Cancelled: 2, Paid: 1},
		{Cancelled: 1, Skipped: 1},
	}}
	w := NewHoldSweeper(expirer, &HoldSweeperConfig{BatchSize: 25})

	w.sweep(context.Background())
	w.sweep(context.Background())

	stats := w.GetStats()
	assert.Equal(t, 3, stats.TotalCancelled)
	assert.Equal(t, 1, stats.TotalPaid)
	assert.Equal(t, service.SweepResult{Cancelled: 1, Skipped: 1}, stats.LastResult)
	assert.False(t, stats.LastScanTime.IsZero())
	assert.Equal(t, 25, expirer.limit)
}

func TestHoldSweeper_ErrorKeepsTotals(t *testing.T) {
	expirer := &fakeExpirer{results: []*service.SweepResult{{Cancelled: 4}}}
	w := NewHoldSweeper(expirer, nil)

	w.sweep(context.Background())
	expirer.err = errors.New("database unavailable")
	w.sweep(context.Background())

	assert.Equal(t, 4, w.GetStats().TotalCancelled)
}

func TestHoldSweeper_SweepsOnStart(t *testing.T) {
	expirer := &fakeExpirer{}
	w := NewHoldSweeper(expirer, &HoldSweeperConfig{ScanInterval: time.Hour, BatchSize: 10})

	require.NoError(t, w.Start(context.Background()))
	assert.Eventually(t, func() bool { return expirer.callCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, w.GetStats().IsRunning)

	w.Stop()
	assert.False(t, w.GetStats().IsRunning)
}
