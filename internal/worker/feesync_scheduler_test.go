package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/redis"
	"github.com/stretchr/testify/assert"
)

type fakeSyncer struct {
	calls []service.FeeSyncOptions
	err   error
}

func (f *fakeSyncer) Sync(ctx context.Context, opts service.FeeSyncOptions) (*service.FeeSyncResult, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return nil, f.err
	}
	return &service.FeeSyncResult{Workshop: 1, Created: 1}, nil
}

type fakeLock struct {
	held     bool
	err      error
	taken    []string
	ttl      time.Duration
	released int
}

func (l *fakeLock) lock(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	if l.held {
		return nil, redis.ErrLockHeld
	}
	l.taken = append(l.taken, name)
	l.ttl = ttl
	return func(context.Context) error {
		l.released++
		return nil
	}, nil
}

func TestFeeSyncScheduler_Defaults(t *testing.T) {
	s := NewFeeSyncScheduler(&fakeSyncer{}, nil, 0, 0)

	if s.interval != 6*time.Hour {
		t.Errorf("interval = %v, want %v", s.interval, 6*time.Hour)
	}
	if s.lookbackDays != 30 {
		t.Errorf("lookbackDays = %v, want %v", s.lookbackDays, 30)
	}
}

func TestFeeSyncScheduler_RunOnceUnderLock(t *testing.T) {
	syncer := &fakeSyncer{}
	lock := &fakeLock{}
	s := NewFeeSyncScheduler(syncer, lock.lock, time.Hour, 14)

	s.RunOnce(context.Background())

	assert.Equal(t, []service.FeeSyncOptions{{Days: 14}}, syncer.calls)
	assert.Equal(t, []string{"fee-sync"}, lock.taken)
	assert.Equal(t, time.Hour, lock.ttl)
	assert.Equal(t, 1, lock.released)

	stats := s.GetStats()
	assert.Equal(t, 1, stats.Runs)
	assert.Equal(t, 1, stats.LastResult.Created)
}

func TestFeeSyncScheduler_SkipsWhenLockHeld(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewFeeSyncScheduler(syncer, (&fakeLock{held: true}).lock, time.Hour, 30)

	s.RunOnce(context.Background())

	assert.Empty(t, syncer.calls)
	assert.Equal(t, 1, s.GetStats().LockMisses)
	assert.Zero(t, s.GetStats().Runs)
}

func TestFeeSyncScheduler_LockErrorSkipsRound(t *testing.T) {
	syncer := &fakeSyncer{}
	s := NewFeeSyncScheduler(syncer, (&fakeLock{err: errors.New("redis down")}).lock, time.Hour, 30)

	s.RunOnce(context.Background())

	assert.Empty(t, syncer.calls)
	assert.Zero(t, s.GetStats().LockMisses)
}

func TestFeeSyncScheduler_NoLockRunsUnguarded(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("stripe unavailable")}
	s := NewFeeSyncScheduler(syncer, nil, time.Hour, 30)

	s.RunOnce(context.Background())

	assert.Len(t, syncer.calls, 1)
	stats := s.GetStats()
	assert.Equal(t, 1, stats.Runs)
	assert.Nil(t, stats.LastResult)
}
