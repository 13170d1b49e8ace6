package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/logger"
	"github.com/polyphonica/booking/pkg/redis"
)

const feeSyncLockName = "fee-sync"

// LockFunc takes a named lock for ttl and returns its release. It returns
// redis.ErrLockHeld when another instance owns the lock.
type LockFunc func(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)

// RedisLocker adapts the shared Redis client to a LockFunc
func RedisLocker(client *redis.Client) LockFunc {
	return func(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
		lock, err := client.TryLock(ctx, name, ttl)
		if err != nil {
			return nil, err
		}
		return lock.Release, nil
	}
}

type feeSyncer interface {
	Sync(ctx context.Context, opts service.FeeSyncOptions) (*service.FeeSyncResult, error)
}

// FeeSyncScheduler runs the fee sync over the recent lookback on an interval.
// With several server instances only the lock holder runs each round.
type FeeSyncScheduler struct {
	syncer       feeSyncer
	lock         LockFunc
	interval     time.Duration
	lookbackDays int
	log          *logger.Logger
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	running      bool

	runs       int
	lockMisses int
	lastRun    time.Time
	lastResult *service.FeeSyncResult
}

// NewFeeSyncScheduler builds a scheduler; a nil lock runs every round unguarded
func NewFeeSyncScheduler(syncer feeSyncer, lock LockFunc, interval time.Duration, lookbackDays int) *FeeSyncScheduler {
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &FeeSyncScheduler{
		syncer:       syncer,
		lock:         lock,
		interval:     interval,
		lookbackDays: lookbackDays,
		log:          logger.Get().Named("fee-sync"),
		stopCh:       make(chan struct{}),
	}
}

func (s *FeeSyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("fee sync scheduler already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info(fmt.Sprintf("Starting fee sync scheduler (every %s, last %d days)", s.interval, s.lookbackDays))

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.RunOnce(ctx)
			}
		}
	}()
	return nil
}

func (s *FeeSyncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.log.Info("Fee sync scheduler stopped")
}

// RunOnce runs one round unless another instance holds the lock
func (s *FeeSyncScheduler) RunOnce(ctx context.Context) {
	if s.lock != nil {
		// a round that outlives the interval must not overlap the next one
		release, err := s.lock(ctx, feeSyncLockName, s.interval)
		if errors.Is(err, redis.ErrLockHeld) {
			s.mu.Lock()
			s.lockMisses++
			s.mu.Unlock()
			s.log.Debug("Fee sync skipped, another instance holds the lock")
			return
		}
		if err != nil {
			s.log.Error(fmt.Sprintf("Fee sync lock failed: %v", err))
			return
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.log.Warn(fmt.Sprintf("Fee sync lock release failed: %v", err))
			}
		}()
	}

	result, err := s.syncer.Sync(ctx, service.FeeSyncOptions{Days: s.lookbackDays})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs++
	s.lastRun = time.Now()
	if err != nil {
		s.log.Error(fmt.Sprintf("Fee sync failed: %v", err))
		return
	}
	s.lastResult = result
	s.log.Info(fmt.Sprintf("Fee sync: %s", result))
}

func (s *FeeSyncScheduler) GetStats() *FeeSyncSchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &FeeSyncSchedulerStats{
		IsRunning:  s.running,
		Runs:       s.runs,
		LockMisses: s.lockMisses,
		LastRun:    s.lastRun,
		LastResult: s.lastResult,
	}
}

type FeeSyncSchedulerStats struct {
	IsRunning  bool                   `json:"is_running"`
	Runs       int                    `json:"runs"`
	LockMisses int                    `json:"lock_misses"`
	LastRun    time.Time              `json:"last_run"`
	LastResult *service.FeeSyncResult `json:"last_result,omitempty"`
}
