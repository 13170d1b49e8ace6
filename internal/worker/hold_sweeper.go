package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/polyphonica/booking/internal/service"
	"github.com/polyphonica/booking/pkg/logger"
)

// HoldSweeperConfig contains configuration for the hold sweeper
type HoldSweeperConfig struct {
	// ScanInterval is the interval between sweeps
	ScanInterval time.Duration
	// BatchSize caps the stale holds handled per sweep
	BatchSize int
}

func DefaultHoldSweeperConfig() *HoldSweeperConfig {
	return &HoldSweeperConfig{
		ScanInterval: 5 * time.Minute,
		BatchSize:    100,
	}
}

type holdExpirer interface {
	ExpireStaleHolds(ctx context.Context, limit int) (*service.SweepResult, error)
}

// HoldSweeper cancels pending bookings whose hold lapsed without a payment
type HoldSweeper struct {
	reconcile holdExpirer
	config    *HoldSweeperConfig
	log       *logger.Logger
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	running   bool

	totalCancelled int
	totalPaid      int
	lastScanTime   time.Time
	lastResult     service.SweepResult
}

func NewHoldSweeper(reconcile holdExpirer, config *HoldSweeperConfig) *HoldSweeper {
	if config == nil {
		config = DefaultHoldSweeperConfig()
	}
	return &HoldSweeper{
		reconcile: reconcile,
		config:    config,
		log:       logger.Get().Named("hold-sweeper"),
		stopCh:    make(chan struct{}),
	}
}

// Start runs a sweep straight away and then on every tick
func (w *HoldSweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("hold sweeper already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info(fmt.Sprintf("Starting hold sweeper (every %s)", w.config.ScanInterval))

	w.wg.Add(1)
	go w.run(ctx)
	return nil
}

func (w *HoldSweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Hold sweeper stopped")
}

func (w *HoldSweeper) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *HoldSweeper) sweep(ctx context.Context) {
	result, err := w.reconcile.ExpireStaleHolds(ctx, w.config.BatchSize)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastScanTime = time.Now()
	if err != nil {
		w.log.Error(fmt.Sprintf("Hold sweep failed: %v", err))
		return
	}

	w.lastResult = *result
	w.totalCancelled += result.Cancelled
	w.totalPaid += result.Paid
	if result.Cancelled+result.Paid+result.Skipped > 0 {
		w.log.Info(fmt.Sprintf("Hold sweep: %d cancelled, %d found paid, %d skipped", result.Cancelled, result.Paid, result.Skipped))
	}
}

func (w *HoldSweeper) GetStats() *HoldSweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &HoldSweeperStats{
		IsRunning:      w.running,
		TotalCancelled: w.totalCancelled,
		TotalPaid:      w.totalPaid,
		LastScanTime:   w.lastScanTime,
		LastResult:     w.lastResult,
	}
}

// HoldSweeperStats contains sweeper statistics
type HoldSweeperStats struct {
	IsRunning      bool                `json:"is_running"`
	TotalCancelled int                 `json:"total_cancelled"`
	TotalPaid      int                 `json:"total_paid"`
	LastScanTime   time.Time           `json:"last_scan_time"`
	LastResult     service.SweepResult `json:"last_result"`
}
