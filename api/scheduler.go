/*
scheduler.go - Periodic cycle refresh

PURPOSE:
  Statuses are derived from the clock, so a cycle becomes Due or Overdue
  without anybody touching it. The scheduler normalizes the cycle store on
  an interval so those transitions are persisted and published to
  listeners even when no client is reading.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each pass is engine.Refresh: seed, archive, relabel, persist if changed
  - Passes are recorded through an optional RunStore (SQLite keeps them)
  - A failing pass is logged and counted; the next tick tries again

USAGE:
  scheduler := NewRefreshScheduler(engine, logger)
  scheduler.Interval = 15 * time.Minute
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - payroll/engine.go: Refresh
  - store/sqlite/sqlite.go: refresh_runs table
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dagm95/CXinas-bakery-system/payroll"
	"github.com/dagm95/CXinas-bakery-system/store/sqlite"
)

const defaultRefreshTimeout = 30 * time.Second

// RunStore persists scheduler passes.
type RunStore interface {
	SaveRefreshRun(ctx context.Context, run sqlite.RefreshRun) error
	RecentRefreshRuns(ctx context.Context, limit int) ([]sqlite.RefreshRun, error)
}

// RefreshScheduler normalizes the cycle store on a fixed interval.
type RefreshScheduler struct {
	Engine   *payroll.Engine
	Runs     RunStore
	Metrics  *Metrics
	Interval time.Duration
	Enabled  bool

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex
}

// NewRefreshScheduler creates a scheduler with a 15 minute interval.
func NewRefreshScheduler(engine *payroll.Engine, logger *zap.Logger) *RefreshScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefreshScheduler{
		Engine:   engine,
		Interval: 15 * time.Minute,
		Enabled:  true,
		logger:   logger.Named("scheduler"),
	}
}

// Start begins the scheduler. It runs one pass immediately.
func (rs *RefreshScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled || rs.Interval <= 0 {
		rs.logger.Info("refresh scheduler disabled")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.Interval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run(rs.ticker, rs.stop)

	rs.logger.Info("refresh scheduler started", zap.Duration("interval", rs.Interval))
}

// Stop stops the scheduler and waits for a running pass to finish.
func (rs *RefreshScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("refresh scheduler stopped")
}

func (rs *RefreshScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer rs.wg.Done()

	rs.pass()
	for {
		select {
		case <-ticker.C:
			rs.pass()
		case <-stop:
			return
		}
	}
}

func (rs *RefreshScheduler) pass() {
	ctx, cancel := context.WithTimeout(context.Background(), defaultRefreshTimeout)
	defer cancel()
	if _, err := rs.RunNow(ctx); err != nil {
		rs.logger.Error("refresh pass failed", zap.Error(err))
	}
}

// RunNow performs one pass synchronously. Passes never overlap.
func (rs *RefreshScheduler) RunNow(ctx context.Context) (payroll.NormalizeReport, error) {
	rs.runMu.Lock()
	defer rs.runMu.Unlock()

	started := time.Now()
	report, err := rs.Engine.Refresh(ctx)

	run := sqlite.RefreshRun{
		StartedAt:   started,
		CompletedAt: time.Now(),
		Status:      "completed",
		Seeded:      len(report.Seeded),
		Archived:    len(report.Archived),
		Relabeled:   len(report.Relabeled),
		Invalid:     len(report.InvalidIDs()),
	}
	if err != nil {
		run.Status = "failed"
		run.Error = err.Error()
	}
	if rs.Metrics != nil {
		rs.Metrics.RefreshRun(run.Status)
	}
	if rs.Runs != nil {
		if saveErr := rs.Runs.SaveRefreshRun(ctx, run); saveErr != nil {
			rs.logger.Warn("record refresh run failed", zap.Error(saveErr))
		}
	}
	if err != nil {
		return report, err
	}

	if report.Changed() {
		rs.logger.Info("refresh pass changed cycles",
			zap.Strings("seeded", report.Seeded),
			zap.Strings("archived", report.Archived),
			zap.Strings("relabeled", report.Relabeled))
	} else {
		rs.logger.Debug("refresh pass found nothing to change")
	}
	return report, nil
}
