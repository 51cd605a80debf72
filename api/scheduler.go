/*
scheduler.go - Automated dues scan scheduler

PURPOSE:
  Periodically recomputes who owes maintenance so the dashboard gauges and
  the scan history stay current without anyone opening the dashboard.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Scans immediately on start, then on every tick
  - Records every scan as a DueScanRun (running -> completed/failed)
  - The computation itself feeds the Prometheus gauges via the dashboard's
    Recorder; the scheduler only counts scan outcomes

CONFIGURATION:
  - Interval: How often to scan (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewDueScanScheduler(store, dashboard, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerScan endpoint (manual scan)
  - maintenance/dashboard.go: Dues computation
*/
package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/society/dues-engine/lib/sl"
	"github.com/society/dues-engine/maintenance"
	"github.com/society/dues-engine/store/sqlite"
)

// finishTimeout bounds the final run update, which outlives the caller's
// context so a cancelled scan is still recorded as failed.
const finishTimeout = 5 * time.Second

const (
	ScanRunning   = "running"
	ScanCompleted = "completed"
	ScanFailed    = "failed"
)

// ScanObserver counts scan outcomes (implemented by metrics.Metrics).
type ScanObserver interface {
	ObserveScan(status string)
}

// DueScanScheduler handles periodic dues scans.
type DueScanScheduler struct {
	Store     *sqlite.Store
	Dashboard *maintenance.Dashboard
	Logger    *slog.Logger
	Observer  ScanObserver // optional
	Interval  time.Duration
	Enabled   bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// runMu serializes scans so a manual trigger never overlaps a tick.
	runMu sync.Mutex
}

// NewDueScanScheduler creates a new scheduler.
func NewDueScanScheduler(store *sqlite.Store, dash *maintenance.Dashboard, logger *slog.Logger) *DueScanScheduler {
	return &DueScanScheduler{
		Store:     store,
		Dashboard: dash,
		Logger:    logger,
		Interval:  time.Hour,
		Enabled:   true,
	}
}

// Start begins the scheduler.
func (s *DueScanScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logger().With(slog.String("op", "api.DueScanScheduler.Start"))
	if !s.Enabled {
		log.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.Interval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run(s.ticker, s.stop)

	log.Info("scheduler started", slog.Duration("interval", s.Interval))
}

// Stop stops the scheduler and waits for an in-flight scan.
func (s *DueScanScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.logger().Info("scheduler stopped", slog.String("op", "api.DueScanScheduler.Stop"))
}

func (s *DueScanScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	// Run immediately on start
	s.scan(ctx)

	for {
		select {
		case <-ticker.C:
			s.scan(ctx)
		case <-stop:
			return
		}
	}
}

func (s *DueScanScheduler) scan(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger().Error("scheduled dues scan failed",
			slog.String("op", "api.DueScanScheduler.scan"), sl.Err(err))
	}
}

// RunOnce computes dues as of today and records the run. A failed
// computation is still recorded, with status "failed".
func (s *DueScanScheduler) RunOnce(ctx context.Context) (sqlite.DueScanRun, error) {
	const op = "api.DueScanScheduler.RunOnce"
	log := s.logger().With(slog.String("op", op))

	s.runMu.Lock()
	defer s.runMu.Unlock()

	run := sqlite.DueScanRun{
		ID:            uuid.NewString(),
		CategoryID:    s.Dashboard.CategoryID,
		ReferenceDate: s.Dashboard.Calculator.Today(),
		Status:        ScanRunning,
		StartedAt:     time.Now().UTC(),
	}
	if err := s.Store.SaveDueScanRun(ctx, run); err != nil {
		return run, fmt.Errorf("%s: save run record: %w", op, err)
	}

	res, _, err := s.Dashboard.Dues(ctx, run.ReferenceDate)
	completed := time.Now().UTC()
	run.CompletedAt = &completed

	if err != nil {
		run.Status = ScanFailed
		run.Error = err.Error()
		s.observe(ScanFailed)
		if saveErr := s.finish(ctx, run); saveErr != nil {
			log.Error("failed to record failed scan", sl.Err(saveErr))
		}
		return run, fmt.Errorf("%s: %w", op, err)
	}

	run.Status = ScanCompleted
	run.Members = res.MemberCount()
	run.Overdue = res.OverdueCount()
	run.MissingPeriod = res.Diagnostics.MissingPeriod
	run.InvertedPeriod = res.Diagnostics.InvertedPeriod
	s.observe(ScanCompleted)

	if err := s.finish(ctx, run); err != nil {
		return run, fmt.Errorf("%s: update run record: %w", op, err)
	}

	log.Info("dues scan completed",
		slog.String("run_id", run.ID),
		slog.String("as_of", run.ReferenceDate.String()),
		slog.Int("members", run.Members),
		slog.Int("overdue", run.Overdue),
	)
	return run, nil
}

// finish stores the final state of a run on a context detached from the
// caller's cancellation.
func (s *DueScanScheduler) finish(ctx context.Context, run sqlite.DueScanRun) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	return s.Store.SaveDueScanRun(ctx, run)
}

// NextRunTime returns when the next scheduled scan will occur.
func (s *DueScanScheduler) NextRunTime() time.Time {
	return time.Now().Add(s.Interval)
}

func (s *DueScanScheduler) observe(status string) {
	if s.Observer != nil {
		s.Observer.ObserveScan(status)
	}
}

func (s *DueScanScheduler) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}
