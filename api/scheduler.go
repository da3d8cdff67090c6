/*
scheduler.go - Automated accrual and anniversary scheduler

PURPOSE:
  Periodically runs the monthly accrual for the current month and the
  anniversary carry-forward for today. Both runs are idempotent, so a tick
  that finds nothing new to do changes nothing.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs immediately on start, then on every tick
  - Catches up: days and months missed while the process was down are
    replayed in order, oldest first. With a Progress store the last month
    and day survive a restart; without one, catch-up only covers gaps
    inside a single process lifetime
  - Per-employee failures are reported in the run results and logged; they
    never stop the loop

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)
  - Progress: Where the last processed month/day are persisted (optional)

USAGE:
  scheduler := NewAccrualScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerAccrual / TriggerAnniversary (manual runs)
  - leave/accrual.go: RunMonthlyAccrual, RunAnniversary
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// maxCatchUpDays bounds how far back a restart replays anniversaries.
const maxCatchUpDays = 31

// BatchRunner is the part of leave.Engine the scheduler drives.
type BatchRunner interface {
	RunMonthlyAccrual(ctx context.Context, month generic.Month) ([]leave.AccrualResult, error)
	RunAnniversary(ctx context.Context, date generic.TimePoint) ([]leave.CarryForwardRunResult, error)
}

// AccrualScheduler handles automated accrual and carry-forward.
type AccrualScheduler struct {
	Runner        BatchRunner
	CheckInterval time.Duration
	Enabled       bool
	Now           func() time.Time
	Progress      leave.ProgressStore

	logger *zap.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	runMu     sync.Mutex
	loaded    bool
	lastMonth generic.Month
	lastDay   generic.TimePoint
}

// NewAccrualScheduler creates a new scheduler.
func NewAccrualScheduler(runner BatchRunner, logger *zap.Logger) *AccrualScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccrualScheduler{
		Runner:        runner,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		Now:           time.Now,
		logger:        logger.Named("scheduler"),
	}
}

// Start begins the scheduler.
func (s *AccrualScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.logger.Info("scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)

	go s.run()

	s.logger.Info("scheduler started", zap.Duration("interval", s.CheckInterval))
}

// Stop stops the scheduler and waits for an in-flight run to finish.
func (s *AccrualScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.ticker = nil
		s.logger.Info("scheduler stopped")
	}
}

func (s *AccrualScheduler) run() {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-s.stop
		cancel()
	}()

	// Run immediately on start
	s.RunNow(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.RunNow(ctx)
		case <-s.stop:
			return
		}
	}
}

// RunNow performs one check synchronously (for testing/admin).
func (s *AccrualScheduler) RunNow(ctx context.Context) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if !s.loadProgress(ctx) {
		return
	}
	today := generic.DayOf(s.Now())

	for _, month := range s.pendingMonths(generic.MonthOf(today)) {
		if ctx.Err() != nil {
			return
		}
		results, err := s.Runner.RunMonthlyAccrual(ctx, month)
		if err != nil {
			s.logger.Error("monthly accrual failed", zap.Stringer("month", month), zap.Error(err))
			return
		}
		s.logger.Info("monthly accrual checked",
			zap.Stringer("month", month),
			zap.Int("credited", countAccrued(results)),
			zap.Int("failed", countFailedAccruals(results)),
		)
		s.lastMonth = month
		s.saveProgress(ctx)
	}

	for _, day := range s.pendingDays(today) {
		if ctx.Err() != nil {
			return
		}
		results, err := s.Runner.RunAnniversary(ctx, day)
		if err != nil {
			s.logger.Error("anniversary run failed", zap.Stringer("date", day), zap.Error(err))
			return
		}
		if len(results) > 0 {
			s.logger.Info("anniversary carry-forward processed",
				zap.Stringer("date", day),
				zap.Int("rows", len(results)),
			)
		}
		s.lastDay = day
		s.saveProgress(ctx)
	}
}

// loadProgress restores the persisted position once per scheduler. A load
// failure skips the tick: running from a zero position would skip the
// months missed while the process was down.
func (s *AccrualScheduler) loadProgress(ctx context.Context) bool {
	if s.loaded || s.Progress == nil {
		return true
	}
	p, err := s.Progress.LoadBatchProgress(ctx)
	if err != nil {
		s.logger.Error("load scheduler progress failed", zap.Error(err))
		return false
	}
	s.lastMonth, s.lastDay = p.LastMonth, p.LastDay
	s.loaded = true
	if !p.LastMonth.IsZero() {
		s.logger.Info("scheduler progress restored",
			zap.Stringer("last_month", p.LastMonth),
			zap.Stringer("last_day", p.LastDay),
		)
	}
	return true
}

func (s *AccrualScheduler) saveProgress(ctx context.Context) {
	if s.Progress == nil {
		return
	}
	p := leave.BatchProgress{LastMonth: s.lastMonth, LastDay: s.lastDay}
	if err := s.Progress.SaveBatchProgress(ctx, p); err != nil {
		s.logger.Warn("save scheduler progress failed", zap.Error(err))
	}
}

// pendingMonths lists the months after the last processed one, up to
// current. The current month is always included.
func (s *AccrualScheduler) pendingMonths(current generic.Month) []generic.Month {
	if s.lastMonth.IsZero() || !s.lastMonth.Before(current) {
		return []generic.Month{current}
	}
	var months []generic.Month
	for m := nextMonth(s.lastMonth); !current.Before(m); m = nextMonth(m) {
		months = append(months, m)
	}
	return months
}

// pendingDays lists the days after the last processed one, up to today.
func (s *AccrualScheduler) pendingDays(today generic.TimePoint) []generic.TimePoint {
	if s.lastDay.IsZero() {
		return []generic.TimePoint{today}
	}
	if !s.lastDay.Before(today) {
		return nil
	}
	start := s.lastDay.AddDays(1)
	if earliest := today.AddDays(-maxCatchUpDays); start.Before(earliest) {
		start = earliest
	}
	var days []generic.TimePoint
	for d := start; !d.After(today); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func nextMonth(m generic.Month) generic.Month {
	if m.Month == time.December {
		return generic.Month{Year: m.Year + 1, Month: time.January}
	}
	return generic.Month{Year: m.Year, Month: m.Month + 1}
}

func countAccrued(results []leave.AccrualResult) int {
	n := 0
	for _, r := range results {
		if r.Credited {
			n++
		}
	}
	return n
}

func countFailedAccruals(results []leave.AccrualResult) int {
	n := 0
	for _, r := range results {
		if !r.Success {
			n++
		}
	}
	return n
}
