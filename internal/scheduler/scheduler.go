package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"optionwatch/internal/config"
	"optionwatch/internal/logger"
	"optionwatch/internal/notify"
)

// healthWarnAfter is how many consecutive failed passes an underlying gets
// before the track raises a health warning.
const healthWarnAfter = 3

// maintenanceInterval paces the dedup retention purge.
const maintenanceInterval = 6 * time.Hour

// Purger drops expired dedup records.
type Purger interface {
	PurgeExpired(now time.Time) (int64, error)
}

// Scheduler runs one polling track per configured market plus a periodic
// maintenance loop. Tracks share one pipeline whose source is gated, so
// concurrency never multiplies request rate.
type Scheduler struct {
	markets  []config.MarketConfig
	pipeline *Pipeline
	purger   Purger
	status   notify.StatusReporter
}

// New creates a scheduler. status may be nil; when set it receives a notice
// on the first cycle of a failure streak and another on recovery.
func New(markets []config.MarketConfig, pipeline *Pipeline, purger Purger, status notify.StatusReporter) *Scheduler {
	return &Scheduler{markets: markets, pipeline: pipeline, purger: purger, status: status}
}

// Run starts all tracks and blocks until ctx is cancelled and every track
// has finished its in-flight cycle.
func (s *Scheduler) Run(ctx context.Context) error {
	runners := make([]*trackRunner, 0, len(s.markets))
	for _, m := range s.markets {
		hours, err := parseTradingHours(m.Timezone, m.Sessions)
		if err != nil {
			return fmt.Errorf("market %s: %w", m.Name, err)
		}
		runners = append(runners, &trackRunner{
			market:   m,
			hours:    hours,
			pipeline: s.pipeline,
			status:   s.status,
			failures: make(map[string]int),
		})
	}

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *trackRunner) {
			defer wg.Done()
			r.run(ctx)
		}(r)
	}

	if s.purger != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runMaintenance(ctx)
		}()
	}

	wg.Wait()
	return nil
}

func (s *Scheduler) runMaintenance(ctx context.Context) {
	ticker := time.NewTicker(maintenanceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n, err := s.purger.PurgeExpired(now); err != nil {
				logger.Error("retention purge failed: %v", err)
			} else if n > 0 {
				logger.Info("purged %d expired records", n)
			}
		}
	}
}

// trackRunner is the single owner of one market's polling state. Each track
// runs in its own goroutine and nothing else touches its failure counts.
type trackRunner struct {
	market   config.MarketConfig
	hours    *tradingHours
	pipeline *Pipeline
	status   notify.StatusReporter
	failures map[string]int // underlying -> consecutive failed passes

	cycleFailures int // consecutive cycles where every pass failed
}

func (r *trackRunner) run(ctx context.Context) {
	if r.market.StartDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.market.StartDelay):
		}
	}
	logger.Info("market %s track started, polling every %s", r.market.Name, r.market.PollInterval)

	ticker := time.NewTicker(r.market.PollInterval)
	defer ticker.Stop()

	r.cycle(ctx, time.Now())
	for {
		select {
		case <-ctx.Done():
			logger.Info("market %s track stopped", r.market.Name)
			return
		case now := <-ticker.C:
			r.cycle(ctx, now)
		}
	}
}

// cycle runs one poll across the market's underlyings. A closed market
// either skips the cycle or polls without dispatching, so volume deltas
// stay warm for the next session.
func (r *trackRunner) cycle(ctx context.Context, now time.Time) {
	open := r.hours.IsOpen(now)
	if !open && !r.market.PollWhenClosed {
		logger.Debug("market %s closed, skipping cycle", r.market.Name)
		return
	}

	cycleID := uuid.NewString()[:8]
	start := time.Now()
	var contracts, bigTrades, notified, failed int
	var lastErr error

	for _, underlying := range r.market.Underlyings {
		if ctx.Err() != nil {
			return
		}
		res, err := r.pipeline.RunUnderlying(ctx, underlying, open, now)
		if err != nil {
			failed++
			lastErr = err
			r.failures[underlying]++
			if errors.Is(err, ErrEmptyUniverse) && r.failures[underlying] >= healthWarnAfter {
				logger.Warn("[%s] health: %s resolved no contracts for %d consecutive cycles",
					cycleID, underlying, r.failures[underlying])
			} else {
				logger.Error("[%s] %s pass failed: %v", cycleID, underlying, err)
			}
			continue
		}
		r.failures[underlying] = 0
		contracts += res.Contracts
		bigTrades += res.BigTrades
		notified += res.Notified
	}
	r.reportCycle(failed, lastErr)

	logger.Info("[%s] market %s cycle done in %s: %d contracts, %d big trades, %d notified (open=%v)",
		cycleID, r.market.Name, time.Since(start).Round(time.Millisecond),
		contracts, bigTrades, notified, open)
}

// reportCycle feeds the status reporter: a notice on the first fully failed
// cycle of a streak, another once a cycle succeeds again.
func (r *trackRunner) reportCycle(failed int, lastErr error) {
	if failed > 0 && failed == len(r.market.Underlyings) {
		r.cycleFailures++
		if r.cycleFailures == 1 && r.status != nil {
			if err := r.status.SendError(lastErr); err != nil {
				logger.Warn("failed to send error notice: %v", err)
			}
		}
		return
	}
	if r.cycleFailures > 0 && r.status != nil {
		if err := r.status.SendRecovery(r.cycleFailures); err != nil {
			logger.Warn("failed to send recovery notice: %v", err)
		}
	}
	r.cycleFailures = 0
}
