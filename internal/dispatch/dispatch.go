// Package dispatch turns classified trades into deduplicated, grouped
// notifications fanned out to the configured sinks.
package dispatch

import (
	"context"
	"fmt"
	"sort"
	"time"

	"optionwatch/internal/classifier"
	"optionwatch/internal/config"
	"optionwatch/internal/logger"
	"optionwatch/internal/models"
	"optionwatch/internal/notify"
)

// DedupStore persists which event IDs have already been sent.
type DedupStore interface {
	IsPushed(eventID string) (bool, error)
	MarkPushed(eventID string, at time.Time) error
	PurgePushedBefore(cutoff time.Time) (int64, error)
}

// Engine owns the notification pipeline tail: eligibility, dedup, per
// underlying cooldown, grouping, and sink fan-out.
type Engine struct {
	store         DedupStore
	sinks         []notify.Sink
	filters       *config.FiltersConfig
	cooldown      time.Duration
	topN          int
	retentionDays int

	lastNotified map[string]time.Time // underlying -> last successful dispatch
}

// New creates a dispatch engine.
func New(store DedupStore, sinks []notify.Sink, filters *config.FiltersConfig, cfg config.DispatchConfig) *Engine {
	topN := cfg.TopPerUnderlying
	if topN <= 0 {
		topN = 3
	}
	retention := cfg.RetentionDays
	if retention <= 0 {
		retention = 7
	}
	return &Engine{
		store:         store,
		sinks:         sinks,
		filters:       filters,
		cooldown:      cfg.Cooldown,
		topN:          topN,
		retentionDays: retention,
		lastNotified:  make(map[string]time.Time),
	}
}

// Outcome reports how a dispatch pass resolved. Settled lists the contract
// codes whose trades need no retry: delivered, already pushed, or ineligible.
// Trades held back by cooldown or a total sink outage are absent so the
// caller can re-derive their deltas and try again next cycle.
type Outcome struct {
	Notified int
	Settled  []string
}

// Dispatch filters, groups, and sends the cycle's trades. Events are
// committed to the dedup store only after at least one sink delivered them;
// a total sink outage leaves them uncommitted so the next cycle retries.
func (e *Engine) Dispatch(ctx context.Context, trades []models.AnalyzedTrade, now time.Time) (Outcome, error) {
	eligible, out := e.selectEligible(trades)
	if len(eligible) == 0 {
		return out, nil
	}

	groups := e.group(eligible, now)
	if len(groups) == 0 {
		return out, nil
	}

	delivered := 0
	for _, sink := range e.sinks {
		if err := sendToSink(ctx, sink, groups); err != nil {
			logger.Error("sink %s failed: %v", sink.Name(), err)
			continue
		}
		delivered++
	}
	if delivered == 0 {
		return out, fmt.Errorf("all %d sinks failed, %d trades left for retry", len(e.sinks), len(eligible))
	}

	for _, g := range groups {
		e.lastNotified[g.UnderlyingCode] = now
		for _, t := range g.all {
			ev := models.NewEvent(t)
			if err := e.store.MarkPushed(ev.ID, now); err != nil {
				// Left unsettled: the delta survives and the event goes
				// out again next cycle, a repeat beats a silent loss.
				logger.Error("failed to commit event %s: %v", ev.ID, err)
				continue
			}
			out.Notified++
			out.Settled = append(out.Settled, t.Snapshot.ContractCode)
		}
	}
	return out, nil
}

// selectEligible keeps big trades with a fresh positive delta that pass the
// per-underlying filter and have not been sent before. Trades skipped here
// are final for this delta and come back settled.
func (e *Engine) selectEligible(trades []models.AnalyzedTrade) ([]models.AnalyzedTrade, Outcome) {
	var eligible []models.AnalyzedTrade
	var out Outcome
	for _, t := range trades {
		f := e.filters.Resolve(t.Snapshot.UnderlyingCode)
		if !t.IsBigTrade || t.VolumeDiff <= 0 || t.VolumeDiff < f.MinVolume ||
			!classifier.PassesFilter(t, f) {
			out.Settled = append(out.Settled, t.Snapshot.ContractCode)
			continue
		}
		ev := models.NewEvent(t)
		pushed, err := e.store.IsPushed(ev.ID)
		if err != nil {
			// A dedup read failure must never silently drop a trade;
			// worst case is one repeat notification.
			logger.Warn("dedup read failed for %s, sending anyway: %v", ev.ID, err)
			pushed = false
		}
		if pushed {
			out.Settled = append(out.Settled, t.Snapshot.ContractCode)
			continue
		}
		eligible = append(eligible, t)
	}
	return eligible, out
}

type pendingGroup struct {
	models.UnderlyingGroup
	all []models.AnalyzedTrade
}

// group buckets trades by underlying, drops underlyings still in cooldown,
// and keeps the top trades by turnover per bucket. Groups are ordered by
// total turnover, largest first.
func (e *Engine) group(trades []models.AnalyzedTrade, now time.Time) []pendingGroup {
	byUnderlying := make(map[string][]models.AnalyzedTrade)
	for _, t := range trades {
		byUnderlying[t.Snapshot.UnderlyingCode] = append(byUnderlying[t.Snapshot.UnderlyingCode], t)
	}

	var groups []pendingGroup
	for code, members := range byUnderlying {
		if last, ok := e.lastNotified[code]; ok && now.Sub(last) < e.cooldown {
			logger.Debug("underlying %s in cooldown, holding %d trades", code, len(members))
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return members[i].Snapshot.Turnover.GreaterThan(members[j].Snapshot.Turnover)
		})
		g := pendingGroup{all: members}
		g.UnderlyingCode = code
		g.UnderlyingName = members[0].Snapshot.UnderlyingName
		g.Count = len(members)
		for _, t := range members {
			g.TotalTurnover = g.TotalTurnover.Add(t.Snapshot.Turnover)
		}
		top := members
		if len(top) > e.topN {
			top = top[:e.topN]
		}
		g.Top = top
		groups = append(groups, g)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].TotalTurnover.GreaterThan(groups[j].TotalTurnover)
	})
	return groups
}

// sendToSink delivers to one sink, converting a panic into an error so one
// misbehaving sink cannot take down the cycle.
func sendToSink(ctx context.Context, sink notify.Sink, groups []pendingGroup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink %s panicked: %v", sink.Name(), r)
		}
	}()
	out := make([]models.UnderlyingGroup, len(groups))
	for i, g := range groups {
		out[i] = g.UnderlyingGroup
	}
	return sink.Send(ctx, out)
}

// VolumeStatePurger is implemented by stores that also keep per-day volume
// counters, letting the retention pass clean both tables.
type VolumeStatePurger interface {
	PurgeVolumeStatesBefore(tradingDay string) (int64, error)
}

// PurgeExpired drops dedup records, and volume states when the store holds
// them, older than the retention window. It returns the number removed.
func (e *Engine) PurgeExpired(now time.Time) (int64, error) {
	cutoff := now.AddDate(0, 0, -e.retentionDays)
	n, err := e.store.PurgePushedBefore(cutoff)
	if err != nil {
		return n, err
	}
	if vp, ok := e.store.(VolumeStatePurger); ok {
		m, err := vp.PurgeVolumeStatesBefore(models.TradingDay(cutoff))
		if err != nil {
			return n, err
		}
		n += m
	}
	return n, nil
}
