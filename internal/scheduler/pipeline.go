// Package scheduler runs the polling loops: one track per market, a shared
// request gate, and the per-underlying detection pipeline.
package scheduler

import (
	"context"
	"errors"
	"time"

	"optionwatch/internal/analytics"
	"optionwatch/internal/classifier"
	"optionwatch/internal/config"
	"optionwatch/internal/contract"
	"optionwatch/internal/dispatch"
	"optionwatch/internal/logger"
	"optionwatch/internal/marketdata"
	"optionwatch/internal/models"
	"optionwatch/internal/tracker"
)

// ErrEmptyUniverse is returned when an underlying resolves to no contracts
// even after band widening. Repeated occurrences surface as health warnings.
var ErrEmptyUniverse = errors.New("no contracts in universe")

// TradeRecorder persists detected big trades for later inspection.
type TradeRecorder interface {
	InsertTrade(models.AnalyzedTrade) error
}

// Pipeline processes one underlying per call: fetch, decode, delta, value,
// classify, dispatch.
type Pipeline struct {
	source   marketdata.Source
	tracker  *tracker.Tracker
	filters  *config.FiltersConfig
	engine   *dispatch.Engine
	recorder TradeRecorder
	bandPct  float64
}

// NewPipeline wires the detection pipeline.
func NewPipeline(source marketdata.Source, tr *tracker.Tracker, filters *config.FiltersConfig,
	engine *dispatch.Engine, recorder TradeRecorder, bandPct float64) *Pipeline {
	return &Pipeline{
		source:   source,
		tracker:  tr,
		filters:  filters,
		engine:   engine,
		recorder: recorder,
		bandPct:  bandPct,
	}
}

// CycleResult summarizes one underlying's pass.
type CycleResult struct {
	Underlying string
	Contracts  int
	Analyzed   int
	BigTrades  int
	Notified   int
}

// RunUnderlying executes one detection pass. Volume deltas are derived up
// front but consumed only once their outcome is known: contracts whose
// trades were delivered, deduplicated, or ineligible commit at the end of
// the pass, while trades lost to a sink outage or held by cooldown keep
// their delta so the next cycle re-sends them. With dispatchEnabled false
// (market closed but polling continues) volume state still advances so the
// next open session starts from accurate deltas, but nothing is notified.
func (p *Pipeline) RunUnderlying(ctx context.Context, underlying string, dispatchEnabled bool, now time.Time) (CycleResult, error) {
	res := CycleResult{Underlying: underlying}

	spot, err := p.source.Spot(ctx, underlying)
	if err != nil {
		return res, err
	}

	codes, err := p.source.Universe(ctx, underlying, spot.Price, p.bandPct)
	if err != nil {
		return res, err
	}
	if len(codes) == 0 {
		return res, ErrEmptyUniverse
	}

	snapshots, err := p.source.Snapshots(ctx, underlying, codes)
	if err != nil {
		return res, err
	}
	res.Contracts = len(snapshots)

	var trades []models.AnalyzedTrade
	for _, snap := range snapshots {
		if snap.UnderlyingCode == "" {
			snap.UnderlyingCode = underlying
		}
		if snap.UnderlyingName == "" {
			snap.UnderlyingName = spot.Name
		}
		if err := snap.Validate(); err != nil {
			logger.Debug("skipping invalid snapshot %s: %v", snap.ContractCode, err)
			continue
		}

		delta := p.tracker.Derive(snap.ContractCode, snap.Volume, now)

		id := contract.Decode(snap.ContractCode)
		if !id.Valid {
			logger.Debug("undecodable contract code %s, excluded from classification", snap.ContractCode)
			p.tracker.Commit(snap.ContractCode, snap.Volume, now)
			continue
		}

		t := models.AnalyzedTrade{
			Snapshot:     snap,
			Contract:     id,
			SpotPrice:    spot.Price,
			DaysToExpiry: id.DaysToExpiry(now),
			VolumeDiff:   delta.Diff,
			PrevVolume:   delta.Previous,
		}
		t.Analytics = analytics.Compute(analytics.Inputs{
			Spot:          spot.Price,
			Strike:        id.StrikePrice,
			DaysToExpiry:  t.DaysToExpiry,
			Kind:          id.Kind,
			ObservedPrice: snap.LastPrice,
		})
		classifier.Classify(&t, p.filters.Resolve(underlying))
		res.Analyzed++

		if t.IsBigTrade {
			res.BigTrades++
			if p.recorder != nil {
				if err := p.recorder.InsertTrade(t); err != nil {
					logger.Warn("failed to record trade %s: %v", snap.ContractCode, err)
				}
			}
			trades = append(trades, t)
		} else {
			p.tracker.Commit(snap.ContractCode, snap.Volume, now)
		}
	}

	if len(trades) == 0 {
		return res, nil
	}
	if !dispatchEnabled {
		for _, t := range trades {
			p.tracker.Commit(t.Snapshot.ContractCode, t.Snapshot.Volume, now)
		}
		return res, nil
	}

	out, err := p.engine.Dispatch(ctx, trades, now)
	volumes := make(map[string]int64, len(trades))
	for _, t := range trades {
		volumes[t.Snapshot.ContractCode] = t.Snapshot.Volume
	}
	for _, code := range out.Settled {
		p.tracker.Commit(code, volumes[code], now)
	}
	res.Notified = out.Notified
	return res, err
}
