// Package tracker derives per-contract volume deltas from cumulative
// session counters.
package tracker

import (
	"sync"
	"time"

	"optionwatch/internal/logger"
	"optionwatch/internal/models"
)

// DefaultReloadTTL bounds how long the in-memory view is trusted before the
// durable store is consulted again.
const DefaultReloadTTL = 10 * time.Minute

// Store persists last-known volumes across restarts.
type Store interface {
	UpsertVolumeState(models.VolumeState) error
	LoadVolumeStates(tradingDay string) (map[string]models.VolumeState, error)
}

// Delta is the outcome of one observation.
type Delta struct {
	Diff     int64
	Previous int64
	First    bool // no prior state for this contract today
	Reset    bool // cumulative counter decreased, treated as a new session
}

// Tracker holds the in-memory volume view for the current trading day. The
// map is authoritative within a cycle; the store is reloaded lazily when the
// view ages past the TTL or the trading day rolls over.
type Tracker struct {
	mu       sync.Mutex
	store    Store
	ttl      time.Duration
	day      string
	cache    map[string]int64
	loadedAt time.Time
}

// New creates a tracker over the given store. A non-positive ttl selects
// DefaultReloadTTL.
func New(store Store, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultReloadTTL
	}
	return &Tracker{store: store, ttl: ttl}
}

// Derive returns the delta for the cumulative volume of contractCode at now
// without consuming it. A first sighting counts the full volume; an unchanged
// counter yields zero; a decreased counter is a new session and again counts
// the full volume. Nothing is persisted until Commit, so a cycle that fails
// to deliver its notifications re-derives the same delta next time.
func (t *Tracker) Derive(contractCode string, volume int64, now time.Time) Delta {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.lookup(contractCode, now)
	switch {
	case !ok:
		return Delta{Diff: volume, Previous: 0, First: true}
	case volume == prev:
		return Delta{Diff: 0, Previous: prev}
	case volume > prev:
		return Delta{Diff: volume - prev, Previous: prev}
	default:
		return Delta{Diff: volume, Previous: prev, Reset: true}
	}
}

// Commit consumes the delta by recording volume as the last-seen counter for
// contractCode, in memory and in the store. An unchanged counter is a no-op.
func (t *Tracker) Commit(contractCode string, volume int64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.lookup(contractCode, now)
	if ok && prev == volume {
		return
	}
	t.write(contractCode, volume, t.day, now)
}

// lookup returns the cached counter for contractCode, reloading the view
// first when it is stale. Callers must hold the mutex.
func (t *Tracker) lookup(contractCode string, now time.Time) (int64, bool) {
	day := models.TradingDay(now)
	if t.cache == nil || t.day != day || now.Sub(t.loadedAt) > t.ttl {
		t.reload(day, now)
	}
	prev, ok := t.cache[contractCode]
	return prev, ok
}

// reload replaces the in-memory view from the store. A read failure leaves
// an empty view so every contract falls back to first-sighting semantics;
// over-notifying beats silently dropping a delta.
func (t *Tracker) reload(day string, now time.Time) {
	states, err := t.store.LoadVolumeStates(day)
	if err != nil {
		logger.Warn("volume state reload failed, treating contracts as first sightings: %v", err)
		states = nil
	}
	t.cache = make(map[string]int64, len(states))
	for code, st := range states {
		t.cache[code] = st.LastVolume
	}
	t.day = day
	t.loadedAt = now
}

func (t *Tracker) write(contractCode string, volume int64, day string, now time.Time) {
	t.cache[contractCode] = volume
	err := t.store.UpsertVolumeState(models.VolumeState{
		ContractCode: contractCode,
		TradingDay:   day,
		LastVolume:   volume,
		SeenAt:       now,
	})
	if err != nil {
		logger.Warn("volume state write failed for %s: %v", contractCode, err)
	}
}
