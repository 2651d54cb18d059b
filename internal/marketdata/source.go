// Package marketdata fetches underlying spot quotes, option contract
// universes, and per-contract snapshots from the quote API.
package marketdata

import (
	"context"
	"time"

	"optionwatch/internal/models"
)

// SpotQuote is one underlying price observation.
type SpotQuote struct {
	Code  string
	Name  string
	Price float64
	At    time.Time
}

// Source is the full market data surface the poller needs. Implementations
// must be safe for concurrent use.
type Source interface {
	// Spot returns the current underlying quote.
	Spot(ctx context.Context, underlying string) (SpotQuote, error)
	// Universe resolves the option contract codes for an underlying whose
	// strikes fall within bandPct of spot.
	Universe(ctx context.Context, underlying string, spot float64, bandPct float64) ([]string, error)
	// Snapshots fetches current snapshots for the given contract codes.
	Snapshots(ctx context.Context, underlying string, codes []string) ([]models.Snapshot, error)
}
