package marketdata

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"optionwatch/internal/models"
)

// GatedSource serializes all requests from concurrent market tracks through
// one shared rate gate so the quote API sees at most one request per
// minInterval regardless of how many tracks are polling.
type GatedSource struct {
	inner   Source
	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewGatedSource wraps inner with a shared request gate.
func NewGatedSource(inner Source, minInterval time.Duration) *GatedSource {
	if minInterval <= 0 {
		minInterval = 500 * time.Millisecond
	}
	return &GatedSource{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(minInterval), 1),
	}
}

func (g *GatedSource) Spot(ctx context.Context, underlying string) (SpotQuote, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.limiter.Wait(ctx); err != nil {
		return SpotQuote{}, err
	}
	return g.inner.Spot(ctx, underlying)
}

func (g *GatedSource) Universe(ctx context.Context, underlying string, spot float64, bandPct float64) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.Universe(ctx, underlying, spot, bandPct)
}

func (g *GatedSource) Snapshots(ctx context.Context, underlying string, codes []string) ([]models.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return g.inner.Snapshots(ctx, underlying, codes)
}
