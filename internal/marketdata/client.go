package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"optionwatch/internal/config"
	"optionwatch/internal/logger"
	"optionwatch/internal/models"
)

// Client talks to the quote API over HTTP.
type Client struct {
	baseURL         string
	httpClient      *http.Client
	bandWidenFactor float64
	spotCacheTTL    time.Duration

	mu        sync.Mutex
	spotCache map[string]SpotQuote
}

// NewClient creates a quote API client from the source configuration.
func NewClient(cfg config.SourceConfig) *Client {
	ttl := cfg.SpotCacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	widen := cfg.BandWidenFactor
	if widen < 1 {
		widen = 1.5
	}
	return &Client{
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:      &http.Client{Timeout: cfg.Timeout},
		bandWidenFactor: widen,
		spotCacheTTL:    ttl,
		spotCache:       make(map[string]SpotQuote),
	}
}

type spotResponse struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

type chainResponse struct {
	Codes []string `json:"codes"`
}

type snapshotResponse struct {
	Snapshots []snapshotDTO `json:"snapshots"`
}

type snapshotDTO struct {
	Code       string  `json:"code"`
	Name       string  `json:"name"`
	LastPrice  float64 `json:"last_price"`
	Volume     int64   `json:"volume"`
	Turnover   string  `json:"turnover"`
	ChangeRate float64 `json:"change_rate"`
	Timestamp  int64   `json:"timestamp"`
}

// Spot returns the underlying quote, served from a short-lived cache so the
// per-contract analytics of one cycle do not re-fetch the same price.
func (c *Client) Spot(ctx context.Context, underlying string) (SpotQuote, error) {
	c.mu.Lock()
	if q, ok := c.spotCache[underlying]; ok && time.Since(q.At) < c.spotCacheTTL {
		c.mu.Unlock()
		return q, nil
	}
	c.mu.Unlock()

	u := fmt.Sprintf("%s/spot?code=%s", c.baseURL, url.QueryEscape(underlying))
	var sr spotResponse
	if err := c.getJSON(ctx, u, &sr); err != nil {
		return SpotQuote{}, fmt.Errorf("failed to fetch spot for %s: %w", underlying, err)
	}
	if sr.Price <= 0 {
		return SpotQuote{}, fmt.Errorf("spot for %s reported non-positive price %v", underlying, sr.Price)
	}

	q := SpotQuote{Code: sr.Code, Name: sr.Name, Price: sr.Price, At: time.Now()}
	c.mu.Lock()
	c.spotCache[underlying] = q
	c.mu.Unlock()
	return q, nil
}

// Universe lists contract codes with strikes within bandPct of spot. An
// empty result is retried once with a widened band before giving up; a thin
// chain near the band edge is common after large spot moves.
func (c *Client) Universe(ctx context.Context, underlying string, spot float64, bandPct float64) ([]string, error) {
	codes, err := c.fetchChain(ctx, underlying, spot, bandPct)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 && c.bandWidenFactor > 1 {
		widened := bandPct * c.bandWidenFactor
		logger.Debug("empty chain for %s at band %.0f%%, widening to %.0f%%",
			underlying, bandPct*100, widened*100)
		codes, err = c.fetchChain(ctx, underlying, spot, widened)
		if err != nil {
			return nil, err
		}
	}
	return codes, nil
}

func (c *Client) fetchChain(ctx context.Context, underlying string, spot, bandPct float64) ([]string, error) {
	u := fmt.Sprintf("%s/chain?underlying=%s&min_strike=%.4f&max_strike=%.4f",
		c.baseURL, url.QueryEscape(underlying), spot*(1-bandPct), spot*(1+bandPct))
	var cr chainResponse
	if err := c.getJSON(ctx, u, &cr); err != nil {
		return nil, fmt.Errorf("failed to fetch chain for %s: %w", underlying, err)
	}
	return cr.Codes, nil
}

// Snapshots fetches current snapshots for the given contract codes.
func (c *Client) Snapshots(ctx context.Context, underlying string, codes []string) ([]models.Snapshot, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	u := fmt.Sprintf("%s/snapshots?codes=%s", c.baseURL, url.QueryEscape(strings.Join(codes, ",")))
	var sr snapshotResponse
	if err := c.getJSON(ctx, u, &sr); err != nil {
		return nil, fmt.Errorf("failed to fetch snapshots for %s: %w", underlying, err)
	}

	snapshots := make([]models.Snapshot, 0, len(sr.Snapshots))
	for _, dto := range sr.Snapshots {
		turnover, err := decimal.NewFromString(dto.Turnover)
		if err != nil {
			logger.Warn("skipping snapshot %s with bad turnover %q: %v", dto.Code, dto.Turnover, err)
			continue
		}
		sampledAt := time.Now()
		if dto.Timestamp > 0 {
			sampledAt = time.Unix(dto.Timestamp, 0)
		}
		snapshots = append(snapshots, models.Snapshot{
			ContractCode:   dto.Code,
			UnderlyingCode: underlying,
			UnderlyingName: dto.Name,
			LastPrice:      dto.LastPrice,
			Volume:         dto.Volume,
			Turnover:       turnover,
			ChangeRate:     dto.ChangeRate,
			SampledAt:      sampledAt,
		})
	}
	return snapshots, nil
}

// getJSON performs a GET with retry logic and decodes the JSON body.
func (c *Client) getJSON(ctx context.Context, urlStr string, out any) error {
	maxRetries := 3
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, "GET", urlStr, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if !sleepCtx(ctx, time.Duration(i+1)*time.Second) {
				return ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			if !sleepCtx(ctx, time.Duration(i+1)*time.Second) {
				return ctx.Err()
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
