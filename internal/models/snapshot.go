package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one per-contract market observation. Volume and Turnover are
// cumulative since session open; individual trades must be reconstructed by
// differencing successive snapshots. Produced fresh every poll cycle and
// never mutated, only superseded.
type Snapshot struct {
	ContractCode   string
	UnderlyingCode string
	UnderlyingName string
	LastPrice      float64
	Volume         int64
	Turnover       decimal.Decimal
	ChangeRate     float64
	SampledAt      time.Time
}

// Validate checks snapshot field constraints.
func (s *Snapshot) Validate() error {
	if s.ContractCode == "" {
		return errors.New("contract code must not be empty")
	}
	if s.UnderlyingCode == "" {
		return errors.New("underlying code must not be empty")
	}
	if s.LastPrice < 0 {
		return errors.New("last price must not be negative")
	}
	if s.Volume < 0 {
		return errors.New("cumulative volume must not be negative")
	}
	if s.Turnover.IsNegative() {
		return errors.New("cumulative turnover must not be negative")
	}
	if s.SampledAt.IsZero() {
		return errors.New("sampled at must be set")
	}
	return nil
}

// VolumeState is the persisted last-observed cumulative volume for one
// contract on one trading day. Keying by day makes the session reset
// implicit: a new day starts with no state.
type VolumeState struct {
	ContractCode string
	TradingDay   string // YYYY-MM-DD
	LastVolume   int64
	SeenAt       time.Time
}

// TradingDay formats t as a volume-state day key.
func TradingDay(t time.Time) string {
	return t.Format("2006-01-02")
}
