// Package models defines the core domain entities: contracts, snapshots,
// analyzed trades, and notification events.
package models

import "time"

// Kind is the option contract kind.
type Kind string

const (
	Call Kind = "Call"
	Put  Kind = "Put"
)

// Moneyness relates the underlying spot price to the strike.
type Moneyness string

const (
	ITM Moneyness = "ITM"
	ATM Moneyness = "ATM"
	OTM Moneyness = "OTM"
)

// RiskLevel is the classifier's coarse risk bucket.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Confidence flags how the strike-price scale factor was chosen. The scale
// is not self-describing in the contract code, so decoded strikes carry a
// confidence marker for downstream display and debugging.
type Confidence string

const (
	ConfidenceHigh Confidence = "high" // symbol found in the known-scale table
	ConfidenceLow  Confidence = "low"  // scale inferred from token magnitude
)

// ContractIdentifier is the decoded form of an opaque option contract code,
// e.g. "HK.TCH250919C670000". Immutable once parsed. When Valid is false all
// other fields are zero; the decoder never returns partial data.
type ContractIdentifier struct {
	UnderlyingCode  string
	StrikePrice     float64
	ExpiryDate      time.Time
	Kind            Kind
	RawCode         string
	Valid           bool
	ScaleConfidence Confidence
}

// DaysToExpiry returns whole days from now until expiry, clamped at zero.
func (c ContractIdentifier) DaysToExpiry(now time.Time) int {
	if !c.Valid {
		return 0
	}
	days := int(c.ExpiryDate.Sub(now).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
