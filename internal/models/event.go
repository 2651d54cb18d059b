package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Event is one detected volume delta eligible for notification. ID is
// deterministic over the observation so an identical snapshot can never
// produce two distinct events.
type Event struct {
	ID             string
	ContractCode   string
	UnderlyingCode string
	VolumeDiff     int64
	Turnover       decimal.Decimal
	DetectedAt     time.Time
}

// EventID derives the stable dedup key for an observation. The turnover is
// truncated to whole units and the timestamp to seconds so re-reading the
// same sample formats identically.
func EventID(contractCode string, volume int64, turnover decimal.Decimal, sampledAt time.Time) string {
	return fmt.Sprintf("%s_%d_%d_%d", contractCode, volume, turnover.IntPart(), sampledAt.Unix())
}

// NewEvent builds the notification event for an analyzed trade.
func NewEvent(t AnalyzedTrade) Event {
	return Event{
		ID:             EventID(t.Snapshot.ContractCode, t.Snapshot.Volume, t.Snapshot.Turnover, t.Snapshot.SampledAt),
		ContractCode:   t.Snapshot.ContractCode,
		UnderlyingCode: t.Snapshot.UnderlyingCode,
		VolumeDiff:     t.VolumeDiff,
		Turnover:       t.Snapshot.Turnover,
		DetectedAt:     t.Snapshot.SampledAt,
	}
}

// UnderlyingGroup aggregates the eligible trades of one underlying for a
// single dispatch cycle. Top holds at most the three largest trades by
// turnover; Count and TotalTurnover cover every member.
type UnderlyingGroup struct {
	UnderlyingCode string
	UnderlyingName string
	Count          int
	TotalTurnover  decimal.Decimal
	Top            []AnalyzedTrade
}
