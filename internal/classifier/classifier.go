// Package classifier grades analyzed trades: big-trade gating, importance
// scoring, and risk bucketing against per-underlying thresholds.
package classifier

import (
	"github.com/shopspring/decimal"

	"optionwatch/internal/config"
	"optionwatch/internal/models"
)

// Classify fills the classifier outputs on t using the resolved filter.
func Classify(t *models.AnalyzedTrade, f config.FilterConfig) {
	minTurnover := decimal.NewFromFloat(f.MinTurnover)
	t.IsBigTrade = t.Snapshot.Volume >= f.MinVolume &&
		t.Snapshot.Turnover.GreaterThanOrEqual(minTurnover)
	t.ImportanceScore = Score(*t)
	t.RiskLevel = Risk(*t)
}

// PassesFilter applies the hard eligibility gates: price range, expiry
// window, enabled kinds, and the importance floor. Trades failing any gate
// are dropped before dispatch.
func PassesFilter(t models.AnalyzedTrade, f config.FilterConfig) bool {
	if t.Snapshot.LastPrice < f.MinPrice {
		return false
	}
	if f.MaxPrice > 0 && t.Snapshot.LastPrice > f.MaxPrice {
		return false
	}
	if t.Contract.Valid {
		if t.DaysToExpiry < f.MinDaysToExpiry || t.DaysToExpiry > f.MaxDaysToExpiry {
			return false
		}
		if !kindEnabled(t.Contract.Kind, f.Kinds) {
			return false
		}
	}
	return t.ImportanceScore >= f.MinImportanceScore
}

func kindEnabled(k models.Kind, kinds []string) bool {
	for _, s := range kinds {
		if s == string(k) {
			return true
		}
	}
	return false
}

// Score rates a trade 0-100. Volume and turnover dominate; proximity to
// expiry, moneyness, and a fresh volume delta add the rest.
func Score(t models.AnalyzedTrade) int {
	score := 0

	switch v := t.Snapshot.Volume; {
	case v >= 100:
		score += 40
	case v >= 50:
		score += 30
	case v >= 20:
		score += 20
	case v >= 10:
		score += 10
	}

	switch to := t.Snapshot.Turnover; {
	case to.GreaterThanOrEqual(decimal.NewFromInt(1000000)):
		score += 30
	case to.GreaterThanOrEqual(decimal.NewFromInt(500000)):
		score += 25
	case to.GreaterThanOrEqual(decimal.NewFromInt(100000)):
		score += 20
	case to.GreaterThanOrEqual(decimal.NewFromInt(50000)):
		score += 15
	case to.GreaterThanOrEqual(decimal.NewFromInt(10000)):
		score += 10
	}

	if t.Contract.Valid {
		switch d := t.DaysToExpiry; {
		case d <= 7:
			score += 15
		case d <= 30:
			score += 10
		case d <= 90:
			score += 5
		}
	}

	switch t.Analytics.Moneyness {
	case models.ATM:
		score += 10
	case models.ITM:
		score += 8
	case models.OTM:
		score += 5
	}

	if t.VolumeDiff > 0 {
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Risk buckets a trade by additive risk points: near expiry, out of the
// money, elevated implied volatility, and thin volume all raise it.
func Risk(t models.AnalyzedTrade) models.RiskLevel {
	points := 0

	if t.Contract.Valid {
		switch d := t.DaysToExpiry; {
		case d <= 7:
			points += 3
		case d <= 30:
			points += 2
		case d <= 90:
			points += 1
		}
	}

	switch t.Analytics.Moneyness {
	case models.OTM:
		points += 2
	case models.ATM:
		points++
	}

	switch iv := t.Analytics.ImpliedVolatility; {
	case iv > 50:
		points += 2
	case iv > 30:
		points++
	}

	switch v := t.Snapshot.Volume; {
	case v < 10:
		points += 2
	case v < 50:
		points++
	}

	switch {
	case points >= 6:
		return models.RiskHigh
	case points >= 3:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}
