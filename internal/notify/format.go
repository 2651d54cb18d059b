package notify

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"optionwatch/internal/models"
)

// formatSummary renders the plain-text notification body shared by the
// webhook and console sinks.
func formatSummary(groups []models.UnderlyingGroup) string {
	var b strings.Builder
	b.WriteString("Big option trades detected\n")

	if len(groups) > 0 && len(groups[0].Top) > 0 {
		b.WriteString(fmt.Sprintf("Detected: %s\n", groups[0].Top[0].Snapshot.SampledAt.Format("2006-01-02 15:04:05")))
	}
	b.WriteString("\n")

	for i, g := range groups {
		name := g.UnderlyingName
		if name == "" {
			name = g.UnderlyingCode
		}
		b.WriteString(fmt.Sprintf("%d. %s: %d trade(s), total %s\n",
			i+1, name, g.Count, formatTurnover(g.TotalTurnover)))
		for _, t := range g.Top {
			b.WriteString("   " + formatTradeLine(t) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatTradeLine renders one trade as a single summary line.
func formatTradeLine(t models.AnalyzedTrade) string {
	desc := t.Snapshot.ContractCode
	if t.Contract.Valid {
		desc = fmt.Sprintf("%s %s %.2f %s",
			t.Contract.Kind, t.Contract.ExpiryDate.Format("2006-01-02"),
			t.Contract.StrikePrice, t.Analytics.Moneyness)
	}
	line := fmt.Sprintf("%s | vol +%s (%s total) | %s | score %d | risk %s",
		desc,
		humanize.Comma(t.VolumeDiff), humanize.Comma(t.Snapshot.Volume),
		formatTurnover(t.Snapshot.Turnover),
		t.ImportanceScore, t.RiskLevel)
	if !t.Analytics.Degenerate {
		line += fmt.Sprintf(" | IV %.1f%% Δ%.2f", t.Analytics.ImpliedVolatility, t.Analytics.Delta)
	}
	return line
}

func formatTurnover(d decimal.Decimal) string {
	return humanize.CommafWithDigits(d.InexactFloat64(), 0)
}
