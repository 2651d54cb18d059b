package classifier

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"optionwatch/internal/config"
	"optionwatch/internal/models"
)

func baseTrade() models.AnalyzedTrade {
	return models.AnalyzedTrade{
		Snapshot: models.Snapshot{
			ContractCode:   "HK.TCH250919C670000",
			UnderlyingCode: "HK.TCH",
			LastPrice:      12.5,
			Volume:         60,
			Turnover:       decimal.NewFromInt(300000),
			SampledAt:      time.Now(),
		},
		Contract: models.ContractIdentifier{
			UnderlyingCode: "HK.TCH",
			StrikePrice:    670,
			Kind:           models.Call,
			Valid:          true,
		},
		Analytics:    models.Analytics{Moneyness: models.OTM, ImpliedVolatility: 28},
		DaysToExpiry: 18,
		VolumeDiff:   30,
	}
}

func defaultFilter() config.FilterConfig {
	return config.FilterConfig{
		MinVolume:       20,
		MinTurnover:     50000,
		MaxDaysToExpiry: 365,
		Kinds:           []string{"Call", "Put"},
	}
}

func TestClassifyBigTradeGate(t *testing.T) {
	f := defaultFilter()

	tr := baseTrade()
	Classify(&tr, f)
	assert.True(t, tr.IsBigTrade)

	small := baseTrade()
	small.Snapshot.Volume = 19
	Classify(&small, f)
	assert.False(t, small.IsBigTrade, "volume below threshold")

	thin := baseTrade()
	thin.Snapshot.Turnover = decimal.NewFromInt(49999)
	Classify(&thin, f)
	assert.False(t, thin.IsBigTrade, "turnover below threshold")

	// Both gates must hold simultaneously.
	edge := baseTrade()
	edge.Snapshot.Volume = 20
	edge.Snapshot.Turnover = decimal.NewFromInt(50000)
	Classify(&edge, f)
	assert.True(t, edge.IsBigTrade)
}

func TestScoreMonotonicInVolume(t *testing.T) {
	prev := -1
	for _, v := range []int64{5, 10, 19, 20, 49, 50, 99, 100, 500} {
		tr := baseTrade()
		tr.Snapshot.Volume = v
		s := Score(tr)
		assert.GreaterOrEqual(t, s, prev, "volume %d", v)
		prev = s
	}
}

func TestScoreMonotonicInTurnover(t *testing.T) {
	prev := -1
	for _, to := range []int64{5000, 10000, 50000, 100000, 500000, 1000000, 5000000} {
		tr := baseTrade()
		tr.Snapshot.Turnover = decimal.NewFromInt(to)
		s := Score(tr)
		assert.GreaterOrEqual(t, s, prev, "turnover %d", to)
		prev = s
	}
}

func TestScoreCappedAt100(t *testing.T) {
	tr := baseTrade()
	tr.Snapshot.Volume = 10000
	tr.Snapshot.Turnover = decimal.NewFromInt(50000000)
	tr.DaysToExpiry = 3
	tr.Analytics.Moneyness = models.ATM
	tr.VolumeDiff = 500
	assert.Equal(t, 100, Score(tr))
}

func TestScoreComposition(t *testing.T) {
	tr := baseTrade()
	// volume 60 -> 30, turnover 300k -> 20, 18d -> 10, OTM -> 5, diff>0 -> 5
	assert.Equal(t, 70, Score(tr))

	noDiff := baseTrade()
	noDiff.VolumeDiff = 0
	assert.Equal(t, 65, Score(noDiff))
}

func TestRiskLevels(t *testing.T) {
	low := baseTrade()
	low.DaysToExpiry = 120
	low.Analytics.Moneyness = models.ITM
	low.Analytics.ImpliedVolatility = 20
	low.Snapshot.Volume = 200
	assert.Equal(t, models.RiskLow, Risk(low))

	// 18d (+2), OTM (+2), IV 28 (0), volume 60 (0) = 4 points.
	med := baseTrade()
	med.Snapshot.Volume = 60
	assert.Equal(t, models.RiskMedium, Risk(med))

	high := baseTrade()
	high.DaysToExpiry = 3
	high.Analytics.ImpliedVolatility = 65
	high.Snapshot.Volume = 5
	assert.Equal(t, models.RiskHigh, Risk(high))
}

func TestPassesFilterGates(t *testing.T) {
	f := defaultFilter()

	tr := baseTrade()
	Classify(&tr, f)
	assert.True(t, PassesFilter(tr, f))

	cheap := tr
	cheap.Snapshot.LastPrice = 0.005
	f2 := f
	f2.MinPrice = 0.01
	assert.False(t, PassesFilter(cheap, f2))

	capped := tr
	capped.Snapshot.LastPrice = 200
	f3 := f
	f3.MaxPrice = 100
	assert.False(t, PassesFilter(capped, f3))

	far := tr
	far.DaysToExpiry = 400
	assert.False(t, PassesFilter(far, f))

	callsOnly := f
	callsOnly.Kinds = []string{"Call"}
	put := tr
	put.Contract.Kind = models.Put
	assert.False(t, PassesFilter(put, callsOnly))
	assert.True(t, PassesFilter(tr, callsOnly))

	floor := f
	floor.MinImportanceScore = 90
	assert.False(t, PassesFilter(tr, floor))
}
