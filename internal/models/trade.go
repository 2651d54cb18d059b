package models

// Analytics holds the derived valuation figures for one snapshot. A
// degenerate input (expired contract, missing spot) yields the zero value
// with Degenerate=true rather than an error; classification still runs on
// volume and turnover alone.
type Analytics struct {
	Degenerate        bool
	ImpliedVolatility float64 // percent
	Delta             float64
	Gamma             float64
	Theta             float64 // per day
	Vega              float64 // per 1% vol move
	IntrinsicValue    float64
	TimeValue         float64
	Moneyness         Moneyness
}

// AnalyzedTrade is one fully processed contract observation: the snapshot,
// its decoded identifier, the valuation analytics, and the classifier
// outputs. Derived and read-only, one per poll cycle per contract.
type AnalyzedTrade struct {
	Snapshot  Snapshot
	Contract  ContractIdentifier
	SpotPrice float64
	Analytics Analytics

	DaysToExpiry    int
	IsBigTrade      bool
	ImportanceScore int
	RiskLevel       RiskLevel

	VolumeDiff int64
	PrevVolume int64
}
