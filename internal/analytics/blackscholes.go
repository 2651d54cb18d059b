// Package analytics derives implied volatility, Greeks, and moneyness for
// observed option prices using the Black-Scholes model.
package analytics

import (
	"math"

	"optionwatch/internal/models"
)

const (
	// RiskFreeRate is the annualized rate used for all valuations.
	RiskFreeRate = 0.03

	ivInitialGuess = 0.30
	ivMin          = 0.01
	ivMax          = 5.0
	ivMaxIter      = 10
	ivPriceTol     = 0.001
	ivVegaFloor    = 1e-6

	// atmBand is the relative spot/strike band treated as at-the-money.
	atmBand = 0.02
)

// Inputs are the observables needed to value one contract.
type Inputs struct {
	Spot          float64
	Strike        float64
	DaysToExpiry  int
	Kind          models.Kind
	ObservedPrice float64
}

// Compute values the contract. Inputs that cannot be priced (expired, no
// spot, no observed premium) return a result with Degenerate=true; intrinsic
// value and moneyness are still filled when spot and strike allow it.
func Compute(in Inputs) models.Analytics {
	out := models.Analytics{}

	if in.Spot > 0 && in.Strike > 0 {
		out.IntrinsicValue = intrinsic(in.Spot, in.Strike, in.Kind)
		out.Moneyness = Classify(in.Spot, in.Strike, in.Kind)
		if in.ObservedPrice > 0 {
			out.TimeValue = math.Max(0, in.ObservedPrice-out.IntrinsicValue)
		}
	}

	if in.Spot <= 0 || in.Strike <= 0 || in.ObservedPrice <= 0 || in.DaysToExpiry <= 0 {
		out.Degenerate = true
		return out
	}

	t := float64(in.DaysToExpiry) / 365.0
	sigma := impliedVolatility(in.Spot, in.Strike, t, in.ObservedPrice, in.Kind)

	d1 := (math.Log(in.Spot/in.Strike) + (RiskFreeRate+sigma*sigma/2)*t) / (sigma * math.Sqrt(t))
	d2 := d1 - sigma*math.Sqrt(t)
	discount := math.Exp(-RiskFreeRate * t)

	out.ImpliedVolatility = sigma * 100
	out.Gamma = normPDF(d1) / (in.Spot * sigma * math.Sqrt(t))
	out.Vega = in.Spot * normPDF(d1) * math.Sqrt(t) / 100

	if in.Kind == models.Call {
		out.Delta = normCDF(d1)
		out.Theta = (-in.Spot*normPDF(d1)*sigma/(2*math.Sqrt(t)) -
			RiskFreeRate*in.Strike*discount*normCDF(d2)) / 365
	} else {
		out.Delta = normCDF(d1) - 1
		out.Theta = (-in.Spot*normPDF(d1)*sigma/(2*math.Sqrt(t)) +
			RiskFreeRate*in.Strike*discount*normCDF(-d2)) / 365
	}
	return out
}

// Classify buckets the spot/strike relation. Spot within atmBand of the
// strike is ATM; beyond that the call/put direction decides ITM vs OTM.
func Classify(spot, strike float64, kind models.Kind) models.Moneyness {
	switch {
	case spot > strike*(1+atmBand):
		if kind == models.Call {
			return models.ITM
		}
		return models.OTM
	case spot < strike*(1-atmBand):
		if kind == models.Call {
			return models.OTM
		}
		return models.ITM
	default:
		return models.ATM
	}
}

// impliedVolatility inverts Black-Scholes with Newton-Raphson. The estimate
// is clamped to [ivMin, ivMax] each step; when vega collapses or the
// iteration cap is hit the last estimate is returned as-is.
func impliedVolatility(spot, strike, t, observed float64, kind models.Kind) float64 {
	sigma := ivInitialGuess
	for i := 0; i < ivMaxIter; i++ {
		theo := price(spot, strike, t, sigma, kind)
		diff := theo - observed
		if math.Abs(diff) < ivPriceTol {
			break
		}
		v := vega(spot, strike, t, sigma)
		if v < ivVegaFloor {
			break
		}
		sigma -= diff / v
		if sigma < ivMin {
			sigma = ivMin
		} else if sigma > ivMax {
			sigma = ivMax
		}
	}
	return sigma
}

// price is the Black-Scholes theoretical premium.
func price(spot, strike, t, sigma float64, kind models.Kind) float64 {
	d1 := (math.Log(spot/strike) + (RiskFreeRate+sigma*sigma/2)*t) / (sigma * math.Sqrt(t))
	d2 := d1 - sigma*math.Sqrt(t)
	discount := math.Exp(-RiskFreeRate * t)
	if kind == models.Call {
		return spot*normCDF(d1) - strike*discount*normCDF(d2)
	}
	return strike*discount*normCDF(-d2) - spot*normCDF(-d1)
}

func vega(spot, strike, t, sigma float64) float64 {
	d1 := (math.Log(spot/strike) + (RiskFreeRate+sigma*sigma/2)*t) / (sigma * math.Sqrt(t))
	return spot * normPDF(d1) * math.Sqrt(t)
}

func intrinsic(spot, strike float64, kind models.Kind) float64 {
	if kind == models.Call {
		return math.Max(0, spot-strike)
	}
	return math.Max(0, strike-spot)
}

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}
