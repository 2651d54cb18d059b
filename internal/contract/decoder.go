// Package contract decodes opaque option contract codes into structured
// identifiers.
package contract

import (
	"regexp"
	"strconv"
	"time"

	"optionwatch/internal/models"
)

// Contract codes look like "HK.TCH250919C670000": an optional market prefix,
// a 2-5 letter underlying symbol, a YYMMDD expiry, a C/P kind letter, and a
// strike token whose implied decimal scale is not encoded anywhere.
var codePattern = regexp.MustCompile(`^(?:([A-Z]{2})\.)?([A-Z]{2,5})(\d{6})([CP])(\d+)$`)

// Symbols with a known strike scale. High-priced underlyings encode strikes
// in thousandths, low-priced ones in ten-thousandths.
var (
	scaleThousand = map[string]bool{
		"TCH": true, "HEX": true, "MEI": true, "JDC": true, "ALI": true,
	}
	scaleTenThousand = map[string]bool{
		"BIU": true, "KUA": true, "ZMI": true,
	}
)

// Decode parses a raw contract code. Any malformed input yields an
// identifier with Valid=false and only RawCode set; callers never see
// partially decoded data.
func Decode(raw string) models.ContractIdentifier {
	invalid := models.ContractIdentifier{RawCode: raw}

	m := codePattern.FindStringSubmatch(raw)
	if m == nil {
		return invalid
	}
	market, symbol, dateTok, kindTok, strikeTok := m[1], m[2], m[3], m[4], m[5]

	expiry, err := time.Parse("060102", dateTok)
	if err != nil {
		return invalid
	}

	token, err := strconv.ParseInt(strikeTok, 10, 64)
	if err != nil || token <= 0 {
		return invalid
	}
	scale, confidence := inferStrikeScale(symbol, strikeTok, token)

	kind := models.Call
	if kindTok == "P" {
		kind = models.Put
	}

	underlying := symbol
	if market != "" {
		underlying = market + "." + symbol
	}

	return models.ContractIdentifier{
		UnderlyingCode:  underlying,
		StrikePrice:     float64(token) / float64(scale),
		ExpiryDate:      expiry,
		Kind:            kind,
		RawCode:         raw,
		Valid:           true,
		ScaleConfidence: confidence,
	}
}

// inferStrikeScale picks the divisor that converts a strike token to a
// price. Known symbols use the static tables; for everything else a long
// token with a large value is assumed to be a high-priced strike in
// thousandths, the rest ten-thousandths.
func inferStrikeScale(symbol, token string, value int64) (int64, models.Confidence) {
	switch {
	case scaleThousand[symbol]:
		return 1000, models.ConfidenceHigh
	case scaleTenThousand[symbol]:
		return 10000, models.ConfidenceHigh
	case len(token) >= 6 && value >= 500000:
		return 1000, models.ConfidenceLow
	default:
		return 10000, models.ConfidenceLow
	}
}
