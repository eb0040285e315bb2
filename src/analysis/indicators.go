package analysis

import (
	"math"

	"bpsalgo/src/analysis/core"
)

// -----------------------------------------------------------------------------
// Technical indicators computed over close-price series (oldest first).
// -----------------------------------------------------------------------------

// MIndicators bundles the standard indicator set for one symbol.
type MIndicators struct {
	Symbol     string  `json:"symbol"`
	SMA20      float64 `json:"sma_20"`
	EMA20      float64 `json:"ema_20"`
	RSI14      float64 `json:"rsi_14"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDHist   float64 `json:"macd_hist"`
	BBUpper    float64 `json:"bb_upper"`
	BBMiddle   float64 `json:"bb_middle"`
	BBLower    float64 `json:"bb_lower"`
	DataPoints int     `json:"data_points"`
}

// -----------------------------------------------------------------------------

// SMA computes the simple moving average of the last period values.
func SMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}

	sum := 0.0
	for _, p := range prices[len(prices)-period:] {
		sum += p
	}
	return sum / float64(period)
}

// -----------------------------------------------------------------------------

// EMA computes the exponential moving average over the whole series,
// seeded with the SMA of the first period values.
func EMA(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period {
		return 0
	}

	series := emaSeries(prices, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func emaSeries(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	k := 2.0 / (float64(period) + 1.0)

	seed := 0.0
	for _, p := range prices[:period] {
		seed += p
	}
	seed /= float64(period)

	out := make([]float64, 0, len(prices)-period+1)
	out = append(out, seed)

	prev := seed
	for _, p := range prices[period:] {
		prev = (p-prev)*k + prev
		out = append(out, prev)
	}
	return out
}

// -----------------------------------------------------------------------------

// RSI computes the Relative Strength Index using Wilder's smoothing.
// Returns 50 when the series is too short to say anything.
func RSI(prices []float64, period int) float64 {
	if period <= 0 || len(prices) < period+1 {
		return 50.0
	}

	avgGain := 0.0
	avgLoss := 0.0

	for i := 1; i <= period; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	for i := period + 1; i < len(prices); i++ {
		delta := prices[i] - prices[i-1]
		gain := 0.0
		loss := 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// -----------------------------------------------------------------------------

// MACD computes MACD(12,26) with a 9-period signal line.
// Returns macd, signal and histogram values for the latest point.
func MACD(prices []float64) (float64, float64, float64) {
	const (
		fastPeriod   = 12
		slowPeriod   = 26
		signalPeriod = 9
	)

	if len(prices) < slowPeriod+signalPeriod {
		return 0, 0, 0
	}

	fast := emaSeries(prices, fastPeriod)
	slow := emaSeries(prices, slowPeriod)

	// Align the two series on their tails
	offset := len(fast) - len(slow)
	macdLine := make([]float64, len(slow))
	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	signal := emaSeries(macdLine, signalPeriod)
	if len(signal) == 0 {
		return 0, 0, 0
	}

	macd := macdLine[len(macdLine)-1]
	sig := signal[len(signal)-1]
	return macd, sig, macd - sig
}

// -----------------------------------------------------------------------------

// Bollinger computes 20-period Bollinger Bands with 2 standard deviations.
func Bollinger(prices []float64, period int, numStd float64) (float64, float64, float64) {
	if period <= 0 || len(prices) < period {
		return 0, 0, 0
	}

	window := prices[len(prices)-period:]
	mean, std := core.CalculateMeanStd(window)

	return mean + numStd*std, mean, mean - numStd*std
}

// -----------------------------------------------------------------------------

// ComputeIndicators calculates the full indicator set from a close series.
func ComputeIndicators(symbol string, closes []float64) MIndicators {
	macd, sig, hist := MACD(closes)
	upper, middle, lower := Bollinger(closes, 20, 2.0)

	out := MIndicators{
		Symbol:     symbol,
		SMA20:      SMA(closes, 20),
		EMA20:      EMA(closes, 20),
		RSI14:      RSI(closes, 14),
		MACD:       macd,
		MACDSignal: sig,
		MACDHist:   hist,
		BBUpper:    upper,
		BBMiddle:   middle,
		BBLower:    lower,
		DataPoints: len(closes),
	}

	// Scrub NaNs before the values hit JSON
	for _, v := range []*float64{
		&out.SMA20, &out.EMA20, &out.RSI14,
		&out.MACD, &out.MACDSignal, &out.MACDHist,
		&out.BBUpper, &out.BBMiddle, &out.BBLower,
	} {
		if math.IsNaN(*v) || math.IsInf(*v, 0) {
			*v = 0
		}
	}

	return out
}
