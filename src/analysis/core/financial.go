package core

import "math"

// -----------------------------------------------------------------------------

// OHLCV holds the aggregated values of a single window.
type OHLCV struct {
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
	AvgPrice float64
}

// -----------------------------------------------------------------------------

// ComputeOHLCV calculates OHLCV and AvgPrice from price/volume arrays.
func ComputeOHLCV(prices []float64, volumes []float64) OHLCV {
	if len(prices) == 0 {
		return OHLCV{}
	}

	out := OHLCV{
		Open:  prices[0],
		Close: prices[len(prices)-1],
		High:  -1.0,
		Low:   math.MaxFloat64,
	}

	sumPrice := 0.0
	for i, p := range prices {
		if p > out.High {
			out.High = p
		}
		if p < out.Low {
			out.Low = p
		}
		out.Volume += volumes[i]
		sumPrice += p
	}

	out.AvgPrice = sumPrice / float64(len(prices))

	return out
}

// -----------------------------------------------------------------------------

// CalculateChangePercent calculates percentage change (in percent, not ratio).
func CalculateChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous * 100.0
}

// -----------------------------------------------------------------------------

// CalculateRangePercent computes the high-low range as a percent of the low.
func CalculateRangePercent(high, low float64) float64 {
	if low <= 0 {
		return 0.0
	}
	return (high - low) / low * 100.0
}
