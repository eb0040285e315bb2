package analysis

import (
	"sort"

	"bpsalgo/src/analysis/core"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// Scanner flags intraday opportunities from the latest quote snapshot.
// -----------------------------------------------------------------------------

const (
	// OpportunityHighVolatility marks symbols whose day range exceeds the threshold.
	OpportunityHighVolatility = "HIGH_VOLATILITY"

	// Day range (high-low over low) in percent above which a symbol is flagged.
	highVolatilityRangePct = 2.0

	// Score normalisation divisor. A 10% range scores 2.0.
	scoreDivisor = 5.0
)

// -----------------------------------------------------------------------------

// ScanOpportunities checks each quote's intraday range and returns the hits
// sorted by score, highest first.
func ScanOpportunities(quotes map[string]models.MQuote) []models.MOpportunity {
	var out []models.MOpportunity

	for symbol, q := range quotes {
		if q.High <= 0 || q.Low <= 0 {
			continue
		}

		rangePct := core.CalculateRangePercent(q.High, q.Low)
		if rangePct <= highVolatilityRangePct {
			continue
		}

		out = append(out, models.MOpportunity{
			Symbol:   symbol,
			Type:     OpportunityHighVolatility,
			LTP:      q.LTP,
			RangePct: rangePct,
			Score:    rangePct / scoreDivisor,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	return out
}
