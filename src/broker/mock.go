package broker

import (
	"time"

	"bpsalgo/src/models"
)

// Placeholder prices keyed by the default index symbols. Unknown symbols get
// a flat synthetic quote.
var mockBase = map[string]float64{
	"NIFTY50":   22500.00,
	"BANKNIFTY": 48250.00,
	"FINNIFTY":  21400.00,
	"GIFTNIFTY": 22550.00,
	"SENSEX":    74100.00,
}

// -----------------------------------------------------------------------------

func mockQuote(symbol string) models.MQuote {
	base, ok := mockBase[symbol]
	if !ok {
		base = 100.00
	}

	now := time.Now().Unix()
	return models.MQuote{
		Symbol:    symbol,
		LTP:       base,
		Open:      base * 0.998,
		High:      base * 1.004,
		Low:       base * 0.995,
		Close:     base,
		PrevClose: base * 0.997,
		Volume:    0,
		Change:    base * 0.003,
		ChangePct: 0.3,
		Bid:       base * 0.9995,
		Ask:       base * 1.0005,
		Timestamp: now,
		FetchedAt: now,
		Mock:      true,
	}
}

// -----------------------------------------------------------------------------

func mockQuotes(symbols []string) map[string]models.MQuote {
	out := make(map[string]models.MQuote, len(symbols))
	for _, s := range symbols {
		out[s] = mockQuote(s)
	}
	return out
}

// -----------------------------------------------------------------------------

func mockAccountInfo(account string) models.MAccountInfo {
	if account == "" {
		account = "default"
	}
	return models.MAccountInfo{
		AccountID:   account,
		Balance:     100000.00,
		BuyingPower: 200000.00,
		Mock:        true,
	}
}
