package models

import "time"

// MQuote represents a live market quote for one symbol.
// Timestamp is the exchange timestamp; FetchedAt is local receive time.
type MQuote struct {
	Symbol    string  `json:"symbol"`
	LTP       float64 `json:"ltp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	PrevClose float64 `json:"prev_close"`
	Volume    float64 `json:"volume"`
	Change    float64 `json:"change"`
	ChangePct float64 `json:"change_pct"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"`
	FetchedAt int64   `json:"fetched_at"`
	Mock      bool    `json:"mock,omitempty"`
}

// MCandle represents an aggregated OHLCV bar for a time window.
type MCandle struct {
	Symbol     string    `json:"symbol"`
	WindowName string    `json:"window_name"` // e.g., "1m", "5m"
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Close      float64   `json:"close"`
	Volume     float64   `json:"volume"`
	AvgPrice   float64   `json:"avg_price"`
	ChangePct  float64   `json:"change_pct"`
	StartTime  int64     `json:"start_time"`
	EndTime    int64     `json:"end_time"`
	DataPoints int       `json:"data_points"`
	CreatedAt  time.Time `json:"created_at"`
}

// MInstrument is one row of the broker instrument master.
type MInstrument struct {
	Symbol          string  `json:"symbol"`
	Name            string  `json:"name"`
	Exchange        string  `json:"exchange"`
	Type            string  `json:"type"`
	Token           int     `json:"token"` // instrument token used on the WS feed
	PopularityScore float64 `json:"popularity_score"`
}
