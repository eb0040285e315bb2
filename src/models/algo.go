package models

import "time"

// Algo agent lifecycle states.
const (
	AlgoStatusRunning = "RUNNING"
	AlgoStatusStopped = "STOPPED"
)

// MAlgoStatus is the /api/algo/status payload.
type MAlgoStatus struct {
	Status        string   `json:"status"`
	IsRunning     bool     `json:"is_running"`
	LastExecution string   `json:"last_execution,omitempty"`
	TradeCount    int      `json:"trade_count"`
	RecentLogs    []string `json:"recent_logs"`
}

// MSignal is a trading signal detected by the algo agent.
type MSignal struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"` // "BUY" or "SELL"
	ChangePct float64   `json:"change_pct"`
	LTP       float64   `json:"ltp"`
	At        time.Time `json:"at"`
}

// MOrder is a paper order recorded by the algo agent.
type MOrder struct {
	OrderID  string    `json:"order_id"`
	Symbol   string    `json:"symbol"`
	Side     string    `json:"side"`
	Quantity int       `json:"quantity"`
	Price    float64   `json:"price"`
	Status   string    `json:"status"`
	PlacedAt time.Time `json:"placed_at"`
}

// MOpportunity is a market-scanner hit.
type MOpportunity struct {
	Symbol   string  `json:"symbol"`
	Type     string  `json:"type"` // e.g. "HIGH_VOLATILITY"
	LTP      float64 `json:"ltp"`
	RangePct float64 `json:"range_percent"`
	Score    float64 `json:"score"`
}

// MAccountInfo mirrors the broker account endpoint.
type MAccountInfo struct {
	AccountID   string  `json:"account_id"`
	Balance     float64 `json:"balance"`
	BuyingPower float64 `json:"buying_power"`
	Mock        bool    `json:"mock,omitempty"`
}
