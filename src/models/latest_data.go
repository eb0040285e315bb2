package models

// -----------------------------------------------------------------------------
// Server State Structure
// -----------------------------------------------------------------------------

type MLatestData struct {
	Type              string                          `json:"type"` // "INITIAL" or "UPDATE"
	Quotes            map[string]MQuote               `json:"quotes"`
	Candles           map[string]map[string][]MCandle `json:"candles"`
	Timestamp         int64                           `json:"timestamp"`
	ProcessingMetrics MProcessingMetrics              `json:"processing_metrics"`
}

// -----------------------------------------------------------------------------
// SubscribeCommand for client messages
// -----------------------------------------------------------------------------

type MSubscribeCommand struct {
	Command    string   `json:"command"`
	ClientType string   `json:"clientType"`
	Symbols    []string `json:"symbols"`
	Timeframe  string   `json:"timeframe"`
}

// MProcessingMetrics reports pipeline performance per update cycle.
type MProcessingMetrics struct {
	AggregationTimeSeconds float64 `json:"aggregation_time_seconds"`
	ValidSymbols           int     `json:"valid_symbols"`
	WindowsProcessed       int     `json:"windows_processed"`
}
