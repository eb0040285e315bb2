package datasource

import (
	"strings"
	"testing"

	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

func newTestYahooSource() *YahooSource {
	cfg := &models.MConfig{
		DataSource: models.MDataSourceConfig{
			DataRetentionDays:     7,
			UpdateIntervalSeconds: 5,
			DefaultSymbols:        []string{"NIFTY50"},
		},
		Network: models.MNetworkConfig{ConcurrentRequests: 2},
	}
	return NewYahooSource(cfg, nil, logger.NewLogger("ERROR", "test"))
}

const chartJSON = `{
  "chart": {
    "result": [{
      "meta": {"symbol": "^NSEI", "regularMarketPrice": 22750.0, "chartPreviousClose": 22500.0},
      "timestamp": [1700000060, 1700000000, 1700000120],
      "indicators": {
        "quote": [{
          "open":   [22710.0, 22700.0, 22720.0],
          "high":   [22760.0, 22755.0, 22765.0],
          "low":    [22705.0, 22695.0, 22710.0],
          "close":  [22750.0, 22740.0, 22760.0],
          "volume": [1000, 900, 1100]
        }]
      }
    }],
    "error": null
  }
}`

// -----------------------------------------------------------------------------

func TestParseChartResponse(t *testing.T) {
	s := newTestYahooSource()

	quotes, err := s.parseChartResponse("NIFTY50", []byte(chartJSON))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("got %d quotes, want 3", len(quotes))
	}

	// Sorted by exchange timestamp.
	if quotes[0].Timestamp != 1700000000 || quotes[2].Timestamp != 1700000120 {
		t.Errorf("order = [%d..%d]", quotes[0].Timestamp, quotes[2].Timestamp)
	}

	q := quotes[0]
	if q.Symbol != "NIFTY50" || q.LTP != 22740.0 || q.Close != 22740.0 {
		t.Errorf("quote = %+v", q)
	}
	if q.PrevClose != 22500.0 {
		t.Errorf("prev close = %v", q.PrevClose)
	}
	if q.Change != 240.0 {
		t.Errorf("change = %v, want 240", q.Change)
	}
	// Change expressed in percent of the previous session close.
	wantPct := 240.0 / 22500.0 * 100.0
	if q.ChangePct != wantPct {
		t.Errorf("change pct = %v, want %v", q.ChangePct, wantPct)
	}
	if q.FetchedAt == 0 {
		t.Error("FetchedAt not stamped")
	}
}

func TestParseChartResponseSkipsNullPoints(t *testing.T) {
	s := newTestYahooSource()

	payload := `{
	  "chart": {
	    "result": [{
	      "meta": {"chartPreviousClose": 100.0},
	      "timestamp": [1, 2, 3],
	      "indicators": {"quote": [{
	        "open":   [100.0, null, 102.0],
	        "high":   [101.0, 101.5, 103.0],
	        "low":    [99.0, 99.5, 101.0],
	        "close":  [100.5, 101.0, 102.5],
	        "volume": [10, 20, 30]
	      }]}
	    }],
	    "error": null
	  }
	}`

	quotes, err := s.parseChartResponse("TEST", []byte(payload))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(quotes) != 2 {
		t.Errorf("got %d quotes, want 2 (null point skipped)", len(quotes))
	}
}

func TestParseChartResponseErrors(t *testing.T) {
	s := newTestYahooSource()

	tests := []struct {
		name    string
		payload string
		wantErr string
	}{
		{
			"api error",
			`{"chart": {"result": null, "error": {"code": "Not Found", "description": "No data found"}}}`,
			"chart api error",
		},
		{
			"empty result",
			`{"chart": {"result": [], "error": null}}`,
			"no result",
		},
		{
			"misaligned arrays",
			`{"chart": {"result": [{"meta": {}, "timestamp": [1, 2],
			  "indicators": {"quote": [{"open": [1.0], "high": [1.0], "low": [1.0], "close": [1.0], "volume": [1]}]}}], "error": null}}`,
			"alignment",
		},
		{
			"not json",
			`<html>backoff</html>`,
			"unmarshal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.parseChartResponse("TEST", []byte(tt.payload))
			if err == nil {
				t.Fatal("parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestYahooSourceMetadata(t *testing.T) {
	s := newTestYahooSource()

	if s.Name() != "yahoo" {
		t.Errorf("Name = %q", s.Name())
	}
	if s.IsRealTime() {
		t.Error("polling source claims to be real-time")
	}
}
