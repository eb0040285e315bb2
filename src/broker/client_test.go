package broker

import (
	"fmt"
	"strings"
	"testing"

	"bpsalgo/src/auth"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------

type fakeNetwork struct {
	getResp  string
	postResp string
	err      error
	lastURL  string
}

func (f *fakeNetwork) Get(url string, params map[string]string, headers map[string]string) ([]byte, error) {
	f.lastURL = url
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.getResp), nil
}

func (f *fakeNetwork) Post(url string, body interface{}, headers map[string]string) ([]byte, error) {
	f.lastURL = url
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.postResp), nil
}

// -----------------------------------------------------------------------------

func newTestClient(net *fakeNetwork) *Client {
	cfg := &models.MConfig{Broker: models.MBrokerConfig{
		BaseURL: "https://api.test.example",
		Account: "MA0000001",
	}}
	log := logger.NewLogger("ERROR", "test")
	session := auth.NewSessionManager(cfg, "key", "user", "pass", net, log)
	return NewClient(cfg, session, net, log)
}

// -----------------------------------------------------------------------------

func TestGetLiveQuotesParsesResponse(t *testing.T) {
	net := &fakeNetwork{getResp: `{"success": true, "data": [
		{"symbol": "reliance", "ltp": 2950.5, "change_pct": 1.2, "timestamp": 1700000000},
		{"symbol": "TCS", "ltp": 4100.0}
	]}`}
	c := newTestClient(net)

	quotes, err := c.GetLiveQuotes([]string{"RELIANCE", "TCS"})
	if err != nil {
		t.Fatalf("GetLiveQuotes failed: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}

	q := quotes["RELIANCE"]
	if q.LTP != 2950.5 || q.Timestamp != 1700000000 || q.Mock {
		t.Errorf("RELIANCE quote = %+v", q)
	}
	// Symbol upper-cased, missing exchange timestamp defaulted.
	if quotes["TCS"].Timestamp == 0 {
		t.Error("TCS timestamp not defaulted")
	}
	if !strings.HasSuffix(strings.SplitN(net.lastURL, "?", 2)[0], "/v1/market/live") {
		t.Errorf("requested %s", net.lastURL)
	}
}

func TestGetLiveQuotesFallsBackToMock(t *testing.T) {
	net := &fakeNetwork{err: fmt.Errorf("connection refused")}
	c := newTestClient(net)

	quotes, err := c.GetLiveQuotes([]string{"NIFTY50", "SENSEX"})
	if err != nil {
		t.Fatalf("mock fallback returned error: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d mock quotes, want 2", len(quotes))
	}
	for sym, q := range quotes {
		if !q.Mock {
			t.Errorf("%s quote not flagged as mock", sym)
		}
		if q.LTP <= 0 {
			t.Errorf("%s mock LTP = %v", sym, q.LTP)
		}
	}
}

func TestGetLiveQuotesRejectionFallsBackToMock(t *testing.T) {
	net := &fakeNetwork{getResp: `{"success": false, "message": "session expired"}`}
	c := newTestClient(net)

	quotes, err := c.GetLiveQuotes([]string{"NIFTY50"})
	if err != nil {
		t.Fatalf("rejection fallback returned error: %v", err)
	}
	if !quotes["NIFTY50"].Mock {
		t.Error("rejected response should serve mock data")
	}
}

func TestGetQuoteNormalizesSymbol(t *testing.T) {
	net := &fakeNetwork{getResp: `{"success": true, "data": {"ltp": 123.45}}`}
	c := newTestClient(net)

	q, err := c.GetQuote("  infy ")
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	if q.Symbol != "INFY" {
		t.Errorf("Symbol = %q, want INFY", q.Symbol)
	}
	if !strings.HasSuffix(net.lastURL, "/v1/market/quote/INFY") {
		t.Errorf("requested %s", net.lastURL)
	}
}

func TestGetAccountInfoMockFallback(t *testing.T) {
	net := &fakeNetwork{err: fmt.Errorf("timeout")}
	c := newTestClient(net)

	info, err := c.GetAccountInfo()
	if err != nil {
		t.Fatalf("mock fallback returned error: %v", err)
	}
	if !info.Mock || info.AccountID != "MA0000001" {
		t.Errorf("account info = %+v", info)
	}
}

func TestPlaceOrderNoMockFallback(t *testing.T) {
	net := &fakeNetwork{err: fmt.Errorf("connection refused")}
	c := newTestClient(net)

	if _, err := c.PlaceOrder("RELIANCE", "BUY", 1, 2950.0); err == nil {
		t.Fatal("PlaceOrder swallowed a network error")
	}
}

func TestPlaceOrderRejected(t *testing.T) {
	net := &fakeNetwork{postResp: `{"success": false, "message": "insufficient funds"}`}
	c := newTestClient(net)

	_, err := c.PlaceOrder("RELIANCE", "BUY", 1, 2950.0)
	if err == nil {
		t.Fatal("PlaceOrder succeeded on rejection")
	}
	if !strings.Contains(err.Error(), "insufficient funds") {
		t.Errorf("error %q does not carry the broker message", err)
	}
}

func TestPlaceOrderSuccess(t *testing.T) {
	net := &fakeNetwork{postResp: `{"success": true, "data": {"order_id": "ORD-1", "symbol": "RELIANCE", "status": "COMPLETE"}}`}
	c := newTestClient(net)

	order, err := c.PlaceOrder("RELIANCE", "BUY", 1, 2950.0)
	if err != nil {
		t.Fatalf("PlaceOrder failed: %v", err)
	}
	if order.OrderID != "ORD-1" || order.Status != "COMPLETE" {
		t.Errorf("order = %+v", order)
	}
}
