package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bpsalgo/src/algo"
	"bpsalgo/src/auth"
	"bpsalgo/src/broker"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
	"bpsalgo/src/watchlist"
)

// -----------------------------------------------------------------------------
// Stubs
// -----------------------------------------------------------------------------

type fakeDB struct {
	watch   []string
	candles map[string][]models.MCandle
	history map[string][]models.MQuote
	orders  []models.MOrder
}

func (f *fakeDB) Initialize() error                                        { return nil }
func (f *fakeDB) SaveQuotesBulk([]models.MQuote) error                     { return nil }
func (f *fakeDB) SaveCandles(map[string]map[string][]models.MCandle) error { return nil }
func (f *fakeDB) CleanupOldData() error                                    { return nil }
func (f *fakeDB) Close() error                                             { return nil }

func (f *fakeDB) LoadCandles(symbol, window string, limit int) ([]models.MCandle, error) {
	return f.candles[symbol+"/"+window], nil
}

func (f *fakeDB) LoadQuoteHistory(symbol string, limit int) ([]models.MQuote, error) {
	return f.history[symbol], nil
}

func (f *fakeDB) SaveWatchlistSymbol(symbol string) error {
	f.watch = append(f.watch, symbol)
	return nil
}

func (f *fakeDB) DeleteWatchlistSymbol(symbol string) error {
	out := f.watch[:0]
	for _, s := range f.watch {
		if s != symbol {
			out = append(out, s)
		}
	}
	f.watch = out
	return nil
}

func (f *fakeDB) LoadWatchlistSymbols() ([]string, error) {
	return append([]string(nil), f.watch...), nil
}

func (f *fakeDB) SaveOrder(order models.MOrder) error {
	f.orders = append(f.orders, order)
	return nil
}

type fakeNetwork struct{}

func (fakeNetwork) Get(url string, params map[string]string, headers map[string]string) ([]byte, error) {
	return nil, context.DeadlineExceeded // every broker read falls back to mock data
}

func (fakeNetwork) Post(url string, body interface{}, headers map[string]string) ([]byte, error) {
	return nil, context.DeadlineExceeded
}

// -----------------------------------------------------------------------------

func newTestServer(t *testing.T, db *fakeDB) *APIServer {
	t.Helper()

	cfg := &models.MConfig{
		Name:     "test-app",
		Host:     "127.0.0.1",
		Port:     8080,
		LogLevel: "ERROR",
		Broker:   models.MBrokerConfig{BaseURL: "https://api.test.example", Account: "MA0000001"},
		DataSource: models.MDataSourceConfig{
			UpdateIntervalSeconds: 5,
			DefaultSymbols:        []string{"NIFTY50", "SENSEX"},
		},
		Algo:       models.MAlgoConfig{ScanIntervalSeconds: 5, SignalThresholdPct: 1.0, OrderQuantity: 1},
		WindowsAgg: []string{"1m", "5m"},
	}

	log := logger.NewLogger("ERROR", "test")
	session := auth.NewSessionManager(cfg, "key", "user", "pass", fakeNetwork{}, log)
	client := broker.NewClient(cfg, session, fakeNetwork{}, log)

	wl, err := watchlist.NewStore(cfg.DataSource.DefaultSymbols, db, log)
	if err != nil {
		t.Fatalf("watchlist init failed: %v", err)
	}

	srv := NewAPIServer(context.Background(), cfg, db, wl, nil, session, client, nil, log)
	srv.Algo = algo.NewAgent(cfg, client, db, wl.Symbols, srv.LatestQuotes, log)
	return srv
}

func doRequest(s *APIServer, method, path, body string) *httptest.ResponseRecorder {
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON response %q: %v", w.Body.String(), err)
	}
	return out
}

// -----------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	w := doRequest(s, http.MethodGet, "/api/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	body := decodeBody(t, w)
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["authenticated"] != false {
		t.Errorf("authenticated = %v, want false without a session", body["authenticated"])
	}
}

func TestConfigEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/config", ""))
	if body["name"] != "test-app" || body["broker_account"] != "MA0000001" {
		t.Errorf("config body = %v", body)
	}
	if body["token_valid"] != false {
		t.Errorf("token_valid = %v, want false without a session", body["token_valid"])
	}
}

func TestMarketWSEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	w := doRequest(s, http.MethodGet, "/api/market/ws", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without ws url = %d, want 503", w.Code)
	}

	s.Config.Broker.WSURL = "wss://ws.test.example"
	w = doRequest(s, http.MethodGet, "/api/market/ws", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	endpoint, _ := body["ws_endpoint"].(string)
	if !strings.HasPrefix(endpoint, "wss://ws.test.example?API_KEY=key") {
		t.Errorf("ws_endpoint = %q", endpoint)
	}
}

func TestLiveQuotesColdFallback(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	// No pipeline state yet: every watched symbol comes from the broker,
	// which itself degrades to mock data under the failing network stub.
	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/market/live", ""))
	quotes, ok := body["quotes"].(map[string]interface{})
	if !ok || len(quotes) != 2 {
		t.Fatalf("quotes = %v", body["quotes"])
	}

	nifty, _ := quotes["NIFTY50"].(map[string]interface{})
	if nifty["mock"] != true {
		t.Errorf("cold quote not flagged mock: %v", nifty)
	}
}

func TestLiveQuotesServedFromState(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	s.UpdateState(&models.MLatestData{
		Type: "UPDATE",
		Quotes: map[string]models.MQuote{
			"NIFTY50": {Symbol: "NIFTY50", LTP: 22750, Timestamp: 100},
			"SENSEX":  {Symbol: "SENSEX", LTP: 74500, Timestamp: 100},
		},
		Timestamp: 100,
	})

	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/market/live", ""))
	quotes := body["quotes"].(map[string]interface{})
	nifty := quotes["NIFTY50"].(map[string]interface{})
	if nifty["ltp"] != 22750.0 {
		t.Errorf("NIFTY50 ltp = %v, want state value", nifty["ltp"])
	}
	if nifty["mock"] == true {
		t.Error("state-served quote flagged mock")
	}
}

func TestLiveQuotesSymbolsParam(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	// RELIANCE is not on the watchlist but is present in pipeline state.
	s.UpdateState(&models.MLatestData{
		Type: "UPDATE",
		Quotes: map[string]models.MQuote{
			"NIFTY50":  {Symbol: "NIFTY50", LTP: 22750, Timestamp: 100},
			"RELIANCE": {Symbol: "RELIANCE", LTP: 2950, Timestamp: 100},
		},
		Timestamp: 100,
	})

	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/market/live?symbols=reliance", ""))
	quotes := body["quotes"].(map[string]interface{})
	if len(quotes) != 1 {
		t.Fatalf("scoped quotes = %v, want RELIANCE only", quotes)
	}
	rel, _ := quotes["RELIANCE"].(map[string]interface{})
	if rel["ltp"] != 2950.0 {
		t.Errorf("RELIANCE ltp = %v, want state value", rel["ltp"])
	}

	// Requested symbols missing from state fall through to the broker fetch,
	// which degrades to mock under the failing network stub.
	body = decodeBody(t, doRequest(s, http.MethodGet, "/api/market/live?symbols=NIFTY50,BANKNIFTY", ""))
	quotes = body["quotes"].(map[string]interface{})
	if len(quotes) != 2 {
		t.Fatalf("mixed quotes = %v, want 2 symbols", quotes)
	}
	bank, _ := quotes["BANKNIFTY"].(map[string]interface{})
	if bank["mock"] != true {
		t.Errorf("cold scoped quote not flagged mock: %v", bank)
	}
}

func TestQuoteEndpointNormalizesSymbol(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	s.UpdateState(&models.MLatestData{
		Type:      "UPDATE",
		Quotes:    map[string]models.MQuote{"RELIANCE": {Symbol: "RELIANCE", LTP: 2950, Timestamp: 1}},
		Timestamp: 1,
	})

	w := doRequest(s, http.MethodGet, "/api/market/quote/reliance", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["ltp"] != 2950.0 {
		t.Errorf("ltp = %v", body["ltp"])
	}
}

func TestCandlesEndpoint(t *testing.T) {
	db := &fakeDB{candles: map[string][]models.MCandle{
		"NIFTY50/1m": {{Symbol: "NIFTY50", WindowName: "1m", Close: 22700}},
	}}
	s := newTestServer(t, db)

	// Default window is the first configured one.
	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/market/candles/NIFTY50", ""))
	if body["window"] != "1m" {
		t.Errorf("window = %v, want 1m", body["window"])
	}
	candles := body["candles"].([]interface{})
	if len(candles) != 1 {
		t.Errorf("candles = %v", body["candles"])
	}

	w := doRequest(s, http.MethodGet, "/api/market/candles/NIFTY50?window=7h", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown window status = %d, want 400", w.Code)
	}
}

func TestIndicatorsEndpoint(t *testing.T) {
	history := make([]models.MQuote, 80)
	for i := range history {
		history[i] = models.MQuote{Symbol: "NIFTY50", LTP: 22000 + float64(i), Timestamp: int64(i)}
	}
	db := &fakeDB{history: map[string][]models.MQuote{"NIFTY50": history}}
	s := newTestServer(t, db)

	w := doRequest(s, http.MethodGet, "/api/market/indicators/NIFTY50", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["data_points"] != 80.0 {
		t.Errorf("data_points = %v", body["data_points"])
	}
	if body["rsi_14"] != 100.0 {
		t.Errorf("rsi = %v, want 100 on uptrend history", body["rsi_14"])
	}

	w = doRequest(s, http.MethodGet, "/api/market/indicators/GHOST", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("missing history status = %d, want 404", w.Code)
	}
}

func TestScanEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	s.UpdateState(&models.MLatestData{
		Type: "UPDATE",
		Quotes: map[string]models.MQuote{
			"WILD": {Symbol: "WILD", LTP: 105, High: 110, Low: 100, Timestamp: 1},
		},
		Timestamp: 1,
	})

	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/market/scan", ""))
	hits := body["opportunities"].([]interface{})
	if len(hits) != 1 {
		t.Fatalf("opportunities = %v", body["opportunities"])
	}
	hit := hits[0].(map[string]interface{})
	if hit["type"] != "HIGH_VOLATILITY" {
		t.Errorf("hit = %v", hit)
	}
}

func TestWatchlistEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/watchlist", ""))
	if entries := body["watchlist"].([]interface{}); len(entries) != 2 {
		t.Fatalf("initial watchlist = %v", body["watchlist"])
	}

	w := doRequest(s, http.MethodPost, "/api/watchlist", `{"symbol": "reliance"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("add status = %d: %s", w.Code, w.Body.String())
	}
	if body := decodeBody(t, w); body["added"] != "RELIANCE" {
		t.Errorf("added = %v", body["added"])
	}

	// Duplicate add conflicts.
	if w := doRequest(s, http.MethodPost, "/api/watchlist", `{"symbol": "RELIANCE"}`); w.Code != http.StatusConflict {
		t.Errorf("duplicate add status = %d, want 409", w.Code)
	}

	// Defaults cannot be deleted.
	if w := doRequest(s, http.MethodDelete, "/api/watchlist/NIFTY50", ""); w.Code != http.StatusConflict {
		t.Errorf("default delete status = %d, want 409", w.Code)
	}

	if w := doRequest(s, http.MethodDelete, "/api/watchlist/RELIANCE", ""); w.Code != http.StatusOK {
		t.Errorf("delete status = %d", w.Code)
	}
}

func TestAlgoEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/algo/status", ""))
	if body["is_running"] != false {
		t.Fatalf("initial status = %v", body)
	}

	body = decodeBody(t, doRequest(s, http.MethodPost, "/api/algo/start", ""))
	if body["success"] != true {
		t.Fatalf("start body = %v", body)
	}
	status, _ := body["status"].(map[string]interface{})
	if status["is_running"] != true || status["status"] != "RUNNING" {
		t.Fatalf("start status = %v", status)
	}

	// Starting again is a no-op the client can detect.
	body = decodeBody(t, doRequest(s, http.MethodPost, "/api/algo/start", ""))
	if body["success"] != false {
		t.Fatalf("second start body = %v", body)
	}
	msg, _ := body["message"].(string)
	if !strings.Contains(msg, "already running") {
		t.Errorf("second start message = %q", msg)
	}

	body = decodeBody(t, doRequest(s, http.MethodPost, "/api/algo/stop", ""))
	if body["success"] != true {
		t.Fatalf("stop body = %v", body)
	}
	status, _ = body["status"].(map[string]interface{})
	if status["is_running"] != false || status["status"] != "STOPPED" {
		t.Fatalf("stop status = %v", status)
	}

	// Stopping a stopped agent is the same recoverable shape.
	body = decodeBody(t, doRequest(s, http.MethodPost, "/api/algo/stop", ""))
	if body["success"] != false {
		t.Fatalf("second stop body = %v", body)
	}
	msg, _ = body["message"].(string)
	if !strings.Contains(msg, "not running") {
		t.Errorf("second stop message = %q", msg)
	}
}

func TestAuthEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	// The failing network stub turns every auth call into an upstream error.
	if w := doRequest(s, http.MethodPost, "/api/auth/start", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("auth start status = %d, want 401", w.Code)
	}
	if w := doRequest(s, http.MethodPost, "/api/auth/verify", `{"otp": ""}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty OTP status = %d, want 400", w.Code)
	}
	if w := doRequest(s, http.MethodPost, "/api/auth/verify", `{"otp": "123456"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("verify status = %d, want 401", w.Code)
	}
	if w := doRequest(s, http.MethodPost, "/api/auth/refresh", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("refresh without token status = %d, want 401", w.Code)
	}
}

func TestAccountInfoMockFallback(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	body := decodeBody(t, doRequest(s, http.MethodGet, "/api/account/info", ""))
	if body["account_id"] != "MA0000001" || body["mock"] != true {
		t.Errorf("account info = %v", body)
	}
}

func TestSearchUnavailableWithoutIndex(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	if w := doRequest(s, http.MethodGet, "/api/symbols/search?q=nifty", ""); w.Code != http.StatusServiceUnavailable {
		t.Errorf("search status = %d, want 503", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	req := httptest.NewRequest(http.MethodOptions, "/api/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("allow-origin = %q", got)
	}
}

func TestStateMergeKeepsFreshQuotes(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	s.UpdateState(&models.MLatestData{
		Type:      "UPDATE",
		Quotes:    map[string]models.MQuote{"NIFTY50": {Symbol: "NIFTY50", LTP: 22800, Timestamp: 200}},
		Timestamp: 200,
	})

	// A delayed update carrying an older exchange timestamp must not win.
	s.UpdateState(&models.MLatestData{
		Type:      "UPDATE",
		Quotes:    map[string]models.MQuote{"NIFTY50": {Symbol: "NIFTY50", LTP: 22500, Timestamp: 150}},
		Timestamp: 150,
	})

	if got := s.LatestQuotes()["NIFTY50"].LTP; got != 22800 {
		t.Errorf("LTP = %v, stale update overwrote fresh state", got)
	}

	s.UpdateState(&models.MLatestData{
		Type:      "UPDATE",
		Quotes:    map[string]models.MQuote{"NIFTY50": {Symbol: "NIFTY50", LTP: 22900, Timestamp: 250}},
		Timestamp: 250,
	})
	if got := s.LatestQuotes()["NIFTY50"].LTP; got != 22900 {
		t.Errorf("LTP = %v, fresh update rejected", got)
	}
}

// The connect snapshot is marshalled by the client's write pump after the
// state lock is released, so it must not share maps with the served state.
func TestConnectSnapshotIsolatedFromMerges(t *testing.T) {
	s := newTestServer(t, &fakeDB{})

	s.UpdateState(&models.MLatestData{
		Type:   "UPDATE",
		Quotes: map[string]models.MQuote{"NIFTY50": {Symbol: "NIFTY50", LTP: 22700, Timestamp: 100}},
		Candles: map[string]map[string][]models.MCandle{
			"NIFTY50": {"1m": {{Symbol: "NIFTY50", Close: 22700}}},
		},
		Timestamp: 100,
	})

	s.stateMutex.RLock()
	snapshot := s.filteredResponse(nil, "")
	s.stateMutex.RUnlock()

	if snapshot.Type != "INITIAL" {
		t.Fatalf("snapshot type = %q", snapshot.Type)
	}

	s.UpdateState(&models.MLatestData{
		Type:   "UPDATE",
		Quotes: map[string]models.MQuote{"NIFTY50": {Symbol: "NIFTY50", LTP: 22800, Timestamp: 200}},
		Candles: map[string]map[string][]models.MCandle{
			"NIFTY50": {"1m": {{Symbol: "NIFTY50", Close: 22800}}},
		},
		Timestamp: 200,
	})

	if got := snapshot.Quotes["NIFTY50"].LTP; got != 22700 {
		t.Errorf("snapshot quote ltp = %v, merge leaked into the snapshot", got)
	}
	if got := snapshot.Candles["NIFTY50"]["1m"][0].Close; got != 22700 {
		t.Errorf("snapshot candle close = %v, merge leaked into the snapshot", got)
	}
}
