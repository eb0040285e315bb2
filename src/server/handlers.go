package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"bpsalgo/src/analysis"
	"bpsalgo/src/models"
	"bpsalgo/src/watchlist"
)

// -----------------------------------------------------------------------------
// Health / Config
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	timestamp := s.latestState.Timestamp
	s.stateMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"connections":   connections,
		"latest_update": timestamp,
		"authenticated": s.Session.IsTokenValid(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":              s.Config.Name,
		"broker_account":    s.Config.Broker.Account,
		"timeframes":        s.Config.WindowsAgg,
		"update_interval_s": s.Config.DataSource.UpdateIntervalSeconds,
		"default_symbols":   s.Config.DataSource.DefaultSymbols,
		"algo": gin.H{
			"scan_interval_s":      s.Config.Algo.ScanIntervalSeconds,
			"signal_threshold_pct": s.Config.Algo.SignalThresholdPct,
			"order_quantity":       s.Config.Algo.OrderQuantity,
		},
		"api_key_configured": s.Session.APIKey() != "",
		"token_valid":        s.Session.IsTokenValid(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getMarketWS(c *gin.Context) {
	endpoint := s.Session.WSEndpoint()
	if endpoint == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No active session, authenticate first"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ws_endpoint": endpoint})
}

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// getLiveQuotes returns the latest snapshot for the requested symbols, or
// for the whole watchlist when the symbols parameter is absent. Symbols
// missing from the pipeline state are fetched from the broker directly, so
// a cold start still renders something.
func (s *APIServer) getLiveQuotes(c *gin.Context) {
	var watched []string
	if raw := c.Query("symbols"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			if sym := watchlist.Normalize(part); sym != "" {
				watched = append(watched, sym)
			}
		}
	}
	if len(watched) == 0 {
		watched = s.Watchlist.Symbols()
	}
	state := s.LatestQuotes()

	quotes := make(map[string]models.MQuote, len(watched))
	var missing []string
	for _, sym := range watched {
		if q, ok := state[sym]; ok {
			quotes[sym] = q
		} else {
			missing = append(missing, sym)
		}
	}

	if len(missing) > 0 {
		fetched, err := s.Broker.GetLiveQuotes(missing)
		if err != nil {
			s.Logger.Warning("Cold fetch for %d symbols failed: %v", len(missing), err)
		}
		for sym, q := range fetched {
			quotes[sym] = q
		}
	}

	c.JSON(http.StatusOK, gin.H{"quotes": quotes})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getQuote(c *gin.Context) {
	symbol := watchlist.Normalize(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}

	if q, ok := s.LatestQuotes()[symbol]; ok {
		c.JSON(http.StatusOK, q)
		return
	}

	q, err := s.Broker.GetQuote(symbol)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, q)
}

// -----------------------------------------------------------------------------

func (s *APIServer) getCandles(c *gin.Context) {
	symbol := watchlist.Normalize(c.Param("symbol"))

	window := c.Query("window")
	if window == "" && len(s.Config.WindowsAgg) > 0 {
		window = s.Config.WindowsAgg[0]
	}
	if !s.validWindow(window) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown window " + window})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	candles, err := s.DB.LoadCandles(symbol, window, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"symbol":  symbol,
		"window":  window,
		"candles": candles,
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getIndicators(c *gin.Context) {
	symbol := watchlist.Normalize(c.Param("symbol"))

	history, err := s.DB.LoadQuoteHistory(symbol, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if len(history) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no history for " + symbol})
		return
	}

	closes := make([]float64, len(history))
	for i, q := range history {
		closes[i] = q.LTP
	}

	c.JSON(http.StatusOK, analysis.ComputeIndicators(symbol, closes))
}

// -----------------------------------------------------------------------------

func (s *APIServer) getScan(c *gin.Context) {
	opportunities := analysis.ScanOpportunities(s.LatestQuotes())
	c.JSON(http.StatusOK, gin.H{"opportunities": opportunities})
}

// -----------------------------------------------------------------------------
// Algo Agent
// -----------------------------------------------------------------------------

func (s *APIServer) algoStart(c *gin.Context) {
	status, err := s.Algo.Start(s.baseCtx)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error(), "status": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Algo agent started", "status": status})
}

func (s *APIServer) algoStop(c *gin.Context) {
	status, err := s.Algo.Stop()
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": err.Error(), "status": status})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Algo agent stopped", "status": status})
}

func (s *APIServer) algoStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.Algo.Status())
}

// -----------------------------------------------------------------------------
// Watchlist
// -----------------------------------------------------------------------------

func (s *APIServer) getWatchlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"watchlist": s.Watchlist.Entries()})
}

// -----------------------------------------------------------------------------

func (s *APIServer) addWatchlistSymbol(c *gin.Context) {
	var body struct {
		Symbol string `json:"symbol"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol required"})
		return
	}

	symbol := watchlist.Normalize(body.Symbol)

	// Resolve free-text input through the instrument index when available
	if s.Search != nil {
		if inst := s.Search.GetBySymbol(symbol); inst == nil {
			if hits := s.Search.Search(symbol, 1); len(hits) > 0 {
				symbol = hits[0].Symbol
			}
		}
	}

	if err := s.Watchlist.Add(symbol); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"added":     symbol,
		"watchlist": s.Watchlist.Entries(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) removeWatchlistSymbol(c *gin.Context) {
	symbol := watchlist.Normalize(c.Param("symbol"))

	if err := s.Watchlist.Remove(symbol); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"removed":   symbol,
		"watchlist": s.Watchlist.Entries(),
	})
}

// -----------------------------------------------------------------------------
// Authentication
// -----------------------------------------------------------------------------

func (s *APIServer) authStart(c *gin.Context) {
	if err := s.Session.Step1Login(); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "otp_sent"})
}

// -----------------------------------------------------------------------------

func (s *APIServer) authVerify(c *gin.Context) {
	var body struct {
		OTP string `json:"otp"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.OTP) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "otp required"})
		return
	}

	if err := s.Session.Step2Verify(strings.TrimSpace(body.OTP)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "authenticated"})
}

// -----------------------------------------------------------------------------

func (s *APIServer) authRefresh(c *gin.Context) {
	if err := s.Session.RefreshSession(); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refreshed"})
}

// -----------------------------------------------------------------------------
// Account / Search
// -----------------------------------------------------------------------------

func (s *APIServer) getAccountInfo(c *gin.Context) {
	info, err := s.Broker.GetAccountInfo()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}

// -----------------------------------------------------------------------------

func (s *APIServer) searchSymbols(c *gin.Context) {
	if s.Search == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "search index not configured"})
		return
	}

	query := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"results": s.Search.Search(query, limit),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) validWindow(window string) bool {
	for _, w := range s.Config.WindowsAgg {
		if w == window {
			return true
		}
	}
	return false
}
