package datasource

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
	"bpsalgo/src/utils"
)

// -----------------------------------------------------------------------------
// YahooSource is the fallback quote provider, enabled by config when the
// broker feed is unavailable. It polls the public chart API.
// -----------------------------------------------------------------------------

type YahooSource struct {
	Config          *models.MConfig
	Network         interfaces.INetworkManager
	Logger          *logger.Logger
	MarketScheduler *utils.MarketScheduler

	symbols          atomic.Value // []string
	lastTimestamps   map[string]int64
	lastTimestampsMu sync.RWMutex

	ctx        context.Context
	cancelFunc context.CancelFunc
	outputChan chan<- map[string][]models.MQuote
	isRunning  atomic.Bool
	mu         sync.Mutex
}

// -----------------------------------------------------------------------------

func NewYahooSource(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger) *YahooSource {
	s := &YahooSource{
		Config:          cfg,
		Network:         netMgr,
		Logger:          log,
		MarketScheduler: utils.NewMarketScheduler(cfg.DataSource.DefaultSymbols, logger.NewLogger(cfg.LogLevel, "MarketScheduler-yahoo")),
		lastTimestamps:  make(map[string]int64),
	}
	s.symbols.Store(cfg.DataSource.DefaultSymbols)
	return s
}

// -----------------------------------------------------------------------------

func (s *YahooSource) Name() string {
	return "yahoo"
}

// -----------------------------------------------------------------------------

func (s *YahooSource) IsRealTime() bool {
	return false
}

// -----------------------------------------------------------------------------

// FetchInitialData fetches retention-window history to seed the candle tables.
func (s *YahooSource) FetchInitialData() (map[string][]models.MQuote, error) {
	rangeStr := fmt.Sprintf("%dd", s.Config.DataSource.DataRetentionDays)
	data, err := s.fetchBatch(s.getSymbols(), func(symbol string) ([]models.MQuote, error) {
		return s.fetchSymbolData(symbol, rangeStr)
	})
	if err != nil {
		return nil, err
	}

	s.lastTimestampsMu.Lock()
	for symbol, quotes := range data {
		if len(quotes) > 0 {
			s.lastTimestamps[symbol] = quotes[len(quotes)-1].Timestamp
		}
	}
	s.lastTimestampsMu.Unlock()

	return data, nil
}

// -----------------------------------------------------------------------------

// FetchUpdateData fetches the current day's points.
func (s *YahooSource) FetchUpdateData() (map[string][]models.MQuote, error) {
	return s.fetchBatch(s.getSymbols(), func(symbol string) ([]models.MQuote, error) {
		return s.fetchSymbolData(symbol, "1d")
	})
}

// -----------------------------------------------------------------------------

// fetchBatch processes symbols concurrently, bounded by the configured
// request concurrency.
func (s *YahooSource) fetchBatch(
	symbols []string,
	fetchFunc func(string) ([]models.MQuote, error),
) (map[string][]models.MQuote, error) {
	if len(symbols) == 0 {
		return make(map[string][]models.MQuote), nil
	}

	results := make(map[string][]models.MQuote)
	var mu sync.Mutex
	var wg sync.WaitGroup
	var firstErr error
	var errMu sync.Mutex

	sem := make(chan struct{}, s.Config.Network.ConcurrentRequests)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Small gap between requests to stay under rate limits
			time.Sleep(10 * time.Millisecond)

			data, err := fetchFunc(sym)
			if err != nil {
				s.Logger.Info("Error fetching symbol %s: %v", sym, err)
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
				return
			}

			if data != nil {
				mu.Lock()
				results[sym] = data
				mu.Unlock()
			}
		}(symbol)
	}

	wg.Wait()

	s.Logger.Info("Yahoo: fetched %d/%d symbols successfully", len(results), len(symbols))

	if len(results) == 0 && firstErr != nil {
		return nil, fmt.Errorf("all fetches failed: %w", firstErr)
	}

	return results, nil
}

// -----------------------------------------------------------------------------

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Open   []*float64 `json:"open"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// -----------------------------------------------------------------------------

func (s *YahooSource) fetchSymbolData(symbol, rangeStr string) ([]models.MQuote, error) {
	params := map[string]string{
		"interval":       "5m",
		"range":          rangeStr,
		"includePrePost": "false",
	}

	url := fmt.Sprintf("https://query1.finance.yahoo.com/v8/finance/chart/%s", symbol)

	respBytes, err := s.Network.Get(url, params, nil)
	if err != nil {
		return nil, fmt.Errorf("network error for %s: %w", symbol, err)
	}

	return s.parseChartResponse(symbol, respBytes)
}

// -----------------------------------------------------------------------------

func (s *YahooSource) parseChartResponse(symbol string, data []byte) ([]models.MQuote, error) {
	var resp chartResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal failed: %w", err)
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart api error: %s - %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("no result in response for %s", symbol)
	}

	result := resp.Chart.Result[0]
	if len(result.Timestamp) == 0 {
		return nil, fmt.Errorf("no timestamps in response for %s", symbol)
	}
	if len(result.Indicators.Quote) == 0 {
		return nil, fmt.Errorf("no quote data in response for %s", symbol)
	}

	quote := result.Indicators.Quote[0]

	if len(result.Timestamp) != len(quote.Close) ||
		len(result.Timestamp) != len(quote.Open) ||
		len(result.Timestamp) != len(quote.High) ||
		len(result.Timestamp) != len(quote.Low) ||
		len(result.Timestamp) != len(quote.Volume) {
		return nil, fmt.Errorf("data alignment error for %s", symbol)
	}

	prevClose := resp.Chart.Result[0].Meta.ChartPreviousClose

	var quotes []models.MQuote
	now := time.Now().Unix()

	for i := 0; i < len(result.Timestamp); i++ {
		if quote.Open[i] == nil || quote.High[i] == nil || quote.Low[i] == nil ||
			quote.Close[i] == nil || quote.Volume[i] == nil {
			continue
		}

		closeVal := *quote.Close[i]
		volume := *quote.Volume[i]
		if closeVal <= 0 || volume < 0 {
			continue
		}

		q := models.MQuote{
			Symbol:    symbol,
			LTP:       closeVal,
			Open:      *quote.Open[i],
			High:      *quote.High[i],
			Low:       *quote.Low[i],
			Close:     closeVal,
			PrevClose: prevClose,
			Volume:    volume,
			Timestamp: result.Timestamp[i],
			FetchedAt: now,
		}
		if prevClose > 0 {
			q.Change = closeVal - prevClose
			q.ChangePct = (closeVal - prevClose) / prevClose * 100.0
		}

		quotes = append(quotes, q)
	}

	if len(quotes) == 0 {
		return nil, fmt.Errorf("no valid data points for %s", symbol)
	}

	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].Timestamp < quotes[j].Timestamp
	})

	s.Logger.Debug("Fetched %s: %d points [%d -> %d]",
		symbol, len(quotes), quotes[0].Timestamp, quotes[len(quotes)-1].Timestamp)

	return quotes, nil
}

// -----------------------------------------------------------------------------

// Start begins the polling loop.
func (s *YahooSource) Start(parentCtx context.Context, outputChan chan<- map[string][]models.MQuote, wg *sync.WaitGroup) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning.Load() {
		return fmt.Errorf("source %s is already running", s.Name())
	}

	ctx, cancel := context.WithCancel(parentCtx)
	s.ctx = ctx
	s.cancelFunc = cancel
	s.outputChan = outputChan
	s.isRunning.Store(true)

	wg.Add(1)
	go s.runLoop(ctx, wg)
	s.Logger.Info("Started yahoo fallback source")
	return nil
}

// -----------------------------------------------------------------------------

func (s *YahooSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning.Load() {
		return fmt.Errorf("source %s is not running", s.Name())
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning.Store(false)
	s.Logger.Info("Stopped yahoo fallback source")
	return nil
}

// -----------------------------------------------------------------------------

func (s *YahooSource) runLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	ticker := time.NewTicker(time.Duration(s.Config.DataSource.UpdateIntervalSeconds) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.MarketScheduler.AnyMarketOpen() {
				s.Logger.Info("All markets are closed. Pausing for 60 minutes...")
				select {
				case <-time.After(60 * time.Minute):
				case <-ctx.Done():
					return
				}
				continue
			}

			data, err := s.FetchUpdateData()
			if err != nil {
				s.Logger.Info("Error fetching updates: %v", err)
				continue
			}

			validData := make(map[string][]models.MQuote)

			s.lastTimestampsMu.Lock()
			for symbol, quotes := range data {
				var fresh []models.MQuote
				lastTs := s.lastTimestamps[symbol]

				for _, q := range quotes {
					if lastTs == 0 || q.Timestamp > lastTs {
						fresh = append(fresh, q)
					}
				}

				if len(fresh) > 0 {
					validData[symbol] = fresh
					last := fresh[len(fresh)-1]
					if last.Timestamp > s.lastTimestamps[symbol] {
						s.lastTimestamps[symbol] = last.Timestamp
					}
				}
			}
			s.lastTimestampsMu.Unlock()

			if len(validData) > 0 {
				select {
				case s.outputChan <- validData:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (s *YahooSource) UpdateSymbols(symbols []string) error {
	s.symbols.Store(symbols)
	s.MarketScheduler.UpdateSymbols(symbols)
	s.Logger.Info("Updated symbol list. New count: %d", len(symbols))
	return nil
}

// -----------------------------------------------------------------------------

func (s *YahooSource) getSymbols() []string {
	return s.symbols.Load().([]string)
}
