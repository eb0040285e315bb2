package datasource

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"bpsalgo/src/broker"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
	"bpsalgo/src/utils"
)

// -----------------------------------------------------------------------------
// BrokerSource polls the broker REST API for live quotes at the configured
// interval and forwards WebSocket ticks when the stream is up. Both paths
// feed the same output channel; stale data is dropped on exchange timestamp.
// -----------------------------------------------------------------------------

type BrokerSource struct {
	Config          *models.MConfig
	Client          *broker.Client
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

func NewBrokerSource(cfg *models.MConfig, client *broker.Client, log *logger.Logger) *BrokerSource {
	s := &BrokerSource{
		Config:          cfg,
		Client:          client,
		Logger:          log,
		MarketScheduler: utils.NewMarketScheduler(cfg.DataSource.DefaultSymbols, logger.NewLogger(cfg.LogLevel, "MarketScheduler")),
		lastTimestamps:  make(map[string]int64),
	}
	s.symbols.Store(cfg.DataSource.DefaultSymbols)
	return s
}

// -----------------------------------------------------------------------------

func (s *BrokerSource) Name() string {
	return "broker"
}

// -----------------------------------------------------------------------------

// IsRealTime returns false: the REST poll drives the update cadence.
// Stream ticks arrive faster but are best-effort.
func (s *BrokerSource) IsRealTime() bool {
	return false
}

// -----------------------------------------------------------------------------

// FetchInitialData seeds the pipeline with one snapshot per symbol.
func (s *BrokerSource) FetchInitialData() (map[string][]models.MQuote, error) {
	return s.FetchUpdateData()
}

// -----------------------------------------------------------------------------

// FetchUpdateData fetches the current quote batch for all tracked symbols.
func (s *BrokerSource) FetchUpdateData() (map[string][]models.MQuote, error) {
	symbols := s.getSymbols()
	if len(symbols) == 0 {
		return map[string][]models.MQuote{}, nil
	}

	quotes, err := s.Client.GetLiveQuotes(symbols)
	if err != nil {
		return nil, err
	}

	out := make(map[string][]models.MQuote, len(quotes))
	for sym, q := range quotes {
		out[sym] = []models.MQuote{q}
	}
	return out, nil
}

// -----------------------------------------------------------------------------

// Start begins the polling loop.
func (s *BrokerSource) Start(parentCtx context.Context, outputChan chan<- map[string][]models.MQuote, wg *sync.WaitGroup) error {
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
	s.Logger.Info("Started broker source (interval %ds)", s.Config.DataSource.UpdateIntervalSeconds)
	return nil
}

// -----------------------------------------------------------------------------

// Stop signals the run loop to exit.
func (s *BrokerSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning.Load() {
		return fmt.Errorf("source %s is not running", s.Name())
	}

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	s.isRunning.Store(false)
	s.Logger.Info("Stopped broker source")
	return nil
}

// -----------------------------------------------------------------------------

func (s *BrokerSource) runLoop(ctx context.Context, wg *sync.WaitGroup) {
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
				s.Logger.Warning("Error fetching updates: %v", err)
				continue
			}

			if fresh := s.filterFresh(data); len(fresh) > 0 {
				if err := s.push(fresh); err != nil {
					return
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

// HandleStreamTick feeds a WebSocket tick into the pipeline. Wired as the
// stream client's tick callback.
func (s *BrokerSource) HandleStreamTick(q models.MQuote) {
	if !s.isRunning.Load() {
		return
	}

	fresh := s.filterFresh(map[string][]models.MQuote{
		q.Symbol: {q},
	})
	if len(fresh) == 0 {
		return
	}

	if err := s.push(fresh); err != nil {
		s.Logger.Debug("Dropped stream tick for %s: %v", q.Symbol, err)
	}
}

// -----------------------------------------------------------------------------

// filterFresh drops quotes whose exchange timestamp is not newer than the
// last one seen for that symbol. Late REST responses and out-of-order
// stream ticks never overwrite fresher data downstream.
func (s *BrokerSource) filterFresh(data map[string][]models.MQuote) map[string][]models.MQuote {
	valid := make(map[string][]models.MQuote)

	s.lastTimestampsMu.Lock()
	defer s.lastTimestampsMu.Unlock()

	for symbol, quotes := range data {
		var fresh []models.MQuote
		lastTs := s.lastTimestamps[symbol]

		for _, q := range quotes {
			if lastTs == 0 || q.Timestamp > lastTs {
				fresh = append(fresh, q)
				if q.Timestamp > lastTs {
					lastTs = q.Timestamp
				}
			}
		}

		if len(fresh) > 0 {
			valid[symbol] = fresh
			s.lastTimestamps[symbol] = lastTs
		}
	}

	return valid
}

// -----------------------------------------------------------------------------

func (s *BrokerSource) push(data map[string][]models.MQuote) error {
	if s.outputChan == nil {
		return fmt.Errorf("output channel is nil")
	}

	select {
	case s.outputChan <- data:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// -----------------------------------------------------------------------------

// UpdateSymbols swaps the tracked symbol set on watchlist changes.
func (s *BrokerSource) UpdateSymbols(symbols []string) error {
	s.symbols.Store(symbols)
	s.MarketScheduler.UpdateSymbols(symbols)
	s.Logger.Info("Updated symbol list. New count: %d", len(symbols))
	return nil
}

// -----------------------------------------------------------------------------

func (s *BrokerSource) getSymbols() []string {
	return s.symbols.Load().([]string)
}
