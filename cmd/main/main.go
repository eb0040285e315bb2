package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bpsalgo/src/algo"
	"bpsalgo/src/analysis"
	"bpsalgo/src/auth"
	"bpsalgo/src/broker"
	"bpsalgo/src/config"
	"bpsalgo/src/datasource"
	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
	"bpsalgo/src/network"
	"bpsalgo/src/search"
	"bpsalgo/src/server"
	"bpsalgo/src/storage"
	"bpsalgo/src/utils"
	"bpsalgo/src/watchlist"
)

// -----------------------------------------------------------------------------

func main() {

	configPath := flag.String("config", "../../config/default.yaml", "path to config file")
	envPath := flag.String("env", "", "path to .env file with broker credentials")
	flag.Parse()

	// Credentials come from the environment, optionally seeded from a .env file
	if *envPath != "" {
		if err := godotenv.Load(*envPath); err != nil {
			fmt.Printf("Error loading env file: %v\n", err)
			os.Exit(1)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	appLogger := logger.NewLogger(cfg.LogLevel, cfg.Name)

	// -------------------------------------------------------------------------
	// Storage
	// -------------------------------------------------------------------------
	var db interfaces.IDatabase

	switch cfg.Storage.DBType {
	case "postgres":
		db, err = storage.NewPostgresDB(cfg.MConfig, appLogger)
	default:
		db, err = storage.NewSQLiteDB(cfg.MConfig, appLogger)
	}
	if err != nil {
		appLogger.Critical("Failed to init db: %v", err)
	}
	if err := db.Initialize(); err != nil {
		appLogger.Critical("Failed to migrate db: %v", err)
	}
	defer db.Close()

	// -------------------------------------------------------------------------
	// Broker session and client
	// -------------------------------------------------------------------------
	var netMgr interfaces.INetworkManager = network.NewNetworkManager(cfg.MConfig, appLogger)

	apiKey := cfg.BrokerAPIKey()
	username, password := cfg.BrokerCredentials()

	session := auth.NewSessionManager(cfg.MConfig, apiKey, username, password, netMgr,
		logger.NewLogger(cfg.LogLevel, "Session"))
	brokerClient := broker.NewClient(cfg.MConfig, session, netMgr,
		logger.NewLogger(cfg.LogLevel, "Broker"))

	// -------------------------------------------------------------------------
	// Watchlist
	// -------------------------------------------------------------------------
	wl, err := watchlist.NewStore(cfg.DataSource.DefaultSymbols, db,
		logger.NewLogger(cfg.LogLevel, "Watchlist"))
	if err != nil {
		appLogger.Critical("Failed to load watchlist: %v", err)
	}
	if cfg.DataSource.WatchlistFile != "" {
		if err := wl.SeedFromFile(cfg.DataSource.WatchlistFile); err != nil {
			appLogger.Warning("Failed to seed watchlist from %s: %v", cfg.DataSource.WatchlistFile, err)
		}
	}

	// -------------------------------------------------------------------------
	// Instrument search index (optional)
	// -------------------------------------------------------------------------
	var searchEngine *search.Engine
	if cfg.Search.InstrumentsCSV != "" {
		instruments, err := search.LoadInstruments(cfg.Search.InstrumentsCSV)
		if err != nil {
			appLogger.Warning("Failed to load instrument master: %v", err)
		} else {
			searchEngine, err = search.NewEngine(cfg.Search.IndexPath, instruments,
				logger.NewLogger(cfg.LogLevel, "Search"))
			if err != nil {
				appLogger.Warning("Failed to open instrument index: %v", err)
				searchEngine = nil
			} else {
				defer searchEngine.Close()
			}
		}
	}

	// -------------------------------------------------------------------------
	// Quote sources
	// -------------------------------------------------------------------------
	brokerSource := datasource.NewBrokerSource(cfg.MConfig, brokerClient,
		logger.NewLogger(cfg.LogLevel, "BrokerSource"))

	sources := []interfaces.IQuoteSource{brokerSource}
	if cfg.DataSource.YahooFallback {
		sources = append(sources, datasource.NewYahooSource(cfg.MConfig, netMgr,
			logger.NewLogger(cfg.LogLevel, "YahooSource")))
	}
	manager := datasource.NewMultiSourceManager(sources, logger.NewLogger(cfg.LogLevel, "Sources"))
	manager.UpdateSymbols(wl.Symbols())

	// -------------------------------------------------------------------------
	// Streaming feed (optional, needs WS URL and credentials)
	// -------------------------------------------------------------------------
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var stream *broker.StreamClient
	if cfg.Broker.WSURL != "" && apiKey != "" {
		stream = broker.NewStreamClient(session, logger.NewLogger(cfg.LogLevel, "Stream"),
			brokerSource.HandleStreamTick)

		go func() {
			if err := stream.Run(ctx); err != nil && ctx.Err() == nil {
				appLogger.Warning("Stream terminated: %v. REST polling carries the feed.", err)
			}
		}()

		if tokens := watchedTokens(searchEngine, wl.Symbols()); len(tokens) > 0 {
			if err := stream.Subscribe(tokens); err != nil {
				appLogger.Debug("Initial stream subscribe deferred: %v", err)
			}
		}
	}

	// Watchlist changes repoint every consumer
	wl.OnChange(func(symbols []string) {
		manager.UpdateSymbols(symbols)
		if stream != nil {
			if tokens := watchedTokens(searchEngine, symbols); len(tokens) > 0 {
				if err := stream.Subscribe(tokens); err != nil {
					appLogger.Debug("Stream subscribe failed: %v", err)
				}
			}
		}
	})

	// -------------------------------------------------------------------------
	// Pipeline components
	// -------------------------------------------------------------------------
	aggregator := analysis.NewAggregator(cfg.MConfig, appLogger)

	maxPoints := utils.CalculateMaxDataPoints(cfg.DataSource.DataRetentionDays)
	memManager := utils.NewMemoryManager(512, maxPoints, logger.NewLogger(cfg.LogLevel, "Memory"))

	srv := server.NewAPIServer(ctx, cfg.MConfig, db, wl, nil, session, brokerClient,
		searchEngine, logger.NewLogger(cfg.LogLevel, "Server"))

	agent := algo.NewAgent(cfg.MConfig, brokerClient, db, wl.Symbols, srv.LatestQuotes,
		logger.NewLogger(cfg.LogLevel, "Algo"))
	srv.Algo = agent

	// -------------------------------------------------------------------------
	// Initial data load
	// -------------------------------------------------------------------------
	appLogger.Info("Fetching initial data...")
	initialData, err := manager.FetchInitialData()
	if err != nil {
		appLogger.Warning("Initial fetch failed: %v", err)
	}

	for sym, quotes := range initialData {
		for _, q := range quotes {
			memManager.AddDataPoint(sym, q)
		}
	}

	var allQuotes []models.MQuote
	for _, quotes := range initialData {
		allQuotes = append(allQuotes, quotes...)
	}
	if err := db.SaveQuotesBulk(allQuotes); err != nil {
		appLogger.Warning("Initial quote save failed: %v", err)
	}

	initialCandles := make(map[string]map[string][]models.MCandle)
	for _, w := range cfg.WindowsAgg {
		for sym, candles := range aggregator.AggregateHistorical(initialData, w) {
			if initialCandles[sym] == nil {
				initialCandles[sym] = make(map[string][]models.MCandle)
			}
			initialCandles[sym][w] = candles
		}
	}
	if err := db.SaveCandles(initialCandles); err != nil {
		appLogger.Warning("Initial candle save failed: %v", err)
	}

	initialQuotesMap := make(map[string]models.MQuote)
	for sym, quotes := range initialData {
		if len(quotes) > 0 {
			initialQuotesMap[sym] = quotes[len(quotes)-1]
		}
	}

	srv.UpdateState(&models.MLatestData{
		Type:      "INITIAL",
		Quotes:    initialQuotesMap,
		Candles:   initialCandles,
		Timestamp: time.Now().Unix(),
	})

	appLogger.Info("Initialization complete.")

	// -------------------------------------------------------------------------
	// Start server and sources
	// -------------------------------------------------------------------------
	go func() {
		if err := srv.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	wrapWg := &sync.WaitGroup{}
	updatesChan := make(chan map[string][]models.MQuote, 100)

	if err := manager.Start(ctx, updatesChan, wrapWg); err != nil {
		appLogger.Critical("Failed to start sources: %v", err)
	}

	// Keep the broker session alive while it holds a token
	go refreshLoop(ctx, session, appLogger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	cleanupTicker := time.NewTicker(time.Hour)
	defer cleanupTicker.Stop()

	appLogger.Info("Starting data loop (push model)...")

	for {
		select {
		case updates, ok := <-updatesChan:
			if !ok {
				appLogger.Info("Sources closed the channel.")
				return
			}

			startProcess := time.Now()

			var fresh []models.MQuote
			for sym, quotes := range updates {
				fresh = append(fresh, quotes...)
				for _, q := range quotes {
					memManager.AddDataPoint(sym, q)
				}
			}
			if err := db.SaveQuotesBulk(fresh); err != nil {
				appLogger.Warning("Quote save failed: %v", err)
			}

			// Realtime aggregation per window, over the in-memory history so
			// the current window includes points from earlier cycles
			fullHistory := make(map[string][]models.MQuote, len(updates))
			for sym := range updates {
				fullHistory[sym] = memManager.GetAll(sym)
			}

			updateCandles := make(map[string]map[string][]models.MCandle)
			totalWindows := 0
			for _, w := range cfg.WindowsAgg {
				for sym, candle := range aggregator.AggregateRealTime(fullHistory, w) {
					if updateCandles[sym] == nil {
						updateCandles[sym] = make(map[string][]models.MCandle)
					}
					updateCandles[sym][w] = []models.MCandle{candle}
					totalWindows++
				}
			}
			if err := db.SaveCandles(updateCandles); err != nil {
				appLogger.Warning("Candle save failed: %v", err)
			}

			latestQuotes := make(map[string]models.MQuote, len(updates))
			for sym, quotes := range updates {
				if len(quotes) > 0 {
					latestQuotes[sym] = quotes[len(quotes)-1]
				}
			}

			payload := &models.MLatestData{
				Type:      "UPDATE",
				Quotes:    latestQuotes,
				Candles:   updateCandles,
				Timestamp: time.Now().Unix(),
				ProcessingMetrics: models.MProcessingMetrics{
					AggregationTimeSeconds: time.Since(startProcess).Seconds(),
					ValidSymbols:           len(updates),
					WindowsProcessed:       totalWindows,
				},
			}

			srv.Broadcast(payload)

		case <-cleanupTicker.C:
			if err := db.CleanupOldData(); err != nil {
				appLogger.Warning("Retention cleanup failed: %v", err)
			}
			memManager.CheckMemoryLimits()

		case <-quit:
			appLogger.Info("Shutting down...")
			agent.Stop()
			cancel()
			manager.Stop()
			wrapWg.Wait()
			if err := srv.Stop(); err != nil {
				appLogger.Warning("Server shutdown: %v", err)
			}
			return
		}
	}
}

// -----------------------------------------------------------------------------

// watchedTokens maps watchlist symbols to their WS instrument tokens.
func watchedTokens(engine *search.Engine, symbols []string) []int {
	if engine == nil {
		return nil
	}

	var tokens []int
	for _, sym := range symbols {
		if inst := engine.GetBySymbol(sym); inst != nil && inst.Token > 0 {
			tokens = append(tokens, inst.Token)
		}
	}
	return tokens
}

// -----------------------------------------------------------------------------

// refreshLoop renews the broker token before it expires. The leeway exceeds
// the tick interval so a token is always refreshed ahead of expiry rather
// than after REST calls have started failing.
func refreshLoop(ctx context.Context, session *auth.SessionManager, log *logger.Logger) {
	const (
		checkInterval = 15 * time.Minute
		refreshLeeway = 20 * time.Minute
	)

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if session.AccessToken() == "" {
				continue // never authenticated, nothing to refresh
			}
			if !session.ExpiresWithin(refreshLeeway) {
				continue
			}
			if err := session.RefreshSession(); err != nil {
				log.Warning("Session refresh failed: %v", err)
			}
		}
	}
}
