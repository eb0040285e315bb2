package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"bpsalgo/src/algo"
	"bpsalgo/src/auth"
	"bpsalgo/src/broker"
	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
	"bpsalgo/src/search"
	"bpsalgo/src/watchlist"
)

// -----------------------------------------------------------------------------
// APIServer serves the dashboard REST API and the state-push WebSocket.
// -----------------------------------------------------------------------------

type APIServer struct {
	Config    *models.MConfig
	Logger    *logger.Logger
	DB        interfaces.IDatabase
	Watchlist *watchlist.Store
	Algo      *algo.Agent
	Session   *auth.SessionManager
	Broker    *broker.Client
	Search    *search.Engine

	engine  *gin.Engine
	httpSrv *http.Server
	baseCtx context.Context

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MLatestData
	register   chan *Client
	unregister chan *Client

	// Local cache of the latest pipeline state
	latestState *models.MLatestData
	stateMutex  sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewAPIServer(
	baseCtx context.Context,
	cfg *models.MConfig,
	db interfaces.IDatabase,
	wl *watchlist.Store,
	agent *algo.Agent,
	session *auth.SessionManager,
	brokerClient *broker.Client,
	searchEngine *search.Engine,
	log *logger.Logger,
) *APIServer {
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Watchlist: wl,
		Algo:      agent,
		Session:   session,
		Broker:    brokerClient,
		Search:    searchEngine,
		engine:    gin.Default(),
		baseCtx:   baseCtx,
		clients:   make(map[*Client]struct{}),
		// Buffered so a burst of pipeline updates never blocks the producer
		broadcast:  make(chan *models.MLatestData, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		latestState: &models.MLatestData{
			Type:    "INITIAL",
			Quotes:  make(map[string]models.MQuote),
			Candles: make(map[string]map[string][]models.MCandle),
		},
	}

	s.engine.Use(corsMiddleware())
	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.getHealth)
	api.GET("/config", s.getConfig)

	api.GET("/market/live", s.getLiveQuotes)
	api.GET("/market/quote/:symbol", s.getQuote)
	api.GET("/market/candles/:symbol", s.getCandles)
	api.GET("/market/indicators/:symbol", s.getIndicators)
	api.GET("/market/scan", s.getScan)
	api.GET("/market/ws", s.getMarketWS)

	api.POST("/algo/start", s.algoStart)
	api.POST("/algo/stop", s.algoStop)
	api.GET("/algo/status", s.algoStatus)

	api.GET("/watchlist", s.getWatchlist)
	api.POST("/watchlist", s.addWatchlistSymbol)
	api.DELETE("/watchlist/:symbol", s.removeWatchlistSymbol)

	api.POST("/auth/start", s.authStart)
	api.POST("/auth/verify", s.authVerify)
	api.POST("/auth/refresh", s.authRefresh)

	api.GET("/account/info", s.getAccountInfo)
	api.GET("/symbols/search", s.searchSymbols)

	// WebSocket endpoint for dashboard state pushes
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleWebsockets()

	s.httpSrv = &http.Server{
		Addr:    addr,
		Handler: s.engine,
	}

	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// -----------------------------------------------------------------------------

func (s *APIServer) Stop() error {
	if s.httpSrv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpSrv.Shutdown(ctx)
}
