package server

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// Hub Pattern Implementation
// -----------------------------------------------------------------------------

// handleWebsockets is the main Hub loop.
func (s *APIServer) handleWebsockets() {
	for {
		select {
		case client := <-s.register:
			s.clients[client] = struct{}{}
			// Send a full snapshot on connect. The copy matters: writePump
			// marshals it unlocked, so it must not share maps with the
			// served state that mergeState keeps mutating.
			s.stateMutex.RLock()
			snapshot := s.filteredResponse(nil, "")
			s.stateMutex.RUnlock()
			client.send <- snapshot

		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}

		case message := <-s.broadcast:
			s.mergeState(message)

			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					// Client too slow, disconnect to keep the Hub draining
					delete(s.clients, client)
					close(client.send)
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------
// Data Exchange Interface Implementation
// -----------------------------------------------------------------------------

// UpdateState merges new data into the served state without broadcasting.
func (s *APIServer) UpdateState(data *models.MLatestData) {
	s.mergeState(data)
}

// -----------------------------------------------------------------------------

// Broadcast queues an update for all connected clients.
func (s *APIServer) Broadcast(payload *models.MLatestData) {
	select {
	case s.broadcast <- payload:
	default:
		// Buffer full, the state merge in the Hub will catch up on the next push
		s.Logger.Warning("Broadcast queue full, dropping update")
	}
}

// -----------------------------------------------------------------------------

// mergeState deep-merges an update into the served state. Quote entries merge
// per symbol; candle windows are replaced with the freshest slice.
func (s *APIServer) mergeState(data *models.MLatestData) {
	s.stateMutex.Lock()
	defer s.stateMutex.Unlock()

	if s.latestState.Quotes == nil {
		s.latestState.Quotes = make(map[string]models.MQuote)
	}
	for sym, q := range data.Quotes {
		// Keep the freshest quote per symbol by exchange timestamp
		if existing, ok := s.latestState.Quotes[sym]; ok && existing.Timestamp > q.Timestamp {
			continue
		}
		s.latestState.Quotes[sym] = q
	}

	if s.latestState.Candles == nil {
		s.latestState.Candles = make(map[string]map[string][]models.MCandle)
	}
	for sym, windows := range data.Candles {
		if s.latestState.Candles[sym] == nil {
			s.latestState.Candles[sym] = make(map[string][]models.MCandle)
		}
		for wName, wData := range windows {
			s.latestState.Candles[sym][wName] = wData
		}
	}

	if data.Timestamp > s.latestState.Timestamp {
		s.latestState.Timestamp = data.Timestamp
	}
	s.latestState.ProcessingMetrics = data.ProcessingMetrics
	s.latestState.Type = "UPDATE"
}

// -----------------------------------------------------------------------------

// LatestQuotes returns a copy of the served quote snapshot. Used by the algo
// agent and the scanner.
func (s *APIServer) LatestQuotes() map[string]models.MQuote {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()

	out := make(map[string]models.MQuote, len(s.latestState.Quotes))
	for k, v := range s.latestState.Quotes {
		out[k] = v
	}
	return out
}

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *APIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := &Client{
		hub:  s,
		conn: conn,
		send: make(chan interface{}, 256),
	}

	s.register <- client

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MSubscribeCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	if cmd.Command != "subscribe" {
		return
	}

	s.stateMutex.RLock()
	response := s.filteredResponse(cmd.Symbols, cmd.Timeframe)
	s.stateMutex.RUnlock()

	select {
	case client.send <- response:
	default:
		// Client buffer full, drop the snapshot; the next broadcast carries it
	}
}

// -----------------------------------------------------------------------------

// filteredResponse builds an INITIAL snapshot scoped to the requested symbols
// and timeframe. Caller must hold the state read lock. The returned maps are
// fresh copies so the snapshot can be marshalled after the lock is released;
// candle slices are shared but mergeState only ever replaces them wholesale.
func (s *APIServer) filteredResponse(symbols []string, timeframe string) *models.MLatestData {
	filteredQuotes := make(map[string]models.MQuote)
	if len(symbols) == 0 {
		for sym, q := range s.latestState.Quotes {
			filteredQuotes[sym] = q
		}
	} else {
		for _, sym := range symbols {
			if q, ok := s.latestState.Quotes[sym]; ok {
				filteredQuotes[sym] = q
			}
		}
	}

	filteredCandles := make(map[string]map[string][]models.MCandle)
	pick := func(sym string, windows map[string][]models.MCandle) {
		if timeframe != "" {
			if wData, exists := windows[timeframe]; exists {
				filteredCandles[sym] = map[string][]models.MCandle{timeframe: wData}
			}
			return
		}
		copied := make(map[string][]models.MCandle, len(windows))
		for wName, wData := range windows {
			copied[wName] = wData
		}
		filteredCandles[sym] = copied
	}

	if len(symbols) == 0 {
		for sym, windows := range s.latestState.Candles {
			pick(sym, windows)
		}
	} else {
		for _, sym := range symbols {
			if windows, exists := s.latestState.Candles[sym]; exists {
				pick(sym, windows)
			}
		}
	}

	return &models.MLatestData{
		Type:              "INITIAL",
		Quotes:            filteredQuotes,
		Candles:           filteredCandles,
		Timestamp:         s.latestState.Timestamp,
		ProcessingMetrics: s.latestState.ProcessingMetrics,
	}
}
