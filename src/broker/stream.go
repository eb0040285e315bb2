package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"bpsalgo/src/auth"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"

	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// StreamClient maintains the broker market-data WebSocket: login on connect,
// JSON subscribe/mode commands, ping/pong heartbeat, and reconnection with
// capped exponential backoff. After maxReconnectAttempts consecutive failures
// it gives up and the REST polling path carries the feed alone.
// -----------------------------------------------------------------------------

const (
	streamWriteWait  = 2 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10

	reconnectBaseDelay   = time.Second
	reconnectMaxDelay    = 30 * time.Second
	maxReconnectAttempts = 6

	// A session that stayed up this long counts as healthy and refills
	// the reconnect budget.
	stableSessionMinimum = time.Minute
)

// Data modes accepted by the feed.
const (
	ModeLTP   = "ltp"
	ModeQuote = "quote"
	ModeFull  = "full"
)

// ErrMaxReconnects is returned by Run when the reconnect budget is exhausted.
var ErrMaxReconnects = errors.New("websocket reconnect attempts exhausted")

// -----------------------------------------------------------------------------

type StreamClient struct {
	Session *auth.SessionManager
	Logger  *logger.Logger

	// OnTick is invoked for every parsed tick. Must be non-blocking.
	OnTick func(models.MQuote)

	mu        sync.Mutex
	conn      *websocket.Conn
	tokens    []int
	mode      string
	connected bool

	// writeMu serializes writers: the ping loop, the login handshake and
	// subscribe/mode commands may all hit the conn concurrently, and
	// gorilla/websocket allows only one concurrent writer.
	writeMu sync.Mutex
}

// -----------------------------------------------------------------------------

func NewStreamClient(session *auth.SessionManager, log *logger.Logger, onTick func(models.MQuote)) *StreamClient {
	return &StreamClient{
		Session: session,
		Logger:  log,
		OnTick:  onTick,
		mode:    ModeQuote,
	}
}

// -----------------------------------------------------------------------------

// ReconnectDelay returns the backoff before the given attempt (0-based):
// base delay doubling per attempt, capped at reconnectMaxDelay.
func ReconnectDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := reconnectBaseDelay << attempt
	if delay > reconnectMaxDelay || delay <= 0 {
		return reconnectMaxDelay
	}
	return delay
}

// nextAttempt advances the reconnect counter. A session that held for at
// least stableSessionMinimum was healthy, so its disconnect starts a fresh
// incident instead of counting against the previous outage.
func nextAttempt(attempt int, sessionUptime time.Duration) int {
	if sessionUptime >= stableSessionMinimum {
		attempt = 0
	}
	return attempt + 1
}

// -----------------------------------------------------------------------------

// Run connects and keeps the stream alive until ctx is cancelled or the
// reconnect budget runs out.
func (sc *StreamClient) Run(ctx context.Context) error {
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sessionStart := time.Now()
		err := sc.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt = nextAttempt(attempt, time.Since(sessionStart))
		if attempt > maxReconnectAttempts {
			sc.Logger.Error("Stream gave up after %d reconnect attempts", maxReconnectAttempts)
			return ErrMaxReconnects
		}

		delay := ReconnectDelay(attempt - 1)
		sc.Logger.Warning("Stream disconnected (%v), reconnecting in %v (attempt %d/%d)",
			err, delay, attempt, maxReconnectAttempts)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// -----------------------------------------------------------------------------

func (sc *StreamClient) connectAndServe(ctx context.Context) error {
	endpoint := sc.Session.WSEndpoint()
	if endpoint == "" {
		return fmt.Errorf("no stream endpoint configured")
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	sc.mu.Lock()
	sc.conn = conn
	sc.connected = true
	tokens := append([]int(nil), sc.tokens...)
	mode := sc.mode
	sc.mu.Unlock()

	defer func() {
		sc.mu.Lock()
		sc.connected = false
		sc.conn = nil
		sc.mu.Unlock()
		conn.Close()
	}()

	// Login handshake, then restore subscriptions from the previous session.
	if err := sc.write(websocket.TextMessage, []byte("LOGIN:"+sc.Session.AccessToken())); err != nil {
		return fmt.Errorf("login write failed: %w", err)
	}
	if len(tokens) > 0 {
		if err := sc.sendCommand("subscribe", tokens); err != nil {
			return err
		}
		if err := sc.sendModeCommand(mode); err != nil {
			return err
		}
	}

	sc.Logger.Info("Stream connected (%d tokens, mode %s)", len(tokens), mode)

	conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(streamPongWait))
		return nil
	})

	// Heartbeat
	pingCtx, cancelPing := context.WithCancel(ctx)
	defer cancelPing()
	go sc.pingLoop(pingCtx)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				return fmt.Errorf("read failed: %w", err)
			}
			return err
		}
		sc.handleMessage(message)
	}
}

// -----------------------------------------------------------------------------

func (sc *StreamClient) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(streamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sc.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// -----------------------------------------------------------------------------

func (sc *StreamClient) handleMessage(message []byte) {
	// The feed delivers JSON arrays of tick objects; anything else is a
	// control frame we only log.
	var ticks []models.MQuote
	if err := json.Unmarshal(message, &ticks); err != nil {
		sc.Logger.Debug("Non-tick stream message: %s", string(message))
		return
	}

	now := time.Now().Unix()
	for _, tick := range ticks {
		if tick.Symbol == "" {
			continue
		}
		tick.FetchedAt = now
		if tick.Timestamp == 0 {
			tick.Timestamp = now
		}
		if sc.OnTick != nil {
			sc.OnTick(tick)
		}
	}
}

// -----------------------------------------------------------------------------

type streamCommand struct {
	Action string `json:"a"`
	Values []int  `json:"v"`
}

type modeCommand struct {
	Action string   `json:"a"`
	Values []string `json:"v"`
}

// -----------------------------------------------------------------------------

// Subscribe registers instrument tokens on the feed. Tokens are remembered
// and restored after a reconnect.
func (sc *StreamClient) Subscribe(tokens []int) error {
	sc.mu.Lock()
	sc.tokens = mergeTokens(sc.tokens, tokens)
	connected := sc.connected
	sc.mu.Unlock()

	if !connected {
		return nil // will subscribe on next connect
	}
	return sc.sendCommand("subscribe", tokens)
}

// -----------------------------------------------------------------------------

// Unsubscribe removes instrument tokens from the feed.
func (sc *StreamClient) Unsubscribe(tokens []int) error {
	sc.mu.Lock()
	sc.tokens = removeTokens(sc.tokens, tokens)
	connected := sc.connected
	sc.mu.Unlock()

	if !connected {
		return nil
	}
	return sc.sendCommand("unsubscribe", tokens)
}

// -----------------------------------------------------------------------------

// SetMode switches the feed between ltp, quote and full payloads.
func (sc *StreamClient) SetMode(mode string) error {
	if mode != ModeLTP && mode != ModeQuote && mode != ModeFull {
		return fmt.Errorf("invalid stream mode: %s", mode)
	}

	sc.mu.Lock()
	sc.mode = mode
	connected := sc.connected
	sc.mu.Unlock()

	if !connected {
		return nil
	}
	return sc.sendModeCommand(mode)
}

// -----------------------------------------------------------------------------

// IsConnected reports whether the stream currently holds a live connection.
func (sc *StreamClient) IsConnected() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.connected
}

// -----------------------------------------------------------------------------

func (sc *StreamClient) sendCommand(action string, tokens []int) error {
	payload, err := json.Marshal(streamCommand{Action: action, Values: tokens})
	if err != nil {
		return err
	}
	return sc.write(websocket.TextMessage, payload)
}

func (sc *StreamClient) sendModeCommand(mode string) error {
	payload, err := json.Marshal(modeCommand{Action: "mode", Values: []string{mode}})
	if err != nil {
		return err
	}
	return sc.write(websocket.TextMessage, payload)
}

// -----------------------------------------------------------------------------

func (sc *StreamClient) write(messageType int, data []byte) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()

	sc.mu.Lock()
	conn := sc.conn
	sc.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("stream not connected")
	}

	conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteMessage(messageType, data)
}

// -----------------------------------------------------------------------------

func mergeTokens(existing, add []int) []int {
	seen := make(map[int]struct{}, len(existing)+len(add))
	out := make([]int, 0, len(existing)+len(add))
	for _, t := range existing {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	for _, t := range add {
		if _, ok := seen[t]; !ok {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	return out
}

func removeTokens(existing, drop []int) []int {
	dropSet := make(map[int]struct{}, len(drop))
	for _, t := range drop {
		dropSet[t] = struct{}{}
	}
	out := existing[:0]
	for _, t := range existing {
		if _, ok := dropSet[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
