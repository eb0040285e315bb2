package algo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"bpsalgo/src/broker"
	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// Agent is the momentum algo loop. While running it scans the latest quote
// snapshot at a fixed interval and places paper orders whenever a symbol
// moves more than the configured threshold off its previous close.
// -----------------------------------------------------------------------------

const (
	maxLogEntries    = 100
	statusLogEntries = 10
)

// Lifecycle no-ops are recoverable, callers report them to the client.
var (
	ErrAlreadyRunning = errors.New("algo agent is already running")
	ErrNotRunning     = errors.New("algo agent is not running")
)

type Agent struct {
	Config  *models.MConfig
	Broker  *broker.Client
	DB      interfaces.IDatabase
	Logger  *logger.Logger
	Symbols func() []string
	Quotes  func() map[string]models.MQuote

	mu            sync.Mutex
	running       bool
	cancelFunc    context.CancelFunc
	done          chan struct{}
	tradeCount    int
	lastExecution time.Time
	logEntries    []string
	lastSides     map[string]string // last signal side per symbol, avoids refiring
}

// -----------------------------------------------------------------------------

func NewAgent(
	cfg *models.MConfig,
	brokerClient *broker.Client,
	db interfaces.IDatabase,
	symbols func() []string,
	quotes func() map[string]models.MQuote,
	log *logger.Logger,
) *Agent {
	return &Agent{
		Config:    cfg,
		Broker:    brokerClient,
		DB:        db,
		Logger:    log,
		Symbols:   symbols,
		Quotes:    quotes,
		lastSides: make(map[string]string),
	}
}

// -----------------------------------------------------------------------------

// Start launches the scan loop. Starting an already running agent returns
// the current status with ErrAlreadyRunning.
func (a *Agent) Start(parentCtx context.Context) (models.MAlgoStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		a.appendLog("Start requested but agent already running")
		return a.statusLocked(), ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parentCtx)
	a.cancelFunc = cancel
	a.done = make(chan struct{})
	a.running = true
	a.appendLog("Agent started")
	a.Logger.Info("Algo agent started (interval %ds, threshold %.2f%%)",
		a.Config.Algo.ScanIntervalSeconds, a.Config.Algo.SignalThresholdPct)

	go a.runLoop(ctx)

	return a.statusLocked(), nil
}

// -----------------------------------------------------------------------------

// Stop terminates the scan loop and waits for it to exit. Stopping an agent
// that is not running returns the current status with ErrNotRunning.
func (a *Agent) Stop() (models.MAlgoStatus, error) {
	a.mu.Lock()
	if !a.running {
		a.appendLog("Stop requested but agent not running")
		status := a.statusLocked()
		a.mu.Unlock()
		return status, ErrNotRunning
	}

	a.cancelFunc()
	done := a.done
	a.mu.Unlock()

	<-done

	a.mu.Lock()
	defer a.mu.Unlock()
	a.running = false
	a.appendLog("Agent stopped")
	a.Logger.Info("Algo agent stopped after %d trades", a.tradeCount)
	return a.statusLocked(), nil
}

// -----------------------------------------------------------------------------

// Status reports the current agent state with the most recent log lines.
func (a *Agent) Status() models.MAlgoStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.statusLocked()
}

func (a *Agent) statusLocked() models.MAlgoStatus {
	status := models.MAlgoStatus{
		Status:     models.AlgoStatusStopped,
		IsRunning:  a.running,
		TradeCount: a.tradeCount,
	}
	if a.running {
		status.Status = models.AlgoStatusRunning
	}
	if !a.lastExecution.IsZero() {
		status.LastExecution = a.lastExecution.Format(time.RFC3339)
	}

	n := len(a.logEntries)
	start := n - statusLogEntries
	if start < 0 {
		start = 0
	}
	status.RecentLogs = append([]string(nil), a.logEntries[start:]...)

	return status
}

// -----------------------------------------------------------------------------

func (a *Agent) runLoop(ctx context.Context) {
	defer close(a.done)

	interval := time.Duration(a.Config.Algo.ScanIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.scan()
		}
	}
}

// -----------------------------------------------------------------------------

// scan checks each watched symbol for a move beyond the threshold and
// executes at most one signal per symbol per direction.
func (a *Agent) scan() {
	quotes := a.Quotes()
	watched := a.Symbols()

	a.mu.Lock()
	a.lastExecution = time.Now()
	a.mu.Unlock()

	var signals []models.MSignal
	for _, symbol := range watched {
		q, ok := quotes[symbol]
		if !ok || q.LTP <= 0 {
			continue
		}

		threshold := a.Config.Algo.SignalThresholdPct
		side := ""
		switch {
		case q.ChangePct > threshold:
			side = "BUY"
		case q.ChangePct < -threshold:
			side = "SELL"
		default:
			a.clearSide(symbol)
			continue
		}

		if a.lastSide(symbol) == side {
			continue // already acted on this move
		}

		signals = append(signals, models.MSignal{
			Symbol:    symbol,
			Side:      side,
			ChangePct: q.ChangePct,
			LTP:       q.LTP,
			At:        time.Now(),
		})
	}

	sort.Slice(signals, func(i, j int) bool {
		return signals[i].Symbol < signals[j].Symbol
	})

	for _, sig := range signals {
		a.execute(sig)
	}
}

// -----------------------------------------------------------------------------

func (a *Agent) execute(sig models.MSignal) {
	a.mu.Lock()
	a.appendLog(fmt.Sprintf("Signal %s %s at %.2f (%+.2f%%)",
		sig.Side, sig.Symbol, sig.LTP, sig.ChangePct))
	a.mu.Unlock()

	order, err := a.Broker.PlaceOrder(sig.Symbol, sig.Side, a.Config.Algo.OrderQuantity, sig.LTP)
	if err != nil {
		a.Logger.Warning("Order for %s failed: %v", sig.Symbol, err)
		a.mu.Lock()
		a.appendLog(fmt.Sprintf("Order %s %s FAILED: %v", sig.Side, sig.Symbol, err))
		a.mu.Unlock()
		return
	}

	if order.OrderID == "" {
		order.OrderID = fmt.Sprintf("%s-%d", sig.Symbol, time.Now().UnixNano())
	}
	if order.PlacedAt.IsZero() {
		order.PlacedAt = time.Now()
	}

	if err := a.DB.SaveOrder(order); err != nil {
		a.Logger.Error("Failed to persist order %s: %v", order.OrderID, err)
	}

	a.mu.Lock()
	a.tradeCount++
	a.lastSides[sig.Symbol] = sig.Side
	a.appendLog(fmt.Sprintf("Order %s %s x%d filled as %s",
		sig.Side, sig.Symbol, order.Quantity, order.OrderID))
	a.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (a *Agent) lastSide(symbol string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastSides[symbol]
}

func (a *Agent) clearSide(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.lastSides, symbol)
}

// -----------------------------------------------------------------------------

// appendLog keeps the in-memory log bounded. Caller must hold the lock.
func (a *Agent) appendLog(line string) {
	entry := time.Now().Format("15:04:05") + " " + line
	a.logEntries = append(a.logEntries, entry)
	if len(a.logEntries) > maxLogEntries {
		a.logEntries = a.logEntries[len(a.logEntries)-maxLogEntries:]
	}
}
