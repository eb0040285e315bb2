package utils

import (
	"runtime"
	"runtime/debug"
	"sync"

	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// MemoryManager manages in-memory quote buffers per symbol.
// -----------------------------------------------------------------------------

type MemoryManager struct {
	DataStreams   map[string]*RingBuffer
	MaxMemoryMB   int
	MaxDataPoints int
	Logger        *logger.Logger
	mu            sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMemoryManager(maxMemoryMB, maxDataPoints int, log *logger.Logger) *MemoryManager {
	if log == nil {
		log = logger.NewLogger("INFO", "MemoryManager")
	}

	return &MemoryManager{
		DataStreams:   make(map[string]*RingBuffer),
		MaxMemoryMB:   maxMemoryMB,
		MaxDataPoints: maxDataPoints,
		Logger:        log,
	}
}

// -----------------------------------------------------------------------------

// AddDataPoint adds a quote to the buffer for a symbol.
func (mm *MemoryManager) AddDataPoint(symbol string, q models.MQuote) {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	if _, ok := mm.DataStreams[symbol]; !ok {
		mm.DataStreams[symbol] = NewRingBuffer(mm.MaxDataPoints)
	}

	mm.DataStreams[symbol].Append(q)

	// Periodic memory check
	if mm.DataStreams[symbol].Size()%100 == 0 {
		mm.checkMemoryLimitsLocked()
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n most recent quotes for a symbol, oldest first.
func (mm *MemoryManager) GetLatest(symbol string, n int) []models.MQuote {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	buffer, ok := mm.DataStreams[symbol]
	if !ok || buffer.Size() == 0 {
		return nil
	}

	return buffer.GetLatest(n)
}

// -----------------------------------------------------------------------------

// GetAll returns the full in-memory history for a symbol, oldest first.
func (mm *MemoryManager) GetAll(symbol string) []models.MQuote {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	buffer, ok := mm.DataStreams[symbol]
	if !ok || buffer.Size() == 0 {
		return nil
	}

	return buffer.GetAll()
}

// -----------------------------------------------------------------------------

// Snapshot returns the latest quote per symbol.
func (mm *MemoryManager) Snapshot() map[string]models.MQuote {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	result := make(map[string]models.MQuote, len(mm.DataStreams))
	for sym, buffer := range mm.DataStreams {
		if buffer.Size() == 0 {
			continue
		}

		latest := buffer.GetLatest(1)
		if len(latest) > 0 {
			result[sym] = latest[0]
		}
	}
	return result
}

// -----------------------------------------------------------------------------

// CheckMemoryLimits checks current heap usage and drops the oldest half of
// every buffer when the limit is exceeded.
func (mm *MemoryManager) CheckMemoryLimits() {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.checkMemoryLimitsLocked()
}

func (mm *MemoryManager) checkMemoryLimitsLocked() {
	currentMemory := mm.GetProcessMemoryMB()

	if currentMemory > float64(mm.MaxMemoryMB) {
		mm.Logger.Info("Memory usage %.1fMB exceeds limit %dMB. Cleaning up.",
			currentMemory, mm.MaxMemoryMB)

		for symbol, buffer := range mm.DataStreams {
			if buffer.Size() < 100 {
				continue
			}
			keep := buffer.GetLatest(buffer.Size() / 2)

			fresh := NewRingBuffer(buffer.Capacity())
			for _, q := range keep {
				fresh.Append(q)
			}
			mm.DataStreams[symbol] = fresh
		}

		runtime.GC()
		debug.FreeOSMemory()
	}
}

// -----------------------------------------------------------------------------

// GetProcessMemoryMB gets current process heap usage in MB.
func (mm *MemoryManager) GetProcessMemoryMB() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return float64(m.HeapAlloc) / 1024 / 1024
}

// -----------------------------------------------------------------------------

// Cleanup clears all buffered data.
func (mm *MemoryManager) Cleanup() {
	mm.mu.Lock()
	defer mm.mu.Unlock()

	mm.DataStreams = make(map[string]*RingBuffer)
	runtime.GC()
	debug.FreeOSMemory()
}

// -----------------------------------------------------------------------------

// HasSymbol checks if symbol has buffered data.
func (mm *MemoryManager) HasSymbol(symbol string) bool {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	_, ok := mm.DataStreams[symbol]
	return ok
}

// -----------------------------------------------------------------------------

// SymbolCount returns number of symbols with data.
func (mm *MemoryManager) SymbolCount() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()

	return len(mm.DataStreams)
}
