package datasource

import (
	"context"
	"fmt"
	"sync"

	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// MultiSourceManager aggregates multiple IQuoteSource instances behind the
// same interface the main loop consumes.
// -----------------------------------------------------------------------------

type MultiSourceManager struct {
	Sources    map[string]interfaces.IQuoteSource
	Logger     *logger.Logger
	mu         sync.RWMutex
	outputChan chan<- map[string][]models.MQuote
	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         *sync.WaitGroup
}

// -----------------------------------------------------------------------------

func NewMultiSourceManager(sources []interfaces.IQuoteSource, log *logger.Logger) *MultiSourceManager {
	m := &MultiSourceManager{
		Sources: make(map[string]interfaces.IQuoteSource),
		Logger:  log,
	}

	for _, s := range sources {
		m.Sources[s.Name()] = s
	}

	return m
}

// -----------------------------------------------------------------------------

// AddSource adds a new source and starts it if the manager is running.
func (m *MultiSourceManager) AddSource(source interfaces.IQuoteSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := source.Name()
	if _, exists := m.Sources[name]; exists {
		return fmt.Errorf("source %s already exists", name)
	}

	m.Sources[name] = source
	m.Logger.Info("Added source: %s", name)

	if m.outputChan != nil && m.ctx != nil {
		if err := source.Start(m.ctx, m.outputChan, m.wg); err != nil {
			return fmt.Errorf("failed to start source %s: %v", name, err)
		}
		m.Logger.Info("Started source: %s", name)
	}

	return nil
}

// -----------------------------------------------------------------------------

// RemoveSource stops and removes a source.
func (m *MultiSourceManager) RemoveSource(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	source, exists := m.Sources[name]
	if !exists {
		return fmt.Errorf("source %s not found", name)
	}

	if err := source.Stop(); err != nil {
		m.Logger.Error("Error stopping source %s: %v", name, err)
	}

	delete(m.Sources, name)
	m.Logger.Info("Removed source: %s", name)
	return nil
}

// -----------------------------------------------------------------------------

// GetSource retrieves a source by name.
func (m *MultiSourceManager) GetSource(name string) (interfaces.IQuoteSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	source, exists := m.Sources[name]
	if !exists {
		return nil, fmt.Errorf("source %s not found", name)
	}
	return source, nil
}

// -----------------------------------------------------------------------------

// GetAllSources returns a snapshot list of all sources.
func (m *MultiSourceManager) GetAllSources() []interfaces.IQuoteSource {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]interfaces.IQuoteSource, 0, len(m.Sources))
	for _, s := range m.Sources {
		list = append(list, s)
	}
	return list
}

// -----------------------------------------------------------------------------

// Name returns "MultiSourceManager".
func (m *MultiSourceManager) Name() string {
	return "MultiSourceManager"
}

// -----------------------------------------------------------------------------

// Start starts all sources on a derived context so the manager can be
// stopped independently of its parent.
func (m *MultiSourceManager) Start(parentCtx context.Context, outputChan chan<- map[string][]models.MQuote, wg *sync.WaitGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx != nil {
		return fmt.Errorf("MultiSourceManager is already running")
	}

	ctx, cancel := context.WithCancel(parentCtx)
	m.ctx = ctx
	m.cancelFunc = cancel
	m.outputChan = outputChan
	m.wg = wg

	for _, src := range m.Sources {
		if err := src.Start(m.ctx, m.outputChan, m.wg); err != nil {
			m.Logger.Error("Failed to start source %s: %v", src.Name(), err)
			return err
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// Stop stops all sources by cancelling the derived context.
func (m *MultiSourceManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ctx == nil {
		return nil
	}

	m.Logger.Info("Stopping MultiSourceManager...")

	if m.cancelFunc != nil {
		m.cancelFunc()
	}

	m.cancelFunc = nil
	m.ctx = nil

	m.Logger.Info("MultiSourceManager stopped.")
	return nil
}

// -----------------------------------------------------------------------------

// FetchInitialData fans out to all sources and merges results.
func (m *MultiSourceManager) FetchInitialData() (map[string][]models.MQuote, error) {
	return m.fanOut(func(s interfaces.IQuoteSource) (map[string][]models.MQuote, error) {
		return s.FetchInitialData()
	})
}

// -----------------------------------------------------------------------------

// FetchUpdateData fans out to all sources for a manual update trigger.
func (m *MultiSourceManager) FetchUpdateData() (map[string][]models.MQuote, error) {
	return m.fanOut(func(s interfaces.IQuoteSource) (map[string][]models.MQuote, error) {
		return s.FetchUpdateData()
	})
}

// -----------------------------------------------------------------------------

func (m *MultiSourceManager) fanOut(
	fetch func(interfaces.IQuoteSource) (map[string][]models.MQuote, error),
) (map[string][]models.MQuote, error) {

	results := make(map[string][]models.MQuote)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, src := range m.GetAllSources() {
		wg.Add(1)
		go func(s interfaces.IQuoteSource) {
			defer wg.Done()
			data, err := fetch(s)
			if err != nil {
				m.Logger.Error("Source %s failed fetch: %v", s.Name(), err)
				return
			}
			mu.Lock()
			for k, v := range data {
				// First source wins per symbol; the broker source registers first
				if _, exists := results[k]; !exists {
					results[k] = v
				}
			}
			mu.Unlock()
		}(src)
	}
	wg.Wait()
	return results, nil
}

// -----------------------------------------------------------------------------

// IsRealTime reports whether any underlying source streams.
func (m *MultiSourceManager) IsRealTime() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.Sources {
		if s.IsRealTime() {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// UpdateSymbols propagates a watchlist change to every source.
func (m *MultiSourceManager) UpdateSymbols(symbols []string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, src := range m.Sources {
		if err := src.UpdateSymbols(symbols); err != nil {
			m.Logger.Error("Failed to update symbols for %s: %v", src.Name(), err)
			return err
		}
	}
	return nil
}
