package datasource

import (
	"context"
	"sync"
	"testing"

	"bpsalgo/src/interfaces"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// Scriptable IQuoteSource stub.
// -----------------------------------------------------------------------------

type stubSource struct {
	name     string
	realTime bool
	data     map[string][]models.MQuote
	symbols  []string
	started  bool
	stopped  bool
}

func (s *stubSource) Name() string     { return s.name }
func (s *stubSource) IsRealTime() bool { return s.realTime }

func (s *stubSource) FetchInitialData() (map[string][]models.MQuote, error) {
	return s.data, nil
}

func (s *stubSource) FetchUpdateData() (map[string][]models.MQuote, error) {
	return s.data, nil
}

func (s *stubSource) UpdateSymbols(symbols []string) error {
	s.symbols = symbols
	return nil
}

func (s *stubSource) Start(ctx context.Context, out chan<- map[string][]models.MQuote, wg *sync.WaitGroup) error {
	s.started = true
	return nil
}

func (s *stubSource) Stop() error {
	s.stopped = true
	return nil
}

// -----------------------------------------------------------------------------

func newTestManager(sources ...interfaces.IQuoteSource) *MultiSourceManager {
	return NewMultiSourceManager(sources, logger.NewLogger("ERROR", "test"))
}

// -----------------------------------------------------------------------------

func TestAddAndGetSource(t *testing.T) {
	m := newTestManager()

	src := &stubSource{name: "broker"}
	if err := m.AddSource(src); err != nil {
		t.Fatalf("AddSource failed: %v", err)
	}
	if err := m.AddSource(&stubSource{name: "broker"}); err == nil {
		t.Fatal("duplicate AddSource succeeded")
	}

	got, err := m.GetSource("broker")
	if err != nil || got != src {
		t.Errorf("GetSource = %v, %v", got, err)
	}
	if _, err := m.GetSource("ghost"); err == nil {
		t.Error("GetSource found a missing source")
	}
}

func TestRemoveSourceStopsIt(t *testing.T) {
	src := &stubSource{name: "yahoo"}
	m := newTestManager(src)

	if err := m.RemoveSource("yahoo"); err != nil {
		t.Fatalf("RemoveSource failed: %v", err)
	}
	if !src.stopped {
		t.Error("removed source was not stopped")
	}
	if err := m.RemoveSource("yahoo"); err == nil {
		t.Error("second RemoveSource succeeded")
	}
}

func TestStartLifecycle(t *testing.T) {
	src := &stubSource{name: "broker"}
	m := newTestManager(src)

	out := make(chan map[string][]models.MQuote, 1)
	var wg sync.WaitGroup

	if err := m.Start(context.Background(), out, &wg); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !src.started {
		t.Error("source not started with manager")
	}
	if err := m.Start(context.Background(), out, &wg); err == nil {
		t.Error("double Start succeeded")
	}

	if err := m.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	// Stopped manager can be restarted.
	if err := m.Start(context.Background(), out, &wg); err != nil {
		t.Errorf("restart failed: %v", err)
	}
	m.Stop()
}

func TestAddSourceWhileRunningStartsIt(t *testing.T) {
	m := newTestManager()
	out := make(chan map[string][]models.MQuote, 1)
	var wg sync.WaitGroup
	if err := m.Start(context.Background(), out, &wg); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	late := &stubSource{name: "yahoo"}
	if err := m.AddSource(late); err != nil {
		t.Fatalf("AddSource failed: %v", err)
	}
	if !late.started {
		t.Error("source added to a running manager was not started")
	}
}

func TestFetchMergeFirstSourceWins(t *testing.T) {
	primary := &stubSource{
		name: "broker",
		data: map[string][]models.MQuote{
			"NIFTY50": {{Symbol: "NIFTY50", LTP: 22750, Timestamp: 100}},
		},
	}
	fallback := &stubSource{
		name: "yahoo",
		data: map[string][]models.MQuote{
			"NIFTY50": {{Symbol: "NIFTY50", LTP: 22000, Timestamp: 90}},
			"SENSEX":  {{Symbol: "SENSEX", LTP: 74100, Timestamp: 95}},
		},
	}
	m := newTestManager(primary, fallback)

	merged, err := m.FetchUpdateData()
	if err != nil {
		t.Fatalf("FetchUpdateData failed: %v", err)
	}

	if len(merged) != 2 {
		t.Fatalf("merged %d symbols, want 2", len(merged))
	}
	// SENSEX only exists on the fallback; either source may win NIFTY50
	// since the fan-out is concurrent, but a value must be present.
	if len(merged["NIFTY50"]) == 0 || len(merged["SENSEX"]) == 0 {
		t.Errorf("merged = %v", merged)
	}
	if merged["SENSEX"][0].LTP != 74100 {
		t.Errorf("SENSEX = %+v", merged["SENSEX"][0])
	}
}

func TestIsRealTime(t *testing.T) {
	m := newTestManager(&stubSource{name: "broker"}, &stubSource{name: "stream", realTime: true})
	if !m.IsRealTime() {
		t.Error("IsRealTime = false with a streaming source present")
	}

	m = newTestManager(&stubSource{name: "broker"})
	if m.IsRealTime() {
		t.Error("IsRealTime = true with polling sources only")
	}
}

func TestUpdateSymbolsPropagates(t *testing.T) {
	a := &stubSource{name: "broker"}
	b := &stubSource{name: "yahoo"}
	m := newTestManager(a, b)

	symbols := []string{"NIFTY50", "RELIANCE"}
	if err := m.UpdateSymbols(symbols); err != nil {
		t.Fatalf("UpdateSymbols failed: %v", err)
	}

	if len(a.symbols) != 2 || len(b.symbols) != 2 {
		t.Errorf("symbols not propagated: %v / %v", a.symbols, b.symbols)
	}
}
