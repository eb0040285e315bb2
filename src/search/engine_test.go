package search

import (
	"path/filepath"
	"testing"

	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

func testInstruments() []models.MInstrument {
	symbols := []struct {
		symbol, name string
		token        int
	}{
		{"RELIANCE", "Reliance Industries", 2885},
		{"TCS", "Tata Consultancy Services", 11536},
		{"TATAMOTORS", "Tata Motors", 3456},
		{"NIFTY50", "Nifty 50 Index", 26000},
	}

	out := make([]models.MInstrument, len(symbols))
	for i, s := range symbols {
		out[i] = models.MInstrument{
			Symbol:          s.symbol,
			Name:            s.name,
			Exchange:        "NSE",
			Type:            "EQ",
			Token:           s.token,
			PopularityScore: CalculatePopularityScore(s.symbol),
		}
	}
	return out
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	path := filepath.Join(t.TempDir(), "instruments.bleve")
	e, err := NewEngine(path, testInstruments(), logger.NewLogger("ERROR", "test"))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// -----------------------------------------------------------------------------

func TestGetBySymbol(t *testing.T) {
	e := newTestEngine(t)

	inst := e.GetBySymbol("RELIANCE")
	if inst == nil {
		t.Fatal("GetBySymbol(RELIANCE) = nil")
	}
	if inst.Symbol != "RELIANCE" || inst.Token != 2885 || inst.Exchange != "NSE" {
		t.Errorf("instrument = %+v", inst)
	}

	if got := e.GetBySymbol("GHOST"); got != nil {
		t.Errorf("GetBySymbol(GHOST) = %+v, want nil", got)
	}
}

func TestSearchExactSymbol(t *testing.T) {
	e := newTestEngine(t)

	hits := e.Search("reliance", 5)
	if len(hits) == 0 {
		t.Fatal("no hits for reliance")
	}
	if hits[0].Symbol != "RELIANCE" {
		t.Errorf("top hit = %s, want RELIANCE", hits[0].Symbol)
	}
}

func TestSearchPrefix(t *testing.T) {
	e := newTestEngine(t)

	hits := e.Search("tata", 5)
	if len(hits) < 2 {
		t.Fatalf("hits for tata = %d, want both Tata instruments", len(hits))
	}
	for _, h := range hits {
		if h.Symbol != "TCS" && h.Symbol != "TATAMOTORS" {
			t.Errorf("unexpected hit %s", h.Symbol)
		}
	}
}

func TestSearchByName(t *testing.T) {
	e := newTestEngine(t)

	hits := e.Search("consultancy", 5)
	if len(hits) == 0 || hits[0].Symbol != "TCS" {
		t.Errorf("hits = %+v, want TCS first", hits)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	e := newTestEngine(t)

	if hits := e.Search("  ", 5); hits != nil {
		t.Errorf("blank query returned %d hits", len(hits))
	}
}

func TestSearchLimit(t *testing.T) {
	e := newTestEngine(t)

	if hits := e.Search("tata", 1); len(hits) > 1 {
		t.Errorf("limit 1 returned %d hits", len(hits))
	}
}

func TestReopenExistingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.bleve")
	log := logger.NewLogger("ERROR", "test")

	e, err := NewEngine(path, testInstruments(), log)
	if err != nil {
		t.Fatalf("initial build failed: %v", err)
	}
	e.Close()

	// Second open must reuse the index without reindexing.
	e, err = NewEngine(path, nil, log)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer e.Close()

	if inst := e.GetBySymbol("TCS"); inst == nil {
		t.Error("reopened index lost its documents")
	}
}
