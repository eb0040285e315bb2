package utils

import (
	"testing"
)

func TestMemoryManagerAddAndFetch(t *testing.T) {
	mm := NewMemoryManager(512, 100, nil)

	for i := 1; i <= 5; i++ {
		mm.AddDataPoint("NIFTY50", tick(int64(i), float64(22000+i)))
	}

	if !mm.HasSymbol("NIFTY50") {
		t.Fatal("NIFTY50 missing after AddDataPoint")
	}
	if mm.HasSymbol("SENSEX") {
		t.Error("unexpected SENSEX stream")
	}
	if mm.SymbolCount() != 1 {
		t.Errorf("SymbolCount = %d, want 1", mm.SymbolCount())
	}

	latest := mm.GetLatest("NIFTY50", 2)
	if len(latest) != 2 || latest[1].Timestamp != 5 {
		t.Errorf("GetLatest = %+v", latest)
	}

	all := mm.GetAll("NIFTY50")
	if len(all) != 5 || all[0].Timestamp != 1 {
		t.Errorf("GetAll returned %d entries, first ts %v", len(all), all[0].Timestamp)
	}
}

func TestMemoryManagerUnknownSymbol(t *testing.T) {
	mm := NewMemoryManager(512, 100, nil)

	if got := mm.GetAll("GHOST"); len(got) != 0 {
		t.Errorf("unknown symbol returned %d entries", len(got))
	}
}

func TestMemoryManagerBoundsPerSymbol(t *testing.T) {
	mm := NewMemoryManager(512, 10, nil)

	for i := 0; i < 50; i++ {
		mm.AddDataPoint("BANKNIFTY", tick(int64(i), float64(i)))
	}

	all := mm.GetAll("BANKNIFTY")
	if len(all) != 10 {
		t.Fatalf("stored %d entries, want ring cap 10", len(all))
	}
	// Oldest surviving entry is 40.
	if all[0].Timestamp != 40 {
		t.Errorf("oldest ts = %d, want 40", all[0].Timestamp)
	}
}

func TestMemoryManagerCleanup(t *testing.T) {
	mm := NewMemoryManager(512, 100, nil)
	mm.AddDataPoint("NIFTY50", tick(1, 1))
	mm.AddDataPoint("SENSEX", tick(1, 1))

	mm.Cleanup()

	if mm.SymbolCount() != 0 {
		t.Errorf("SymbolCount after Cleanup = %d, want 0", mm.SymbolCount())
	}
}

func TestMemoryManagerSnapshot(t *testing.T) {
	mm := NewMemoryManager(512, 100, nil)
	mm.AddDataPoint("NIFTY50", tick(1, 100))
	mm.AddDataPoint("SENSEX", tick(2, 200))

	snap := mm.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot has %d symbols, want 2", len(snap))
	}
	if snap["SENSEX"].LTP != 200 {
		t.Errorf("SENSEX snapshot = %+v", snap["SENSEX"])
	}
}
