package utils

import (
	"testing"

	"bpsalgo/src/models"
)

func tick(ts int64, ltp float64) models.MQuote {
	return models.MQuote{Timestamp: ts, LTP: ltp, Volume: 100, ChangePct: 0.5}
}

// -----------------------------------------------------------------------------

func TestRingBufferAppendAndSize(t *testing.T) {
	rb := NewRingBuffer(5)

	if rb.Size() != 0 || rb.Capacity() != 5 {
		t.Fatalf("fresh buffer size/cap = %d/%d", rb.Size(), rb.Capacity())
	}

	for i := 0; i < 3; i++ {
		rb.Append(tick(int64(i), float64(i)))
	}
	if rb.Size() != 3 {
		t.Errorf("size = %d, want 3", rb.Size())
	}
}

func TestRingBufferWrapAround(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 1; i <= 5; i++ {
		rb.Append(tick(int64(i*10), float64(i)))
	}

	if rb.Size() != 3 {
		t.Fatalf("size = %d, want capacity 3", rb.Size())
	}

	// Oldest two entries were overwritten; remaining are 3, 4, 5 oldest first.
	got := rb.GetAll()
	want := []int64{30, 40, 50}
	for i, q := range got {
		if q.Timestamp != want[i] {
			t.Errorf("entry %d timestamp = %d, want %d", i, q.Timestamp, want[i])
		}
	}
}

func TestRingBufferGetLatest(t *testing.T) {
	rb := NewRingBuffer(10)
	for i := 1; i <= 6; i++ {
		rb.Append(tick(int64(i), float64(i)))
	}

	got := rb.GetLatest(3)
	if len(got) != 3 {
		t.Fatalf("got %d entries, want 3", len(got))
	}
	if got[0].Timestamp != 4 || got[2].Timestamp != 6 {
		t.Errorf("latest 3 = [%d..%d], want [4..6]", got[0].Timestamp, got[2].Timestamp)
	}

	// Asking for more than stored returns everything.
	if got := rb.GetLatest(100); len(got) != 6 {
		t.Errorf("over-ask returned %d entries, want 6", len(got))
	}
	if got := rb.GetLatest(0); len(got) != 0 {
		t.Errorf("zero-ask returned %d entries", len(got))
	}
}

func TestRingBufferPreservesFeatures(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Append(models.MQuote{Timestamp: 1700000000, LTP: 2950.5, Volume: 12345, ChangePct: 1.25})

	got := rb.GetAll()[0]
	if got.Timestamp != 1700000000 || got.LTP != 2950.5 || got.Volume != 12345 || got.ChangePct != 1.25 {
		t.Errorf("round-tripped quote = %+v", got)
	}
}

func TestRingBufferDefaultCapacity(t *testing.T) {
	rb := NewRingBuffer(0)
	if rb.Capacity() != 1000 {
		t.Errorf("default capacity = %d, want 1000", rb.Capacity())
	}
}

// -----------------------------------------------------------------------------

func TestCalculateMaxDataPoints(t *testing.T) {
	tests := []struct {
		days int
		want int
	}{
		{1, 400},
		{7, 2800},
		{0, 2800},  // falls back to the default retention
		{-3, 2800},
	}

	for _, tt := range tests {
		if got := CalculateMaxDataPoints(tt.days); got != tt.want {
			t.Errorf("CalculateMaxDataPoints(%d) = %d, want %d", tt.days, got, tt.want)
		}
	}
}
