package utils

import (
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// RingBuffer is a fixed-size circular buffer of quote features.
// True ring buffer - no resizing allowed!
// -----------------------------------------------------------------------------

type RingBuffer struct {
	data     [][models.RB_NUM_FEATURES]float64
	capacity int
	index    int // Next write position
	size     int // Current number of elements
}

// -----------------------------------------------------------------------------

// NewRingBuffer creates a new buffer with fixed capacity
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity <= 0 {
		capacity = 1000 // Default reasonable size
	}

	return &RingBuffer{
		data:     make([][models.RB_NUM_FEATURES]float64, capacity),
		capacity: capacity,
		index:    0,
		size:     0,
	}
}

// -----------------------------------------------------------------------------

// Append adds a quote's features to the buffer.
func (rb *RingBuffer) Append(q models.MQuote) {
	rb.data[rb.index] = [models.RB_NUM_FEATURES]float64{
		float64(q.Timestamp),
		q.LTP,
		q.Volume,
		q.ChangePct,
	}

	rb.index = (rb.index + 1) % rb.capacity

	// Update size (never exceeds capacity)
	if rb.size < rb.capacity {
		rb.size++
	}
}

// -----------------------------------------------------------------------------

// GetLatest returns the n most recent entries, oldest first.
func (rb *RingBuffer) GetLatest(n int) []models.MQuote {
	if rb.size == 0 || n <= 0 {
		return []models.MQuote{}
	}

	count := n
	if n > rb.size {
		count = rb.size
	}

	result := make([]models.MQuote, count)
	startIdx := (rb.index - count + rb.capacity) % rb.capacity

	for i := 0; i < count; i++ {
		idx := (startIdx + i) % rb.capacity
		row := rb.data[idx]

		result[i] = models.MQuote{
			Timestamp: int64(row[models.RB_IDX_TIMESTAMP]),
			LTP:       row[models.RB_IDX_LTP],
			Volume:    row[models.RB_IDX_VOLUME],
			ChangePct: row[models.RB_IDX_CHANGE_PCT],
		}
	}

	return result
}

// -----------------------------------------------------------------------------

// GetAll returns the full stored history, oldest first.
func (rb *RingBuffer) GetAll() []models.MQuote {
	return rb.GetLatest(rb.size)
}

// -----------------------------------------------------------------------------

// Size returns the current number of stored entries.
func (rb *RingBuffer) Size() int {
	return rb.size
}

// Capacity returns the fixed buffer capacity.
func (rb *RingBuffer) Capacity() int {
	return rb.capacity
}
