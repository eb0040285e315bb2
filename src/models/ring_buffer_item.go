package models

// RingBuffer indices and constants
const (
	RB_IDX_TIMESTAMP  = 0
	RB_IDX_LTP        = 1
	RB_IDX_VOLUME     = 2
	RB_IDX_CHANGE_PCT = 3
	RB_NUM_FEATURES   = 4
)
