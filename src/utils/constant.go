package utils

import "math"

// -----------------------------------------------------------------------------

// Constants and helper functions for data retention and memory management.
// Indian cash session runs 6 hours 15 minutes (09:15 to 15:30 IST),
// which is 375 one-minute points per day. Rounded up to 400 for safety.
const (
	DefaultRetentionDays = 7
	pointsPerTradingDay  = 400
)

// -----------------------------------------------------------------------------

// CalculateMaxDataPoints calculates max data points based on retention days.
func CalculateMaxDataPoints(days int) int {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return int(math.Ceil(float64(days) * pointsPerTradingDay))
}
