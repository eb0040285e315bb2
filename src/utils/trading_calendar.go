package utils

import (
	"log"
	"strings"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar answers market-hours questions using scmhub/calendar.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// Index symbols tracked by default; all trade on Indian exchanges.
var indexMICs = map[string]string{
	"NIFTY50":   "xnse",
	"BANKNIFTY": "xnse",
	"FINNIFTY":  "xnse",
	"GIFTNIFTY": "xnse",
	"SENSEX":    "xbom",
}

// -----------------------------------------------------------------------------

// GetCalendar maps a symbol to its exchange calendar (ISO 10383 MIC).
// Indian listings are the default; foreign suffixes map to their venues.
func GetCalendar(symbol string) *TradingCalendar {
	symbol = strings.ToUpper(symbol)

	mic, ok := indexMICs[symbol]
	if !ok {
		mic = "xnse" // NSE equities are the default universe
		if strings.HasSuffix(symbol, ".BO") {
			mic = "xbom"
		} else if strings.HasSuffix(symbol, ".L") {
			mic = "xlon"
		} else if strings.HasSuffix(symbol, ".T") {
			mic = "xtks"
		} else if strings.HasSuffix(symbol, ".HK") {
			mic = "xhkg"
		} else if strings.HasSuffix(symbol, ".US") {
			mic = "xnys"
		}
	}

	cal := calendar.GetCalendar(mic)
	if cal == nil {
		log.Printf("WARNING: Failed to load calendar for MIC '%s'. Using simple fallback (Mon-Fri 09:15-15:30 IST).", mic)
		istLoc, _ := time.LoadLocation("Asia/Kolkata")
		if istLoc == nil {
			istLoc = time.UTC // Worst case
		}
		return &TradingCalendar{Fallback: true, Timezone: istLoc}
	}

	return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// NSE/BSE regular session: 09:15 - 15:30 IST
		afterOpen := hour > 9 || (hour == 9 && minute >= 15)
		beforeClose := hour < 15 || (hour == 15 && minute < 30)
		return afterOpen && beforeClose
	}

	return tc.Calendar.IsOpen(t)
}
