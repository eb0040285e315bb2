package analysis

import (
	"sort"
	"time"

	"bpsalgo/src/analysis/core"
	"bpsalgo/src/logger"
	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// Aggregator resamples raw quote streams into aligned OHLCV candles.
// -----------------------------------------------------------------------------

type Aggregator struct {
	Config            *models.MConfig
	WindowsSecondsMap map[string]int64
	Logger            *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAggregator(cfg *models.MConfig, log *logger.Logger) *Aggregator {
	windowsMap := make(map[string]int64)
	for _, window := range cfg.WindowsAgg {
		if dur, err := time.ParseDuration(window); err == nil {
			windowsMap[window] = int64(dur.Seconds())
		}
	}

	return &Aggregator{
		Config:            cfg,
		WindowsSecondsMap: windowsMap,
		Logger:            log,
	}
}

// -----------------------------------------------------------------------------

// AggregateRealTime builds the candle of the current aligned window for each
// symbol. The window is anchored on the latest quote's exchange timestamp and
// the change is measured against the previous aligned window's close.
func (a *Aggregator) AggregateRealTime(
	data map[string][]models.MQuote,
	windowName string,
) map[string]models.MCandle {

	results := make(map[string]models.MCandle)

	windowSeconds, ok := a.WindowsSecondsMap[windowName]
	if !ok {
		a.Logger.Error("Invalid window name %s", windowName)
		return results
	}

	for symbol, quotes := range data {
		if len(quotes) == 0 {
			continue
		}

		sort.Slice(quotes, func(i, j int) bool {
			return quotes[i].Timestamp < quotes[j].Timestamp
		})

		// Anchor the current aligned window on the latest quote
		lastQ := quotes[len(quotes)-1]
		currentWStart := lastQ.Timestamp - (lastQ.Timestamp % windowSeconds)
		currentWEnd := currentWStart + windowSeconds
		prevWStart := currentWStart - windowSeconds

		var currentSubset []models.MQuote
		var prevSubset []models.MQuote

		for _, q := range quotes {
			if q.Timestamp >= currentWStart && q.Timestamp < currentWEnd {
				currentSubset = append(currentSubset, q)
			} else if q.Timestamp >= prevWStart && q.Timestamp < currentWStart {
				prevSubset = append(prevSubset, q)
			}
		}

		if len(currentSubset) == 0 {
			continue
		}

		ohlcv := computeWindow(currentSubset)

		changePct := 0.0
		if len(prevSubset) > 0 {
			prevClose := prevSubset[len(prevSubset)-1].LTP
			changePct = core.CalculateChangePercent(ohlcv.Close, prevClose)
		} else {
			// No previous window in memory (start of day or buffer)
			changePct = core.CalculateChangePercent(ohlcv.Close, ohlcv.Open)
		}

		results[symbol] = models.MCandle{
			Symbol:     symbol,
			WindowName: windowName,
			Open:       ohlcv.Open,
			High:       ohlcv.High,
			Low:        ohlcv.Low,
			Close:      ohlcv.Close,
			Volume:     ohlcv.Volume,
			AvgPrice:   ohlcv.AvgPrice,
			ChangePct:  changePct,
			StartTime:  currentWStart,
			EndTime:    currentWEnd,
			DataPoints: len(currentSubset),
			CreatedAt:  time.Now(),
		}
	}

	return results
}

// -----------------------------------------------------------------------------

// AggregateHistorical resamples the entire quote history into candles.
func (a *Aggregator) AggregateHistorical(
	data map[string][]models.MQuote,
	windowName string,
) map[string][]models.MCandle {

	results := make(map[string][]models.MCandle)

	windowSeconds, ok := a.WindowsSecondsMap[windowName]
	if !ok {
		return results
	}

	for symbol, quotes := range data {
		if len(quotes) == 0 {
			continue
		}

		sort.Slice(quotes, func(i, j int) bool {
			return quotes[i].Timestamp < quotes[j].Timestamp
		})

		windows := make(map[int64][]models.MQuote)
		for _, q := range quotes {
			wStart := q.Timestamp - (q.Timestamp % windowSeconds)
			windows[wStart] = append(windows[wStart], q)
		}

		var windowStarts []int64
		for wStart := range windows {
			windowStarts = append(windowStarts, wStart)
		}
		sort.Slice(windowStarts, func(i, j int) bool {
			return windowStarts[i] < windowStarts[j]
		})

		var candles []models.MCandle
		var prevClose float64
		prevCloseSet := false

		for _, wStart := range windowStarts {
			subset := windows[wStart]
			if len(subset) == 0 {
				continue
			}

			ohlcv := computeWindow(subset)

			changePct := 0.0
			if prevCloseSet {
				changePct = core.CalculateChangePercent(ohlcv.Close, prevClose)
			}

			candles = append(candles, models.MCandle{
				Symbol:     symbol,
				WindowName: windowName,
				Open:       ohlcv.Open,
				High:       ohlcv.High,
				Low:        ohlcv.Low,
				Close:      ohlcv.Close,
				Volume:     ohlcv.Volume,
				AvgPrice:   ohlcv.AvgPrice,
				ChangePct:  changePct,
				StartTime:  wStart,
				EndTime:    wStart + windowSeconds,
				DataPoints: len(subset),
				CreatedAt:  time.Now(),
			})

			prevClose = ohlcv.Close
			prevCloseSet = true
		}

		if len(candles) > 0 {
			results[symbol] = candles
		}
	}

	return results
}

// -----------------------------------------------------------------------------

func computeWindow(quotes []models.MQuote) core.OHLCV {
	prices := make([]float64, len(quotes))
	vols := make([]float64, len(quotes))
	for i, q := range quotes {
		prices[i] = q.LTP
		vols[i] = q.Volume
	}
	return core.ComputeOHLCV(prices, vols)
}
