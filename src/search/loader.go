package search

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// Instrument master loader. The broker publishes a CSV of tradable
// instruments: SYMBOL,NAME,EXCHANGE,TYPE,TOKEN.
// -----------------------------------------------------------------------------

// CalculatePopularityScore assigns a static popularity score per symbol.
// Scores range from 0.2 (unknown) to 1.0 (index / top large cap).
func CalculatePopularityScore(symbol string) float64 {
	symbol = strings.ToUpper(symbol)

	// Indices rank above everything, they are the dashboard defaults
	indices := map[string]float64{
		"NIFTY50":   1.0,
		"BANKNIFTY": 0.99,
		"SENSEX":    0.98,
		"FINNIFTY":  0.97,
		"GIFTNIFTY": 0.96,
	}

	// Top large caps
	tier1 := map[string]float64{
		"RELIANCE":   0.95,
		"TCS":        0.94,
		"HDFCBANK":   0.93,
		"INFY":       0.92,
		"ICICIBANK":  0.91,
		"HINDUNILVR": 0.90,
		"ITC":        0.89,
		"SBIN":       0.88,
		"BHARTIARTL": 0.87,
		"KOTAKBANK":  0.86,
	}

	// Well-known large caps
	tier2 := map[string]float64{
		"BAJFINANCE": 0.80,
		"LT":         0.79,
		"ASIANPAINT": 0.78,
		"AXISBANK":   0.77,
		"MARUTI":     0.76,
		"SUNPHARMA":  0.75,
		"TITAN":      0.74,
		"WIPRO":      0.73,
		"TATAMOTORS": 0.72,
		"TATASTEEL":  0.71,
		"ONGC":       0.70,
	}

	if score, ok := indices[symbol]; ok {
		return score
	}
	if score, ok := tier1[symbol]; ok {
		return score
	}
	if score, ok := tier2[symbol]; ok {
		return score
	}

	return 0.2
}

// -----------------------------------------------------------------------------

// LoadInstruments reads the instrument master CSV.
func LoadInstruments(filePath string) ([]models.MInstrument, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // broker exports carry ragged rows
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	// Skip header row if present
	if len(records) > 0 && strings.EqualFold(records[0][0], "SYMBOL") {
		records = records[1:]
	}

	var instruments []models.MInstrument
	for _, record := range records {
		if len(record) < 4 {
			continue
		}

		token := 0
		if len(record) >= 5 {
			token, _ = strconv.Atoi(strings.TrimSpace(record[4]))
		}

		symbol := strings.ToUpper(strings.TrimSpace(record[0]))
		instruments = append(instruments, models.MInstrument{
			Symbol:          symbol,
			Name:            strings.TrimSpace(record[1]),
			Exchange:        strings.ToUpper(strings.TrimSpace(record[2])),
			Type:            record[3],
			Token:           token,
			PopularityScore: CalculatePopularityScore(symbol),
		})
	}

	return instruments, nil
}
