package interfaces

import "bpsalgo/src/models"

// -----------------------------------------------------------------------------
// IDatabase defines the contract for storage operations.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveQuotesBulk appends a batch of quote ticks to the history table and
	// upserts the live snapshot (latest-wins by exchange timestamp).
	SaveQuotesBulk(quotes []models.MQuote) error

	// -----------------------------------------------------------------------------

	// SaveCandles persists aggregated candles, keyed symbol -> window -> bars.
	SaveCandles(candles map[string]map[string][]models.MCandle) error

	// -----------------------------------------------------------------------------

	// LoadCandles returns stored candles for a symbol and window, oldest first.
	LoadCandles(symbol, window string, limit int) ([]models.MCandle, error)

	// -----------------------------------------------------------------------------

	// LoadQuoteHistory returns stored ticks for a symbol, oldest first.
	LoadQuoteHistory(symbol string, limit int) ([]models.MQuote, error)

	// -----------------------------------------------------------------------------

	// Watchlist persistence. Only user-added symbols are stored; defaults
	// come from config.
	SaveWatchlistSymbol(symbol string) error
	DeleteWatchlistSymbol(symbol string) error
	LoadWatchlistSymbols() ([]string, error)

	// -----------------------------------------------------------------------------

	// SaveOrder records a paper order placed by the algo agent.
	SaveOrder(order models.MOrder) error

	// -----------------------------------------------------------------------------

	// CleanupOldData removes history older than the retention policy.
	// The watchlist and orders tables are never touched.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
