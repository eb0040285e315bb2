package interfaces

import (
	"context"
	"sync"

	"bpsalgo/src/models"
)

// -----------------------------------------------------------------------------
// IQuoteSource interface for fetching live quotes from external providers.
// -----------------------------------------------------------------------------

type IQuoteSource interface {

	// Name returns the unique identifier of the source
	Name() string

	// -----------------------------------------------------------------------------

	// FetchInitialData retrieves recent history for all tracked symbols,
	// used to seed the candle tables on startup.
	FetchInitialData() (map[string][]models.MQuote, error)

	// -----------------------------------------------------------------------------

	// FetchUpdateData retrieves the latest quotes for all tracked symbols.
	FetchUpdateData() (map[string][]models.MQuote, error)

	// -----------------------------------------------------------------------------

	// IsRealTime returns true if the source streams rather than polls.
	IsRealTime() bool

	// -----------------------------------------------------------------------------

	// UpdateSymbols swaps the tracked symbol set (watchlist changes).
	UpdateSymbols(symbols []string) error

	// -----------------------------------------------------------------------------

	// Start begins pushing updates onto outputChan until ctx is cancelled.
	// wg is signalled when the source has fully stopped.
	Start(ctx context.Context, outputChan chan<- map[string][]models.MQuote, wg *sync.WaitGroup) error

	// -----------------------------------------------------------------------------

	// Stop terminates the source (manual stop; context cancellation also works).
	Stop() error
}
