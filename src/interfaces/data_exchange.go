package interfaces

import "bpsalgo/src/models"

// -----------------------------------------------------------------------------
// IDataExchanger defines the interface for sharing state with dashboard clients.
// -----------------------------------------------------------------------------

type IDataExchanger interface {

	// Broadcast pushes an update to all connected WebSocket clients.
	Broadcast(payload *models.MLatestData)

	// -----------------------------------------------------------------------------

	// UpdateState merges new data into the served state without broadcasting.
	UpdateState(data *models.MLatestData)

	// -----------------------------------------------------------------------------

	// Start the server (blocking).
	Start() error

	// -----------------------------------------------------------------------------

	// Stop the server gracefully.
	Stop() error
}
