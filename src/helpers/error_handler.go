package helpers

import (
	"fmt"
	"time"

	"bpsalgo/src/logger"
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type AppError struct {
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Distinct error types for type assertions at call sites.
type ConfigurationError struct{ AppError }
type NetworkError struct{ AppError }
type BrokerError struct{ AppError }
type AuthError struct{ AppError }
type DatabaseError struct{ AppError }

func NewConfigurationError(msg string, cause error) *ConfigurationError {
	return &ConfigurationError{AppError{Message: msg, Cause: cause}}
}

func NewNetworkError(msg string, cause error) *NetworkError {
	return &NetworkError{AppError{Message: msg, Cause: cause}}
}

func NewBrokerError(msg string, cause error) *BrokerError {
	return &BrokerError{AppError{Message: msg, Cause: cause}}
}

func NewAuthError(msg string, cause error) *AuthError {
	return &AuthError{AppError{Message: msg, Cause: cause}}
}

func NewDatabaseError(msg string, cause error) *DatabaseError {
	return &DatabaseError{AppError{Message: msg, Cause: cause}}
}

// -----------------------------------------------------------------------------
// Retry Logic
// -----------------------------------------------------------------------------

// RetryWithBackoff attempts to execute the operation up to maxRetries times
// with exponential backoff (baseDelay doubling per attempt).
func RetryWithBackoff(operation string, maxRetries int, baseDelay time.Duration, log *logger.Logger, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay << (attempt - 1)
			log.Debug("%s: retrying in %v (attempt %d/%d)", operation, delay, attempt+1, maxRetries)
			time.Sleep(delay)
		}

		if err := fn(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operation, maxRetries, lastErr)
}
