package usecase

import "time"

const (
	// DefaultTransactionTimeout is the maximum duration for a database transaction
	// This prevents long-running transactions from blocking tables
	DefaultTransactionTimeout = 10 * time.Second

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour

	// IdempotencyPending is stored under a key while its first request is in flight
	IdempotencyPending = "processing"

	// maxNumberAttempts bounds account number collision retries
	maxNumberAttempts = 5

	// scanPageSize is used when walking every row of a table
	scanPageSize = 500
)

// IsIdempotencyPending reports whether a stored idempotency value is the
// in-flight marker rather than a finished response.
func IsIdempotencyPending(value []byte) bool {
	return string(value) == IdempotencyPending
}
