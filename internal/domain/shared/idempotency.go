package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers request keys that were already accepted, so a
// duplicate submission (double click, client retry) short-circuits before any
// charge is attempted. The unique transaction_id on the payment record remains
// the durable second line of defense.
type IdempotencyStore interface {
	// MarkProcessed marks a key as seen with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks whether a key has already been seen
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for idempotency handling
type IdempotencyConfig struct {
	// TTL is the time-to-live for seen keys. After this duration the same
	// key is accepted again. Default: 24 hours.
	TTL time.Duration

	// Enabled determines whether idempotency checking is enabled
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
