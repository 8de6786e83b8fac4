package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers processed event ids, e.g. Stripe webhook
// deliveries, for a bounded time.
type IdempotencyStore interface {
	// MarkProcessed claims eventID for ttl. It returns false when the id was
	// already claimed and has not expired.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error)

	// Release forgets eventID so that a redelivery is processed again
	Release(ctx context.Context, eventID string) error

	Close() error
}
