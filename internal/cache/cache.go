// Package cache provides the TTL payload cache used by the provider gateway.
// Two backends exist: an in-process map with monotonic expiry and a thin
// Redis wrapper for multi-process deployments.
package cache

import (
	"context"
	"time"
)

// Cache stores raw response payloads keyed by request identity.
type Cache interface {
	// Get returns the payload for key if present and not expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. A non-positive ttl stores nothing.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
