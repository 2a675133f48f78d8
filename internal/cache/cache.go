// Package cache provides the process-wide TTL store and fixed-window rate
// limiter shared by the answer pipeline. Values are stored as raw bytes so
// the in-memory and redis backends behave identically.
package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Store is the contract between the pipeline and a cache backend.
type Store interface {
	// Get returns the value for key, or false when absent or expired.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Set stores value under key, overwriting unconditionally. The entry
	// expires ttl from now.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)

	// Delete removes key if present.
	Delete(ctx context.Context, key string)

	// RateLimit records one call against key inside a fixed window. The
	// first call of a window initializes it and is allowed; calls are
	// allowed while the window count is below max. A refused call has no
	// side effect beyond reporting zero remaining.
	RateLimit(ctx context.Context, key string, max int, window time.Duration) Decision
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	OK        bool
	Remaining int
}

// GetJSON reads key and unmarshals it into out. A malformed cached payload
// counts as a miss.
func GetJSON(ctx context.Context, s Store, key string, out any) bool {
	b, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, out); err != nil {
		s.Delete(ctx, key)
		return false
	}
	return true
}

// SetJSON marshals value and stores it under key. Marshal failures are
// dropped; caching is best effort.
func SetJSON(ctx context.Context, s Store, key string, value any, ttl time.Duration) {
	b, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.Set(ctx, key, b, ttl)
}
