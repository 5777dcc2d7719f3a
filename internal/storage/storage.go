package storage

import (
	"context"
	"errors"
	"maps"
	"time"
)

// ErrEnvelopeNotFound is returned when an envelope doesn't exist or has expired
var ErrEnvelopeNotFound = errors.New("envelope not found")

// DefaultTTL is how long a pending registration envelope is kept.
const DefaultTTL = 15 * time.Minute

// StoredEnvelope is a persisted envelope: named slots of serialized values
// plus bookkeeping timestamps.
type StoredEnvelope struct {
	Slots     map[string]string `json:"slots"`
	UpdatedAt time.Time         `json:"updated_at"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// IsExpired reports whether the envelope expired at or before now.
func (e *StoredEnvelope) IsExpired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Store persists registration envelopes keyed by the request state.
// Implementations must be safe for concurrent use. Slot maps are copied on
// the way in and out.
type Store interface {
	SaveEnvelope(ctx context.Context, key string, slots map[string]string) error
	LoadEnvelope(ctx context.Context, key string) (map[string]string, error)
	DeleteEnvelope(ctx context.Context, key string) error

	// CleanupExpiredEnvelopes removes expired envelopes and returns how many
	// were removed.
	CleanupExpiredEnvelopes(ctx context.Context) (int, error)

	Close() error
}

func newStoredEnvelope(slots map[string]string, now time.Time, ttl time.Duration) *StoredEnvelope {
	return &StoredEnvelope{
		Slots:     maps.Clone(slots),
		UpdatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
