package storage

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dgellow/devreg/internal/log"
)

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps envelopes in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu        sync.RWMutex
	envelopes map[string]*StoredEnvelope
	ttl       time.Duration
	now       func() time.Time
}

// NewMemoryStore creates a memory store; ttl <= 0 selects DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		envelopes: make(map[string]*StoredEnvelope),
		ttl:       ttlOrDefault(ttl),
		now:       time.Now,
	}
}

func (s *MemoryStore) SaveEnvelope(_ context.Context, key string, slots map[string]string) error {
	env := newStoredEnvelope(slots, s.now(), s.ttl)

	s.mu.Lock()
	s.envelopes[key] = env
	count := len(s.envelopes)
	s.mu.Unlock()

	log.LogTraceWithFields("storage", "Saved envelope", map[string]any{
		"slots": len(slots),
		"total": count,
	})
	return nil
}

// LoadEnvelope returns a copy of the slots stored under key.
func (s *MemoryStore) LoadEnvelope(_ context.Context, key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env, ok := s.envelopes[key]
	if !ok || env.IsExpired(s.now()) {
		return nil, ErrEnvelopeNotFound
	}
	return maps.Clone(env.Slots), nil
}

func (s *MemoryStore) DeleteEnvelope(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.envelopes, key)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) CleanupExpiredEnvelopes(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for key, env := range s.envelopes {
		if env.IsExpired(now) {
			delete(s.envelopes, key)
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
