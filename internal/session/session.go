// Package session holds opaque per-login session payloads keyed by session id.
// The durable backend persists them in its database; the volatile backend keeps
// them in a TTL-bounded LRU cache.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"

	"ledger/internal/cache"
)

const DefaultTTL = 24 * time.Hour

// Store persists session payloads. Get on an expired session reports found == false.
type Store interface {
	Get(ctx context.Context, sid string) (data []byte, found bool, err error)
	Set(ctx context.Context, sid string, data []byte) error
	// Touch extends the expiry of an existing session.
	Touch(ctx context.Context, sid string) (found bool, err error)
	Destroy(ctx context.Context, sid string) error
	cache.Cleaner
}

// NewID returns a fresh random session id.
func NewID() string {
	return uuid.NewString()
}

// MemoryStore keeps sessions in process memory. Sessions are lost on restart.
type MemoryStore struct {
	lru *cache.LRUCache[[]byte]
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(maxSessions int, ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{lru: cache.NewLRUCache[[]byte](maxSessions, ttl)}
}

func (s *MemoryStore) Get(_ context.Context, sid string) ([]byte, bool, error) {
	data, ok := s.lru.Get(sid)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (s *MemoryStore) Set(_ context.Context, sid string, data []byte) error {
	s.lru.Set(sid, append([]byte(nil), data...))
	return nil
}

func (s *MemoryStore) Touch(_ context.Context, sid string) (bool, error) {
	return s.lru.Touch(sid), nil
}

func (s *MemoryStore) Destroy(_ context.Context, sid string) error {
	s.lru.Delete(sid)
	return nil
}

func (s *MemoryStore) CleanExpired() int {
	return s.lru.CleanExpired()
}

// Len reports the number of sessions currently held, expired ones included.
func (s *MemoryStore) Len() int {
	return s.lru.Size()
}

// Stats reports cache activity, for example how many sessions the size bound pushed out.
func (s *MemoryStore) Stats() cache.Stats {
	return s.lru.Stats()
}
