package embcache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kailas-cloud/contramate/internal/db"
)

// MemoryStore is an in-process KV store used when the search backend has no KV side.
type MemoryStore struct {
	c *gocache.Cache
}

// NewMemoryStore creates a store whose entries default to ttl and are swept every cleanup.
func NewMemoryStore(ttl, cleanup time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStore{c: gocache.New(ttl, cleanup)}
}

// Get returns a copy of the stored value or db.ErrKeyNotFound.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	b, _ := v.([]byte)
	return append([]byte(nil), b...), nil
}

// SetWithTTL stores a copy of value. A non-positive ttl uses the store default.
func (m *MemoryStore) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

// Len returns the number of cached items, expired ones included until the next sweep.
func (m *MemoryStore) Len() int { return m.c.ItemCount() }
