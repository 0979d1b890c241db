package places

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// DefaultMemoryCacheSize bounds the in-process cache when no size is configured.
const DefaultMemoryCacheSize = 10000

// Cache stores encoded lookups. Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// MemoryCache is an in-process Cache bounded by entry count and age. Expired
// entries are evicted in the background whether or not they are read again.
type MemoryCache struct {
	entries *expirable.LRU[string, memoryEntry]
}

type memoryEntry struct {
	expires time.Time
	value   []byte
}

// NewMemoryCache returns an empty cache holding at most size entries for at
// most ttl each. Per-entry ttls passed to Set may only shorten that.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultMemoryCacheSize
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryCache{entries: expirable.NewLRU[string, memoryEntry](size, nil, ttl)}
}

func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && time.Now().After(entry.expires) {
		m.entries.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expires = time.Now().Add(ttl)
	}
	m.entries.Add(key, entry)
	return nil
}

// Len reports how many entries are held, expired ones not yet swept included.
func (m *MemoryCache) Len() int {
	return m.entries.Len()
}
