package data

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// QueryCache stores encoded results of cacheable queries.
//
// Keys are built from the current generation of the entity type they belong
// to; Invalidate moves a generation on, which orphans every result cached
// under the previous one.
type QueryCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Generation(ctx context.Context, namespace string) (int64, error)
	Invalidate(ctx context.Context, namespace string) error
}

type cacheBinding struct {
	cache QueryCache
	ttl   time.Duration
}

func (b *cacheBinding) invalidate(ctx context.Context, namespace string) {
	if err := b.cache.Invalidate(ctx, namespace); err != nil {
		logrus.Warnf("QueryCache.Invalidate: namespace [%s] failed: %v", namespace, err)
	}
}

const (
	cacheKeyPrefix        = "entity-service:query:"
	cacheGenerationPrefix = "entity-service:generation:"
)

func cacheKey(namespace string, generation int64, sql string) string {
	sum := sha256.Sum256([]byte(namespace + "|" + strconv.FormatInt(generation, 10) + "|" + sql))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryQueryCache is a process-local QueryCache. A zero ttl never expires.
type MemoryQueryCache struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	generations map[string]int64
	now         func() time.Time
}

func NewMemoryQueryCache() *MemoryQueryCache {
	return &MemoryQueryCache{
		entries:     make(map[string]memoryEntry),
		generations: make(map[string]int64),
		now:         time.Now,
	}
}

func (m *MemoryQueryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (m *MemoryQueryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryQueryCache) Generation(ctx context.Context, namespace string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generations[namespace], nil
}

func (m *MemoryQueryCache) Invalidate(ctx context.Context, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generations[namespace]++
	return nil
}

// Len counts cached results, orphaned ones included until they expire.
func (m *MemoryQueryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
