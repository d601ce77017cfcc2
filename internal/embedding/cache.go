package embedding

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/upb/inventory-retrieval/internal/observability"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	vector     []float32
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

func (e *cacheEntry) isExpired(ttl time.Duration) bool {
	return ttl > 0 && time.Since(e.insertedAt) > ttl
}

// VectorCache is an in-memory LRU cache with TTL for embeddings keyed by text hash.
// Thread-safe implementation using sync.Mutex.
type VectorCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	hits    uint64
	misses  uint64
}

// NewVectorCache creates a VectorCache with the given capacity and TTL. A
// non-positive TTL never expires entries.
func NewVectorCache(maxSize int, ttl time.Duration) *VectorCache {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &VectorCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
	}
}

// Get returns the cached vector, or nil when missing or expired
func (c *VectorCache) Get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired(c.ttl) {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return nil, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.vector, true
}

// Set stores a vector, evicting the least recently used entry when full
func (c *VectorCache) Set(key string, vector []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[key]; exists {
		entry.vector = vector
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{
		vector:     vector,
		insertedAt: time.Now(),
	}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
}

// Clear removes all entries from the cache
func (c *VectorCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int     `json:"size"`
	MaxSize int     `json:"max_size"`
	Hits    uint64  `json:"hits"`
	Misses  uint64  `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns cache statistics
func (c *VectorCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// removeEntry must be called with the lock held
func (c *VectorCache) removeEntry(key string) {
	if entry, exists := c.entries[key]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictLRU must be called with the lock held
func (c *VectorCache) evictLRU() {
	if back := c.lruList.Back(); back != nil {
		key := back.Value.(string)
		c.lruList.Remove(back)
		delete(c.entries, key)
	}
}

// CleanupExpired removes all expired entries and returns how many were dropped
func (c *VectorCache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expired []string
	for key, entry := range c.entries {
		if entry.isExpired(c.ttl) {
			expired = append(expired, key)
		}
	}
	for _, key := range expired {
		c.removeEntry(key)
	}
	return len(expired)
}

// StartCleanupWorker periodically drops expired entries until ctx is done
func (c *VectorCache) StartCleanupWorker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-ctx.Done():
			return
		}
	}
}

// PersistentStore is a second cache tier that survives restarts.
type PersistentStore interface {
	Get(key string) ([]float32, bool, error)
	Set(key string, vector []float32) error
}

// CachedEmbedder serves repeated texts from memory, then from the persistent
// tier, before calling the inner embedder.
type CachedEmbedder struct {
	inner  Embedder
	model  string
	memory *VectorCache
	disk   PersistentStore // optional
	logger *zap.Logger
}

// NewCachedEmbedder wraps inner. disk may be nil. model is part of the key so
// switching models never serves stale vectors.
func NewCachedEmbedder(inner Embedder, model string, memory *VectorCache, disk PersistentStore, logger *zap.Logger) *CachedEmbedder {
	return &CachedEmbedder{
		inner:  inner,
		model:  model,
		memory: memory,
		disk:   disk,
		logger: logger,
	}
}

// Stats returns the memory tier statistics
func (c *CachedEmbedder) Stats() CacheStats {
	return c.memory.Stats()
}

func (c *CachedEmbedder) key(text string) string {
	h := sha256.Sum256([]byte(c.model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (c *CachedEmbedder) lookup(key string) ([]float32, bool) {
	if vec, ok := c.memory.Get(key); ok {
		observability.EmbeddingCacheTotal.WithLabelValues("memory", "hit").Inc()
		return vec, true
	}
	observability.EmbeddingCacheTotal.WithLabelValues("memory", "miss").Inc()

	if c.disk == nil {
		return nil, false
	}
	vec, ok, err := c.disk.Get(key)
	if err != nil {
		c.logger.Warn("failed to read cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		observability.EmbeddingCacheTotal.WithLabelValues("disk", "miss").Inc()
		return nil, false
	}
	observability.EmbeddingCacheTotal.WithLabelValues("disk", "hit").Inc()
	c.memory.Set(key, vec)
	return vec, true
}

func (c *CachedEmbedder) store(key string, vec []float32) {
	c.memory.Set(key, vec)
	if c.disk != nil {
		if err := c.disk.Set(key, vec); err != nil {
			c.logger.Warn("failed to persist embedding", zap.String("key", key), zap.Error(err))
		}
	}
}

// Embed returns a cached vector or embeds and caches text
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := c.key(text)
	if vec, ok := c.lookup(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(key, vec)
	return vec, nil
}

// EmbedBatch embeds only the uncached texts, in one inner call
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int
	for i, t := range texts {
		keys[i] = c.key(t)
		if vec, ok := c.lookup(keys[i]); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vecs, err := c.inner.EmbedBatch(ctx, pending)
	if err != nil {
		return nil, err
	}
	for j, i := range missing {
		out[i] = vecs[j]
		c.store(keys[i], vecs[j])
	}
	return out, nil
}
