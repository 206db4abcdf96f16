package utils

import (
	"strings"
	"sync"
	"time"

	"cinelog/internal/logger"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheItem 包装缓存数据和过期时间
type CacheItem struct {
	Data      interface{}
	ExpiresAt time.Time
}

// GlobalCache is a size-bounded LRU with per-entry TTL. Every invalidation
// advances the epoch, so a read started before a write can't cache stale data.
type GlobalCache struct {
	mu       sync.Mutex
	epoch    uint64
	lruCache *lru.Cache[string, CacheItem]
}

var (
	cacheInstance *GlobalCache
	cacheOnce     sync.Once
)

// NewCache creates a cache holding at most size entries.
func NewCache(size int) *GlobalCache {
	l, err := lru.New[string, CacheItem](size)
	if err != nil {
		logger.For(nil).Fatalf("Failed to create LRU cache: %v", err)
	}
	return &GlobalCache{lruCache: l}
}

// GetCache 获取单例缓存实例
func GetCache() *GlobalCache {
	cacheOnce.Do(func() {
		cacheInstance = NewCache(500)
	})
	return cacheInstance
}

// Set stores data until ttl elapses.
func (c *GlobalCache) Set(key string, data interface{}, ttl time.Duration) {
	c.lruCache.Add(key, CacheItem{
		Data:      data,
		ExpiresAt: time.Now().Add(ttl),
	})
}

// Get returns nil for missing or expired keys.
func (c *GlobalCache) Get(key string) interface{} {
	val, ok := c.lruCache.Get(key)
	if !ok {
		return nil
	}

	if time.Now().After(val.ExpiresAt) {
		c.lruCache.Remove(key)
		return nil
	}

	return val.Data
}

// Epoch is read before loading data that will be stored with SetIfEpoch.
func (c *GlobalCache) Epoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// SetIfEpoch stores data only if nothing was invalidated since epoch was read.
func (c *GlobalCache) SetIfEpoch(key string, data interface{}, ttl time.Duration, epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.epoch != epoch {
		return false
	}
	c.Set(key, data, ttl)
	return true
}

func (c *GlobalCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.lruCache.Remove(key)
}

// DeletePrefix drops every key starting with prefix, e.g. all comment windows of a movie.
func (c *GlobalCache) DeletePrefix(prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	for _, key := range c.lruCache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.lruCache.Remove(key)
		}
	}
}
