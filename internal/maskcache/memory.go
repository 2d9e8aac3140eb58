package maskcache

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/sculptflow/types"
)

type memoryEntry struct {
	mask      *types.Mask
	expiresAt time.Time
	insertSeq uint64
}

// MemoryCache 进程内掩码缓存，超出容量时淘汰最早写入的条目
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	ttl        time.Duration
	maxEntries int
	seq        uint64
	closed     bool
	now        func() time.Time
}

// NewMemoryCache 创建进程内缓存。ttl<=0 表示不过期，maxEntries<=0 取 256。
func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryCache{
		entries:    make(map[string]*memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get 实现 Cache.Get
func (c *MemoryCache) Get(_ context.Context, key string) (*types.Mask, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrClosed
	}
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return e.mask.Clone(), true, nil
}

// Set 实现 Cache.Set
func (c *MemoryCache) Set(_ context.Context, key string, mask *types.Mask) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if mask == nil {
		return nil
	}

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}

	c.seq++
	e := &memoryEntry{mask: mask.Clone(), insertSeq: c.seq}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[key] = e
	return nil
}

func (c *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestSeq uint64
	for k, e := range c.entries {
		if oldestKey == "" || e.insertSeq < oldestSeq {
			oldestKey, oldestSeq = k, e.insertSeq
		}
	}
	delete(c.entries, oldestKey)
}

// Len 返回当前条目数
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ping 实现 Cache.Ping
func (c *MemoryCache) Ping(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// Close 实现 Cache.Close
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.entries = nil
	return nil
}
