package resolver

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/getsentry/hotspot/internal/frame"
)

const DefaultCacheSize = 1 << 16

type (
	cacheKey struct {
		space uint64
		addr  uint64
	}

	// Cache memoizes resolved frames. One cache is created per process
	// lifetime and shared by every build; entries are keyed by address
	// space so that resolvers of different processes never collide. The
	// underlying LRU is internally synchronized.
	Cache struct {
		frames *lru.Cache[cacheKey, frame.Frame]
	}

	cachedResolver struct {
		cache *Cache
		space uint64
		next  Resolver
	}
)

func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	frames, err := lru.New[cacheKey, frame.Frame](size)
	if err != nil {
		return nil, fmt.Errorf("resolver: failed to create lru cache: %w", err)
	}
	return &Cache{frames: frames}, nil
}

// Wrap returns a resolver for one address space that consults the cache
// before delegating to next.
func (c *Cache) Wrap(space uint64, next Resolver) Resolver {
	return cachedResolver{cache: c, space: space, next: next}
}

func (c *Cache) Len() int {
	return c.frames.Len()
}

// Purge drops every cached frame.
func (c *Cache) Purge() {
	c.frames.Purge()
}

func (r cachedResolver) Resolve(addr uint64) frame.Frame {
	key := cacheKey{space: r.space, addr: addr}
	if f, ok := r.cache.frames.Get(key); ok {
		return f
	}
	f := r.next.Resolve(addr)
	r.cache.frames.Add(key, f)
	return f
}
