package audio

import (
	"context"
	"time"

	"github.com/zjrosen/displayboard/internal/cachemanager"
)

// CachedBackend memoizes Backend.Load so repeated plays of the same file do
// not decode it again.
type CachedBackend struct {
	Backend
	loader *cachemanager.ReadThroughCache[string, Sound]
}

// NewCachedBackend wraps b with a sound cache whose entries live for ttl
// after their last use.
func NewCachedBackend(b Backend, ttl time.Duration) *CachedBackend {
	cache := cachemanager.NewInMemoryCacheManager[string, Sound]("sounds", ttl, cachemanager.DefaultCleanupInterval)
	return &CachedBackend{
		Backend: b,
		loader: cachemanager.NewReadThroughCache[string, Sound](cache, func(_ context.Context, path string) (Sound, error) {
			return b.Load(path)
		}, ttl),
	}
}

// Load implements Backend.
func (c *CachedBackend) Load(path string) (Sound, error) {
	return c.loader.Get(context.Background(), path)
}

// Invalidate drops every cached sound.
func (c *CachedBackend) Invalidate() {
	c.loader.Invalidate(context.Background())
}
