package catalog

import (
	"context"
	"sync"

	"github.com/sells-group/legislation-cli/internal/model"
)

// Source produces the catalog of a session.
type Source interface {
	Load(ctx context.Context, s model.Session) (*Catalog, error)
}

// Cache holds the catalog of the most recently requested session. Asking
// for a different session replaces it.
type Cache struct {
	src Source

	mu  sync.Mutex
	key string
	cat *Catalog
}

// NewCache creates a cache that loads misses from src.
func NewCache(src Source) *Cache {
	return &Cache{src: src}
}

// Get returns the session's catalog, loading it on first use.
func (c *Cache) Get(ctx context.Context, s model.Session) (*Catalog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cat != nil && c.key == s.Key() {
		return c.cat, nil
	}
	cat, err := c.src.Load(ctx, s)
	if err != nil {
		return nil, err
	}
	c.key, c.cat = s.Key(), cat
	return cat, nil
}
