// File path: internal/schema/cache.go
package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nicodishanthj/copybook_engine/internal/common/telemetry"
)

const defaultCacheSize = 128

// Cache maps the content hash of copybook bytes to its resolved flat schema.
// It is an injectable component, never package-global state: callers own the
// instance and can invalidate entries explicitly. Concurrent first-use may
// resolve the same copybook twice; the duplicate insert is harmless.
type Cache struct {
	entries *lru.Cache[string, *Resolved]
}

// NewCache constructs a cache bounded to size entries (a default applies
// when size is not positive).
func NewCache(size int) (*Cache, error) {
	if size <= 0 {
		size = defaultCacheSize
	}
	entries, err := lru.New[string, *Resolved](size)
	if err != nil {
		return nil, fmt.Errorf("init schema cache: %w", err)
	}
	return &Cache{entries: entries}, nil
}

// Key derives the cache key for the given copybook bytes.
func (c *Cache) Key(copybook []byte) string {
	sum := sha256.Sum256(copybook)
	return hex.EncodeToString(sum[:])
}

// Get returns the cached schema for key, if present.
func (c *Cache) Get(key string) (*Resolved, bool) {
	if c == nil || c.entries == nil {
		return nil, false
	}
	resolved, ok := c.entries.Get(key)
	telemetry.RecordSchemaCache(ok)
	return resolved, ok
}

// Add stores a resolved schema under key.
func (c *Cache) Add(key string, resolved *Resolved) {
	if c == nil || c.entries == nil || resolved == nil {
		return
	}
	c.entries.Add(key, resolved)
}

// Invalidate drops the entry for key, if present.
func (c *Cache) Invalidate(key string) {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.Remove(key)
}

// Purge drops every cached schema.
func (c *Cache) Purge() {
	if c == nil || c.entries == nil {
		return
	}
	c.entries.Purge()
}
