package filter

import (
	"bytes"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"

	"gitast/internal/tree"
)

// DefaultCacheSize bounds the number of snapshots kept per process.
const DefaultCacheSize = 256

const (
	kindSource    byte = 's'
	kindCanonical byte = 'c'
)

// Cache keeps recently parsed or decoded snapshots keyed by content hash.
// Entries keep their content so a hash collision is a miss. They are evicted
// in insertion order once the cache is full.
type Cache struct {
	mu    sync.Mutex
	size  int
	items map[uint64]cached
	order []uint64
}

type cached struct {
	content []byte
	snap    *tree.Snapshot
}

func NewCache(size int) *Cache {
	return &Cache{size: size, items: make(map[uint64]cached)}
}

// Key hashes content together with what it is and, for source text, the
// extension that picks its grammar.
func (c *Cache) Key(kind byte, pathname string, content []byte) uint64 {
	d := xxhash.New()
	_, _ = d.Write([]byte{kind})
	_, _ = d.WriteString(strings.ToLower(filepath.Ext(pathname)))
	_, _ = d.Write([]byte{0})
	_, _ = d.Write(content)
	return d.Sum64()
}

// Get returns the snapshot stored under key for exactly this content.
func (c *Cache) Get(key uint64, content []byte) (*tree.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok || !bytes.Equal(e.content, content) {
		return nil, false
	}
	return e.snap, true
}

func (c *Cache) Put(key uint64, content []byte, s *tree.Snapshot) {
	if c.size <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items[key]; ok {
		return
	}
	if len(c.order) >= c.size {
		delete(c.items, c.order[0])
		c.order = c.order[1:]
	}
	c.items[key] = cached{content: bytes.Clone(content), snap: s}
	c.order = append(c.order, key)
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
