package gallery

import (
	"container/list"
	"slices"
	"sync"
)

// imageCache remembers the Images materialised for each owner instance, keyed by
// the instance pointer. Entries built from a raw list that no longer matches the
// instance are rebuilt on the next lookup.
type imageCache struct {
	mu      sync.Mutex
	size    int
	order   *list.List
	entries map[any]*list.Element
}

type cacheEntry struct {
	key    any
	raw    []uint
	images *Images
}

func newImageCache(size int) *imageCache {
	return &imageCache{size: size, order: list.New(), entries: make(map[any]*list.Element)}
}

func (c *imageCache) get(key any, raw []uint) (*Images, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if !slices.Equal(entry.raw, raw) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	return entry.images, true
}

func (c *imageCache) put(key any, raw []uint, images *Images) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value = &cacheEntry{key: key, raw: raw, images: images}
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, raw: raw, images: images})
	for c.order.Len() > c.size {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.entries, last.Value.(*cacheEntry).key)
	}
}

func (c *imageCache) drop(key any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}

func (c *imageCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
