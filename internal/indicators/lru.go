package indicators

import (
	"container/list"

	"github.com/DaviRain-Su/zigquant-core/internal/quant"
)

// lru is a fixed-capacity least-recently-used cache keyed by fingerprint
// string. No ecosystem LRU package appeared anywhere in the retrieved pack
// (DESIGN.md), so this is a small hand-rolled doubly-linked-list-plus-map,
// the conventional shape for the data structure.
type lru struct {
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type lruEntry struct {
	key   string
	value quant.Column
}

func newLRU(capacity int) *lru {
	if capacity <= 0 {
		capacity = 1
	}
	return &lru{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *lru) get(key string) (quant.Column, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).value, true
}

// put inserts or updates key, evicting the least-recently-used entry if the
// cache is at capacity. Returns the evicted key, if any.
func (c *lru) put(key string, value quant.Column) (evictedKey string, evicted bool) {
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).value = value
		c.ll.MoveToFront(el)
		return "", false
	}
	el := c.ll.PushFront(&lruEntry{key: key, value: value})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		back := c.ll.Back()
		if back != nil {
			c.ll.Remove(back)
			ev := back.Value.(*lruEntry)
			delete(c.items, ev.key)
			return ev.key, true
		}
	}
	return "", false
}

func (c *lru) delete(key string) {
	if el, ok := c.items[key]; ok {
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

func (c *lru) len() int {
	return c.ll.Len()
}
