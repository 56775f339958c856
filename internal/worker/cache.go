package worker

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// IdempotencyKey hashes the identity of a work execution. Same worker, same
// type, same payload, same correlation id: same key.
func IdempotencyKey(workerName, workType string, payload []byte, correlationID string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|", workerName, workType, correlationID)
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

// resultCache is a bounded LRU of completed WorkResults, per process. The
// durable guarantee comes from unique work item ids and natural-key upserts
// downstream; this cache just short-circuits obvious replays.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recent
	entries  map[string]*list.Element
}

type cacheEntry struct {
	key    string
	result WorkResult
}

func newResultCache(capacity int) *resultCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &resultCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

func (c *resultCache) Get(key string) (WorkResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return WorkResult{}, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheEntry).result, true
}

func (c *resultCache) Put(key string, result WorkResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*cacheEntry).result = result
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&cacheEntry{key: key, result: result})
	c.entries[key] = el

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *resultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
