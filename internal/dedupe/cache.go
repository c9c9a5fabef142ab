// ABOUTME: Clock-driven TTL cache that drops inbound events redelivered within a window
// ABOUTME: Entries expire lazily from the oldest end; capacity evicts the oldest key

package dedupe

import (
	"container/list"
	"sync"
	"time"

	"github.com/2389/coven-archiver/internal/clock"
)

// DefaultMaxSize bounds memory when a transport replays a large backlog.
const DefaultMaxSize = 10_000

type entry struct {
	key    string
	seenAt time.Time
}

// Cache remembers recently seen keys. The list is ordered by seenAt, oldest
// at the front, so expiry only ever inspects the front.
type Cache struct {
	mu      sync.Mutex
	index   map[string]*list.Element
	order   *list.List
	ttl     time.Duration
	maxSize int
	clock   clock.Clock
}

// New creates a cache. A ttl <= 0 disables it: Seen always reports false.
func New(ttl time.Duration, maxSize int, clk clock.Clock) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Cache{
		index:   make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clk,
	}
}

// Seen reports whether key was seen within the window and marks it either
// way. A repeat sighting refreshes the window.
func (c *Cache) Seen(key string) bool {
	if c == nil || c.ttl <= 0 || key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	c.expireLocked(now)

	if el, ok := c.index[key]; ok {
		el.Value.(*entry).seenAt = now
		c.order.MoveToBack(el)
		return true
	}

	if c.order.Len() >= c.maxSize {
		c.removeLocked(c.order.Front())
	}
	c.index[key] = c.order.PushBack(&entry{key: key, seenAt: now})
	return false
}

// Forget drops key so the next sighting is treated as new. The pipeline
// calls it when processing a message failed before anything was stored.
func (c *Cache) Forget(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.index[key]; ok {
		c.removeLocked(el)
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(c.clock.Now())
	return c.order.Len()
}

func (c *Cache) expireLocked(now time.Time) {
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		if now.Sub(front.Value.(*entry).seenAt) < c.ttl {
			return
		}
		c.removeLocked(front)
	}
}

func (c *Cache) removeLocked(el *list.Element) {
	if el == nil {
		return
	}
	c.order.Remove(el)
	delete(c.index, el.Value.(*entry).key)
}
