// ABOUTME: Thread-safe TTL cache that lets exactly one caller claim a key
// ABOUTME: The router claims "bot/message-id" keys so each trigger runs a bot at most once

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

type entry struct {
	key     string
	claimed time.Time
}

// Cache remembers claimed keys for a TTL, holding at most maxSize keys.
// The oldest claim is evicted first when full.
type Cache struct {
	mu      sync.Mutex
	keys    map[string]*list.Element
	order   *list.List // *entry, oldest claim at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// New creates a cache. A background goroutine sweeps expired keys every
// sweep interval; zero or negative disables the sweeper.
func New(ttl time.Duration, maxSize int, sweep time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		keys:    make(map[string]*list.Element),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	if sweep > 0 {
		go c.sweeper(sweep)
	}
	return c
}

func (c *Cache) live(e *entry, now time.Time) bool {
	return now.Sub(e.claimed) < c.ttl
}

// Claim marks key as taken and reports whether this caller got it. It
// returns false while an earlier claim is still live.
func (c *Cache) Claim(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.keys[key]; ok {
		e := el.Value.(*entry)
		if c.live(e, now) {
			return false
		}
		// Expired: re-claim and move to the back.
		e.claimed = now
		c.order.MoveToBack(el)
		return true
	}

	for len(c.keys) >= c.maxSize {
		c.evictFrontLocked()
	}
	c.keys[key] = c.order.PushBack(&entry{key: key, claimed: now})
	return true
}

// Seen reports whether key holds a live claim.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.keys[key]
	return ok && c.live(el.Value.(*entry), c.now())
}

// Release drops a claim so the key can be claimed again immediately.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.keys[key]; ok {
		c.order.Remove(el)
		delete(c.keys, key)
	}
}

// Len returns the number of remembered keys, expired ones included until
// they are swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.keys)
}

func (c *Cache) evictFrontLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	c.order.Remove(front)
	delete(c.keys, front.Value.(*entry).key)
}

// Sweep removes expired keys. Claims are ordered by time, so it stops at
// the first live one.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		if c.live(el.Value.(*entry), now) {
			return
		}
		c.evictFrontLocked()
	}
}

func (c *Cache) sweeper(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Close stops the sweeper. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
