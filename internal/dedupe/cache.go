// ABOUTME: Thread-safe TTL cache of the (connection, eventId) pairs currently being answered.
// ABOUTME: Size-bounded with O(1) eviction of the oldest claim.

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// DefaultCleanupInterval is how often expired claims are swept.
const DefaultCleanupInterval = time.Minute

type claimKey struct {
	conn    string
	eventID string
}

type claim struct {
	at      time.Time
	element *list.Element
}

// Cache tracks requests in flight. A claim lasts until Release, or until the
// TTL passes if it is never released. The zero value is not usable; call New.
type Cache struct {
	mu      sync.Mutex
	claims  map[claimKey]*claim
	byConn  map[string]map[string]struct{}
	order   *list.List // claimKeys, oldest at front
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a cache holding at most maxSize claims for ttl each. A
// background goroutine sweeps expired claims until Close is called.
func New(ttl time.Duration, maxSize int) *Cache {
	return NewWithInterval(ttl, maxSize, DefaultCleanupInterval)
}

// NewWithInterval is New with an explicit sweep interval.
func NewWithInterval(ttl time.Duration, maxSize int, interval time.Duration) *Cache {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache{
		claims:  make(map[claimKey]*claim),
		byConn:  make(map[string]map[string]struct{}),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go c.sweepLoop(interval)
	return c
}

// Claim reports whether the caller may handle eventID on conn. While a claim
// is held, later claims for the same pair return false.
func (c *Cache) Claim(conn, eventID string) bool {
	key := claimKey{conn: conn, eventID: eventID}
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.claims[key]; ok {
		if now.Sub(existing.at) < c.ttl {
			return false
		}
		c.removeLocked(key, existing)
	}

	if len(c.claims) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.claims[key] = &claim{at: now, element: c.order.PushBack(key)}
	ids, ok := c.byConn[conn]
	if !ok {
		ids = make(map[string]struct{})
		c.byConn[conn] = ids
	}
	ids[eventID] = struct{}{}
	return true
}

// Release ends the claim on eventID for conn so the id may be reused.
func (c *Cache) Release(conn, eventID string) {
	key := claimKey{conn: conn, eventID: eventID}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.claims[key]; ok {
		c.removeLocked(key, existing)
	}
}

// Forget drops every claim held for conn. Called when a connection ends.
func (c *Cache) Forget(conn string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for eventID := range c.byConn[conn] {
		key := claimKey{conn: conn, eventID: eventID}
		if existing, ok := c.claims[key]; ok {
			c.removeLocked(key, existing)
		}
	}
	delete(c.byConn, conn)
}

// Len returns the number of claims currently held.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.claims)
}

func (c *Cache) removeLocked(key claimKey, existing *claim) {
	c.order.Remove(existing.element)
	delete(c.claims, key)
	if ids, ok := c.byConn[key.conn]; ok {
		delete(ids, key.eventID)
		if len(ids) == 0 {
			delete(c.byConn, key.conn)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(claimKey)
	if existing, ok := c.claims[key]; ok {
		c.removeLocked(key, existing)
	}
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

// sweep removes expired claims. Claims are appended in time order, so it
// stops at the first live one.
func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for e := c.order.Front(); e != nil; {
		next := e.Next()
		key, _ := e.Value.(claimKey)
		existing := c.claims[key]
		if existing == nil || now.Sub(existing.at) < c.ttl {
			break
		}
		c.removeLocked(key, existing)
		e = next
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.done)
	}
}
