// Package idempotency implements C8: a per-connection request-id →
// response cache with a time window, so a client replaying the same
// request id gets back the byte-identical response (§4.8). Modeled on
// the teacher's NonceCache (session/nonce.go) — a sync.Map of short-lived
// entries swept by a background ticker — narrowed from a seen-before
// boolean to a stored value.
package idempotency

import (
	"sync"
	"time"
)

const defaultWindow = 60 * time.Second

// entry holds a cached response and when it was inserted.
type entry struct {
	response   []byte
	insertedAt time.Time
}

// Cache maps request-id to cached response bytes for one connection.
// Entries older than the window are evicted both lazily (on lookup) and
// by periodic sweep (§4.8).
type Cache struct {
	window time.Duration

	mu   sync.Mutex
	data map[string]entry
}

// New builds a Cache with the default 60-second window.
func New() *Cache {
	return &Cache{window: defaultWindow, data: make(map[string]entry)}
}

// NewWithWindow builds a Cache with a custom window, used by tests.
func NewWithWindow(window time.Duration) *Cache {
	return &Cache{window: window, data: make(map[string]entry)}
}

// Get returns the cached response for requestID if present and still
// within the window; otherwise evicts it (if expired) and reports a miss.
func (c *Cache) Get(requestID string, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.data[requestID]
	if !ok {
		return nil, false
	}
	if now.Sub(e.insertedAt) > c.window {
		delete(c.data, requestID)
		return nil, false
	}
	return e.response, true
}

// Put stores the serialized response bytes for requestID. Storing the
// serialized bytes rather than a reference to the computed value is what
// guarantees byte-identical replay even if upstream state changes between
// the original call and the replay (§9).
func (c *Cache) Put(requestID string, response []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[requestID] = entry{response: append([]byte(nil), response...), insertedAt: now}
}

// Sweep evicts every entry older than the window. Intended to be called
// periodically (every 60s) by the owning connection registry or a
// dedicated background goroutine (§4.8).
func (c *Cache) Sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.data {
		if now.Sub(e.insertedAt) > c.window {
			delete(c.data, id)
		}
	}
}

// Len reports the number of entries currently cached, used by tests and
// diagnostics.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data)
}
