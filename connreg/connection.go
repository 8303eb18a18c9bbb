package connreg

import (
	"sync"
	"time"

	"github.com/nostrkv/kvgate/idempotency"
	"github.com/nostrkv/kvgate/ratelimit"
)

// ClientConnection is one client's live state: its authorized policy plus
// the rate, byte-budget, and idempotency caches that policy governs.
// Created lazily on first valid event from a client pubkey and never
// destroyed in steady state; its caches self-prune by time (§3). All
// access to rate, budget, and idempotency state is serialized under mu so
// that a sequence of checks within one request is linearizable (§5).
type ClientConnection struct {
	ClientPubKey string
	Policy       Policy

	mu        sync.Mutex
	rate      *ratelimit.Window
	idempo    *idempotency.Cache
}

func newConnection(pubkey string, policy Policy) *ClientConnection {
	return &ClientConnection{
		ClientPubKey: pubkey,
		Policy:       policy,
		rate:         ratelimit.New(policy.Limits.MPS, policy.Limits.BPS),
		idempo:       idempotency.New(),
	}
}

// AllowsMethod reports whether method is in this connection's allowlist.
func (c *ClientConnection) AllowsMethod(method string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Policy.allowsMethod(method)
}

// CheckRate enforces the mps budget for one accepted request (§4.7).
func (c *ClientConnection) CheckRate(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate.CheckRate(now)
}

// CheckBytes reports whether n additional bytes fit the bps budget
// without recording them (§4.7).
func (c *ClientConnection) CheckBytes(now time.Time, n int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate.CheckBytes(now, n)
}

// ConsumeBytes records n bytes as accepted against the byte budget.
func (c *ClientConnection) ConsumeBytes(now time.Time, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate.ConsumeBytes(now, n)
}

// IdempotentResponse returns a cached response for requestID, if any
// (§4.8 dispatch step 2).
func (c *ClientConnection) IdempotentResponse(requestID string, now time.Time) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idempo.Get(requestID, now)
}

// RecordResponse stores the serialized response for requestID for future
// replay (§4.8 dispatch step 9).
func (c *ClientConnection) RecordResponse(requestID string, response []byte, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idempo.Put(requestID, response, now)
}

// SweepIdempotency evicts idempotency entries older than the window.
func (c *ClientConnection) SweepIdempotency(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idempo.Sweep(now)
}

// Limits returns a copy of the connection's limit vector.
func (c *ClientConnection) Limits() Limits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Policy.Limits
}

// Namespace returns the connection's namespace string.
func (c *ClientConnection) Namespace() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Policy.Namespace
}

// Methods returns a copy of the connection's allowed method list.
func (c *ClientConnection) Methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.Policy.AllowedMethods...)
}
